// Package dynamo is a store.Store backed by Amazon DynamoDB.
//
// Table schema:
//   - Partition key: id (string) - canonical exhibit identity
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name exhibits \
//	  --attribute-definitions AttributeName=id,AttributeType=S \
//	  --key-schema AttributeName=id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
//
// Descriptor blobs are stored block-compressed (see package codec). The scan
// cursor is the last evaluated id.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/exhibitid/codec"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

// Client is the interface for DynamoDB operations.
type Client interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Attribute names.
const (
	attrID          = "id"
	attrTitle       = "title"
	attrDescription = "description"
	attrImage       = "image"
	attrImageKey    = "image_key"
	attrDescriptors = "descriptors"
)

// ErrTableNotActive is returned by Connect when the table exists but is not
// ready for traffic.
var ErrTableNotActive = errors.New("dynamo: table not active")

// Options configures the store.
type Options struct {
	// Compression applied to descriptor blobs. Default: zstd.
	Compression codec.Compression
	// ConsistentRead enables strongly consistent scans and gets.
	ConsistentRead bool
}

// Option configures the store.
type Option func(*Options)

// WithCompression sets the descriptor blob compression.
func WithCompression(c codec.Compression) Option {
	return func(o *Options) { o.Compression = c }
}

// WithConsistentRead enables strongly consistent reads.
func WithConsistentRead() Option {
	return func(o *Options) { o.ConsistentRead = true }
}

// Store implements store.Store on a DynamoDB table.
type Store struct {
	client    Client
	table     string
	opts      Options
	connected atomic.Bool
	closed    atomic.Bool
	newID     func() model.ID
}

// New creates a store on table using client.
func New(client Client, table string, optFns ...Option) *Store {
	opts := Options{Compression: codec.CompressionZSTD}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, table: table, opts: opts, newID: model.NewID}
}

// NewFromConfig loads the default AWS configuration and creates a store.
func NewFromConfig(ctx context.Context, table string, region string, optFns ...Option) (*Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), table, optFns...), nil
}

func (s *Store) check() error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	if !s.connected.Load() {
		return store.ErrNotConnected
	}
	return nil
}

// Connect verifies the table exists and is active.
func (s *Store) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("dynamo: describe table %s: %w", s.table, err)
	}
	if out.Table != nil && out.Table.TableStatus != types.TableStatusActive && out.Table.TableStatus != types.TableStatusUpdating {
		return fmt.Errorf("%w: %s is %s", ErrTableNotActive, s.table, out.Table.TableStatus)
	}
	s.connected.Store(true)
	return nil
}

// Scan implements store.Store.
func (s *Store) Scan(ctx context.Context, cursor model.Cursor, opts ...store.ScanOption) (model.Chunk, error) {
	if err := s.check(); err != nil {
		return model.Chunk{}, err
	}
	o := store.ApplyScanOptions(opts...)

	in := &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		Limit:          aws.Int32(int32(o.PageSize)),
		ConsistentRead: aws.Bool(s.opts.ConsistentRead),
	}
	if len(cursor) > 0 {
		in.ExclusiveStartKey = map[string]types.AttributeValue{
			attrID: &types.AttributeValueMemberS{Value: string(cursor)},
		}
	}
	if o.WithoutImages {
		in.ProjectionExpression = aws.String("#id, #t, #d, #k, #x")
		in.ExpressionAttributeNames = map[string]string{
			"#id": attrID,
			"#t":  attrTitle,
			"#d":  attrDescription,
			"#k":  attrImageKey,
			"#x":  attrDescriptors,
		}
	}

	out, err := s.client.Scan(ctx, in)
	if err != nil {
		return model.Chunk{}, fmt.Errorf("dynamo: scan %s: %w", s.table, err)
	}

	chunk := model.Chunk{Records: make([]model.Record, 0, len(out.Items))}
	for _, item := range out.Items {
		rec, err := decodeItem(item)
		if err != nil {
			if err := store.SkipOrFail(&chunk, err); err != nil {
				return model.Chunk{}, err
			}
			continue
		}
		chunk.Records = append(chunk.Records, rec)
	}

	if len(out.LastEvaluatedKey) == 0 {
		chunk.Last = true
		return chunk, nil
	}
	last, ok := out.LastEvaluatedKey[attrID].(*types.AttributeValueMemberS)
	if !ok {
		return model.Chunk{}, errors.New("dynamo: invalid last evaluated key")
	}
	chunk.Next = model.Cursor(last.Value)
	return chunk, nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id model.ID) (model.Record, error) {
	if err := s.check(); err != nil {
		return model.Record{}, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(id),
		ConsistentRead: aws.Bool(s.opts.ConsistentRead),
	})
	if err != nil {
		return model.Record{}, fmt.Errorf("dynamo: get %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return model.Record{}, store.ErrNotFound
	}
	return decodeItem(out.Item)
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, rec model.Record) (model.ID, error) {
	if err := s.check(); err != nil {
		return model.NilID, err
	}
	rec, err := store.AssignID(rec, s.newID)
	if err != nil {
		return model.NilID, err
	}

	blob, err := codec.CompressDescriptors(rec.Descriptors, s.opts.Compression)
	if err != nil {
		return model.NilID, err
	}

	item := map[string]types.AttributeValue{
		attrID:          &types.AttributeValueMemberS{Value: rec.ID.String()},
		attrTitle:       &types.AttributeValueMemberS{Value: rec.Title},
		attrDescription: &types.AttributeValueMemberS{Value: rec.Description},
		attrDescriptors: &types.AttributeValueMemberB{Value: blob},
	}
	if len(rec.Image) > 0 {
		item[attrImage] = &types.AttributeValueMemberB{Value: rec.Image}
	}
	if rec.ImageKey != "" {
		item[attrImageKey] = &types.AttributeValueMemberS{Value: rec.ImageKey}
	}

	// Conditional put: an existing identity is never overwritten.
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return model.NilID, fmt.Errorf("dynamo: put %s: %w", rec.ID, store.ErrExists)
		}
		return model.NilID, fmt.Errorf("dynamo: put %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id model.ID) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 key(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrNotFound
		}
		return fmt.Errorf("dynamo: delete %s: %w", id, err)
	}
	return nil
}

// Close implements store.Store. The SDK client holds no connection.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func key(id model.ID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrID: &types.AttributeValueMemberS{Value: id.String()},
	}
}

func decodeItem(item map[string]types.AttributeValue) (model.Record, error) {
	idAttr, ok := item[attrID].(*types.AttributeValueMemberS)
	if !ok {
		return model.Record{}, errors.New("dynamo: item without id")
	}
	id, err := model.ParseID(idAttr.Value)
	if err != nil {
		return model.Record{}, err
	}

	rec := model.Record{ID: id}
	if v, ok := item[attrTitle].(*types.AttributeValueMemberS); ok {
		rec.Title = v.Value
	}
	if v, ok := item[attrDescription].(*types.AttributeValueMemberS); ok {
		rec.Description = v.Value
	}
	if v, ok := item[attrImage].(*types.AttributeValueMemberB); ok {
		rec.Image = v.Value
	}
	if v, ok := item[attrImageKey].(*types.AttributeValueMemberS); ok {
		rec.ImageKey = v.Value
	}

	blob, ok := item[attrDescriptors].(*types.AttributeValueMemberB)
	if !ok {
		return model.Record{}, fmt.Errorf("record %s: %w: missing blob", id, model.ErrMalformedDescriptors)
	}
	rec.Descriptors, err = codec.DecompressDescriptors(blob.Value)
	if err != nil {
		return model.Record{}, fmt.Errorf("record %s: %w", id, err)
	}
	return rec, nil
}
