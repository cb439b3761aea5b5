package exhibitid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/exhibitid/internal/identify"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

// Match is the outcome of an identification.
type Match struct {
	// ID is the winning exhibit, or model.NilID when Found is false.
	ID    model.ID
	Found bool
	// Votes is the number of query descriptors that voted for ID.
	Votes int
	// Candidates is the number of distinct exhibits that received a vote.
	Candidates int
	// Discarded counts votes dropped by the ratio test.
	Discarded int
	// Generation is the version of the search generation that answered.
	Generation uint64
}

// Identify finds the exhibit the query descriptors most likely belong to.
// Every query descriptor votes for the owner of its nearest indexed
// descriptor; the exhibit with the most votes wins. An empty index or an
// empty query yields Found == false, which is not an error.
func (e *Engine) Identify(ctx context.Context, descs []model.Descriptor) (Match, error) {
	start := time.Now()

	m, err := e.identify(ctx, descs)
	err = translateError(err)

	e.opts.metricsCollector.RecordIdentify(len(descs), m.Found, time.Since(start), err)
	e.opts.logger.LogIdentify(ctx, len(descs), m, err)
	return m, err
}

func (e *Engine) identify(ctx context.Context, descs []model.Descriptor) (Match, error) {
	if e.closed.Load() {
		return Match{}, ErrClosed
	}

	lease, err := e.gens.Acquire(ctx)
	if err != nil {
		return Match{}, err
	}
	gen := lease.Generation()
	neighbors, err := lease.Matcher().KNN(descs, e.opts.resolve.K)
	// Neighbor lists are copies; voting needs only the immutable generation.
	lease.Release()
	if err != nil {
		return Match{}, fmt.Errorf("knn: %w", err)
	}

	res := identify.Resolve(neighbors, gen, e.opts.resolve)
	return Match{
		ID:         res.ID,
		Found:      res.Found,
		Votes:      res.VotesFor(res.ID),
		Candidates: len(res.Votes),
		Discarded:  res.Discarded,
		Generation: gen.Version(),
	}, nil
}

// IdentifyRecord identifies descs and fetches the winning exhibit from the
// store. An exhibit deleted between the two steps counts as not found.
func (e *Engine) IdentifyRecord(ctx context.Context, descs []model.Descriptor) (model.Record, Match, error) {
	m, err := e.Identify(ctx, descs)
	if err != nil || !m.Found {
		return model.Record{}, m, err
	}

	rec, err := e.store.Get(ctx, m.ID)
	if errors.Is(err, store.ErrNotFound) {
		m.Found = false
		return model.Record{}, m, nil
	}
	if err != nil {
		return model.Record{}, m, translateError(fmt.Errorf("get exhibit %s: %w", m.ID, err))
	}
	return rec, m, nil
}

// IdentifyImage extracts descriptors from an encoded photo and identifies
// them. It requires WithExtractors.
func (e *Engine) IdentifyImage(ctx context.Context, image []byte) (Match, error) {
	kps, err := e.extract(ctx, [][]byte{image})
	if err != nil {
		err = translateError(err)
		e.opts.metricsCollector.RecordIdentify(0, false, 0, err)
		e.opts.logger.LogIdentify(ctx, 0, Match{}, err)
		return Match{}, err
	}
	return e.Identify(ctx, descriptorsOf(kps))
}

// extract runs one pooled extractor over every image and concatenates the
// keypoints in image order.
func (e *Engine) extract(ctx context.Context, images [][]byte) ([]model.Keypoint, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if e.extractors == nil {
		return nil, ErrNoExtractor
	}

	ex, err := e.extractors.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer e.extractors.Release(ex)

	var all []model.Keypoint
	for i, img := range images {
		kps, err := ex.Extract(img)
		if err != nil {
			return nil, &ExtractError{Image: i, cause: err}
		}
		all = append(all, kps...)
	}
	return all, nil
}

func descriptorsOf(kps []model.Keypoint) []model.Descriptor {
	descs := make([]model.Descriptor, len(kps))
	for i := range kps {
		descs[i] = kps[i].Descriptor
	}
	return descs
}
