package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/exhibitid/blobstore"
	"github.com/hupe1980/exhibitid/blobstore/minio"
	"github.com/hupe1980/exhibitid/blobstore/s3"
	"github.com/hupe1980/exhibitid/codec"
	"github.com/hupe1980/exhibitid/store"
	"github.com/hupe1980/exhibitid/store/badgerstore"
	"github.com/hupe1980/exhibitid/store/dynamo"
	"github.com/hupe1980/exhibitid/store/memory"
	"github.com/hupe1980/exhibitid/store/offload"
	"github.com/hupe1980/exhibitid/store/sqlstore"
)

// openStore builds the configured store. The store is not connected yet.
func openStore(ctx context.Context, cfg *Config, logger *slog.Logger) (store.Store, error) {
	sc := cfg.Store

	comp, err := codec.ParseCompression(sc.Compression)
	if err != nil {
		return nil, err
	}

	var st store.Store
	switch sc.Backend {
	case "memory":
		st = memory.New()
	case "sqlite", "postgres", "mysql":
		st, err = sqlstore.Open(sc.Backend, sqlstore.Config{
			DSN:         sc.DSN,
			Table:       sc.Table,
			Compression: comp,
		})
		if err != nil {
			return nil, err
		}
	case "badger":
		bc := badgerstore.Config{
			Dir:         sc.Dir,
			InMemory:    sc.Dir == "",
			Compression: comp,
		}
		if sc.Codec != "" {
			c, ok := codec.ByName(sc.Codec)
			if !ok {
				return nil, fmt.Errorf("unknown codec %q", sc.Codec)
			}
			bc.Codec = c
		}
		st = badgerstore.New(bc)
	case "dynamo":
		var opts []dynamo.Option
		if sc.Compression != "" {
			opts = append(opts, dynamo.WithCompression(comp))
		}
		if sc.ConsistentRead {
			opts = append(opts, dynamo.WithConsistentRead())
		}
		st, err = dynamo.NewFromConfig(ctx, sc.Table, sc.Region, opts...)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}

	blobs, err := openImages(ctx, cfg.Images)
	if err != nil {
		return nil, err
	}
	if blobs == nil {
		return st, nil
	}

	return offload.New(st, blobs, offload.Options{
		FetchConcurrency: cfg.Images.FetchConcurrency,
		CacheBytes:       cfg.Images.CacheBytes,
		Logger:           logger,
	}), nil
}

// openImages builds the configured image blobstore, or nil when images stay
// in the record store.
func openImages(ctx context.Context, ic ImagesConfig) (blobstore.BlobStore, error) {
	switch ic.Backend {
	case "", "none":
		return nil, nil
	case "s3":
		var loadOpts []func(*config.LoadOptions) error
		if ic.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(ic.Region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if ic.Endpoint != "" {
				o.BaseEndpoint = aws.String(ic.Endpoint)
				o.UsePathStyle = true
			}
		})
		return s3.NewStore(client, ic.Bucket, ic.Prefix), nil
	case "minio":
		client, err := miniogo.New(ic.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(ic.AccessKey, ic.SecretKey, ""),
			Secure: ic.UseSSL,
			Region: ic.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		ms := minio.NewStore(client, ic.Bucket, ic.Prefix)
		if err := ms.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return ms, nil
	default:
		return nil, fmt.Errorf("unknown images backend %q", ic.Backend)
	}
}
