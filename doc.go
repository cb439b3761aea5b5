// Package exhibitid identifies physical exhibits from photographs.
//
// An Engine keeps an in-memory index of 32-byte binary descriptors for every
// known exhibit, loaded from a persistent store at startup and kept in sync
// by every add and delete. Identification searches the index for the
// nearest neighbors of each query descriptor and lets every query
// descriptor vote for the exhibit owning its best match.
//
// # Quick Start
//
//	st := sqlstore.New(sqlstore.SQLite{}, sqlstore.Config{DSN: "exhibits.db"})
//	eng, err := exhibitid.Open(ctx, st,
//	    exhibitid.WithLogger(exhibitid.NewTextLogger(slog.LevelInfo)),
//	    exhibitid.WithPoolSize(10),
//	)
//	defer eng.Close()
//
//	id, _ := eng.AddExhibit(ctx, exhibitid.AddRequest{
//	    Title:     "Vase-12",
//	    Keypoints: keypoints, // from the training photos
//	})
//
//	m, _ := eng.Identify(ctx, queryDescriptors)
//	if m.Found {
//	    fmt.Println(m.ID, m.Votes)
//	}
//
// # Concurrency
//
// Identify never blocks on mutations. Each call pins the generation that is
// current when it starts: an immutable, trained search structure with its
// own pool of matchers. Add and delete are serialized; each one updates the
// index, then trains and atomically publishes a new generation. Readers of
// the previous generation finish undisturbed.
//
// # Stores
//
// Any store.Store works. Built-in backends live under store/: memory,
// sqlstore (SQLite, PostgreSQL, MySQL), badgerstore, dynamo, and the
// offload decorator that keeps images in a blobstore (memory, S3, MinIO).
package exhibitid
