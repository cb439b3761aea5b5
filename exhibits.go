package exhibitid

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

// AddRequest describes an exhibit to add. The store assigns its identity.
type AddRequest struct {
	Title       string
	Description string
	Image       []byte

	// Keypoints from all training photos. The strongest by response are
	// kept, up to WithMaxDescriptors.
	Keypoints []model.Keypoint

	// Descriptors is used when Keypoints is empty. Leading descriptors are
	// kept, up to WithMaxDescriptors.
	Descriptors []model.Descriptor
}

// AddImagesRequest describes an exhibit to add from photos.
type AddImagesRequest struct {
	Title       string
	Description string
	// Image is the picture stored with the exhibit. It is also the only
	// training photo when TrainingImages is empty.
	Image          []byte
	TrainingImages [][]byte
}

// AddExhibit stores a new exhibit under a fresh identity and makes it
// identifiable. Exhibits are never updated in place. The store insert
// happens first: when it fails the index is left untouched.
// When the following generation build fails the exhibit is stored and
// indexed but becomes identifiable only with the next successful build.
func (e *Engine) AddExhibit(ctx context.Context, req AddRequest) (model.ID, error) {
	start := time.Now()

	id, n, err := e.addExhibit(ctx, req)
	err = translateError(err)

	e.opts.metricsCollector.RecordAdd(n, time.Since(start), err)
	e.opts.logger.LogAdd(ctx, id, n, err)
	return id, err
}

func (e *Engine) addExhibit(ctx context.Context, req AddRequest) (model.ID, int, error) {
	if e.closed.Load() {
		return model.NilID, 0, ErrClosed
	}

	descs := strongest(req, e.opts.maxDescriptors)
	if len(descs) == 0 {
		return model.NilID, 0, ErrNoDescriptors
	}

	rec := model.Record{
		Title:       req.Title,
		Description: req.Description,
		Image:       req.Image,
		Descriptors: descs,
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return model.NilID, 0, ErrClosed
	}

	id, err := e.store.Insert(ctx, rec)
	if err != nil {
		return model.NilID, len(descs), fmt.Errorf("insert exhibit: %w", err)
	}

	e.index.Append(descs, id)
	e.rebuild(ctx)

	return id, len(descs), nil
}

// AddExhibitImages extracts keypoints from every training photo with one
// pooled extractor and adds the exhibit with the strongest of them.
// It requires WithExtractors.
func (e *Engine) AddExhibitImages(ctx context.Context, req AddImagesRequest) (model.ID, error) {
	images := req.TrainingImages
	if len(images) == 0 {
		images = [][]byte{req.Image}
	}

	kps, err := e.extract(ctx, images)
	if err != nil {
		err = translateError(err)
		e.opts.metricsCollector.RecordAdd(0, 0, err)
		e.opts.logger.LogAdd(ctx, model.NilID, 0, err)
		return model.NilID, err
	}

	return e.AddExhibit(ctx, AddRequest{
		Title:       req.Title,
		Description: req.Description,
		Image:       req.Image,
		Keypoints:   kps,
	})
}

// strongest selects the descriptors kept for an exhibit.
func strongest(req AddRequest, limit int) []model.Descriptor {
	if len(req.Keypoints) == 0 {
		n := min(limit, len(req.Descriptors))
		return slices.Clone(req.Descriptors[:n])
	}

	kps := slices.Clone(req.Keypoints)
	slices.SortStableFunc(kps, func(a, b model.Keypoint) int {
		return cmp.Compare(b.Response, a.Response)
	})
	return descriptorsOf(kps[:min(limit, len(kps))])
}

// DeleteExhibit removes an exhibit from the store and the index.
// A missing exhibit yields ErrNotFound.
func (e *Engine) DeleteExhibit(ctx context.Context, id model.ID) error {
	start := time.Now()

	removed, err := e.deleteExhibit(ctx, id)
	err = translateError(err)

	e.opts.metricsCollector.RecordDelete(removed, time.Since(start), err)
	e.opts.logger.LogDelete(ctx, id, removed, err)
	return err
}

func (e *Engine) deleteExhibit(ctx context.Context, id model.ID) (int, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return 0, ErrClosed
	}

	if err := e.store.Delete(ctx, id); err != nil {
		return 0, fmt.Errorf("delete exhibit %s: %w", id, err)
	}

	removed := e.index.RemoveAll(id)
	if removed > 0 {
		e.rebuild(ctx)
	}
	return removed, nil
}

// GetExhibit returns one stored exhibit.
func (e *Engine) GetExhibit(ctx context.Context, id model.ID) (model.Record, error) {
	if e.closed.Load() {
		return model.Record{}, ErrClosed
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Record{}, translateError(fmt.Errorf("get exhibit %s: %w", id, err))
	}
	return rec, nil
}

// ListChunk returns the page of stored exhibits after cursor. Pass the
// previous chunk's Next to continue; a chunk with Last set ends the walk.
func (e *Engine) ListChunk(ctx context.Context, cursor model.Cursor, opts ...store.ScanOption) (model.Chunk, error) {
	if e.closed.Load() {
		return model.Chunk{}, ErrClosed
	}
	chunk, err := e.store.Scan(ctx, cursor, opts...)
	if err != nil {
		return model.Chunk{}, translateError(fmt.Errorf("list exhibits: %w", err))
	}
	return chunk, nil
}
