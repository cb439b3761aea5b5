package exhibitid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
	"github.com/hupe1980/exhibitid/store/memory"
	"github.com/hupe1980/exhibitid/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("store unreachable")

func noSleep(context.Context, time.Duration) error { return nil }

// exhibitFixture is a physical object: a reference keypoint set that every
// photo of the object samples from.
type exhibitFixture struct {
	title string
	ref   []model.Descriptor
}

func newFixture(rng *testutil.RNG, title string) exhibitFixture {
	return exhibitFixture{title: title, ref: rng.Descriptors(60)}
}

// trainingKeypoints returns the keypoints of n training photos.
func (f exhibitFixture) trainingKeypoints(rng *testutil.RNG, n int) []model.Keypoint {
	var kps []model.Keypoint
	for i := 0; i < n; i++ {
		kps = append(kps, rng.Keypoints(rng.Photo(f.ref, 40, 6))...)
	}
	return kps
}

func (f exhibitFixture) holdout(rng *testutil.RNG) []model.Descriptor {
	return rng.Photo(f.ref, 40, 6)
}

func openEngine(t *testing.T, st store.Store, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{withSleep(noSleep)}, opts...)
	eng, err := Open(t.Context(), st, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_Vase12Scenario(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(12)
	eng := openEngine(t, memory.New())

	vase := newFixture(rng, "Vase-12")
	before := eng.Stats().Rows

	id, err := eng.AddExhibit(ctx, AddRequest{
		Title:     vase.title,
		Keypoints: vase.trainingKeypoints(rng, 3),
	})
	require.NoError(t, err)
	require.NotEqual(t, model.NilID, id)

	grown := eng.Stats().Rows - before
	assert.Positive(t, grown)
	assert.LessOrEqual(t, grown, 120)

	holdout := vase.holdout(rng)
	m, err := eng.Identify(ctx, holdout)
	require.NoError(t, err)
	require.True(t, m.Found)
	assert.Equal(t, id, m.ID)
	assert.Positive(t, m.Votes)

	rec, m2, err := eng.IdentifyRecord(ctx, holdout)
	require.NoError(t, err)
	require.True(t, m2.Found)
	assert.Equal(t, "Vase-12", rec.Title)

	require.NoError(t, eng.DeleteExhibit(ctx, id))

	m, err = eng.Identify(ctx, holdout)
	require.NoError(t, err)
	assert.False(t, m.Found)
	assert.Equal(t, before, eng.Stats().Rows)
}

func TestEngine_IdentifiesAmongManyExhibits(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(13)
	eng := openEngine(t, memory.New())

	fixtures := make([]exhibitFixture, 6)
	ids := make([]model.ID, len(fixtures))
	for i := range fixtures {
		fixtures[i] = newFixture(rng, fmt.Sprintf("exhibit-%d", i))
		id, err := eng.AddExhibit(ctx, AddRequest{Title: fixtures[i].title, Keypoints: fixtures[i].trainingKeypoints(rng, 3)})
		require.NoError(t, err)
		ids[i] = id
	}

	for i, f := range fixtures {
		m, err := eng.Identify(ctx, f.holdout(rng))
		require.NoError(t, err)
		require.True(t, m.Found)
		assert.Equal(t, ids[i], m.ID, f.title)
		assert.GreaterOrEqual(t, m.Candidates, 1)
	}

	// Deleting one exhibit leaves the others identifiable.
	require.NoError(t, eng.DeleteExhibit(ctx, ids[0]))
	m, err := eng.Identify(ctx, fixtures[1].holdout(rng))
	require.NoError(t, err)
	assert.Equal(t, ids[1], m.ID)
	assert.Equal(t, 5, eng.Stats().Exhibits)
}

func TestEngine_EmptyIndexIsNotFound(t *testing.T) {
	eng := openEngine(t, memory.New())

	m, err := eng.Identify(t.Context(), testutil.NewRNG(1).Descriptors(10))
	require.NoError(t, err)
	assert.False(t, m.Found)
	assert.Equal(t, model.NilID, m.ID)

	m, err = eng.Identify(t.Context(), nil)
	require.NoError(t, err)
	assert.False(t, m.Found)
}

func TestEngine_LoadsExistingRecords(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(3)
	st := memory.New()
	require.NoError(t, st.Connect(ctx))

	fixtures := make([]exhibitFixture, 7)
	ids := make([]model.ID, len(fixtures))
	for i := range fixtures {
		fixtures[i] = newFixture(rng, fmt.Sprintf("exhibit-%d", i))
		var descs []model.Descriptor
		for j := 0; j < 3; j++ {
			descs = append(descs, rng.Photo(fixtures[i].ref, 40, 6)...)
		}
		id, err := st.Insert(ctx, model.Record{Title: fixtures[i].title, Descriptors: descs})
		require.NoError(t, err)
		ids[i] = id
	}
	// Records without descriptors are left out of the index.
	_, err := st.Insert(ctx, model.Record{Title: "blank"})
	require.NoError(t, err)

	metrics := &BasicMetricsCollector{}
	eng := openEngine(t, st, WithPageSize(3), WithLoadRate(1000), WithMetricsCollector(metrics))

	stats := eng.Stats()
	assert.Equal(t, 7*120, stats.Rows)
	assert.Equal(t, 7, stats.Exhibits)
	assert.Equal(t, "connected", stats.Connection)

	ms := metrics.GetStats()
	assert.Equal(t, int64(7), ms.LoadRecords)
	assert.Equal(t, int64(1), ms.LoadSkipped)

	for i, f := range fixtures {
		m, err := eng.Identify(ctx, f.holdout(rng))
		require.NoError(t, err)
		require.True(t, m.Found)
		assert.Equal(t, ids[i], m.ID)
	}
}

func TestEngine_ConnectRetries(t *testing.T) {
	t.Run("SucceedsWithinBudget", func(t *testing.T) {
		st := memory.New()
		st.FailConnect(errDown, errDown)

		eng := openEngine(t, st, WithMaxRetries(3))
		assert.Equal(t, 3, eng.Stats().ConnectAttempts)
	})

	t.Run("ExhaustedIsFatal", func(t *testing.T) {
		st := memory.New()
		st.FailConnect(errDown, errDown, errDown)

		var slept []time.Duration
		_, err := Open(t.Context(), st,
			WithMaxRetries(3),
			WithRetryDelay(time.Second),
			withSleep(func(_ context.Context, d time.Duration) error {
				slept = append(slept, d)
				return nil
			}),
		)
		require.ErrorIs(t, err, ErrConnectFailed)
		require.ErrorIs(t, err, errDown)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, slept)

		// The store is released like on every other failed Open.
		assert.ErrorIs(t, st.Connect(t.Context()), store.ErrClosed)
	})
}

// scriptedStore injects scan outcomes around a memory store.
type scriptedStore struct {
	*memory.Store
	scanErr error
	skipped []error
}

func (s *scriptedStore) Scan(ctx context.Context, cursor model.Cursor, opts ...store.ScanOption) (model.Chunk, error) {
	if s.scanErr != nil {
		return model.Chunk{}, s.scanErr
	}
	chunk, err := s.Store.Scan(ctx, cursor, opts...)
	if err == nil && len(cursor) == 0 {
		chunk.Skipped = append(chunk.Skipped, s.skipped...)
	}
	return chunk, err
}

func TestEngine_MalformedDescriptorsAbortLoad(t *testing.T) {
	st := &scriptedStore{
		Store:   memory.New(),
		scanErr: fmt.Errorf("decode record: %w", model.ErrMalformedDescriptors),
	}

	_, err := Open(t.Context(), st, withSleep(noSleep))
	require.ErrorIs(t, err, ErrMalformedDescriptors)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 0, le.Loaded)
}

func TestEngine_SkippedRecordsDoNotAbortLoad(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(5)
	st := &scriptedStore{
		Store:   memory.New(),
		skipped: []error{errors.New("bad image key"), errors.New("bad title")},
	}
	require.NoError(t, st.Connect(ctx))
	_, err := st.Insert(ctx, model.Record{Title: "ok", Descriptors: rng.Descriptors(10)})
	require.NoError(t, err)

	metrics := &BasicMetricsCollector{}
	eng := openEngine(t, st, WithMetricsCollector(metrics))

	assert.Equal(t, 10, eng.Stats().Rows)
	assert.Equal(t, int64(2), metrics.GetStats().LoadSkipped)
}

func TestEngine_AddKeepsStrongestKeypoints(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(8)
	st := memory.New()
	eng := openEngine(t, st, WithMaxDescriptors(5))

	descs := rng.Descriptors(20)
	kps := make([]model.Keypoint, len(descs))
	for i, d := range descs {
		kps[i] = model.Keypoint{Descriptor: d, Response: float32(i)}
	}

	id, err := eng.AddExhibit(ctx, AddRequest{Title: "cap", Keypoints: kps})
	require.NoError(t, err)

	rec, err := eng.GetExhibit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []model.Descriptor{descs[19], descs[18], descs[17], descs[16], descs[15]}, rec.Descriptors)
	assert.Equal(t, 5, eng.Stats().Rows)

	// Plain descriptors keep their leading prefix.
	id, err = eng.AddExhibit(ctx, AddRequest{Title: "plain", Descriptors: descs})
	require.NoError(t, err)
	rec, err = eng.GetExhibit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, descs[:5], rec.Descriptors)
}

func TestEngine_AddRejectsEmptyExhibit(t *testing.T) {
	st := memory.New()
	eng := openEngine(t, st)

	_, err := eng.AddExhibit(t.Context(), AddRequest{Title: "empty"})
	require.ErrorIs(t, err, ErrNoDescriptors)
	assert.Equal(t, 0, st.Len())
}

func TestEngine_DeletedIdentityIsNotReused(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(9)
	eng := openEngine(t, memory.New())

	descs := rng.Descriptors(30)
	deleted, err := eng.AddExhibit(ctx, AddRequest{Title: "Vase", Descriptors: descs})
	require.NoError(t, err)
	require.NoError(t, eng.DeleteExhibit(ctx, deleted))

	again, err := eng.AddExhibit(ctx, AddRequest{Title: "Vase", Descriptors: descs})
	require.NoError(t, err)
	assert.NotEqual(t, deleted, again)

	_, err = eng.GetExhibit(ctx, deleted)
	assert.ErrorIs(t, err, ErrNotFound)

	match, err := eng.Identify(ctx, descs)
	require.NoError(t, err)
	require.True(t, match.Found)
	assert.Equal(t, again, match.ID)

	stats := eng.Stats()
	assert.Equal(t, 30, stats.Rows)
	assert.Equal(t, 1, stats.Exhibits)
}

func TestEngine_RatioTestNeedsTwoNeighbors(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(10)
	eng := openEngine(t, memory.New(), WithK(1), WithRatioTest(0.75))
	assert.Equal(t, 2, eng.opts.resolve.K)

	a := rng.Descriptors(20)
	_, err := eng.AddExhibit(ctx, AddRequest{Title: "a", Descriptors: a})
	require.NoError(t, err)
	// Exact copies of the same rows make every vote ambiguous.
	_, err = eng.AddExhibit(ctx, AddRequest{Title: "b", Descriptors: a})
	require.NoError(t, err)

	match, err := eng.Identify(ctx, a)
	require.NoError(t, err)
	assert.False(t, match.Found)
	assert.Equal(t, len(a), match.Discarded)
}

func TestEngine_DeleteMissing(t *testing.T) {
	eng := openEngine(t, memory.New())

	err := eng.DeleteExhibit(t.Context(), model.NewID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_BuildFailureKeepsPreviousGeneration(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(10)
	metrics := &BasicMetricsCollector{}
	eng := openEngine(t, memory.New(), WithMemoryLimit(1024), WithMetricsCollector(metrics))

	before := eng.Stats().Generation

	// 120 rows need 3840 bytes of packed matrix.
	f := newFixture(rng, "too big")
	_, err := eng.AddExhibit(ctx, AddRequest{Title: f.title, Keypoints: f.trainingKeypoints(rng, 3)})
	require.NoError(t, err)

	stats := eng.Stats()
	assert.Equal(t, before, stats.Generation)
	assert.Equal(t, 0, stats.Rows)
	assert.Equal(t, 120, stats.IndexRows)
	assert.Equal(t, int64(1), stats.FailedBuilds)
	assert.Equal(t, int64(1), metrics.GetStats().BuildErrors)

	m, err := eng.Identify(ctx, f.holdout(rng))
	require.NoError(t, err)
	assert.False(t, m.Found)
}

func TestEngine_ListChunk(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(4)
	eng := openEngine(t, memory.New())

	want := make(map[model.ID]bool)
	for i := 0; i < 11; i++ {
		id, err := eng.AddExhibit(ctx, AddRequest{Title: fmt.Sprint(i), Descriptors: rng.Descriptors(3)})
		require.NoError(t, err)
		want[id] = true
	}

	got := make(map[model.ID]bool)
	var cursor model.Cursor
	for {
		chunk, err := eng.ListChunk(ctx, cursor, store.WithPageSize(4))
		require.NoError(t, err)
		for _, rec := range chunk.Records {
			assert.False(t, got[rec.ID], "record listed twice")
			got[rec.ID] = true
		}
		if chunk.Last {
			break
		}
		cursor = chunk.Next
	}
	assert.Equal(t, want, got)
}

// descriptorExtractor decodes images that are raw descriptor blobs. Later
// descriptors get weaker responses.
func descriptorExtractor() Extractor {
	return ExtractorFunc(func(image []byte) ([]model.Keypoint, error) {
		descs, err := model.DecodeDescriptors(image)
		if err != nil {
			return nil, err
		}
		kps := make([]model.Keypoint, len(descs))
		for i, d := range descs {
			kps[i] = model.Keypoint{Descriptor: d, Response: float32(len(descs) - i)}
		}
		return kps, nil
	})
}

func TestEngine_Images(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(6)

	t.Run("RequiresExtractors", func(t *testing.T) {
		eng := openEngine(t, memory.New())

		_, err := eng.IdentifyImage(ctx, []byte{1})
		require.ErrorIs(t, err, ErrNoExtractor)

		_, err = eng.AddExhibitImages(ctx, AddImagesRequest{Title: "x", Image: []byte{1}})
		require.ErrorIs(t, err, ErrNoExtractor)
	})

	t.Run("AddAndIdentify", func(t *testing.T) {
		eng := openEngine(t, memory.New(), WithExtractors(descriptorExtractor, 2))

		vase := newFixture(rng, "vase")
		training := make([][]byte, 3)
		for i := range training {
			training[i] = model.EncodeDescriptors(rng.Photo(vase.ref, 40, 6))
		}

		id, err := eng.AddExhibitImages(ctx, AddImagesRequest{
			Title:          vase.title,
			Image:          []byte("jpeg"),
			TrainingImages: training,
		})
		require.NoError(t, err)
		assert.Equal(t, 120, eng.Stats().Rows)

		m, err := eng.IdentifyImage(ctx, model.EncodeDescriptors(vase.holdout(rng)))
		require.NoError(t, err)
		require.True(t, m.Found)
		assert.Equal(t, id, m.ID)
	})

	t.Run("ExtractFailure", func(t *testing.T) {
		eng := openEngine(t, memory.New(), WithExtractors(descriptorExtractor, 1))

		_, err := eng.AddExhibitImages(ctx, AddImagesRequest{
			Title:          "broken",
			TrainingImages: [][]byte{make([]byte, 32), make([]byte, 31)},
		})
		require.ErrorIs(t, err, ErrMalformedDescriptors)

		var xe *ExtractError
		require.ErrorAs(t, err, &xe)
		assert.Equal(t, 1, xe.Image)
	})
}

func TestEngine_ConcurrentIdentifyDuringMutations(t *testing.T) {
	ctx := t.Context()
	rng := testutil.NewRNG(21)
	eng := openEngine(t, memory.New(), WithPoolSize(3))

	stable := newFixture(rng, "stable")
	stableID, err := eng.AddExhibit(ctx, AddRequest{Title: stable.title, Keypoints: stable.trainingKeypoints(rng, 3)})
	require.NoError(t, err)

	queries := make([][]model.Descriptor, 16)
	for i := range queries {
		queries[i] = stable.holdout(rng)
	}
	churn := make([][]model.Descriptor, 8)
	for i := range churn {
		churn[i] = rng.Descriptors(40)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(queries)*4+len(churn))

	for i := range queries {
		wg.Add(1)
		go func(q []model.Descriptor) {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				m, err := eng.Identify(ctx, q)
				if err != nil {
					errs <- err
					return
				}
				if !m.Found || m.ID != stableID {
					errs <- fmt.Errorf("identified %v (found=%v)", m.ID, m.Found)
				}
			}
		}(queries[i])
	}

	for i := range churn {
		wg.Add(1)
		go func(descs []model.Descriptor) {
			defer wg.Done()
			id, err := eng.AddExhibit(ctx, AddRequest{Title: "churn", Descriptors: descs})
			if err != nil {
				errs <- err
				return
			}
			if err := eng.DeleteExhibit(ctx, id); err != nil {
				errs <- err
			}
		}(churn[i])
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	stats := eng.Stats()
	assert.Equal(t, 120, stats.Rows)
	assert.Equal(t, stats.IndexRows, stats.Rows)
	assert.LessOrEqual(t, stats.LiveGenerations, int64(1))
}

func TestEngine_Close(t *testing.T) {
	ctx := t.Context()
	eng, err := Open(ctx, memory.New())
	require.NoError(t, err)

	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, err = eng.Identify(ctx, testutil.NewRNG(1).Descriptors(2))
	require.ErrorIs(t, err, ErrClosed)

	_, err = eng.AddExhibit(ctx, AddRequest{Descriptors: testutil.NewRNG(1).Descriptors(2)})
	require.ErrorIs(t, err, ErrClosed)

	require.ErrorIs(t, eng.DeleteExhibit(ctx, model.NewID()), ErrClosed)

	_, err = eng.ListChunk(ctx, nil)
	require.ErrorIs(t, err, ErrClosed)
}
