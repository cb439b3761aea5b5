package exhibitid

import (
	"errors"
	"fmt"

	"github.com/hupe1980/exhibitid/internal/connection"
	"github.com/hupe1980/exhibitid/internal/generation"
	"github.com/hupe1980/exhibitid/internal/matcher"
	"github.com/hupe1980/exhibitid/internal/pool"
	"github.com/hupe1980/exhibitid/model"
	"github.com/hupe1980/exhibitid/store"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("engine closed")

	// ErrNotFound is returned when an exhibit does not exist in the store.
	ErrNotFound = store.ErrNotFound

	// ErrConnectFailed is returned by Open when the store stays unreachable
	// after all retries.
	ErrConnectFailed = connection.ErrConnectFailed

	// ErrMalformedDescriptors is returned when a stored descriptor blob is
	// not a whole number of descriptors. It aborts the index load.
	ErrMalformedDescriptors = model.ErrMalformedDescriptors

	// ErrNoDescriptors is returned when an exhibit would be added without
	// any descriptors.
	ErrNoDescriptors = errors.New("exhibit has no descriptors")

	// ErrNoExtractor is returned by image operations when no extractors
	// were configured.
	ErrNoExtractor = errors.New("no feature extractor configured")

	// ErrNotReady is returned by Identify before a generation is published.
	ErrNotReady = errors.New("no search generation available")

	// ErrAcquireTimeout is returned when the timeout acquire policy is
	// active and no matcher or extractor became free in time.
	ErrAcquireTimeout = pool.ErrAcquireTimeout

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = matcher.ErrInvalidK
)

// LoadError reports an aborted index load.
//
// Loaded is the number of records read before the failure.
// The original underlying error can be accessed via errors.Unwrap.
type LoadError struct {
	Loaded int
	cause  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load index: aborted after %d records: %v", e.Loaded, e.cause)
}

func (e *LoadError) Unwrap() error { return e.cause }

// ExtractError reports a feature extraction failure for one image.
type ExtractError struct {
	// Image is the position of the failing image in the request.
	Image int
	cause error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract image %d: %v", e.Image, e.cause)
}

func (e *ExtractError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Closed unification.
	if errors.Is(err, generation.ErrClosed) || errors.Is(err, store.ErrClosed) {
		if errors.Is(err, ErrClosed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	if errors.Is(err, generation.ErrNoGeneration) {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	return err
}
