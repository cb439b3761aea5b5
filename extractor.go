package exhibitid

import "github.com/hupe1980/exhibitid/model"

// Extractor detects keypoints in an encoded image and computes a 32-byte
// binary descriptor for each. Implementations need not be safe for
// concurrent use: the engine hands each one to a single goroutine at a time.
type Extractor interface {
	Extract(image []byte) ([]model.Keypoint, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(image []byte) ([]model.Keypoint, error)

// Extract calls f(image).
func (f ExtractorFunc) Extract(image []byte) ([]model.Keypoint, error) { return f(image) }
