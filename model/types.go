package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DescriptorSize is the length in bytes of a binary descriptor.
const DescriptorSize = 32

// ErrMalformedDescriptors is returned when a descriptor blob length is not a
// multiple of DescriptorSize.
var ErrMalformedDescriptors = errors.New("malformed descriptor blob")

// Descriptor is a fixed-length binary vector representing one keypoint.
type Descriptor [DescriptorSize]byte

// ID identifies an exhibit. It is assigned by the store and never reused.
type ID = uuid.UUID

// NilID is the zero identity.
var NilID = uuid.Nil

// NewID returns a fresh random identity.
func NewID() ID {
	return uuid.New()
}

// ParseID parses the canonical string form of an identity.
func ParseID(s string) (ID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilID, fmt.Errorf("invalid exhibit id %q: %w", s, err)
	}
	return id, nil
}

// Keypoint is a descriptor together with the detector response of the
// keypoint it was computed for. Higher responses are stronger keypoints.
type Keypoint struct {
	Descriptor Descriptor
	Response   float32
}

// Record is the persisted form of an exhibit.
type Record struct {
	ID          ID
	Title       string
	Description string
	Image       []byte
	// ImageKey references an image held outside the record store.
	ImageKey    string
	Descriptors []Descriptor
}

// Cursor is an opaque paging token. An empty cursor starts a scan.
type Cursor []byte

// Chunk is one page of a store scan.
type Chunk struct {
	Records []Record
	// Skipped holds per-record failures that were left out of Records.
	// Malformed descriptor blobs are never skipped; they fail the scan.
	Skipped []error
	Next    Cursor
	Last    bool
}

// EncodeDescriptors flattens descriptors into a blob of len(descs)*DescriptorSize bytes.
func EncodeDescriptors(descs []Descriptor) []byte {
	blob := make([]byte, len(descs)*DescriptorSize)
	for i := range descs {
		copy(blob[i*DescriptorSize:], descs[i][:])
	}
	return blob
}

// DecodeDescriptors splits a blob into descriptors.
func DecodeDescriptors(blob []byte) ([]Descriptor, error) {
	if len(blob)%DescriptorSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrMalformedDescriptors, len(blob), DescriptorSize)
	}
	descs := make([]Descriptor, len(blob)/DescriptorSize)
	for i := range descs {
		copy(descs[i][:], blob[i*DescriptorSize:])
	}
	return descs, nil
}
