// Package codec encodes exhibit records and descriptor blobs for storage.
//
// Record codecs are selected by a stable name that backends persist next to
// the data; changing the codec of an existing store is a breaking change.
// Descriptor blobs are block-compressed with a self-describing header.
package codec

import (
	"fmt"

	"github.com/hupe1980/exhibitid/model"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// StoredRecord is the persisted shape of a model.Record. The descriptor
// blob is kept in its compressed form.
type StoredRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       []byte `json:"image,omitempty"`
	ImageKey    string `json:"image_key,omitempty"`
	Descriptors []byte `json:"descriptors"`
}

// EncodeRecord converts rec to its stored form and marshals it with c.
func EncodeRecord(c Codec, rec model.Record, comp Compression) ([]byte, error) {
	if c == nil {
		c = Default
	}
	blob, err := CompressDescriptors(rec.Descriptors, comp)
	if err != nil {
		return nil, err
	}
	b, err := c.Marshal(StoredRecord{
		ID:          rec.ID.String(),
		Title:       rec.Title,
		Description: rec.Description,
		Image:       rec.Image,
		ImageKey:    rec.ImageKey,
		Descriptors: blob,
	})
	if err != nil {
		return nil, fmt.Errorf("codec %s: marshal record: %w", c.Name(), err)
	}
	return b, nil
}

// DecodeRecord reverses EncodeRecord. A descriptor blob that does not hold
// whole descriptors yields model.ErrMalformedDescriptors.
func DecodeRecord(c Codec, data []byte, withImage bool) (model.Record, error) {
	if c == nil {
		c = Default
	}
	var sr StoredRecord
	if err := c.Unmarshal(data, &sr); err != nil {
		return model.Record{}, fmt.Errorf("codec %s: unmarshal record: %w", c.Name(), err)
	}
	id, err := model.ParseID(sr.ID)
	if err != nil {
		return model.Record{}, err
	}
	descs, err := DecompressDescriptors(sr.Descriptors)
	if err != nil {
		return model.Record{}, fmt.Errorf("record %s: %w", sr.ID, err)
	}
	rec := model.Record{
		ID:          id,
		Title:       sr.Title,
		Description: sr.Description,
		ImageKey:    sr.ImageKey,
		Descriptors: descs,
	}
	if withImage {
		rec.Image = sr.Image
	}
	return rec, nil
}
