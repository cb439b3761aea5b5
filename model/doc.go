// Package model defines the core types shared by the engine, the stores and
// the CLI.
//
// # Identity Types
//
//   - ID: 128-bit store-assigned exhibit identity (UUID)
//   - Cursor: opaque resumption token for a forward-only store scan
//
// # Data Types
//
//   - Descriptor: 32-byte binary feature vector of one keypoint
//   - Keypoint: Descriptor plus its detector response
//   - Record: persisted exhibit (title, description, image, descriptors)
//   - Chunk: one page of records returned by a store scan
//
// Descriptors travel between stores and the engine as a flat blob whose
// length is a multiple of DescriptorSize:
//
//	blob := model.EncodeDescriptors(descs)
//	descs, err := model.DecodeDescriptors(blob) // ErrMalformedDescriptors on misaligned input
package model
