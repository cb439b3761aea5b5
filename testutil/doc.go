// Package testutil provides testing utilities for exhibitid.
//
// This package is intended for use in tests only. It generates deterministic
// binary descriptors and "photographs" of a synthetic exhibit: noisy copies
// of the exhibit's reference descriptors, the way a second photo of the same
// object reproduces most of its keypoints with a few flipped bits.
//
// # Random Descriptor Generation
//
//	rng := testutil.NewRNG(seed)
//	ref := rng.Descriptors(40)          // reference keypoints of one object
//	photo := rng.Photo(ref, 30, 8)      // 30 of them, each with up to 8 flipped bits
//
// # Exact Search (Ground Truth)
//
//	rows := testutil.ExactNearest(query, dataset, k)
package testutil
