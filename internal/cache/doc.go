// Package cache provides a byte-bounded LRU for immutable blobs.
//
// It sits in front of remote blob stores so repeated reads of the same
// exhibit image skip the network round trip.
package cache
