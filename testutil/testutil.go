package testutil

import (
	"math/bits"
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/exhibitid/model"
)

// Neighbor is a ground-truth search result.
type Neighbor struct {
	Row      int
	Distance int
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Descriptor returns one uniformly random descriptor.
func (r *RNG) Descriptor() model.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	var d model.Descriptor
	_, _ = r.rand.Read(d[:])
	return d
}

// Descriptors returns n uniformly random descriptors.
func (r *RNG) Descriptors(n int) []model.Descriptor {
	out := make([]model.Descriptor, n)
	for i := range out {
		out[i] = r.Descriptor()
	}
	return out
}

// Perturb returns a copy of d with up to maxFlips random bits flipped.
func (r *RNG) Perturb(d model.Descriptor, maxFlips int) model.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	flips := 0
	if maxFlips > 0 {
		flips = r.rand.Intn(maxFlips + 1)
	}
	for i := 0; i < flips; i++ {
		bit := r.rand.Intn(model.DescriptorSize * 8)
		d[bit/8] ^= 1 << (bit % 8)
	}
	return d
}

// Photo simulates the descriptors extracted from one photograph of an object
// whose keypoints are ref: n keypoints picked at random from ref, each with
// up to maxFlips bits of noise.
func (r *RNG) Photo(ref []model.Descriptor, n, maxFlips int) []model.Descriptor {
	out := make([]model.Descriptor, n)
	for i := range out {
		out[i] = r.Perturb(ref[r.Intn(len(ref))], maxFlips)
	}
	return out
}

// Keypoints wraps descriptors with random responses.
func (r *RNG) Keypoints(descs []model.Descriptor) []model.Keypoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Keypoint, len(descs))
	for i, d := range descs {
		out[i] = model.Keypoint{Descriptor: d, Response: r.rand.Float32()}
	}
	return out
}

// Hamming returns the number of differing bits between a and b.
func Hamming(a, b model.Descriptor) int {
	var dist int
	for i := range a {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}

// ExactNearest returns the k nearest rows of dataset to query by brute force,
// ordered by (distance, row).
func ExactNearest(query model.Descriptor, dataset []model.Descriptor, k int) []Neighbor {
	all := make([]Neighbor, len(dataset))
	for i, d := range dataset {
		all[i] = Neighbor{Row: i, Distance: Hamming(query, d)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance != all[j].Distance {
			return all[i].Distance < all[j].Distance
		}
		return all[i].Row < all[j].Row
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}
