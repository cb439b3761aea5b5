// Package identify resolves kNN results to an exhibit identity by voting.
//
// Every query descriptor casts at most one vote, for the identity owning its
// first-ranked neighbor. With the ratio test enabled, a vote is dropped when
// the best neighbor is not clearly closer than the second one. The identity
// with most votes wins; ties go to the identity that received its first vote
// earliest in query order.
package identify

import (
	"github.com/hupe1980/exhibitid/internal/matcher"
	"github.com/hupe1980/exhibitid/model"
)

// DefaultK is the default number of neighbors retrieved per query descriptor.
const DefaultK = 2

// DefaultRatio is the default ratio-test threshold.
const DefaultRatio = 0.75

// Config controls voting.
type Config struct {
	// K is the number of neighbors per query descriptor. Defaults to DefaultK,
	// and is at least 2 with the ratio test on.
	K int

	// RatioTest enables discarding ambiguous votes. Off by default.
	RatioTest bool

	// Ratio is the ratio-test threshold: a vote counts only when
	// best < Ratio * second. Defaults to DefaultRatio.
	Ratio float64

	// MinVotes is the minimum number of votes the winner needs. Defaults to 1.
	MinVotes int
}

// Normalize fills in defaults.
func (c Config) Normalize() Config {
	if c.K <= 0 {
		c.K = DefaultK
	}
	if c.RatioTest && c.K < 2 {
		// The ratio test compares the two best neighbors.
		c.K = 2
	}
	if c.Ratio <= 0 {
		c.Ratio = DefaultRatio
	}
	if c.MinVotes <= 0 {
		c.MinVotes = 1
	}
	return c
}

// Owner maps a neighbor row to the identity owning it.
type Owner interface {
	IDOf(row int) model.ID
}

// Result is the outcome of a resolution.
type Result struct {
	ID    model.ID
	Found bool
	// Votes per identity. Empty when no vote was cast.
	Votes map[model.ID]int
	// Order lists voted identities by first vote.
	Order []model.ID
	// Discarded counts votes dropped by the ratio test.
	Discarded int
}

// VotesFor returns the vote count of id.
func (r Result) VotesFor(id model.ID) int {
	return r.Votes[id]
}

// Resolve tallies votes over per-query neighbor lists.
func Resolve(neighbors [][]matcher.Neighbor, owner Owner, cfg Config) Result {
	cfg = cfg.Normalize()

	res := Result{Votes: make(map[model.ID]int)}

	for _, ns := range neighbors {
		if len(ns) == 0 {
			continue
		}
		if cfg.RatioTest && len(ns) >= 2 {
			if float64(ns[0].Distance) >= cfg.Ratio*float64(ns[1].Distance) {
				res.Discarded++
				continue
			}
		}

		id := owner.IDOf(ns[0].Row)
		if _, seen := res.Votes[id]; !seen {
			res.Order = append(res.Order, id)
		}
		res.Votes[id]++
	}

	best := 0
	for _, id := range res.Order {
		if v := res.Votes[id]; v > best {
			best = v
			res.ID = id
		}
	}
	res.Found = best >= cfg.MinVotes && best > 0
	if !res.Found {
		res.ID = model.NilID
	}
	return res
}
