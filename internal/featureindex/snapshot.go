package featureindex

import "github.com/hupe1980/exhibitid/model"

// Snapshot is an immutable view of the index at one version.
type Snapshot struct {
	rows    []model.Descriptor
	ids     []model.ID
	version uint64
}

// Version returns the index version the snapshot was taken at.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of rows.
func (s *Snapshot) Len() int { return len(s.rows) }

// Row returns the descriptor at row i.
func (s *Snapshot) Row(i int) model.Descriptor { return s.rows[i] }

// ID returns the identity owning row i.
func (s *Snapshot) ID(i int) model.ID { return s.ids[i] }

// Identities returns the number of rows per identity.
func (s *Snapshot) Identities() map[model.ID]int {
	out := make(map[model.ID]int)
	for _, id := range s.ids {
		out[id]++
	}
	return out
}

// Equal reports whether both snapshots hold the same rows in the same order.
// Versions are not compared.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if len(s.rows) != len(o.rows) {
		return false
	}
	for i := range s.rows {
		if s.rows[i] != o.rows[i] || s.ids[i] != o.ids[i] {
			return false
		}
	}
	return true
}
