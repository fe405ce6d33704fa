// Package board implements the pipeline-board synchronization engine: an
// in-memory entity store and column index kept live by a change-feed
// reconciler, populated by a progressive per-column loader, and mutated
// through guarded drag transitions.
package board

import "board-sync/domain"

// Store is the keyed collection of board entities and the single mutable
// source of truth for rendering. It is not safe for concurrent use; the
// owning Engine serializes access.
type Store struct {
	entities map[string]domain.Entity
}

func NewStore() *Store {
	return &Store{entities: make(map[string]domain.Entity)}
}

// Upsert inserts or replaces by id. Last write wins: when an entry already
// exists, a candidate whose UpdatedAt is not strictly newer is a no-op.
// It reports whether the store changed.
func (s *Store) Upsert(e domain.Entity) bool {
	if cur, ok := s.entities[e.ID]; ok && e.UpdatedAt <= cur.UpdatedAt {
		return false
	}
	s.entities[e.ID] = e
	return true
}

// Remove deletes the entity and returns the last known copy.
func (s *Store) Remove(id string) (domain.Entity, bool) {
	e, ok := s.entities[id]
	if ok {
		delete(s.entities, id)
	}
	return e, ok
}

func (s *Store) Get(id string) (domain.Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// All returns every stored entity in unspecified order.
func (s *Store) All() []domain.Entity {
	out := make([]domain.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	return out
}

func (s *Store) Len() int { return len(s.entities) }
