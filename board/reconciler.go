package board

import (
	"context"

	"board-sync/domain"
)

// ApplyEvent folds one change-feed event into board state. Events are applied
// one at a time; within a single id the store's last-write-wins rule is the
// only ordering guarantee, which makes out-of-order delivery and duplicates
// of the engine's own writes harmless.
func (e *Engine) ApplyEvent(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case domain.EventInsert:
		if ev.New == nil {
			return
		}
		if e.store.Upsert(*ev.New) {
			e.index.RebuildColumn(ev.New.Status)
			e.notify()
		}
	case domain.EventUpdate:
		if ev.New == nil {
			return
		}
		prev, known := e.store.Get(ev.New.ID)
		if !known {
			// Events may outrun the progressive loader; treat as insert.
			if e.store.Upsert(*ev.New) {
				e.index.RebuildColumn(ev.New.Status)
				e.notify()
			}
			return
		}
		if ev.New.UpdatedAt <= prev.UpdatedAt {
			// Stale delivery.
			return
		}
		e.store.Upsert(*ev.New)
		// A concurrent legitimate change supersedes any pending optimistic
		// display; clearing the override rebuilds its column with the fresh
		// row.
		e.index.ClearOverride(ev.New.ID)
		// The old status comes from what we had stored, not the payload:
		// the transport's Old row may itself be out of date.
		e.index.MoveEntity(ev.New.ID, prev.Status, ev.New.Status)
		e.notify()
	case domain.EventDelete:
		id := ev.EntityID()
		if id == "" {
			return
		}
		last, ok := e.store.Remove(id)
		if !ok {
			return
		}
		// A deleted entity must leave no trace: its pending display override
		// and any flows opened for it are dropped with it.
		e.index.ClearOverride(id)
		e.dropFlows(id)
		e.index.RebuildColumn(last.Status)
		e.notify()
	}
}

// Run consumes change-feed events until ctx is cancelled. After return no
// further events are processed.
func (e *Engine) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.ApplyEvent(ev)
		}
	}
}
