package board

import (
	"context"
	"time"
)

// LoadColumns issues one scoped fetch per column, staggered left to right so
// columns populate independently. Each column resolves on its own: results
// are upserted into the Store and its column rebuilt; a failed fetch marks
// the column loaded-and-empty without blocking the others. The sequence runs
// at most once per engine.
func (e *Engine) LoadColumns(ctx context.Context) {
	e.mu.Lock()
	if e.loadStarted {
		e.mu.Unlock()
		return
	}
	e.loadStarted = true
	e.mu.Unlock()

	for i, col := range e.def.Columns {
		go e.loadColumn(ctx, col.Key, time.Duration(i)*e.stagger)
	}
}

func (e *Engine) loadColumn(ctx context.Context, status string, delay time.Duration) {
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	ents, err := e.fetch.ListByStatus(ctx, e.def.Name, status)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading[status] = false
	if err != nil {
		e.logger().WithError(err).WithField("column", status).Error("column load failed")
		e.notify()
		return
	}
	for _, ent := range ents {
		// Last-write-wins keeps bulk results from clobbering state the
		// reconciler already advanced past.
		e.store.Upsert(ent)
	}
	e.index.RebuildColumn(status)
	e.notify()
}

// ColumnLoading reports whether a column's initial fetch is still pending.
func (e *Engine) ColumnLoading(status string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading[status]
}
