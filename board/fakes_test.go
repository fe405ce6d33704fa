package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"board-sync/domain"
)

// fakeWriter persists rows in memory and assigns monotonically increasing
// UpdatedAt values the way the real store does.
type fakeWriter struct {
	mu    sync.Mutex
	rows  map[string]domain.Entity
	calls []domain.Update
	err   error
	clock int64
}

func newFakeWriter(seed ...domain.Entity) *fakeWriter {
	f := &fakeWriter{rows: map[string]domain.Entity{}, clock: 1000}
	for _, e := range seed {
		f.rows[e.ID] = e
		if e.UpdatedAt > f.clock {
			f.clock = e.UpdatedAt
		}
	}
	return f
}

func (f *fakeWriter) Update(ctx context.Context, board, id string, upd domain.Update) (*domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ent, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if upd.Status != nil {
		ent.Status = *upd.Status
	}
	if upd.ScheduledDate != nil {
		ent.ScheduledDate = *upd.ScheduledDate
	}
	if upd.ScheduledTime != nil {
		ent.ScheduledTime = *upd.ScheduledTime
	}
	if upd.Reason != nil {
		ent.Reason = *upd.Reason
	}
	if upd.ReasonNotes != nil {
		ent.ReasonNotes = *upd.ReasonNotes
	}
	if upd.ReasonAt != nil {
		ent.ReasonAt = *upd.ReasonAt
	}
	if upd.DocumentRef != nil {
		ent.DocumentRef = *upd.DocumentRef
	}
	if upd.ArchivedAt != nil {
		ent.ArchivedAt = *upd.ArchivedAt
	}
	f.clock++
	ent.UpdatedAt = f.clock
	f.rows[id] = ent
	f.calls = append(f.calls, upd)
	out := ent
	return &out, nil
}

func (f *fakeWriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeWriter) lastCall() domain.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// fakeDocs answers existence checks from a fixed set and records produced
// documents.
type fakeDocs struct {
	mu         sync.Mutex
	existing   map[string]bool
	existsErr  error
	produceErr error
	produced   []string
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{existing: map[string]bool{}}
}

func docKey(entityID, kind string) string { return entityID + "/" + kind }

func (f *fakeDocs) Exists(ctx context.Context, entityID, kind string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[docKey(entityID, kind)], nil
}

func (f *fakeDocs) Produce(ctx context.Context, entityID, kind string, payload []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.produceErr != nil {
		return "", f.produceErr
	}
	f.existing[docKey(entityID, kind)] = true
	ref := fmt.Sprintf("%s-%04d", kind, len(f.produced)+1)
	f.produced = append(f.produced, docKey(entityID, kind))
	return ref, nil
}

func (f *fakeDocs) producedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.produced)
}

// fakeFetcher serves per-column bulk results for the progressive loader.
type fakeFetcher struct {
	mu      sync.Mutex
	byCol   map[string][]domain.Entity
	failing map[string]bool
	fetched []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{byCol: map[string][]domain.Entity{}, failing: map[string]bool{}}
}

func (f *fakeFetcher) ListByStatus(ctx context.Context, board, status string) ([]domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, status)
	if f.failing[status] {
		return nil, errors.New("fetch failed")
	}
	return f.byCol[status], nil
}

func (f *fakeFetcher) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

func lead(id, status string, updatedAt int64) domain.Entity {
	return domain.Entity{ID: id, Board: "leads", Status: status, UpdatedAt: updatedAt}
}

func newTestEngine(w *fakeWriter, fetch *fakeFetcher, docs *fakeDocs) *Engine {
	if w == nil {
		w = newFakeWriter()
	}
	if fetch == nil {
		fetch = newFakeFetcher()
	}
	if docs == nil {
		docs = newFakeDocs()
	}
	return NewEngine(domain.LeadPipeline(), w, fetch, docs, 0)
}

// seed loads entities straight into the engine as if reconciled.
func seed(e *Engine, ents ...domain.Entity) {
	for _, ent := range ents {
		e.ApplyEvent(domain.Event{Type: domain.EventInsert, New: &ent})
	}
}
