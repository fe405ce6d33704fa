package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// Writer is the persistent-store collaborator for transition commits. Update
// returns the full row as persisted, including the server-assigned UpdatedAt.
type Writer interface {
	Update(ctx context.Context, board, id string, upd domain.Update) (*domain.Entity, error)
}

// ColumnFetcher serves the progressive loader's scoped per-column reads.
type ColumnFetcher interface {
	ListByStatus(ctx context.Context, board, status string) ([]domain.Entity, error)
}

// DocumentService is the document-generation collaborator. Produce returns a
// reference to the produced document; its success is the sole trigger for
// document-gated status writes.
type DocumentService interface {
	Exists(ctx context.Context, entityID, kind string) (bool, error)
	Produce(ctx context.Context, entityID, kind string, payload []byte) (string, error)
}

// Engine owns one mounted board: the Store/Index pair, the per-column loading
// flags, and the registry of open guarded flows. All mutation funnels through
// its methods under a single mutex; collaborator calls never hold the lock.
type Engine struct {
	def    *domain.Board
	writer Writer
	fetch  ColumnFetcher
	docs   DocumentService

	stagger time.Duration

	mu          sync.Mutex
	store       *Store
	index       *Index
	loading     map[string]bool
	loadStarted bool
	flows       map[string]*Flow
	onChange    func()
}

func NewEngine(def *domain.Board, writer Writer, fetch ColumnFetcher, docs DocumentService, stagger time.Duration) *Engine {
	st := NewStore()
	e := &Engine{
		def:     def,
		writer:  writer,
		fetch:   fetch,
		docs:    docs,
		stagger: stagger,
		store:   st,
		index:   NewIndex(st, def),
		loading: make(map[string]bool),
		flows:   make(map[string]*Flow),
	}
	for _, c := range def.Columns {
		e.loading[c.Key] = true
	}
	return e
}

// Definition returns the board this engine serves.
func (e *Engine) Definition() *domain.Board { return e.def }

// SetOnChange installs a hook invoked after every state change, used to fan
// out snapshots to stream subscribers.
func (e *Engine) SetOnChange(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// notify must be called with the mutex held.
func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange()
	}
}

// ColumnSnapshot is the rendered state of one column. Count is nil while the
// column is still loading so clients show a placeholder rather than zero.
type ColumnSnapshot struct {
	Key      string          `json:"key"`
	Title    string          `json:"title"`
	Loading  bool            `json:"loading"`
	Count    *int            `json:"count,omitempty"`
	Entities []domain.Entity `json:"entities"`
	// Pending lists ids displayed here through an open guarded flow; their
	// stored status has not changed yet.
	Pending []string `json:"pending,omitempty"`
}

// Snapshot is a point-in-time view of the whole board.
type Snapshot struct {
	Board   string           `json:"board"`
	Columns []ColumnSnapshot `json:"columns"`
}

// Snapshot renders the board's columns in definition order.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{Board: e.def.Name}
	for _, c := range e.def.Columns {
		cs := ColumnSnapshot{
			Key:     c.Key,
			Title:   c.Title,
			Loading: e.loading[c.Key],
		}
		list := e.index.Column(c.Key)
		cs.Entities = append([]domain.Entity(nil), list...)
		for _, ent := range list {
			if s, ok := e.index.Overridden(ent.ID); ok && s == c.Key {
				cs.Pending = append(cs.Pending, ent.ID)
			}
		}
		if !cs.Loading {
			n := len(list)
			cs.Count = &n
		}
		snap.Columns = append(snap.Columns, cs)
	}
	return snap
}

// Get returns the stored entity by id.
func (e *Engine) Get(id string) (domain.Entity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

// Overridden reports whether the entity is displayed through a pending
// transition override.
func (e *Engine) Overridden(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.index.Overridden(id)
	return ok
}

// Column returns a copy of a column's current ordered list.
func (e *Engine) Column(status string) []domain.Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Entity(nil), e.index.Column(status)...)
}

// commit folds a freshly persisted row into local state. The write already
// succeeded; the matching change-feed event will arrive later and be absorbed
// as a stale no-op by the store's last-write-wins rule.
func (e *Engine) commit(row *domain.Entity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prevStatus := row.Status
	if prev, ok := e.store.Get(row.ID); ok {
		prevStatus = prev.Status
	}
	if e.store.Upsert(*row) {
		e.index.MoveEntity(row.ID, prevStatus, row.Status)
	}
	e.notify()
}

func (e *Engine) logger() *log.Entry {
	return log.WithField("board", e.def.Name)
}
