package board

import (
	"sort"

	"board-sync/domain"
)

// Index is the derived partition of the Store by status key with a stable
// per-column order. It is always recomputed from the Store, never patched by
// hand. Pending guarded moves are shown through display overrides so the
// Store itself stays untouched until a transition commits.
type Index struct {
	store *Store
	def   *domain.Board

	columns   map[string][]domain.Entity
	overrides map[string]string
}

func NewIndex(store *Store, def *domain.Board) *Index {
	return &Index{
		store:     store,
		def:       def,
		columns:   make(map[string][]domain.Entity),
		overrides: make(map[string]string),
	}
}

// effectiveStatus is the column an entity is displayed in: its stored status
// unless a pending transition overrides it.
func (x *Index) effectiveStatus(e domain.Entity) string {
	if s, ok := x.overrides[e.ID]; ok {
		return s
	}
	return e.Status
}

// RebuildColumn recomputes one column's ordered list from the Store.
func (x *Index) RebuildColumn(status string) {
	col, ok := x.def.Column(status)
	if !ok {
		return
	}
	var list []domain.Entity
	for _, e := range x.store.All() {
		if x.effectiveStatus(e) == status {
			list = append(list, e)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return less(col.Sort, list[i], list[j])
	})
	x.columns[status] = list
}

// RebuildAll recomputes every column.
func (x *Index) RebuildAll() {
	for _, c := range x.def.Columns {
		x.RebuildColumn(c.Key)
	}
}

// MoveEntity rebuilds the two columns affected by a status change.
func (x *Index) MoveEntity(id, fromStatus, toStatus string) {
	x.RebuildColumn(fromStatus)
	if toStatus != fromStatus {
		x.RebuildColumn(toStatus)
	}
}

// Column returns the current ordered list for a status key.
func (x *Index) Column(status string) []domain.Entity {
	return x.columns[status]
}

// SetOverride displays the entity in the given column while a guarded flow is
// open. Both affected columns are rebuilt.
func (x *Index) SetOverride(id, status string) {
	e, ok := x.store.Get(id)
	if !ok {
		return
	}
	x.overrides[id] = status
	x.MoveEntity(id, e.Status, status)
}

// ClearOverride removes a pending display override.
func (x *Index) ClearOverride(id string) {
	status, ok := x.overrides[id]
	if !ok {
		return
	}
	delete(x.overrides, id)
	if e, found := x.store.Get(id); found {
		x.MoveEntity(id, status, e.Status)
		return
	}
	x.RebuildColumn(status)
}

// Overridden reports the pending display status for an entity, if any.
func (x *Index) Overridden(id string) (string, bool) {
	s, ok := x.overrides[id]
	return s, ok
}

// less applies the column comparator. Scheduling columns order by
// (date, time) ascending with blanks last; everything else by UpdatedAt
// descending. Ties break by ID for stability across rebuilds.
func less(policy domain.SortPolicy, a, b domain.Entity) bool {
	switch policy {
	case domain.SortScheduledAsc:
		ak, bk := scheduleKey(a), scheduleKey(b)
		if (ak == "") != (bk == "") {
			return ak != ""
		}
		if ak != bk {
			return ak < bk
		}
	default:
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
	}
	return a.ID < b.ID
}

func scheduleKey(e domain.Entity) string {
	if e.ScheduledDate == "" {
		return ""
	}
	return e.ScheduledDate + " " + e.ScheduledTime
}
