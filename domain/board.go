package domain

// StatusArchived is the housekeeping column every board carries.
const StatusArchived = "archived"

// EdgeKind classifies what must happen before a status transition commits.
type EdgeKind int

const (
	// EdgeUnconditional writes the new status immediately.
	EdgeUnconditional EdgeKind = iota
	// EdgeCollect blocks the write until additional data (a scheduled
	// date and time) is collected. Cancel leaves the entity untouched.
	EdgeCollect
	// EdgeReason blocks the write until a categorical reason is submitted.
	EdgeReason
	// EdgeDocument requires a linked document of Edge.DocumentKind. When
	// one already exists the edge degrades to unconditional.
	EdgeDocument
	// EdgeArchive is unconditional but additionally stamps ArchivedAt.
	EdgeArchive
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeCollect:
		return "collect"
	case EdgeReason:
		return "reason"
	case EdgeDocument:
		return "document"
	case EdgeArchive:
		return "archive"
	default:
		return "unconditional"
	}
}

// Edge is one permitted status transition and its guard.
type Edge struct {
	Kind         EdgeKind
	DocumentKind string
	// RevertOnCancel marks the second gate of a document sequence: the
	// board shows the move as already done while the flow is open, so a
	// cancel must issue one compensating write back to the prior status.
	RevertOnCancel bool
}

// SortPolicy selects the intra-column comparator.
type SortPolicy int

const (
	// SortUpdatedDesc orders by UpdatedAt descending, ties by ID.
	SortUpdatedDesc SortPolicy = iota
	// SortScheduledAsc orders by (ScheduledDate, ScheduledTime) ascending
	// with blanks last, ties by ID.
	SortScheduledAsc
)

// Column is one fixed pipeline stage.
type Column struct {
	Key   string
	Title string
	Sort  SortPolicy
}

type edgeRule struct {
	from string // empty matches any source status
	to   string
	edge Edge
}

// Board is a pipeline definition: its ordered columns, the guarded edges
// between them and the reason set for reason-required edges. Transition rules
// are fixed per board, not user-configurable.
type Board struct {
	Name    string
	Columns []Column
	Reasons []string

	rules []edgeRule
}

// Edge resolves the guard for a proposed (from, to) transition. Specific
// (from, to) rules win over any-source rules; everything else is
// unconditional.
func (b *Board) Edge(from, to string) Edge {
	var anyMatch *Edge
	for i := range b.rules {
		r := &b.rules[i]
		if r.to != to {
			continue
		}
		if r.from == from {
			return r.edge
		}
		if r.from == "" && anyMatch == nil {
			anyMatch = &r.edge
		}
	}
	if anyMatch != nil {
		return *anyMatch
	}
	return Edge{Kind: EdgeUnconditional}
}

// Column returns the definition of the given column key.
func (b *Board) Column(key string) (Column, bool) {
	for _, c := range b.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether key is a column of this board.
func (b *Board) HasColumn(key string) bool {
	_, ok := b.Column(key)
	return ok
}

// ValidReason reports whether reason belongs to the board's fixed reason set.
func (b *Board) ValidReason(reason string) bool {
	for _, r := range b.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func (b *Board) guard(from, to string, e Edge) {
	b.rules = append(b.rules, edgeRule{from: from, to: to, edge: e})
}

// Boards returns the fixed board registry keyed by board name.
func Boards() map[string]*Board {
	lead := LeadPipeline()
	veh := VehiclePipeline()
	return map[string]*Board{
		lead.Name: lead,
		veh.Name:  veh,
	}
}
