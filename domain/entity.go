package domain

// Entity is one card on a pipeline board. ID and UpdatedAt are assigned by the
// persistent store; UpdatedAt is refreshed on every write and is the sole
// conflict signal when two representations of the same ID are merged.
type Entity struct {
	ID        string `json:"id"`
	Board     string `json:"board"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updatedAt"`

	// Scheduling fields, used only for intra-column ordering on columns
	// keyed on scheduling.
	ScheduledDate string `json:"scheduledDate,omitempty"`
	ScheduledTime string `json:"scheduledTime,omitempty"`

	// Transition metadata, written only as a side effect of guarded
	// transitions. Never touched by a plain drag.
	Reason      string `json:"reason,omitempty"`
	ReasonNotes string `json:"reasonNotes,omitempty"`
	ReasonAt    int64  `json:"reasonAt,omitempty"`
	DocumentRef string `json:"documentRef,omitempty"`
	ArchivedAt  int64  `json:"archivedAt,omitempty"`

	// Descriptive fields carried opaque for display.
	Name   string `json:"name,omitempty"`
	Detail string `json:"detail,omitempty"`
	Budget string `json:"budget,omitempty"`
}

// Update carries a partial mutation of an entity. Nil fields are left as-is.
type Update struct {
	Status        *string
	ScheduledDate *string
	ScheduledTime *string
	Reason        *string
	ReasonNotes   *string
	ReasonAt      *int64
	DocumentRef   *string
	ArchivedAt    *int64
}
