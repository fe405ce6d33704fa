package domain

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is one change-feed message for a board collection. New carries the
// row after the change, Old the row before it; DELETE events carry only Old.
type Event struct {
	ID    string  `json:"id"`
	Board string  `json:"board"`
	Type  string  `json:"eventType"`
	New   *Entity `json:"new,omitempty"`
	Old   *Entity `json:"old,omitempty"`
}

// EntityID returns the id of the row the event refers to.
func (ev Event) EntityID() string {
	if ev.New != nil {
		return ev.New.ID
	}
	if ev.Old != nil {
		return ev.Old.ID
	}
	return ""
}
