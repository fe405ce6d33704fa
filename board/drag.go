package board

import "context"

// Session translates one drag-and-drop gesture into a transition request.
// While a drag is active the caller suppresses click-driven detail views for
// the same gesture. A session is cheap and single-use: one per gesture.
type Session struct {
	eng       *Engine
	draggedID string
	dragging  bool
}

func NewSession(eng *Engine) *Session {
	return &Session{eng: eng}
}

// DragStart records the dragged entity and enters dragging mode. It reports
// false for ids not on the board.
func (s *Session) DragStart(id string) bool {
	if _, ok := s.eng.Get(id); !ok {
		return false
	}
	s.draggedID = id
	s.dragging = true
	return true
}

// Dragging reports whether a drag gesture is in progress.
func (s *Session) Dragging() bool { return s.dragging }

// Drop resolves the dragged entity against the target column and dispatches
// through the transition guard. Dropping onto the entity's own column is
// always ignored.
func (s *Session) Drop(ctx context.Context, target string) (Result, error) {
	if !s.dragging {
		return Result{State: ResultIgnored}, nil
	}
	s.dragging = false
	return s.eng.Propose(ctx, s.draggedID, target)
}
