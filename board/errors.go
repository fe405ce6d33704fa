package board

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntity means the referenced id is not on the board.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrUnknownFlow means the flow id does not name an open guarded flow.
	ErrUnknownFlow = errors.New("unknown flow")
	// ErrUnknownColumn means the target status is not a column of the board.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrInvalidPayload means a flow confirmation is missing required data.
	ErrInvalidPayload = errors.New("invalid flow payload")
)

// RevertError reports that the compensating write after a cancelled
// document-gated flow failed. The entity is left visibly inconsistent, so
// this is escalated distinctly from ordinary write failures.
type RevertError struct {
	EntityID string
	Err      error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("revert of entity %s failed: %v", e.EntityID, e.Err)
}

func (e *RevertError) Unwrap() error { return e.Err }
