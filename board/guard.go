package board

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"board-sync/domain"
)

// Flow is an open guarded transition waiting for user input. It stays open
// until confirmed or cancelled; there is no timeout.
type Flow struct {
	ID       string
	Edge     domain.Edge
	EntityID string
	From     string
	Target   string
	OpenedAt time.Time
}

// FlowPayload carries the data a flow confirmation submits.
type FlowPayload struct {
	ScheduledDate string          `json:"scheduledDate,omitempty"`
	ScheduledTime string          `json:"scheduledTime,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	ReasonNotes   string          `json:"reasonNotes,omitempty"`
	Document      json.RawMessage `json:"document,omitempty"`
}

type ResultState string

const (
	ResultCommitted ResultState = "committed"
	ResultPending   ResultState = "pending"
	ResultIgnored   ResultState = "ignored"
)

// FlowInfo describes a pending flow to the caller, with the dragged entity
// as prefill for the collection UI.
type FlowInfo struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	DocumentKind string        `json:"documentKind,omitempty"`
	EntityID     string        `json:"entityId"`
	Target       string        `json:"target"`
	Prefill      domain.Entity `json:"prefill"`
}

// Result is the outcome of a proposed transition.
type Result struct {
	State  ResultState    `json:"state"`
	Flow   *FlowInfo      `json:"flow,omitempty"`
	Entity *domain.Entity `json:"entity,omitempty"`
}

// Propose evaluates a (entity, target-status) transition. Unconditional and
// degraded document edges commit immediately; guarded edges open a flow and
// leave the store untouched, except document gates which optimistically show
// the entity in the target column while their flow is open.
func (e *Engine) Propose(ctx context.Context, id, target string) (Result, error) {
	if !e.def.HasColumn(target) {
		return Result{}, ErrUnknownColumn
	}

	e.mu.Lock()
	ent, ok := e.store.Get(id)
	e.mu.Unlock()
	if !ok {
		return Result{}, ErrUnknownEntity
	}
	if ent.Status == target {
		return Result{State: ResultIgnored}, nil
	}

	edge := e.def.Edge(ent.Status, target)
	switch edge.Kind {
	case domain.EdgeUnconditional, domain.EdgeArchive:
		upd := domain.Update{Status: &target}
		if edge.Kind == domain.EdgeArchive {
			at := time.Now().UnixMilli()
			upd.ArchivedAt = &at
		}
		return e.writeThrough(ctx, id, upd)
	case domain.EdgeCollect, domain.EdgeReason:
		return e.openFlow(ent, target, edge, false), nil
	case domain.EdgeDocument:
		exists, err := e.docs.Exists(ctx, id, edge.DocumentKind)
		if err != nil {
			// Treat a failed existence check as "precondition not met"
			// and route to the authoring flow.
			e.logger().WithError(err).WithFields(map[string]any{
				"entity": id, "kind": edge.DocumentKind,
			}).Warn("document existence check failed")
			exists = false
		}
		if exists {
			return e.writeThrough(ctx, id, domain.Update{Status: &target})
		}
		return e.openFlow(ent, target, edge, true), nil
	default:
		return Result{}, fmt.Errorf("unhandled edge kind %v", edge.Kind)
	}
}

// ConfirmFlow completes an open flow with the submitted payload. The status
// write combines the new status with the collected fields in one write; for
// document gates the write happens only after the document is produced.
func (e *Engine) ConfirmFlow(ctx context.Context, flowID string, payload FlowPayload) (Result, error) {
	e.mu.Lock()
	fl, ok := e.flows[flowID]
	e.mu.Unlock()
	if !ok {
		return Result{}, ErrUnknownFlow
	}

	upd := domain.Update{Status: &fl.Target}
	switch fl.Edge.Kind {
	case domain.EdgeCollect:
		if payload.ScheduledDate == "" || payload.ScheduledTime == "" {
			return Result{}, fmt.Errorf("%w: scheduled date and time required", ErrInvalidPayload)
		}
		upd.ScheduledDate = &payload.ScheduledDate
		upd.ScheduledTime = &payload.ScheduledTime
	case domain.EdgeReason:
		if !e.def.ValidReason(payload.Reason) {
			return Result{}, fmt.Errorf("%w: reason %q not in the fixed set", ErrInvalidPayload, payload.Reason)
		}
		at := time.Now().UnixMilli()
		upd.Reason = &payload.Reason
		upd.ReasonNotes = &payload.ReasonNotes
		upd.ReasonAt = &at
	case domain.EdgeDocument:
		ref, err := e.docs.Produce(ctx, fl.EntityID, fl.Edge.DocumentKind, payload.Document)
		if err != nil {
			// The flow stays open: the user may retry or cancel.
			return Result{}, fmt.Errorf("produce %s document: %w", fl.Edge.DocumentKind, err)
		}
		upd.DocumentRef = &ref
	}

	res, err := e.writeThrough(ctx, fl.EntityID, upd)
	if err != nil {
		return Result{}, err
	}
	e.closeFlow(fl)
	return res, nil
}

// CancelFlow abandons an open flow without a store write, except for
// revert-on-cancel document gates where the assumed forward move must be
// undone with exactly one compensating write.
func (e *Engine) CancelFlow(ctx context.Context, flowID string) error {
	e.mu.Lock()
	fl, ok := e.flows[flowID]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownFlow
	}
	e.closeFlow(fl)

	if fl.Edge.Kind != domain.EdgeDocument || !fl.Edge.RevertOnCancel {
		return nil
	}

	e.mu.Lock()
	ent, found := e.store.Get(fl.EntityID)
	e.mu.Unlock()
	if !found || ent.Status != fl.From {
		// A concurrent legitimate change moved the entity while the flow
		// was open; reverting now would clobber it, so skip the write.
		return nil
	}
	if _, err := e.writeThrough(ctx, fl.EntityID, domain.Update{Status: &fl.From}); err != nil {
		e.logger().WithError(err).WithFields(map[string]any{
			"entity":        fl.EntityID,
			"revert_to":     fl.From,
			"revert_failed": true,
		}).Error("compensating revert write failed")
		return &RevertError{EntityID: fl.EntityID, Err: err}
	}
	return nil
}

// OpenFlow returns a pending flow by id.
func (e *Engine) OpenFlow(flowID string) (*Flow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fl, ok := e.flows[flowID]
	return fl, ok
}

func (e *Engine) openFlow(ent domain.Entity, target string, edge domain.Edge, forward bool) Result {
	fl := &Flow{
		ID:       uuid.NewString(),
		Edge:     edge,
		EntityID: ent.ID,
		From:     ent.Status,
		Target:   target,
		OpenedAt: time.Now(),
	}
	e.mu.Lock()
	e.flows[fl.ID] = fl
	if forward {
		// Document gates show the assumed post-transition state while
		// the flow is open.
		e.index.SetOverride(ent.ID, target)
	}
	e.notify()
	e.mu.Unlock()
	return Result{State: ResultPending, Flow: &FlowInfo{
		ID:           fl.ID,
		Kind:         edge.Kind.String(),
		DocumentKind: edge.DocumentKind,
		EntityID:     ent.ID,
		Target:       target,
		Prefill:      ent,
	}}
}

// dropFlows discards every open flow for an entity. Caller holds e.mu.
func (e *Engine) dropFlows(id string) {
	for fid, fl := range e.flows {
		if fl.EntityID == id {
			delete(e.flows, fid)
		}
	}
}

func (e *Engine) closeFlow(fl *Flow) {
	e.mu.Lock()
	delete(e.flows, fl.ID)
	if fl.Edge.Kind == domain.EdgeDocument {
		e.index.ClearOverride(fl.EntityID)
	}
	e.notify()
	e.mu.Unlock()
}

// writeThrough persists the update and, on success, folds the returned row
// into local state. A failed write leaves the Store exactly as it was.
func (e *Engine) writeThrough(ctx context.Context, id string, upd domain.Update) (Result, error) {
	row, err := e.writer.Update(ctx, e.def.Name, id, upd)
	if err != nil {
		return Result{}, err
	}
	e.commit(row)
	return Result{State: ResultCommitted, Entity: row}, nil
}
