package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

const edmInt64 = "Edm.Int64"

// entityRow is the table representation of a board entity. PartitionKey is
// the board name, RowKey the entity id. Int64 columns carry explicit Edm
// markers so Azure Tables stores them as 64-bit values.
type entityRow struct {
	aztables.Entity
	Status         string `json:"Status"`
	ScheduledDate  string `json:"ScheduledDate,omitempty"`
	ScheduledTime  string `json:"ScheduledTime,omitempty"`
	Reason         string `json:"Reason,omitempty"`
	ReasonNotes    string `json:"ReasonNotes,omitempty"`
	DocumentRef    string `json:"DocumentRef,omitempty"`
	Name           string `json:"Name,omitempty"`
	Detail         string `json:"Detail,omitempty"`
	Budget         string `json:"Budget,omitempty"`
	UpdatedAt      int64  `json:"UpdatedAt,string"`
	UpdatedAtType  string `json:"UpdatedAt@odata.type"`
	ReasonAt       int64  `json:"ReasonAt,string"`
	ReasonAtType   string `json:"ReasonAt@odata.type"`
	ArchivedAt     int64  `json:"ArchivedAt,string"`
	ArchivedAtType string `json:"ArchivedAt@odata.type"`
}

func rowFromEntity(e domain.Entity) entityRow {
	return entityRow{
		Entity:         aztables.Entity{PartitionKey: e.Board, RowKey: e.ID},
		Status:         e.Status,
		ScheduledDate:  e.ScheduledDate,
		ScheduledTime:  e.ScheduledTime,
		Reason:         e.Reason,
		ReasonNotes:    e.ReasonNotes,
		DocumentRef:    e.DocumentRef,
		Name:           e.Name,
		Detail:         e.Detail,
		Budget:         e.Budget,
		UpdatedAt:      e.UpdatedAt,
		UpdatedAtType:  edmInt64,
		ReasonAt:       e.ReasonAt,
		ReasonAtType:   edmInt64,
		ArchivedAt:     e.ArchivedAt,
		ArchivedAtType: edmInt64,
	}
}

func (r entityRow) toEntity() domain.Entity {
	return domain.Entity{
		ID:            r.RowKey,
		Board:         r.PartitionKey,
		Status:        r.Status,
		UpdatedAt:     r.UpdatedAt,
		ScheduledDate: r.ScheduledDate,
		ScheduledTime: r.ScheduledTime,
		Reason:        r.Reason,
		ReasonNotes:   r.ReasonNotes,
		ReasonAt:      r.ReasonAt,
		DocumentRef:   r.DocumentRef,
		ArchivedAt:    r.ArchivedAt,
		Name:          r.Name,
		Detail:        r.Detail,
		Budget:        r.Budget,
	}
}

// Storage is the persistent-store collaborator: board entities in an Azure
// table, plus a change-event outbox queue written after every mutation.
type Storage struct {
	entityTable *aztables.Client
	outbox      *azqueue.QueueClient
}

func tableClientOptions() *aztables.ClientOptions {
	return &aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// NewTableClient opens a single table client with the standard retry policy,
// for tables outside the entity store (documents, permissions).
func NewTableClient(connStr, table string) (*aztables.Client, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, tableClientOptions())
	if err != nil {
		return nil, err
	}
	return svc.NewClient(table), nil
}

// New creates a Storage instance from the given connection string.
func New(connStr, entitiesTable, outboxQueue string) (*Storage, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, tableClientOptions())
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	ob, err := azqueue.NewQueueClientFromConnectionString(connStr, outboxQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{entityTable: svc.NewClient(entitiesTable), outbox: ob}, nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// ListByStatus retrieves all entities of one board currently in the given
// status. This is the progressive loader's scoped per-column read.
func (s *Storage) ListByStatus(ctx context.Context, board, status string) ([]domain.Entity, error) {
	filter := "PartitionKey eq '" + board + "' and Status eq '" + status + "'"
	pager := s.entityTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	ents := []domain.Entity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var row entityRow
			if err := json.Unmarshal(raw, &row); err != nil {
				return nil, err
			}
			ents = append(ents, row.toEntity())
		}
	}
	return ents, nil
}

// Get retrieves an entity if present, (nil, nil) when it does not exist.
func (s *Storage) Get(ctx context.Context, board, id string) (*domain.Entity, error) {
	resp, err := s.entityTable.GetEntity(ctx, board, id, nil)
	if err != nil {
		if statusCode(err) == 404 {
			return nil, nil
		}
		return nil, err
	}
	var row entityRow
	if err := json.Unmarshal(resp.Value, &row); err != nil {
		return nil, err
	}
	ent := row.toEntity()
	return &ent, nil
}

// Insert creates a new entity, assigning its id and UpdatedAt, and emits an
// INSERT change event.
func (s *Storage) Insert(ctx context.Context, ent domain.Entity) (*domain.Entity, error) {
	if ent.ID == "" {
		ent.ID = uuid.NewString()
	}
	ent.UpdatedAt = time.Now().UnixMilli()
	payload, err := json.Marshal(rowFromEntity(ent))
	if err != nil {
		return nil, err
	}
	if _, err := s.entityTable.AddEntity(ctx, payload, nil); err != nil {
		if statusCode(err) == 409 {
			return nil, domain.ErrConcurrencyConflict
		}
		return nil, err
	}
	s.emit(ctx, domain.Event{Board: ent.Board, Type: domain.EventInsert, New: &ent})
	return &ent, nil
}

// Update merges the partial update into the stored row, stamps a fresh
// UpdatedAt, and emits an UPDATE change event carrying the row before and
// after. The returned entity is the row as persisted.
func (s *Storage) Update(ctx context.Context, board, id string, upd domain.Update) (*domain.Entity, error) {
	resp, err := s.entityTable.GetEntity(ctx, board, id, nil)
	if err != nil {
		if statusCode(err) == 404 {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var row entityRow
	if err := json.Unmarshal(resp.Value, &row); err != nil {
		return nil, err
	}
	old := row.toEntity()

	next := old
	if upd.Status != nil {
		next.Status = *upd.Status
	}
	if upd.ScheduledDate != nil {
		next.ScheduledDate = *upd.ScheduledDate
	}
	if upd.ScheduledTime != nil {
		next.ScheduledTime = *upd.ScheduledTime
	}
	if upd.Reason != nil {
		next.Reason = *upd.Reason
	}
	if upd.ReasonNotes != nil {
		next.ReasonNotes = *upd.ReasonNotes
	}
	if upd.ReasonAt != nil {
		next.ReasonAt = *upd.ReasonAt
	}
	if upd.DocumentRef != nil {
		next.DocumentRef = *upd.DocumentRef
	}
	if upd.ArchivedAt != nil {
		next.ArchivedAt = *upd.ArchivedAt
	}
	next.UpdatedAt = time.Now().UnixMilli()
	if next.UpdatedAt <= old.UpdatedAt {
		next.UpdatedAt = old.UpdatedAt + 1
	}

	payload, err := json.Marshal(rowFromEntity(next))
	if err != nil {
		return nil, err
	}
	// The ETag from the read guards against a write that landed in between.
	et := resp.ETag
	_, err = s.entityTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		switch statusCode(err) {
		case 404:
			return nil, domain.ErrNotFound
		case 409, 412:
			return nil, domain.ErrConcurrencyConflict
		}
		return nil, err
	}
	s.emit(ctx, domain.Event{Board: board, Type: domain.EventUpdate, New: &next, Old: &old})
	return &next, nil
}

// Delete removes an entity and emits a DELETE change event carrying the last
// known row.
func (s *Storage) Delete(ctx context.Context, board, id string) error {
	old, err := s.Get(ctx, board, id)
	if err != nil {
		return err
	}
	if old == nil {
		return domain.ErrNotFound
	}
	if _, err := s.entityTable.DeleteEntity(ctx, board, id, nil); err != nil {
		if statusCode(err) == 404 {
			return domain.ErrNotFound
		}
		return err
	}
	s.emit(ctx, domain.Event{Board: board, Type: domain.EventDelete, Old: old})
	return nil
}

// DequeueEvent retrieves a single message from the outbox queue, nil when
// the queue is empty.
func (s *Storage) DequeueEvent(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.outbox.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// DeleteEvent removes a published message from the outbox queue.
func (s *Storage) DeleteEvent(ctx context.Context, id, receipt string) error {
	_, err := s.outbox.DeleteMessage(ctx, id, receipt, nil)
	return err
}

// encodeEvent stamps a fresh event id and renders the outbox message body.
func encodeEvent(ev domain.Event) (string, error) {
	ev.ID = uuid.NewString()
	data, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// emit enqueues a change event to the outbox. The row mutation has already
// committed, so a failed enqueue is logged rather than failing the write;
// peers reconverge through their next bulk load.
func (s *Storage) emit(ctx context.Context, ev domain.Event) {
	data, err := encodeEvent(ev)
	if err != nil {
		log.WithError(err).Error("marshal change event")
		return
	}
	if _, err := s.outbox.EnqueueMessage(ctx, data, nil); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"board": ev.Board, "event": ev.Type, "entity": ev.EntityID(),
		}).Error("enqueue change event")
	}
}
