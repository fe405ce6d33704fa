// Package documents backs the document gates on pipeline transitions: an
// existence check and a produce call per (entity, kind). Rendering the
// document itself happens elsewhere; a stored row with a document number is
// the success signal the transition guard acts on.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Service stores one document per (entity, kind) in an Azure table:
// PartitionKey is the entity id, RowKey the document kind.
type Service struct {
	table *aztables.Client
}

func New(table *aztables.Client) *Service {
	return &Service{table: table}
}

type documentRow struct {
	aztables.Entity
	Number        string `json:"Number"`
	Payload       string `json:"Payload,omitempty"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// Exists reports whether a document of the given kind is linked to the
// entity.
func (s *Service) Exists(ctx context.Context, entityID, kind string) (bool, error) {
	_, err := s.table.GetEntity(ctx, entityID, kind, nil)
	if err != nil {
		if statusCode(err) == 404 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Produce creates (or replaces) the document of the given kind for the
// entity and returns its document number.
func (s *Service) Produce(ctx context.Context, entityID, kind string, payload []byte) (string, error) {
	number := documentNumber(kind)
	row := documentRow{
		Entity:        aztables.Entity{PartitionKey: entityID, RowKey: kind},
		Number:        number,
		Payload:       string(payload),
		CreatedAt:     time.Now().UnixMilli(),
		CreatedAtType: "Edm.Int64",
	}
	data, err := json.Marshal(row)
	if err != nil {
		return "", err
	}
	if _, err := s.table.UpsertEntity(ctx, data, nil); err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"entity": entityID, "kind": kind, "number": number}).Info("document produced")
	return number, nil
}

// documentNumber builds a human-readable reference like RES-7F3A2C1B.
func documentNumber(kind string) string {
	prefix := strings.ToUpper(kind)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return prefix + "-" + suffix
}
