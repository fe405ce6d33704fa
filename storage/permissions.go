package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Permissions answers the per-board write gate: whether an actor may
// initiate transitions on a board. A missing row means full access; a stored
// row with ReadOnly set denies it. Lookups are cached in Redis.
type Permissions struct {
	table *aztables.Client
	redis *redis.Client
	ttl   time.Duration
}

func NewPermissions(table *aztables.Client, client *redis.Client, ttl time.Duration) *Permissions {
	if ttl < 0 {
		ttl = 0
	}
	return &Permissions{table: table, redis: client, ttl: ttl}
}

type permissionRow struct {
	aztables.Entity
	ReadOnly bool `json:"ReadOnly"`
}

// CanTransition reports whether the user may move entities on the board.
// Lookup errors come back as (false, err): the caller degrades to read-only
// rather than failing the mount.
func (p *Permissions) CanTransition(ctx context.Context, userID, board string) (bool, error) {
	key := permissionCacheKey(userID, board)
	if p.redis != nil {
		if val, err := p.redis.Get(ctx, key).Result(); err == nil {
			return val == "1", nil
		}
	}

	allowed, err := p.lookup(ctx, userID, board)
	if err != nil {
		return false, err
	}

	if p.redis != nil && p.ttl > 0 {
		val := "0"
		if allowed {
			val = "1"
		}
		if err := p.redis.Set(ctx, key, val, p.ttl).Err(); err != nil {
			log.WithError(err).Warn("cache permission lookup")
		}
	}
	return allowed, nil
}

func (p *Permissions) lookup(ctx context.Context, userID, board string) (bool, error) {
	resp, err := p.table.GetEntity(ctx, userID, board, nil)
	if err != nil {
		if statusCode(err) == 404 {
			return true, nil
		}
		return false, err
	}
	var row permissionRow
	if err := json.Unmarshal(resp.Value, &row); err != nil {
		return false, err
	}
	return !row.ReadOnly, nil
}

func permissionCacheKey(userID, board string) string {
	return "perm:" + userID + ":" + board
}
