package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"board-sync/domain"
)

type backend interface {
	ListByStatus(ctx context.Context, board, status string) ([]domain.Entity, error)
	Get(ctx context.Context, board, id string) (*domain.Entity, error)
	Insert(ctx context.Context, ent domain.Entity) (*domain.Entity, error)
	Update(ctx context.Context, board, id string, upd domain.Update) (*domain.Entity, error)
	Delete(ctx context.Context, board, id string) error
}

// Cache wraps a Storage instance with Redis-backed caching for the scoped
// per-column reads. Writes pass through and evict the whole board: a status
// change touches two columns and the old status is not known here, so
// per-column eviction would leave stale siblings.
type Cache struct {
	*Storage
	base   backend
	redis  *redis.Client
	ttl    time.Duration
	boards map[string]*domain.Board
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL. The board definitions supply the column sets for eviction.
func NewCache(base backend, client *redis.Client, ttl time.Duration, boards map[string]*domain.Board) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:   base,
		redis:  client,
		ttl:    ttl,
		boards: boards,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) ListByStatus(ctx context.Context, board, status string) ([]domain.Entity, error) {
	if ents, ok := c.loadColumnFromCache(ctx, board, status); ok {
		return ents, nil
	}

	ents, err := c.base.ListByStatus(ctx, board, status)
	if err != nil {
		return nil, err
	}

	c.storeColumn(ctx, board, status, ents)
	return ents, nil
}

func (c *Cache) Insert(ctx context.Context, ent domain.Entity) (*domain.Entity, error) {
	row, err := c.base.Insert(ctx, ent)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, ent.Board)
	return row, nil
}

func (c *Cache) Update(ctx context.Context, board, id string, upd domain.Update) (*domain.Entity, error) {
	row, err := c.base.Update(ctx, board, id, upd)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, board)
	return row, nil
}

func (c *Cache) Delete(ctx context.Context, board, id string) error {
	if err := c.base.Delete(ctx, board, id); err != nil {
		return err
	}
	c.evict(ctx, board)
	return nil
}

func (c *Cache) loadColumnFromCache(ctx context.Context, board, status string) ([]domain.Entity, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, columnCacheKey(board, status)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, columnCacheKey(board, status)).Err()
		}
		return nil, false
	}
	var ents []domain.Entity
	if err := json.Unmarshal(data, &ents); err != nil {
		_ = c.redis.Del(ctx, columnCacheKey(board, status)).Err()
		return nil, false
	}
	return ents, true
}

func (c *Cache) storeColumn(ctx context.Context, board, status string, ents []domain.Entity) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(ents)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, columnCacheKey(board, status), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, board string) {
	if c.redis == nil {
		return
	}
	def, ok := c.boards[board]
	if !ok {
		return
	}
	keys := make([]string, 0, len(def.Columns))
	for _, col := range def.Columns {
		keys = append(keys, columnCacheKey(board, col.Key))
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func columnCacheKey(board, status string) string {
	return "columns:" + board + ":" + status
}
