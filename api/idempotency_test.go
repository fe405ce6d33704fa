package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisDeduper(client, ttl), mr
}

func TestDeduperAddOncePerKey(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	added, err := d.Add(ctx, "user-a", "key-1")
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = d.Add(ctx, "user-a", "key-1")
	if err != nil || added {
		t.Fatalf("second add must report duplicate: added=%v err=%v", added, err)
	}
}

func TestDeduperScopesKeysByUser(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	if added, _ := d.Add(ctx, "user-a", "shared"); !added {
		t.Fatal("first user add failed")
	}
	if added, _ := d.Add(ctx, "user-b", "shared"); !added {
		t.Fatal("same key under another user must not collide")
	}
}

func TestDeduperRemoveAllowsRetry(t *testing.T) {
	d, _ := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	if added, _ := d.Add(ctx, "user-a", "key-1"); !added {
		t.Fatal("add failed")
	}
	if err := d.Remove(ctx, "user-a", "key-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if added, _ := d.Add(ctx, "user-a", "key-1"); !added {
		t.Fatal("removed key must be addable again")
	}
}

func TestDeduperKeysExpire(t *testing.T) {
	d, mr := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if added, _ := d.Add(ctx, "user-a", "key-1"); !added {
		t.Fatal("add failed")
	}
	mr.FastForward(2 * time.Minute)
	if added, _ := d.Add(ctx, "user-a", "key-1"); !added {
		t.Fatal("expired key must be addable again")
	}
}
