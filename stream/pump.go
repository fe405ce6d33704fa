// Package stream carries change events from the storage outbox to the
// reconcilers: a pump drains the outbox queue into a Redis pub/sub channel,
// and a feed subscribes to that channel on behalf of a board engine.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// Dequeuer is the outbox side of the pump, served by the storage layer.
type Dequeuer interface {
	DequeueEvent(ctx context.Context) (*azqueue.DequeuedMessage, error)
	DeleteEvent(ctx context.Context, id, receipt string) error
}

// Pump moves change events from the outbox queue to a Redis channel, one at
// a time. A message is deleted only after it was published; a failed publish
// leaves it on the queue to reappear after the visibility timeout.
type Pump struct {
	store   Dequeuer
	redis   *redis.Client
	channel string
	idle    time.Duration
}

func NewPump(store Dequeuer, client *redis.Client, channel string, idle time.Duration) *Pump {
	if idle <= 0 {
		idle = time.Second
	}
	return &Pump{store: store, redis: client, channel: channel, idle: idle}
}

// Run drains the outbox until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := p.store.DequeueEvent(ctx)
		if err != nil {
			log.WithError(err).Error("dequeue change event")
			sleep(ctx, p.idle)
			continue
		}
		if msg == nil {
			sleep(ctx, p.idle)
			continue
		}
		p.publish(ctx, msg)
	}
}

func (p *Pump) publish(ctx context.Context, msg *azqueue.DequeuedMessage) {
	text := ""
	if msg.MessageText != nil {
		text = *msg.MessageText
	}

	var ev domain.Event
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		// Poison message: drop it rather than loop on it forever.
		log.WithError(err).Warn("malformed change event discarded")
		p.delete(ctx, msg)
		return
	}

	if err := p.redis.Publish(ctx, p.channel, text).Err(); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"board": ev.Board, "event": ev.Type, "entity": ev.EntityID(),
		}).Error("publish change event")
		return
	}
	p.delete(ctx, msg)
}

func (p *Pump) delete(ctx context.Context, msg *azqueue.DequeuedMessage) {
	if msg.MessageID == nil || msg.PopReceipt == nil {
		return
	}
	if err := p.store.DeleteEvent(ctx, *msg.MessageID, *msg.PopReceipt); err != nil {
		log.WithError(err).Error("delete outbox message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
