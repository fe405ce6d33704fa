package stream

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// Subscribe listens on the change-event channel and forwards events for the
// given board to the returned channel until ctx is cancelled. Events for
// other boards and payloads that do not parse are skipped. The returned
// channel is closed when the subscription ends.
func Subscribe(ctx context.Context, rc *redis.Client, channel, board string) <-chan domain.Event {
	out := make(chan domain.Event)
	sub := rc.Subscribe(ctx, channel)
	ch := sub.Channel()

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					log.WithField("board", board).Error("subscription channel closed")
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.WithError(err).Error("unable to parse change event")
					continue
				}
				if ev.Board != board {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- ev:
				}
			}
		}
	}()
	return out
}
