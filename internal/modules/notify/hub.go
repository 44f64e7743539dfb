// README: Foreground notification channel: per-user Pub/Sub topics with unsubscribe handles.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ridepool/internal/logging"
	"ridepool/internal/types"
)

// Broker is a topic-based publish/subscribe transport.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers payloads until Close is called; Messages is closed afterwards.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

type Hub struct {
	broker Broker
}

func NewHub(broker Broker) *Hub {
	return &Hub{broker: broker}
}

// Channel is the topic a user's foreground notifications are published on.
func Channel(uid types.ID) string {
	return "notifications:" + string(uid)
}

func (h *Hub) Publish(ctx context.Context, uid types.ID, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := h.broker.Publish(ctx, Channel(uid), payload); err != nil {
		return fmt.Errorf("publish to %s: %w", Channel(uid), err)
	}
	return nil
}

// Subscribe calls handler for every notification published to uid until the
// returned unsubscribe func is called or ctx is done. Handler calls are
// sequential. Unsubscribe is idempotent and waits for the delivery loop to exit.
func (h *Hub) Subscribe(ctx context.Context, uid types.ID, handler func(Notification)) (func(), error) {
	sub, err := h.broker.Subscribe(ctx, Channel(uid))
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", Channel(uid), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub.Messages():
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal(payload, &n); err != nil {
					logging.Ctx(ctx).Warn().Err(err).Str("uid", string(uid)).Msg("dropping undecodable notification")
					continue
				}
				handler(n)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = sub.Close()
			<-done
		})
	}, nil
}
