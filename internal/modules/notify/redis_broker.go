package notify

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker with Redis Pub/Sub.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so publishes after return are seen.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	s := &redisSubscription{ps: ps, in: ps.Channel(), out: make(chan []byte), stop: make(chan struct{})}
	go s.pump()
	return s, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	in   <-chan *redis.Message
	out  chan []byte
	stop chan struct{}
	once sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.in {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.stop:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.ps.Close()
	})
	return err
}
