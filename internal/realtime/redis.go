package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/store"
)

// RedisOptions locates the Redis server carrying change events.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces channel names: <prefix>:changes:<topic>.
	Prefix string
}

// NewRedisClient opens a client for opts.
func NewRedisClient(opts RedisOptions) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

func channelName(prefix, topic string) string {
	if prefix == "" {
		return "changes:" + topic
	}
	return prefix + ":changes:" + topic
}

// RedisSubscriber subscribes to JSON-encoded Events over Redis pub/sub.
// Filters are applied on receipt.
type RedisSubscriber struct {
	client *redis.Client
	prefix string
	logger logging.Logger
}

var _ Subscriber = (*RedisSubscriber)(nil)

// NewRedisSubscriber creates a subscriber on client.
func NewRedisSubscriber(client *redis.Client, prefix string, logger logging.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, prefix: prefix, logger: logging.OrNop(logger)}
}

type redisSub struct {
	ps   *redis.PubSub
	done chan error
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *redisSub) Done() <-chan error { return s.done }

func (s *redisSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.ps.Close()
		s.wg.Wait()
	})
	return err
}

// Subscribe opens a pub/sub channel for topic and waits for the server to
// confirm it.
func (r *RedisSubscriber) Subscribe(ctx context.Context, topic string, filter Filter, onEvent func(Event)) (Subscription, error) {
	channel := channelName(r.prefix, topic)
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	s := &redisSub{
		ps:   ps,
		done: make(chan error, 1),
		stop: make(chan struct{}),
	}
	msgs := ps.Channel()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					select {
					case <-s.stop:
					default:
						s.done <- ErrSubscriptionLost
					}
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.Warn("dropping malformed event", "channel", channel, "err", err)
					continue
				}
				if ev.Topic == "" {
					ev.Topic = topic
				}
				if filter.Match(ev.Payload) {
					onEvent(ev)
				}
			}
		}
	}()

	return s, nil
}

// RedisPublisher publishes Events as JSON to Redis pub/sub. It also accepts
// backend writes so a local database can feed remote subscribers.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	logger logging.Logger
}

var (
	_ Publisher            = (*RedisPublisher)(nil)
	_ store.ChangeNotifier = (*RedisPublisher)(nil)
)

// NewRedisPublisher creates a publisher on client.
func NewRedisPublisher(client *redis.Client, prefix string, logger logging.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix, logger: logging.OrNop(logger)}
}

// Publish sends ev on its topic's channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	channel := channelName(p.prefix, ev.Topic)
	if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// NotifyChange publishes a committed backend write. Failures are logged;
// subscribers fall back to polling.
func (p *RedisPublisher) NotifyChange(ctx context.Context, c store.Change) {
	if err := p.Publish(ctx, EventFromChange(c)); err != nil {
		p.logger.Warn("change not published", "table", c.Table, "err", err)
	}
}
