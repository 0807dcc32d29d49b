package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey     = "rentora:session:credentials"
	defaultRedisChannel = "rentora:session:changes"
)

type redisChangePayload struct {
	Origin     uuid.UUID `json:"origin"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RedisStore keeps the bundle as a single JSON value and broadcasts change
// events over pub/sub, which gives portal instances on different hosts the
// same storage-notification semantics the file store provides locally.
type RedisStore struct {
	client  redis.UniversalClient
	key     string
	channel string
	origin  uuid.UUID
	logger  Logger
}

var _ CredentialStore = (*RedisStore)(nil)

// RedisStoreOption customizes a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRedisKey overrides the storage key.
func WithRedisKey(key string) RedisStoreOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithRedisChannel overrides the pub/sub channel.
func WithRedisChannel(channel string) RedisStoreOption {
	return func(s *RedisStore) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// WithRedisStoreLogger overrides the logger.
func WithRedisStoreLogger(logger Logger) RedisStoreOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore wraps an existing client; the caller owns its lifecycle.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		key:     defaultRedisKey,
		channel: defaultRedisChannel,
		origin:  uuid.New(),
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *RedisStore) Save(ctx context.Context, bundle *CredentialBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return err
	}

	s.announce(ctx)
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*CredentialBundle, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	bundle, ok := decodeBundle(raw)
	if !ok {
		s.logger.Warn("credential record is corrupt, clearing key %s", s.key)
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return bundle, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return err
	}

	s.announce(ctx)
	return nil
}

func (s *RedisStore) Watch(ctx context.Context) (<-chan ChangeEvent, error) {
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	ch := make(chan ChangeEvent, 8)

	go func() {
		defer close(ch)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var payload redisChangePayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					s.logger.Debug("ignoring unparseable change payload: %v", err)
					continue
				}
				if payload.Origin == s.origin {
					continue
				}

				select {
				case ch <- ChangeEvent{Origin: payload.Origin, OccurredAt: payload.OccurredAt}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// announce is best effort: a missed notification only delays another portal
// instance until its next load.
func (s *RedisStore) announce(ctx context.Context) {
	payload, err := json.Marshal(redisChangePayload{
		Origin:     s.origin,
		OccurredAt: time.Now(),
	})
	if err != nil {
		return
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn("change notification publish failed: %v", err)
	}
}
