package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a redis list. RPUSH of several values is
// atomic per key, which preserves append order across processes.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures the connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStoreFromClient(client, opts.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "agrisage"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:history", s.prefix, sessionID)
}

// Get returns the whole session history. A missing key is an empty history.
func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for session %s: %w", sessionID, err)
	}

	out := make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		var m llm.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("corrupt history entry in session %s: %w", sessionID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Append pushes messages in a single RPUSH.
func (s *RedisStore) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(messages) == 0 {
		return nil
	}
	if err := validate(messages); err != nil {
		return err
	}

	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(llm.Message{Role: m.Role, Content: m.Content})
		if err != nil {
			return fmt.Errorf("failed to encode history message: %w", err)
		}
		values = append(values, string(b))
	}
	if err := s.client.RPush(ctx, s.key(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("failed to append history for session %s: %w", sessionID, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
