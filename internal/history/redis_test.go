package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestRedisStore_KeyAndArguments(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	s := NewRedisStoreFromClient(client, "")
	if got := s.key("abc"); got != "agrisage:session:abc:history" {
		t.Errorf("unexpected key %q", got)
	}

	ctx := context.Background()
	if _, err := s.Get(ctx, ""); err == nil {
		t.Error("expected error for empty session id on Get")
	}
	if err := s.Append(ctx, "", llm.UserMessage("hi")); err == nil {
		t.Error("expected error for empty session id on Append")
	}
	if err := s.Append(ctx, "abc"); err != nil {
		t.Errorf("appending nothing should be a no-op, got %v", err)
	}
}

// Set AGRISAGE_TEST_REDIS_ADDR to run against a live server.
func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("AGRISAGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AGRISAGE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, RedisOptions{Addr: addr, Prefix: "agrisage-test", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	session := uuid.NewString()
	defer s.client.Del(context.Background(), s.key(session))

	if err := s.Append(ctx, session, llm.UserMessage("q1"), llm.AssistantMessage("a1")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, session, llm.UserMessage("q2"), llm.AssistantMessage("a2")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := s.Get(ctx, session)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := []string{"q1", "a1", "q2", "a2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i, m := range got {
		if m.Content != want[i] {
			t.Errorf("message %d: expected %q, got %q", i, want[i], m.Content)
		}
	}
}
