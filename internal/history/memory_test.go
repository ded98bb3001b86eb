package history

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
)

func TestMemoryStore_LazyCreateAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %v", got)
	}
	if s.Sessions() != 1 {
		t.Errorf("expected session to be created on first Get, have %d", s.Sessions())
	}

	for i := 0; i < 3; i++ {
		err := s.Append(ctx, "s1",
			llm.UserMessage(fmt.Sprintf("q%d", i)),
			llm.AssistantMessage(fmt.Sprintf("a%d", i)))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, _ = s.Get(ctx, "s1")
	want := []string{"q0", "a0", "q1", "a1", "q2", "a2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Content != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i].Content, want[i])
		}
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Append(ctx, "s", llm.UserMessage("hello"))

	got, _ := s.Get(ctx, "s")
	got[0].Content = "mutated"

	again, _ := s.Get(ctx, "s")
	if again[0].Content != "hello" {
		t.Errorf("history was mutated through Get result")
	}
}

func TestMemoryStore_ConcurrentAppendsKeepPairs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := fmt.Sprintf("q%d", i)
			_ = s.Append(ctx, "shared", llm.UserMessage(q), llm.AssistantMessage("re:"+q))
		}(i)
	}
	wg.Wait()

	got, _ := s.Get(ctx, "shared")
	if len(got) != 100 {
		t.Fatalf("expected 100 messages, got %d", len(got))
	}
	for i := 0; i < len(got); i += 2 {
		if got[i].Role != llm.RoleUser || got[i+1].Content != "re:"+got[i].Content {
			t.Fatalf("exchange split at %d: %+v %+v", i, got[i], got[i+1])
		}
	}
}

func TestMemoryStore_Rejects(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Append(ctx, "", llm.UserMessage("x")); err == nil {
		t.Error("expected error for empty session id")
	}
	if err := s.Append(ctx, "s", llm.Message{Role: llm.RoleTool, Content: "raw"}); err == nil {
		t.Error("expected error for tool message")
	}
}
