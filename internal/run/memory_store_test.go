package run

import (
	"context"
	stdErrors "errors"
	"testing"

	"OpenAgent-Loop/internal/orchestrator"
)

func newPendingRun(id string) *Run {
	return &Run{
		ID:         id,
		Input:      "analyze the repo",
		SessionID:  "s1",
		Status:     StatusPending,
		MaxRetries: 3,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newPendingRun("r1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, newPendingRun("r1")); !stdErrors.Is(err, ErrRunConflict) {
		t.Fatalf("expected ErrRunConflict, got %v", err)
	}

	r, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r.Status != StatusPending || r.Attempts != 0 {
		t.Fatalf("unexpected run %+v", r)
	}
	if _, err := store.Get(ctx, "absent"); !stdErrors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newPendingRun("r1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	claimed, err := store.Claim(ctx, "r1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed run %+v", claimed)
	}

	if _, err := store.Claim(ctx, "r1"); !stdErrors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "r1", orchestrator.AgentResponse{Content: "ok", Type: orchestrator.ResponseSuccess}); err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}
	if _, err := store.Claim(ctx, "r1"); !stdErrors.Is(err, ErrRunCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}

	r, _ := store.Get(ctx, "r1")
	if r.Response == nil || r.Response.Content != "ok" {
		t.Fatalf("expected persisted response, got %+v", r.Response)
	}
}

func TestMemoryStoreRetriesExhausted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	r := newPendingRun("r1")
	r.MaxRetries = 2
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Claim(ctx, "r1"); err != nil {
			t.Fatalf("Claim %d failed: %v", i+1, err)
		}
		if err := store.MarkFailed(ctx, "r1", "TOOL_TIMEOUT", "timed out", false); err != nil {
			t.Fatalf("MarkFailed failed: %v", err)
		}
	}

	if _, err := store.Claim(ctx, "r1"); !stdErrors.Is(err, ErrRunExhausted) {
		t.Fatalf("expected exhausted after max retries, got %v", err)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, r := range []*Run{
		{ID: "a", Input: "first", SessionID: "s1", Status: StatusPending, MaxRetries: 3},
		{ID: "b", Input: "second", SessionID: "s2", Status: StatusPending, MaxRetries: 3},
	} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("Create %s failed: %v", r.ID, err)
		}
	}
	if _, err := store.Claim(ctx, "b"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.MarkFailed(ctx, "b", "LLM_TIMEOUT", "model timed out", false); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	failed, err := store.List(ctx, ListOptions{Statuses: []Status{StatusFailed}})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Fatalf("expected only run b, got %v", failed)
	}

	bySession, err := store.List(ctx, ListOptions{SessionID: "s1"})
	if err != nil {
		t.Fatalf("List by session failed: %v", err)
	}
	if len(bySession) != 1 || bySession[0].ID != "a" {
		t.Fatalf("expected only run a for s1, got %v", bySession)
	}

	byQuery, err := store.List(ctx, ListOptions{Query: "model timed"})
	if err != nil {
		t.Fatalf("List by query failed: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "b" {
		t.Fatalf("expected query to match run b, got %v", byQuery)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, newPendingRun(id)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, err := store.Claim(ctx, "a"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "a", orchestrator.AgentResponse{Content: "ok"}); err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 1 || stats.Pending != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.NewestUpdatedAt == 0 {
		t.Fatalf("expected update timestamps to be tracked")
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r := newPendingRun("r1")
	r.Metadata = map[string]string{"origin": "api"}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	loaded, _ := store.Get(ctx, "r1")
	loaded.Metadata["origin"] = "mutated"
	loaded.Status = StatusFailed

	reloaded, _ := store.Get(ctx, "r1")
	if reloaded.Metadata["origin"] != "api" || reloaded.Status != StatusPending {
		t.Fatalf("store contents were mutated through a returned copy: %+v", reloaded)
	}
}
