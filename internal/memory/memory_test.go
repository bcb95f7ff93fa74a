package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"OpenAgent-Loop/internal/history"
	"OpenAgent-Loop/internal/result"
	"OpenAgent-Loop/internal/tools"
)

func sampleHistory() history.History {
	return history.History{
		result.Success(tools.ToolExecution{
			SessionID: "s1",
			Call:      tools.ToolCall{Name: "echo", Arguments: map[string]any{"text": "hi"}},
			Payload:   tools.TextPayload("hi"),
			Duration:  5 * time.Millisecond,
		}),
		result.Failure[tools.ToolExecution](result.CodeToolTimeout, "echo timed out",
			result.WithMetadata("tool", "echo")),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	loaded, err := store.LoadHistory(ctx, "missing")
	if err != nil {
		t.Fatalf("LoadHistory for unknown session failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty history for unknown session")
	}

	saved := sampleHistory()
	if err := store.SaveHistory(ctx, "s1", saved); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, err = store.LoadHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded) != len(saved) {
		t.Fatalf("expected %d entries, got %d", len(saved), len(loaded))
	}
	if loaded[0].IsFailure() || loaded[1].IsSuccess() {
		t.Fatalf("expected success then failure")
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.SaveHistory(ctx, "s1", sampleHistory()); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, err := store.LoadHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	// 修改返回的切片不应影响存储内容。
	loaded[0] = result.Failure[tools.ToolExecution](result.CodeUnknown, "mutated")

	reloaded, err := store.LoadHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if reloaded[0].IsFailure() {
		t.Fatalf("store contents were mutated through a loaded copy")
	}
}

func TestMemoryStoreConcurrentSaveLastWriterWins(t *testing.T) {
	// 同一会话的并发续跑各自整体写入：终态必须是其中
	// 某一个写入者的完整历史，不允许条目混写。
	store := NewMemoryStore()
	ctx := context.Background()
	const writers = 8

	histories := make([]history.History, writers)
	for i := range histories {
		var h history.History
		tool := fmt.Sprintf("writer-%d", i)
		for j := 0; j <= i; j++ {
			h = h.Append(result.Success(tools.ToolExecution{
				SessionID: "s1",
				Call:      tools.ToolCall{Name: tool},
				Payload:   tools.TextPayload("ok"),
			}))
		}
		histories[i] = h
	}

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.LoadHistory(ctx, "s1"); err != nil {
				errs[i] = err
				return
			}
			errs[i] = store.SaveHistory(ctx, "s1", histories[i])
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d failed: %v", i, err)
		}
	}

	final, err := store.LoadHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(final) == 0 {
		t.Fatalf("expected one writer's history to survive")
	}
	winner := final[0].MustValue().Call.Name
	for _, entry := range final {
		if entry.MustValue().Call.Name != winner {
			t.Fatalf("final history mixes entries from different writers: %v", final)
		}
	}
	var winnerIdx int
	if _, err := fmt.Sscanf(winner, "writer-%d", &winnerIdx); err != nil {
		t.Fatalf("unexpected winner tag %q", winner)
	}
	if len(final) != winnerIdx+1 {
		t.Fatalf("winner %s must keep all %d of its entries, got %d", winner, winnerIdx+1, len(final))
	}
}

func TestHistoryJSONRoundTrip(t *testing.T) {
	// Redis 与 MySQL 后端都依赖历史条目的 JSON 编码保真。
	saved := sampleHistory()
	encoded, err := json.Marshal(saved)
	if err != nil {
		t.Fatalf("marshal history: %v", err)
	}

	var decoded history.History
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(decoded) != len(saved) {
		t.Fatalf("expected %d entries, got %d", len(saved), len(decoded))
	}

	execution, ok := decoded[0].Value()
	if !ok {
		t.Fatalf("first entry should decode as success")
	}
	if execution.Call.Name != "echo" || execution.Payload.AsText() != "hi" {
		t.Fatalf("unexpected decoded execution %+v", execution)
	}

	failure := decoded[1].Err()
	if failure == nil || failure.Code != result.CodeToolTimeout {
		t.Fatalf("unexpected decoded failure %v", failure)
	}
	if failure.Metadata["tool"] != "echo" {
		t.Fatalf("expected tool metadata to survive, got %v", failure.Metadata)
	}
}
