package tools

import (
	"context"
	"testing"
)

func TestRegisterBuiltins(t *testing.T) {
	gateway := NewLocalGateway()
	if err := RegisterBuiltins(gateway); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}

	listed := gateway.ListTools(context.Background())
	defs := listed.MustValue()
	if len(defs) != len(BuiltinDefinitions()) {
		t.Fatalf("expected %d tools, got %d", len(BuiltinDefinitions()), len(defs))
	}

	res := gateway.ExecuteTool(context.Background(), ToolCall{
		Name:      "word_count",
		Arguments: map[string]any{"text": "one two three"},
	})
	if res.IsFailure() {
		t.Fatalf("word_count failed: %v", res.MustErr())
	}
	doc := res.MustValue().Payload.Document
	if doc["words"] != 3 {
		t.Fatalf("unexpected word count: %v", doc["words"])
	}
}

func TestRegisterManifestRejectsUnknownTool(t *testing.T) {
	gateway := NewLocalGateway()
	manifest := &Manifest{Tools: []ToolDefinition{{Name: "teleport"}}}
	if err := RegisterManifest(gateway, manifest); err == nil {
		t.Fatalf("expected error for tool without implementation")
	}
}

func TestJSONFormatHandler(t *testing.T) {
	gateway := NewLocalGateway()
	if err := RegisterBuiltins(gateway); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}

	res := gateway.ExecuteTool(context.Background(), ToolCall{
		Name:      "json_format",
		Arguments: map[string]any{"text": `{"b":1,"a":2}`},
	})
	if res.IsFailure() {
		t.Fatalf("json_format failed: %v", res.MustErr())
	}

	bad := gateway.ExecuteTool(context.Background(), ToolCall{
		Name:      "json_format",
		Arguments: map[string]any{"text": "{"},
	})
	if !bad.IsFailure() {
		t.Fatalf("expected failure for malformed json")
	}
}
