package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "openagent.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
	if cfg.Storage.Memory.Driver != "memory" || cfg.Storage.Sessions.Driver != "memory" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("unexpected provider %q", cfg.LLM.Provider)
	}
	if cfg.Tools.Mode != "local" {
		t.Fatalf("unexpected tools mode %q", cfg.Tools.Mode)
	}
	if cfg.Orchestrator.MaxIterations != 10 {
		t.Fatalf("unexpected max iterations %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.RunQueue.Driver != "memory" || cfg.RunQueue.Workers != 4 || cfg.RunQueue.MaxRetries != 3 {
		t.Fatalf("unexpected run queue defaults %+v", cfg.RunQueue)
	}
	if cfg.Runtime.DataDir != filepath.Join(filepath.Dir(path), "data") {
		t.Fatalf("unexpected data dir %q", cfg.Runtime.DataDir)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `{
		"tools": {"manifest_dir": "tools"},
		"guardrail": {"policy_path": "guardrails.yaml"},
		"runtime": {"data_dir": "state"}
	}`)
	base := filepath.Dir(path)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tools.ManifestDir != filepath.Join(base, "tools") {
		t.Fatalf("unexpected manifest dir %q", cfg.Tools.ManifestDir)
	}
	if cfg.Guardrail.PolicyPath != filepath.Join(base, "guardrails.yaml") {
		t.Fatalf("unexpected policy path %q", cfg.Guardrail.PolicyPath)
	}
	if cfg.Runtime.DataDir != filepath.Join(base, "state") {
		t.Fatalf("unexpected data dir %q", cfg.Runtime.DataDir)
	}
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"address": ":9000", "auth_token": "secret"},
		"storage": {"memory": {"driver": "redis", "redis": {"addr": "localhost:6379", "ttl_seconds": 600}}},
		"llm": {"openai": {"api_key": "k", "model": "gpt-4o", "timeout_seconds": 30}},
		"run_queue": {"driver": "rabbitmq", "workers": 8, "rabbitmq": {"url": "amqp://localhost"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":9000" || cfg.Server.AuthToken != "secret" {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Storage.Memory.Driver != "redis" || cfg.Storage.Memory.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected memory store config %+v", cfg.Storage.Memory)
	}
	if cfg.LLM.OpenAI.Model != "gpt-4o" {
		t.Fatalf("unexpected model %q", cfg.LLM.OpenAI.Model)
	}
	if got := cfg.LLM.OpenAI.OpenAITimeout(); got.Seconds() != 30 {
		t.Fatalf("unexpected timeout %v", got)
	}
	if cfg.RunQueue.Driver != "rabbitmq" || cfg.RunQueue.Workers != 8 {
		t.Fatalf("unexpected run queue config %+v", cfg.RunQueue)
	}
}

func TestLoadUsesEnvFallback(t *testing.T) {
	path := writeConfig(t, `{"server": {"address": ":7070"}}`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
}

func TestLoadMissingPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Load("/nonexistent/openagent.json"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
