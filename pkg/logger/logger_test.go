package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.raw); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestRotatingWriterRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	writer, err := newRotatingWriter(path, 1, 3, 30)
	if err != nil {
		t.Fatalf("newRotatingWriter failed: %v", err)
	}
	defer writer.Close()

	chunk := bytes.Repeat([]byte("a"), 600<<10)
	if _, err := writer.Write(chunk); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	// 第二次写入会超过 1MB 上限，触发轮转。
	if _, err := writer.Write(chunk); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	backup, err := os.Stat(path + ".1")
	if err != nil {
		t.Fatalf("expected rotated backup: %v", err)
	}
	if backup.Size() != int64(len(chunk)) {
		t.Fatalf("backup should hold the first chunk, got %d bytes", backup.Size())
	}
	current, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected fresh audit log: %v", err)
	}
	if current.Size() != int64(len(chunk)) {
		t.Fatalf("current file should hold the second chunk, got %d bytes", current.Size())
	}
}

func TestRotatingWriterDefaults(t *testing.T) {
	dir := t.TempDir()
	writer, err := newRotatingWriter(filepath.Join(dir, "audit.log"), 0, 0, 0)
	if err != nil {
		t.Fatalf("newRotatingWriter failed: %v", err)
	}
	defer writer.Close()

	if writer.maxSize != int64(defaultAuditMaxSizeMB)<<20 {
		t.Fatalf("unexpected default max size %d", writer.maxSize)
	}
	if writer.maxBackups != defaultAuditMaxBackups {
		t.Fatalf("unexpected default backups %d", writer.maxBackups)
	}

	if _, err := newRotatingWriter("", 1, 1, 1); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
