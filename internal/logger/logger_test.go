package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestNew tests format selection
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "json", level: "info", format: "json"},
		{name: "production alias", level: "warn", format: "production"},
		{name: "console", level: "debug", format: "console"},
		{name: "empty level", level: "", format: "json"},
		{name: "invalid level", level: "loud", format: "json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

// TestNewWithConfigOutput tests that entries are written as JSON at the configured level
func TestNewWithConfigOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := NewWithConfig(&Config{
		Level:         "warn",
		Encoding:      "json",
		OutputPaths:   []string{path},
		InitialFields: map[string]interface{}{"service": "skipindex"},
	})
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", zap.Uint64("block", 7))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected exactly one entry, got %d: %s", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Entry is not JSON: %v", err)
	}
	if entry["msg"] != "kept" {
		t.Errorf("Expected msg 'kept', got %v", entry["msg"])
	}
	if entry["block"] != float64(7) {
		t.Errorf("Expected block 7, got %v", entry["block"])
	}
	if entry["service"] != "skipindex" {
		t.Errorf("Expected initial field service, got %v", entry["service"])
	}
}

// TestNewWithConfigDoesNotMutate tests that defaults are applied to a copy
func TestNewWithConfigDoesNotMutate(t *testing.T) {
	cfg := &Config{}
	if _, err := NewWithConfig(cfg); err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	if cfg.Level != "" || cfg.Encoding != "" || cfg.OutputPaths != nil {
		t.Errorf("Config was modified: %+v", cfg)
	}
}

// TestNewWithNilConfig tests that a nil config is rejected
func TestNewWithNilConfig(t *testing.T) {
	if _, err := NewWithConfig(nil); err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

// TestWithComponent tests the component field
func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := WithComponent(zap.New(core), ComponentQuery)

	logger.Info("search finished")

	entries := logs.FilterField(zap.String("component", ComponentQuery)).All()
	if len(entries) != 1 {
		t.Fatalf("Expected one entry with component field, got %d", len(entries))
	}

	// nil falls back to a no-op logger
	WithComponent(nil, ComponentAPI).Info("not recorded")
}

// TestWithFields tests adding fields to logger
func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := WithFields(zap.New(core), zap.String("backend", "pebble"), zap.Int("levels", 4))

	logger.Info("opened")

	fields := logs.All()[0].ContextMap()
	if fields["backend"] != "pebble" {
		t.Errorf("Expected backend field, got %v", fields)
	}
	if fields["levels"] != int64(4) {
		t.Errorf("Expected levels field 4, got %v", fields["levels"])
	}
}

// TestContextLogger tests context-aware logging
func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Debug("from context")

	if logs.Len() != 1 {
		t.Errorf("Expected one entry, got %d", logs.Len())
	}
}

// TestContextLoggerFallback tests fallback when no logger in context
func TestContextLoggerFallback(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext() should return nop logger, not nil")
	}
	logger.Info("test message")

	//nolint:staticcheck
	if FromContext(nil) == nil {
		t.Error("FromContext(nil) should return nop logger, not nil")
	}
}
