package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigLevelAndEncoding(t *testing.T) {
	tests := []struct {
		name     string
		json     bool
		debug    bool
		encoding string
		level    zapcore.Level
	}{
		{name: "defaults", encoding: "console", level: zapcore.InfoLevel},
		{name: "json", json: true, encoding: "json", level: zapcore.InfoLevel},
		{name: "debug", debug: true, encoding: "console", level: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config(tt.json, tt.debug)
			if cfg.Encoding != tt.encoding {
				t.Fatalf("expected encoding %q, got %q", tt.encoding, cfg.Encoding)
			}
			if cfg.Level.Level() != tt.level {
				t.Fatalf("expected level %s, got %s", tt.level, cfg.Level.Level())
			}
			if cfg.EncoderConfig.MessageKey != "step" {
				t.Fatalf("unexpected message key %q", cfg.EncoderConfig.MessageKey)
			}
		})
	}
}

func TestNewBuildsLogger(t *testing.T) {
	log, err := New(true, false, zap.String("app", "test"))
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be disabled by default")
	}
}
