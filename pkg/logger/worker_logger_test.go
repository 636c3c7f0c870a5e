package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"fatal", LevelFatal},
		{"bogus", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, Service: "test"})

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	l.WithContext(ctx).WithField("user", "u1").WithError(errors.New("boom")).Info("synced %d emails", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}

	want := map[string]any{
		"service":    "test",
		"request_id": "req-1",
		"user":       "u1",
		"error":      "boom",
		"message":    "synced 3 emails",
		"level":      "info",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("field %s: expected %v, got %v", k, v, entry[k])
		}
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warn entry, got %q", out)
	}
}
