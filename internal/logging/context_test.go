package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"abide2nidm/internal/logging"
	"abide2nidm/internal/services"
)

func TestWithContextAddsRunAndStage(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := services.WithStage(services.WithRunID(context.Background(), "run-7"), "merge")

	logging.WithContext(ctx, base).Info("merging")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if entry[logging.FieldRunID] != "run-7" || entry[logging.FieldStage] != "merge" {
		t.Fatalf("expected run_id and stage, got %v", entry)
	}
}

func TestWithContextBareContextKeepsLogger(t *testing.T) {
	base := logging.NewNop()
	if got := logging.WithContext(context.Background(), base); got != base {
		t.Fatal("expected logger unchanged without context fields")
	}
	if logging.WithContext(context.Background(), nil) == nil {
		t.Fatal("expected nop logger for nil input")
	}
}
