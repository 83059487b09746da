package services_test

import (
	"context"
	"testing"

	"abide2nidm/internal/services"
)

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithStage(ctx, "convert")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id %q ok=%v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "convert" {
		t.Fatalf("unexpected stage %q ok=%v", stage, ok)
	}
}

func TestContextHelpersIgnoreEmptyValues(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage for empty value")
	}
	if _, ok := services.RunIDFromContext(context.Background()); ok {
		t.Fatal("expected no run id on bare context")
	}
}
