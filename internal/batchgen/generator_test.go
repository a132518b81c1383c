package batchgen_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/batchgen"
	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/repository"
)

var slots = []string{"08:00", "11:00", "14:00", "18:00", "22:00"}

func TestGenerator_RejectsInvalidSlot(t *testing.T) {
	_, err := batchgen.New(repository.NewMockStore(), []string{"25:00"}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for invalid slot time")
	}
}

func TestGenerator_GenerateForDate(t *testing.T) {
	store := repository.NewMockStore()
	gen, err := batchgen.New(store, slots, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	date := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	batches, err := gen.GenerateForDate(context.Background(), date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batches) != len(slots) {
		t.Fatalf("created %d batches, want %d", len(batches), len(slots))
	}
	for i, b := range batches {
		if b.ScheduledTime != slots[i] {
			t.Fatalf("batch[%d] slot = %s, want %s", i, b.ScheduledTime, slots[i])
		}
		if b.Status != domain.BatchPending {
			t.Fatalf("batch[%d] status = %s, want pending", i, b.Status)
		}
	}
}

func TestGenerator_GenerateForDateIsIdempotent(t *testing.T) {
	store := repository.NewMockStore()
	gen, err := batchgen.New(store, slots, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	first, err := gen.GenerateForDate(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	second, err := gen.GenerateForDate(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) {
		t.Fatalf("second run returned %d batches, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("batch[%d] recreated: %s != %s", i, first[i].ID, second[i].ID)
		}
	}
}
