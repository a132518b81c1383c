package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/config"
	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/ratelimiter"
	"github.com/promohub/channel-dispatch/internal/repository"
	"github.com/promohub/channel-dispatch/internal/service"
)

func newService() (*service.PromotionService, *repository.MockStore) {
	store := repository.NewMockStore()
	limiter := ratelimiter.New(config.DefaultRules())
	svc := service.NewPromotionService(store, limiter, zap.NewNop())
	return svc, store
}

func newBatch(t *testing.T, store *repository.MockStore) *domain.Batch {
	t.Helper()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	b, _, err := store.GetOrCreateBatch(context.Background(), day, "14:00")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return b
}

func validReq(batchID string) domain.CreateDraftRequest {
	return domain.CreateDraftRequest{
		BatchID:  batchID,
		OfferID:  "offer-1",
		CopyText: "50% off everything today",
		Channels: []domain.Channel{domain.ChannelTelegram, domain.ChannelTwitter},
		Priority: domain.PriorityNormal,
		Score:    0.8,
	}
}

func TestPromotionService_CreateDraft(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)

	d, err := svc.CreateDraft(ctx, validReq(b.ID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == "" {
		t.Fatal("expected a non-empty ID")
	}
	if d.Status != domain.DraftPending {
		t.Fatalf("expected status=pending, got %s", d.Status)
	}

	got, _ := store.GetBatch(ctx, b.ID)
	if got.PendingCount != 1 {
		t.Fatalf("expected pending_count=1, got %d", got.PendingCount)
	}
}

func TestPromotionService_CreateDraft_InvalidRequest(t *testing.T) {
	svc, store := newService()
	b := newBatch(t, store)

	bad := validReq(b.ID)
	bad.Channels = []domain.Channel{"fax"}
	_, err := svc.CreateDraft(context.Background(), bad)
	if err != domain.ErrInvalidChannel {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}
}

func TestPromotionService_CreateDraft_LockedBatch(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)

	if _, err := svc.LockBatch(ctx, b.ID); err != nil {
		t.Fatalf("lock batch: %v", err)
	}
	_, err := svc.CreateDraft(ctx, validReq(b.ID))
	if err != domain.ErrBatchLocked {
		t.Fatalf("expected ErrBatchLocked, got %v", err)
	}
}

func TestPromotionService_ApproveMovesCounters(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)
	d, _ := svc.CreateDraft(ctx, validReq(b.ID))

	approved, err := svc.Approve(ctx, d.ID, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.Status != domain.DraftApproved {
		t.Fatalf("expected status=approved, got %s", approved.Status)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != "alice" {
		t.Fatal("expected approved_by to be recorded")
	}

	got, _ := store.GetBatch(ctx, b.ID)
	if got.PendingCount != 0 || got.ApprovedCount != 1 {
		t.Fatalf("counters = pending %d approved %d, want 0/1", got.PendingCount, got.ApprovedCount)
	}
}

func TestPromotionService_Approve_NotPending(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)
	d, _ := svc.CreateDraft(ctx, validReq(b.ID))

	if _, err := svc.Reject(ctx, d.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err := svc.Approve(ctx, d.ID, "alice")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestPromotionService_DispatchCreatesDeliveries(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)
	d, _ := svc.CreateDraft(ctx, validReq(b.ID))
	if _, err := svc.Approve(ctx, d.ID, "alice"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	dispatched, dels, err := svc.Dispatch(ctx, d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatched.Status != domain.DraftDispatched {
		t.Fatalf("expected status=dispatched, got %s", dispatched.Status)
	}
	if len(dels) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(dels))
	}
	for _, del := range dels {
		if del.Status != domain.DeliveryPending {
			t.Fatalf("expected delivery pending, got %s", del.Status)
		}
	}

	got, _ := store.GetBatch(ctx, b.ID)
	if got.ApprovedCount != 0 || got.DispatchedCount != 1 {
		t.Fatalf("counters = approved %d dispatched %d, want 0/1", got.ApprovedCount, got.DispatchedCount)
	}

	// A second dispatch must conflict; the deliveries stay as they are.
	if _, _, err := svc.Dispatch(ctx, d.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on re-dispatch, got %v", err)
	}
	again, _ := svc.GetDraftDeliveries(ctx, d.ID)
	if len(again) != 2 {
		t.Fatalf("expected 2 deliveries after re-dispatch attempt, got %d", len(again))
	}
}

func TestPromotionService_DispatchApproved(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)

	for i := 0; i < 3; i++ {
		d, _ := svc.CreateDraft(ctx, validReq(b.ID))
		if i < 2 {
			if _, err := svc.Approve(ctx, d.ID, "alice"); err != nil {
				t.Fatalf("approve: %v", err)
			}
		}
	}

	n, err := svc.DispatchApproved(ctx, b.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 dispatched, got %d", n)
	}

	got, _ := store.GetBatch(ctx, b.ID)
	if got.PendingCount != 1 || got.DispatchedCount != 2 {
		t.Fatalf("counters = pending %d dispatched %d, want 1/2", got.PendingCount, got.DispatchedCount)
	}
}

func TestPromotionService_CounterSumInvariant(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)

	var drafts []*domain.Draft
	for i := 0; i < 4; i++ {
		d, _ := svc.CreateDraft(ctx, validReq(b.ID))
		drafts = append(drafts, d)
	}
	if _, err := svc.Approve(ctx, drafts[0].ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reject(ctx, drafts[1].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkError(ctx, drafts[2].ID, "bad copy"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetBatch(ctx, b.ID)
	sum := got.PendingCount + got.ApprovedCount + got.DispatchedCount + got.ErrorCount + got.RejectedCount
	if sum != 4 {
		t.Fatalf("counter sum = %d, want 4", sum)
	}
	if got.PendingCount != 1 || got.ApprovedCount != 1 || got.ErrorCount != 1 || got.RejectedCount != 1 {
		t.Fatalf("unexpected counters: %+v", got)
	}
}

func TestPromotionService_CloseBatchTwice(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)

	if _, err := svc.CloseBatch(ctx, b.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err := svc.CloseBatch(ctx, b.ID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestPromotionService_ManualRetryRevertsDraft(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)

	req := validReq(b.ID)
	req.Channels = []domain.Channel{domain.ChannelTwitter}
	d, _ := svc.CreateDraft(ctx, req)
	if _, err := svc.Approve(ctx, d.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	_, dels, err := svc.Dispatch(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Exhaust the single delivery's retries; the draft escalates.
	_, escalated, err := store.FailDelivery(ctx, dels[0].ID, "boom", 1)
	if err != nil {
		t.Fatalf("fail delivery: %v", err)
	}
	if !escalated {
		t.Fatal("expected draft escalation")
	}
	errored, _ := svc.GetDraft(ctx, d.ID)
	if errored.Status != domain.DraftError {
		t.Fatalf("expected draft error, got %s", errored.Status)
	}

	retried, err := svc.ManualRetry(ctx, dels[0].ID)
	if err != nil {
		t.Fatalf("manual retry: %v", err)
	}
	if retried.Status != domain.DeliveryPending || retried.Retries != 0 {
		t.Fatalf("expected pending delivery with retries=0, got %s/%d", retried.Status, retried.Retries)
	}

	reverted, _ := svc.GetDraft(ctx, d.ID)
	if reverted.Status != domain.DraftDispatched {
		t.Fatalf("expected draft reverted to dispatched, got %s", reverted.Status)
	}
	got, _ := store.GetBatch(ctx, b.ID)
	if got.ErrorCount != 0 || got.DispatchedCount != 1 {
		t.Fatalf("counters = error %d dispatched %d, want 0/1", got.ErrorCount, got.DispatchedCount)
	}
}

func TestPromotionService_ManualRetry_NotRetryable(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)

	d, _ := svc.CreateDraft(ctx, validReq(b.ID))
	if _, err := svc.Approve(ctx, d.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	_, dels, err := svc.Dispatch(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.ManualRetry(ctx, dels[0].ID)
	if !errors.Is(err, domain.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable for pending delivery, got %v", err)
	}
}

func TestPromotionService_QueueStatus(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	b := newBatch(t, store)

	req := validReq(b.ID)
	req.Channels = []domain.Channel{domain.ChannelTelegram}
	d, _ := svc.CreateDraft(ctx, req)
	if _, err := svc.Approve(ctx, d.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.Dispatch(ctx, d.ID); err != nil {
		t.Fatal(err)
	}

	status, err := svc.QueueStatus(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status[domain.ChannelTelegram].Queued != 1 {
		t.Fatalf("expected 1 queued on telegram, got %d", status[domain.ChannelTelegram].Queued)
	}
	if status[domain.ChannelTwitter].Queued != 0 {
		t.Fatalf("expected 0 queued on twitter, got %d", status[domain.ChannelTwitter].Queued)
	}
	if !status[domain.ChannelTelegram].Enabled {
		t.Fatal("expected telegram enabled by default rules")
	}
}
