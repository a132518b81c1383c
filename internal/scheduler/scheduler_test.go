package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/adapter"
	"github.com/promohub/channel-dispatch/internal/dispatch"
	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/ratelimiter"
	"github.com/promohub/channel-dispatch/internal/repository"
	"github.com/promohub/channel-dispatch/internal/scheduler"
)

// recordingAdapter captures the offer ids it was asked to send.
type recordingAdapter struct {
	mu     sync.Mutex
	offers []string
	err    error
}

func (a *recordingAdapter) Send(_ context.Context, p adapter.Payload) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.offers = append(a.offers, p.OfferID)
	return "ext-" + p.OfferID, nil
}

type env struct {
	store   *repository.MockStore
	limiter *ratelimiter.Limiter
	adapter *recordingAdapter
	sched   *scheduler.Scheduler
	batchID string
}

func newEnv(t *testing.T, rules map[domain.Channel]domain.ChannelRule) *env {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMockStore()
	limiter := ratelimiter.New(rules)
	ra := &recordingAdapter{}
	registry := adapter.Registry{}
	for ch := range rules {
		registry[ch] = ra
	}
	exec := dispatch.NewExecutor(store, registry, limiter, time.Second, 3, zap.NewNop(), nil, nil)
	sched := scheduler.New(store, limiter, exec, time.Minute, zap.NewNop(), nil, nil)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	b, _, err := store.GetOrCreateBatch(ctx, day, "14:00")
	if err != nil {
		t.Fatal(err)
	}
	return &env{store: store, limiter: limiter, adapter: ra, sched: sched, batchID: b.ID}
}

// dispatchDraft creates, approves and dispatches a draft at the given time.
func (e *env) dispatchDraft(t *testing.T, id string, priority domain.Priority, at time.Time, chs ...domain.Channel) {
	t.Helper()
	ctx := context.Background()

	d := &domain.Draft{
		ID:        id,
		BatchID:   e.batchID,
		OfferID:   id,
		CopyText:  "copy for " + id,
		Channels:  chs,
		Priority:  priority,
		Status:    domain.DraftPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := e.store.CreateDraft(ctx, d); err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.ApproveDraft(ctx, id, "alice", at); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.store.DispatchDraft(ctx, id, at); err != nil {
		t.Fatal(err)
	}
}

func openRules(chs ...domain.Channel) map[domain.Channel]domain.ChannelRule {
	rules := make(map[domain.Channel]domain.ChannelRule)
	for _, ch := range chs {
		rules[ch] = domain.ChannelRule{MinInterval: 0, DailyCap: 0, Enabled: true}
	}
	return rules
}

func TestScheduler_SendsInPriorityThenAgeOrder(t *testing.T) {
	e := newEnv(t, openRules(domain.ChannelTelegram))
	ctx := context.Background()

	t1 := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	e.dispatchDraft(t, "a-normal-early", domain.PriorityNormal, t1, domain.ChannelTelegram)
	e.dispatchDraft(t, "b-high-late", domain.PriorityHigh, t2, domain.ChannelTelegram)
	e.dispatchDraft(t, "c-normal-late", domain.PriorityNormal, t2, domain.ChannelTelegram)

	for i := 0; i < 3; i++ {
		if out := e.sched.RunChannel(ctx, domain.ChannelTelegram); out != scheduler.OutcomeSent {
			t.Fatalf("run %d: outcome = %s, want sent", i+1, out)
		}
	}

	want := []string{"b-high-late", "a-normal-early", "c-normal-late"}
	if len(e.adapter.offers) != len(want) {
		t.Fatalf("sent %d deliveries, want %d", len(e.adapter.offers), len(want))
	}
	for i, id := range want {
		if e.adapter.offers[i] != id {
			t.Fatalf("send order[%d] = %s, want %s", i, e.adapter.offers[i], id)
		}
	}

	if out := e.sched.RunChannel(ctx, domain.ChannelTelegram); out != scheduler.OutcomeEmpty {
		t.Fatalf("expected empty queue, got %s", out)
	}
}

func TestScheduler_DraftIDBreaksCreatedAtTies(t *testing.T) {
	e := newEnv(t, openRules(domain.ChannelTelegram))
	ctx := context.Background()

	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	e.dispatchDraft(t, "zz-draft", domain.PriorityNormal, at, domain.ChannelTelegram)
	e.dispatchDraft(t, "aa-draft", domain.PriorityNormal, at, domain.ChannelTelegram)

	e.sched.RunChannel(ctx, domain.ChannelTelegram)
	e.sched.RunChannel(ctx, domain.ChannelTelegram)

	want := []string{"aa-draft", "zz-draft"}
	for i, id := range want {
		if e.adapter.offers[i] != id {
			t.Fatalf("send order[%d] = %s, want %s", i, e.adapter.offers[i], id)
		}
	}
}

func TestScheduler_EmptyQueueReleasesReservation(t *testing.T) {
	e := newEnv(t, openRules(domain.ChannelTelegram))
	ctx := context.Background()

	if out := e.sched.RunChannel(ctx, domain.ChannelTelegram); out != scheduler.OutcomeEmpty {
		t.Fatalf("expected empty, got %s", out)
	}
	// The reservation must have been released, not left dangling.
	if !e.limiter.TryReserve(domain.ChannelTelegram) {
		t.Fatal("expected reservation available after empty tick")
	}
}

func TestScheduler_IntervalBlocksSecondSend(t *testing.T) {
	rules := map[domain.Channel]domain.ChannelRule{
		domain.ChannelTelegram: {MinInterval: 3 * time.Minute, DailyCap: 0, Enabled: true},
	}
	e := newEnv(t, rules)
	ctx := context.Background()

	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	e.dispatchDraft(t, "first", domain.PriorityNormal, at, domain.ChannelTelegram)
	e.dispatchDraft(t, "second", domain.PriorityNormal, at.Add(time.Second), domain.ChannelTelegram)

	if out := e.sched.RunChannel(ctx, domain.ChannelTelegram); out != scheduler.OutcomeSent {
		t.Fatalf("first run: %s, want sent", out)
	}
	if out := e.sched.RunChannel(ctx, domain.ChannelTelegram); out != scheduler.OutcomeRateLimited {
		t.Fatalf("second run: %s, want rate_limited", out)
	}
	if len(e.adapter.offers) != 1 {
		t.Fatalf("sent %d, want 1", len(e.adapter.offers))
	}
}

func TestScheduler_FailedSendKeepsDeliveryEligible(t *testing.T) {
	e := newEnv(t, openRules(domain.ChannelTelegram))
	ctx := context.Background()

	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	e.dispatchDraft(t, "flaky", domain.PriorityNormal, at, domain.ChannelTelegram)

	e.adapter.err = errors.New("upstream down")
	if out := e.sched.RunChannel(ctx, domain.ChannelTelegram); out != scheduler.OutcomeFailed {
		t.Fatalf("expected failed, got %s", out)
	}

	e.adapter.err = nil
	if out := e.sched.RunChannel(ctx, domain.ChannelTelegram); out != scheduler.OutcomeSent {
		t.Fatalf("expected retry to send, got %s", out)
	}
	if len(e.adapter.offers) != 1 || e.adapter.offers[0] != "flaky" {
		t.Fatalf("unexpected sends: %v", e.adapter.offers)
	}
}

func TestScheduler_TickCoversAllChannelsIndependently(t *testing.T) {
	rules := openRules(domain.ChannelTelegram, domain.ChannelTwitter)
	rules[domain.ChannelInstagram] = domain.ChannelRule{MinInterval: time.Minute, DailyCap: 4, Enabled: false}
	e := newEnv(t, rules)
	ctx := context.Background()

	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	e.dispatchDraft(t, "multi", domain.PriorityNormal, at,
		domain.ChannelTelegram, domain.ChannelTwitter, domain.ChannelInstagram)

	results := e.sched.Tick(ctx)

	if results[domain.ChannelTelegram] != scheduler.OutcomeSent {
		t.Fatalf("telegram = %s, want sent", results[domain.ChannelTelegram])
	}
	if results[domain.ChannelTwitter] != scheduler.OutcomeSent {
		t.Fatalf("twitter = %s, want sent", results[domain.ChannelTwitter])
	}
	if results[domain.ChannelInstagram] != scheduler.OutcomeRateLimited {
		t.Fatalf("instagram = %s, want rate_limited", results[domain.ChannelInstagram])
	}
	if results[domain.ChannelSite] != scheduler.OutcomeRateLimited {
		t.Fatalf("site (no rule) = %s, want rate_limited", results[domain.ChannelSite])
	}
	if len(e.adapter.offers) != 2 {
		t.Fatalf("sent %d deliveries, want 2", len(e.adapter.offers))
	}
}
