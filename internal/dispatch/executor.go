package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/adapter"
	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/ratelimiter"
	"github.com/promohub/channel-dispatch/internal/repository"
)

// Executor performs one delivery attempt: resolve the channel copy, call
// the adapter under a timeout, then settle both the database row and the
// limiter reservation. The caller must hold a reservation for the
// delivery's channel before calling Attempt.
type Executor struct {
	store          repository.Store
	adapters       adapter.Registry
	limiter        *ratelimiter.Limiter
	adapterTimeout time.Duration
	maxRetries     int
	logger         *zap.Logger

	// Hooks for metrics — injected by main so the executor stays metrics-agnostic.
	onSent   func(channel domain.Channel, latency time.Duration)
	onFailed func(channel domain.Channel)

	now func() time.Time
}

func NewExecutor(
	store repository.Store,
	adapters adapter.Registry,
	limiter *ratelimiter.Limiter,
	adapterTimeout time.Duration,
	maxRetries int,
	logger *zap.Logger,
	onSent func(domain.Channel, time.Duration),
	onFailed func(domain.Channel),
) *Executor {
	if onSent == nil {
		onSent = func(domain.Channel, time.Duration) {}
	}
	if onFailed == nil {
		onFailed = func(domain.Channel) {}
	}
	return &Executor{
		store: store, adapters: adapters, limiter: limiter,
		adapterTimeout: adapterTimeout, maxRetries: maxRetries,
		logger: logger, onSent: onSent, onFailed: onFailed,
		now: time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Attempt sends one delivery. On success the delivery is marked sent and
// the reservation confirmed; on failure the retry counter advances and
// the reservation is released so no budget is consumed. Returns whether
// the send succeeded.
func (e *Executor) Attempt(ctx context.Context, del *domain.Delivery) bool {
	start := e.now()
	log := e.logger.With(
		zap.String("delivery_id", del.ID),
		zap.String("draft_id", del.DraftID),
		zap.String("channel", string(del.Channel)),
	)

	draft, err := e.store.GetDraft(ctx, del.DraftID)
	if err != nil {
		log.Error("failed to fetch draft for delivery", zap.Error(err))
		e.limiter.Release(del.Channel)
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
	defer cancel()

	externalID, err := e.adapters.For(del.Channel).Send(sendCtx, adapter.Payload{
		OfferID:  draft.OfferID,
		Text:     draft.CopyFor(del.Channel),
		Priority: string(draft.Priority),
	})
	elapsed := e.now().Sub(start)

	if err != nil {
		log.Warn("channel send failed",
			zap.Error(err),
			zap.Int("retries", del.Retries),
		)
		e.handleFailure(ctx, del, err, log)
		e.limiter.Release(del.Channel)
		e.onFailed(del.Channel)
		return false
	}

	sentAt := e.now().UTC()
	if err := e.store.MarkDeliverySent(ctx, del.ID, externalID, sentAt); err != nil {
		// The external send happened; consume budget anyway so the
		// channel does not burst past its pacing.
		log.Error("failed to mark delivery sent", zap.Error(err))
		e.limiter.Confirm(del.Channel, sentAt)
		return false
	}

	e.limiter.Confirm(del.Channel, sentAt)
	e.onSent(del.Channel, elapsed)
	log.Info("delivery sent",
		zap.String("external_id", externalID),
		zap.Duration("latency", elapsed))
	return true
}

// handleFailure advances the retry counter; once retries are exhausted
// the store marks the delivery error and may escalate the draft.
func (e *Executor) handleFailure(ctx context.Context, del *domain.Delivery, sendErr error, log *zap.Logger) {
	updated, escalated, err := e.store.FailDelivery(ctx, del.ID, sendErr.Error(), e.maxRetries)
	if err != nil {
		log.Error("failed to record delivery failure", zap.Error(err))
		return
	}
	if updated.Status == domain.DeliveryError {
		log.Warn("delivery retries exhausted", zap.Int("retries", updated.Retries))
	}
	if escalated {
		log.Warn("draft escalated to error, all deliveries terminal")
	}
}
