package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/ratelimiter"
	"github.com/promohub/channel-dispatch/internal/repository"
)

// PromotionService coordinates drafts, batches and the dispatch queue.
// All business rules (state transitions, batch lifecycle, queue status)
// live here. HTTP handlers and the scheduler depend on this service, not
// on each other.
type PromotionService struct {
	store   repository.Store
	limiter *ratelimiter.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

func NewPromotionService(
	store repository.Store,
	limiter *ratelimiter.Limiter,
	logger *zap.Logger,
) *PromotionService {
	return &PromotionService{
		store:   store,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (s *PromotionService) WithClock(now func() time.Time) *PromotionService {
	s.now = now
	return s
}

// ---- drafts ----

// CreateDraft validates and persists a new draft into an open batch.
func (s *PromotionService) CreateDraft(ctx context.Context, req domain.CreateDraftRequest) (*domain.Draft, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	d := &domain.Draft{
		ID:           uuid.New().String(),
		BatchID:      req.BatchID,
		OfferID:      req.OfferID,
		CopyText:     req.CopyText,
		CopyVariants: req.CopyVariants,
		Channels:     req.Channels,
		Priority:     req.Priority,
		Score:        req.Score,
		Status:       domain.DraftPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateDraft(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("draft created",
		zap.String("draft_id", d.ID),
		zap.String("batch_id", d.BatchID),
		zap.Int("channels", len(d.Channels)))
	return d, nil
}

func (s *PromotionService) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	return s.store.GetDraft(ctx, id)
}

func (s *PromotionService) ListDrafts(ctx context.Context, f domain.DraftFilter) ([]*domain.Draft, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	return s.store.ListDrafts(ctx, f)
}

func (s *PromotionService) GetDraftDeliveries(ctx context.Context, draftID string) ([]*domain.Delivery, error) {
	if _, err := s.store.GetDraft(ctx, draftID); err != nil {
		return nil, err
	}
	return s.store.GetDraftDeliveries(ctx, draftID)
}

// Approve moves a pending draft to approved, recording who and when.
func (s *PromotionService) Approve(ctx context.Context, id, actor string) (*domain.Draft, error) {
	return s.store.ApproveDraft(ctx, id, actor, s.now().UTC())
}

// Reject discards a pending draft. Terminal.
func (s *PromotionService) Reject(ctx context.Context, id string) (*domain.Draft, error) {
	return s.store.RejectDraft(ctx, id)
}

// MarkError flags a non-terminal draft as errored with an operator note.
func (s *PromotionService) MarkError(ctx context.Context, id, message string) (*domain.Draft, error) {
	if message == "" {
		message = "marked error by operator"
	}
	return s.store.MarkDraftError(ctx, id, message)
}

// Dispatch materializes one delivery per target channel and hands the
// draft to the scheduler. Idempotent on deliveries: re-dispatch never
// duplicates a (draft, channel) row nor touches an already-sent one.
func (s *PromotionService) Dispatch(ctx context.Context, id string) (*domain.Draft, []*domain.Delivery, error) {
	d, dels, err := s.store.DispatchDraft(ctx, id, s.now().UTC())
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("draft dispatched",
		zap.String("draft_id", d.ID),
		zap.Int("deliveries", len(dels)))
	return d, dels, nil
}

// ---- batches ----

func (s *PromotionService) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return s.store.GetBatch(ctx, id)
}

func (s *PromotionService) ListBatches(ctx context.Context, date time.Time) ([]*domain.Batch, error) {
	return s.store.ListBatches(ctx, date)
}

// LockBatch freezes a pending batch for review: no new drafts accepted.
func (s *PromotionService) LockBatch(ctx context.Context, id string) (*domain.Batch, error) {
	b, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BatchPending {
		return nil, domain.ErrInvalidState
	}
	return s.store.SetBatchStatus(ctx, id, domain.BatchLocked)
}

// CloseBatch ends the batch's lifecycle. Existing deliveries keep
// flowing; only draft intake stops.
func (s *PromotionService) CloseBatch(ctx context.Context, id string) (*domain.Batch, error) {
	b, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BatchClosed {
		return nil, domain.ErrInvalidState
	}
	return s.store.SetBatchStatus(ctx, id, domain.BatchClosed)
}

// DispatchApproved dispatches every approved draft in the batch.
// Individual conflicts (a draft approved at listing time but moved by a
// concurrent operator) are skipped, not fatal.
func (s *PromotionService) DispatchApproved(ctx context.Context, batchID string) (int, error) {
	if _, err := s.store.GetBatch(ctx, batchID); err != nil {
		return 0, err
	}
	drafts, err := s.store.ListApprovedDrafts(ctx, batchID)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, d := range drafts {
		if _, _, err := s.store.DispatchDraft(ctx, d.ID, s.now().UTC()); err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				continue
			}
			return dispatched, fmt.Errorf("dispatch draft %s: %w", d.ID, err)
		}
		dispatched++
	}
	s.logger.Info("batch dispatch completed",
		zap.String("batch_id", batchID),
		zap.Int("dispatched", dispatched))
	return dispatched, nil
}

// ---- scheduler control surface ----

// QueueStatus assembles the per-channel snapshot: queue depth and send
// history from the store, pacing view from the limiter.
func (s *PromotionService) QueueStatus(ctx context.Context) (map[domain.Channel]domain.ChannelQueueStatus, error) {
	states, err := s.store.ChannelStates(ctx, dayStart(s.now()))
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Channel]domain.ChannelQueueStatus, len(domain.AllChannels))
	for _, ch := range domain.AllChannels {
		st := states[ch]
		rule := s.limiter.Rule(ch)
		sentToday, nextAllowed := s.limiter.Snapshot(ch)
		if sentToday < st.SentToday {
			sentToday = st.SentToday
		}
		out[ch] = domain.ChannelQueueStatus{
			Queued:          st.Queued,
			SentToday:       sentToday,
			Errors:          st.ErrorsToday,
			LastSentAt:      st.LastSentAt,
			NextAllowedAt:   nextAllowed,
			IntervalSeconds: int(rule.MinInterval.Seconds()),
			DailyCap:        rule.DailyCap,
			Enabled:         rule.Enabled,
		}
	}
	return out, nil
}

// Rules returns the active pacing rules keyed by channel.
func (s *PromotionService) Rules() map[domain.Channel]domain.ChannelRule {
	out := make(map[domain.Channel]domain.ChannelRule, len(domain.AllChannels))
	for _, ch := range domain.AllChannels {
		out[ch] = s.limiter.Rule(ch)
	}
	return out
}

// ListExecutions returns sent deliveries in [from, to), newest first.
func (s *PromotionService) ListExecutions(ctx context.Context, from, to time.Time) ([]*domain.DeliveryRecord, error) {
	return s.store.ListExecutions(ctx, from, to)
}

// ListErrors returns deliveries stuck in error, newest first.
func (s *PromotionService) ListErrors(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return s.store.ListErrorDeliveries(ctx, limit)
}

// ManualRetry resets an errored delivery for another round of attempts
// and, when the draft had been escalated, reverts it to dispatched.
func (s *PromotionService) ManualRetry(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	d, err := s.store.ManualRetryDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("delivery manually retried",
		zap.String("delivery_id", d.ID),
		zap.String("channel", string(d.Channel)))
	return d, nil
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
