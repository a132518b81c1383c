package repository

import (
	"context"
	"time"

	"github.com/promohub/channel-dispatch/internal/domain"
)

// ChannelSendState is the per-channel send history used to seed the
// rate limiter on startup and to serve the status endpoint.
type ChannelSendState struct {
	Queued      int
	SentToday   int
	ErrorsToday int
	LastSentAt  *time.Time
}

// Store defines all persistence operations. Every draft transition is a
// single transaction covering the draft row, its delivery upserts, and
// the owning batch's counters; the current status is re-validated inside
// the transaction, so concurrent callers cannot apply a stale read.
//
// The pgx implementation is in pg_store.go; tests use the hand-written
// in-memory MockStore (mock_store.go).
type Store interface {
	// Batches
	GetOrCreateBatch(ctx context.Context, date time.Time, scheduledTime string) (*domain.Batch, bool, error)
	GetBatch(ctx context.Context, id string) (*domain.Batch, error)
	ListBatches(ctx context.Context, date time.Time) ([]*domain.Batch, error)
	SetBatchStatus(ctx context.Context, id string, status domain.BatchStatus) (*domain.Batch, error)

	// Drafts
	CreateDraft(ctx context.Context, d *domain.Draft) error
	GetDraft(ctx context.Context, id string) (*domain.Draft, error)
	ListDrafts(ctx context.Context, filter domain.DraftFilter) ([]*domain.Draft, int, error)
	ListApprovedDrafts(ctx context.Context, batchID string) ([]*domain.Draft, error)

	// Draft state machine. Each call is one atomic transaction.
	ApproveDraft(ctx context.Context, id, actor string, now time.Time) (*domain.Draft, error)
	RejectDraft(ctx context.Context, id string) (*domain.Draft, error)
	MarkDraftError(ctx context.Context, id, message string) (*domain.Draft, error)
	DispatchDraft(ctx context.Context, id string, now time.Time) (*domain.Draft, []*domain.Delivery, error)

	// Deliveries
	GetDelivery(ctx context.Context, id string) (*domain.Delivery, error)
	GetDraftDeliveries(ctx context.Context, draftID string) ([]*domain.Delivery, error)

	// NextPendingDelivery returns the oldest eligible pending delivery
	// for the channel: parent draft dispatched, ordered by (priority,
	// delivery creation time, draft id). Returns ErrNotFound when the
	// channel queue is empty.
	NextPendingDelivery(ctx context.Context, ch domain.Channel) (*domain.Delivery, error)

	MarkDeliverySent(ctx context.Context, id, externalID string, sentAt time.Time) error

	// FailDelivery increments the retry counter and either re-queues the
	// delivery (status back to pending) or, once maxRetries is reached,
	// marks it error. When that leaves the draft with all deliveries
	// terminal and at least one error, the draft is escalated to error
	// in the same transaction; escalated reports whether that happened.
	FailDelivery(ctx context.Context, id, errMsg string, maxRetries int) (d *domain.Delivery, escalated bool, err error)

	// ManualRetryDelivery resets an error delivery to pending with
	// retries=0 and, if the parent draft was escalated to error, reverts
	// it to dispatched. The only operation allowed to reset retries.
	ManualRetryDelivery(ctx context.Context, id string) (*domain.Delivery, error)

	// Listings for the control surface
	ListExecutions(ctx context.Context, from, to time.Time) ([]*domain.DeliveryRecord, error)
	ListErrorDeliveries(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error)

	// ChannelStates returns queue depth and send history per channel.
	// dayStart bounds the sent/error counts to the current local day.
	ChannelStates(ctx context.Context, dayStart time.Time) (map[domain.Channel]ChannelSendState, error)
}
