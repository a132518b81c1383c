package domain

import "time"

// BatchStatus tracks the operator lifecycle of a batch.
type BatchStatus string

const (
	BatchPending BatchStatus = "pending"
	BatchLocked  BatchStatus = "locked"
	BatchClosed  BatchStatus = "closed"
)

// DraftStatus tracks the approval lifecycle of a draft.
// Transitions are monotonic except for the explicit operator override
// into error or rejected.
type DraftStatus string

const (
	DraftPending    DraftStatus = "pending"
	DraftApproved   DraftStatus = "approved"
	DraftDispatched DraftStatus = "dispatched"
	DraftRejected   DraftStatus = "rejected"
	DraftError      DraftStatus = "error"
)

// Terminal reports whether no further automatic transition is possible.
func (s DraftStatus) Terminal() bool {
	return s == DraftRejected || s == DraftError
}

// DeliveryStatus tracks one (draft, channel) send.
// Sent and error are terminal; error may be manually reset to pending.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryError   DeliveryStatus = "error"
)

// Batch is a time-bucketed collection of drafts sharing a nominal
// dispatch slot (e.g. 14:00 on a given date). Counters are denormalized
// and mutated only inside the same transaction as the draft transition
// that changes them.
type Batch struct {
	ID              string      `json:"id"`
	Date            time.Time   `json:"date"`
	ScheduledTime   string      `json:"scheduled_time"`
	Status          BatchStatus `json:"status"`
	PendingCount    int         `json:"pending_count"`
	ApprovedCount   int         `json:"approved_count"`
	DispatchedCount int         `json:"dispatched_count"`
	ErrorCount      int         `json:"error_count"`
	RejectedCount   int         `json:"rejected_count"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Draft is one piece of promotional content targeting a set of channels.
type Draft struct {
	ID           string             `json:"id"`
	BatchID      string             `json:"batch_id"`
	OfferID      string             `json:"offer_id"`
	CopyText     string             `json:"copy_text"`
	CopyVariants map[Channel]string `json:"copy_variants,omitempty"`
	Channels     []Channel          `json:"channels"`
	Priority     Priority           `json:"priority"`
	Score        float64            `json:"score"`
	Status       DraftStatus        `json:"status"`
	ApprovedAt   *time.Time         `json:"approved_at,omitempty"`
	ApprovedBy   *string            `json:"approved_by,omitempty"`
	ErrorMsg     *string            `json:"error_msg,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// CopyFor returns the channel-specific copy variant, falling back to the
// generic copy text.
func (d *Draft) CopyFor(ch Channel) string {
	if v, ok := d.CopyVariants[ch]; ok && v != "" {
		return v
	}
	return d.CopyText
}

// Delivery is the unit the scheduler processes: one (draft, channel)
// pair. Never deleted; the delivery set is the audit trail of a draft.
type Delivery struct {
	ID           string         `json:"id"`
	DraftID      string         `json:"draft_id"`
	Channel      Channel        `json:"channel"`
	Status       DeliveryStatus `json:"status"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	ExternalID   *string        `json:"external_id,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	Retries      int            `json:"retries"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CreateDraftRequest is the inbound payload for a new draft.
type CreateDraftRequest struct {
	BatchID      string             `json:"batch_id"`
	OfferID      string             `json:"offer_id"`
	CopyText     string             `json:"copy_text"`
	CopyVariants map[Channel]string `json:"copy_variants,omitempty"`
	Channels     []Channel          `json:"channels"`
	Priority     Priority           `json:"priority"`
	Score        float64            `json:"score"`
}

func (r *CreateDraftRequest) Validate() error {
	if r.BatchID == "" {
		return ErrInvalidBatch
	}
	if r.OfferID == "" {
		return ErrInvalidOffer
	}
	if r.CopyText == "" || len(r.CopyText) > 4096 {
		return ErrInvalidCopy
	}
	if len(r.Channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range r.Channels {
		if !ch.IsValid() {
			return ErrInvalidChannel
		}
	}
	for ch := range r.CopyVariants {
		if !ch.IsValid() {
			return ErrInvalidChannel
		}
	}
	if !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	return nil
}

// DraftFilter holds query parameters for the paginated draft listing.
type DraftFilter struct {
	BatchID  *string
	Status   *DraftStatus
	Priority *Priority
	Channel  *Channel
	Page     int
	Limit    int
}

// DeliveryRecord is a delivery joined with its draft summary, returned
// by the executions and errors listings.
type DeliveryRecord struct {
	Delivery Delivery `json:"delivery"`
	OfferID  string   `json:"offer_id"`
	CopyText string   `json:"copy_text"`
	Priority Priority `json:"priority"`
	BatchID  string   `json:"batch_id"`
}

// ChannelQueueStatus is the per-channel snapshot served by the
// scheduler status endpoint.
type ChannelQueueStatus struct {
	Queued          int        `json:"queued"`
	SentToday       int        `json:"sent_today"`
	Errors          int        `json:"errors"`
	LastSentAt      *time.Time `json:"last_sent_at,omitempty"`
	NextAllowedAt   *time.Time `json:"next_allowed_at,omitempty"`
	IntervalSeconds int        `json:"interval_seconds"`
	DailyCap        int        `json:"daily_cap"`
	Enabled         bool       `json:"enabled"`
}
