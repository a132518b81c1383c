package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidBatch    = errors.New("batch_id must not be empty")
	ErrInvalidOffer    = errors.New("offer_id must not be empty")
	ErrInvalidCopy     = errors.New("copy_text must be between 1 and 4096 characters")
	ErrNoChannels      = errors.New("draft must target at least one channel")
	ErrInvalidChannel  = errors.New("invalid channel: must be telegram, whatsapp, twitter, instagram, facebook, or site")
	ErrInvalidPriority = errors.New("invalid priority: must be high, normal, or low")

	ErrInvalidState = errors.New("invalid state for this transition")
	ErrBatchLocked  = errors.New("batch is locked")
	ErrBatchClosed  = errors.New("batch is closed")
	ErrNotRetryable = errors.New("delivery is not in error state")
)
