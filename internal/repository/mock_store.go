package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promohub/channel-dispatch/internal/domain"
)

// MockStore is an in-memory Store used in tests. It mirrors the
// transactional semantics of the pgx implementation: every state
// transition re-validates the current status under one mutex, and
// batch counters move in the same critical section.
type MockStore struct {
	mu         sync.Mutex
	batches    map[string]*domain.Batch
	drafts     map[string]*domain.Draft
	deliveries map[string]*domain.Delivery
}

func NewMockStore() *MockStore {
	return &MockStore{
		batches:    make(map[string]*domain.Batch),
		drafts:     make(map[string]*domain.Draft),
		deliveries: make(map[string]*domain.Delivery),
	}
}

// ---- batches ----

func (m *MockStore) GetOrCreateBatch(_ context.Context, date time.Time, scheduledTime string) (*domain.Batch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.batches {
		if b.Date.Equal(date) && b.ScheduledTime == scheduledTime {
			return copyBatch(b), false, nil
		}
	}
	now := time.Now().UTC()
	b := &domain.Batch{
		ID:            uuid.New().String(),
		Date:          date,
		ScheduledTime: scheduledTime,
		Status:        domain.BatchPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.batches[b.ID] = b
	return copyBatch(b), true, nil
}

func (m *MockStore) GetBatch(_ context.Context, id string) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyBatch(b), nil
}

func (m *MockStore) ListBatches(_ context.Context, date time.Time) ([]*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Batch
	for _, b := range m.batches {
		if b.Date.Equal(date) {
			out = append(out, copyBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime < out[j].ScheduledTime })
	return out, nil
}

func (m *MockStore) SetBatchStatus(_ context.Context, id string, status domain.BatchStatus) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	return copyBatch(b), nil
}

// ---- drafts ----

func (m *MockStore) CreateDraft(_ context.Context, d *domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[d.BatchID]
	if !ok {
		return domain.ErrNotFound
	}
	switch b.Status {
	case domain.BatchLocked:
		return domain.ErrBatchLocked
	case domain.BatchClosed:
		return domain.ErrBatchClosed
	}

	m.drafts[d.ID] = copyDraft(d)
	b.PendingCount++
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockStore) GetDraft(_ context.Context, id string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyDraft(d), nil
}

func (m *MockStore) ListDrafts(_ context.Context, f domain.DraftFilter) ([]*domain.Draft, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.Draft
	for _, d := range m.drafts {
		if f.BatchID != nil && d.BatchID != *f.BatchID {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.Priority != nil && d.Priority != *f.Priority {
			continue
		}
		if f.Channel != nil && !hasChannel(d.Channels, *f.Channel) {
			continue
		}
		matched = append(matched, copyDraft(d))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority.Rank() != matched[j].Priority.Rank() {
			return matched[i].Priority.Rank() < matched[j].Priority.Rank()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.Limit
	if start >= total {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MockStore) ListApprovedDrafts(_ context.Context, batchID string) ([]*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Draft
	for _, d := range m.drafts {
		if d.BatchID == batchID && d.Status == domain.DraftApproved {
			out = append(out, copyDraft(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- draft state machine ----

func (m *MockStore) ApproveDraft(_ context.Context, id, actor string, now time.Time) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if d.Status != domain.DraftPending {
		return nil, domain.ErrInvalidState
	}

	d.Status = domain.DraftApproved
	d.ApprovedAt = &now
	d.ApprovedBy = &actor
	d.UpdatedAt = now
	m.moveCounter(d.BatchID, func(b *domain.Batch) { b.PendingCount--; b.ApprovedCount++ })
	return copyDraft(d), nil
}

func (m *MockStore) RejectDraft(_ context.Context, id string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if d.Status != domain.DraftPending {
		return nil, domain.ErrInvalidState
	}

	d.Status = domain.DraftRejected
	d.UpdatedAt = time.Now().UTC()
	m.moveCounter(d.BatchID, func(b *domain.Batch) { b.PendingCount--; b.RejectedCount++ })
	return copyDraft(d), nil
}

func (m *MockStore) MarkDraftError(_ context.Context, id, message string) (*domain.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if d.Status.Terminal() {
		return nil, domain.ErrInvalidState
	}

	prev := d.Status
	d.Status = domain.DraftError
	d.ErrorMsg = &message
	d.UpdatedAt = time.Now().UTC()
	m.moveCounter(d.BatchID, func(b *domain.Batch) {
		switch prev {
		case domain.DraftPending:
			b.PendingCount--
		case domain.DraftApproved:
			b.ApprovedCount--
		default:
			b.DispatchedCount--
		}
		b.ErrorCount++
	})
	return copyDraft(d), nil
}

func (m *MockStore) DispatchDraft(_ context.Context, id string, now time.Time) (*domain.Draft, []*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[id]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	if d.Status != domain.DraftApproved {
		return nil, nil, domain.ErrInvalidState
	}

	for _, ch := range d.Channels {
		if existing := m.findDelivery(id, ch); existing != nil {
			if existing.Status != domain.DeliverySent {
				existing.Status = domain.DeliveryPending
				existing.ErrorMessage = nil
				existing.Retries = 0
				existing.UpdatedAt = now
			}
			continue
		}
		del := &domain.Delivery{
			ID:        uuid.New().String(),
			DraftID:   id,
			Channel:   ch,
			Status:    domain.DeliveryPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.deliveries[del.ID] = del
	}

	d.Status = domain.DraftDispatched
	d.UpdatedAt = now
	m.moveCounter(d.BatchID, func(b *domain.Batch) { b.ApprovedCount--; b.DispatchedCount++ })

	var out []*domain.Delivery
	for _, del := range m.deliveries {
		if del.DraftID == id {
			out = append(out, copyDelivery(del))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return copyDraft(d), out, nil
}

// ---- deliveries ----

func (m *MockStore) GetDelivery(_ context.Context, id string) (*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyDelivery(d), nil
}

func (m *MockStore) GetDraftDeliveries(_ context.Context, draftID string) ([]*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Delivery
	for _, d := range m.deliveries {
		if d.DraftID == draftID {
			out = append(out, copyDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

func (m *MockStore) NextPendingDelivery(_ context.Context, ch domain.Channel) (*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		best      *domain.Delivery
		bestDraft *domain.Draft
	)
	for _, del := range m.deliveries {
		if del.Channel != ch || del.Status != domain.DeliveryPending {
			continue
		}
		draft, ok := m.drafts[del.DraftID]
		if !ok || draft.Status != domain.DraftDispatched {
			continue
		}
		if best == nil || deliveryBefore(del, draft, best, bestDraft) {
			best, bestDraft = del, draft
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return copyDelivery(best), nil
}

func (m *MockStore) MarkDeliverySent(_ context.Context, id, externalID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.Status = domain.DeliverySent
	d.ExternalID = &externalID
	d.SentAt = &sentAt
	d.ErrorMessage = nil
	d.UpdatedAt = sentAt
	return nil
}

func (m *MockStore) FailDelivery(_ context.Context, id, errMsg string, maxRetries int) (*domain.Delivery, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if d.Status != domain.DeliveryPending {
		return nil, false, domain.ErrInvalidState
	}

	d.Retries++
	d.ErrorMessage = &errMsg
	d.UpdatedAt = time.Now().UTC()
	if d.Retries < maxRetries {
		return copyDelivery(d), false, nil
	}
	d.Status = domain.DeliveryError

	for _, sibling := range m.deliveries {
		if sibling.DraftID == d.DraftID && sibling.Status == domain.DeliveryPending {
			return copyDelivery(d), false, nil
		}
	}
	draft, ok := m.drafts[d.DraftID]
	if !ok || draft.Status != domain.DraftDispatched {
		return copyDelivery(d), false, nil
	}
	msg := "channel " + string(d.Channel) + ": " + errMsg
	draft.Status = domain.DraftError
	draft.ErrorMsg = &msg
	draft.UpdatedAt = time.Now().UTC()
	m.moveCounter(draft.BatchID, func(b *domain.Batch) { b.DispatchedCount--; b.ErrorCount++ })
	return copyDelivery(d), true, nil
}

func (m *MockStore) ManualRetryDelivery(_ context.Context, id string) (*domain.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if d.Status != domain.DeliveryError {
		return nil, domain.ErrNotRetryable
	}

	d.Status = domain.DeliveryPending
	d.Retries = 0
	d.ErrorMessage = nil
	d.UpdatedAt = time.Now().UTC()

	if draft, ok := m.drafts[d.DraftID]; ok && draft.Status == domain.DraftError {
		draft.Status = domain.DraftDispatched
		draft.ErrorMsg = nil
		draft.UpdatedAt = time.Now().UTC()
		m.moveCounter(draft.BatchID, func(b *domain.Batch) { b.ErrorCount--; b.DispatchedCount++ })
	}
	return copyDelivery(d), nil
}

// ---- listings ----

func (m *MockStore) ListExecutions(_ context.Context, from, to time.Time) ([]*domain.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.DeliveryRecord
	for _, d := range m.deliveries {
		if d.Status != domain.DeliverySent || d.SentAt == nil {
			continue
		}
		if d.SentAt.Before(from) || !d.SentAt.Before(to) {
			continue
		}
		out = append(out, m.record(d))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Delivery.SentAt.After(*out[j].Delivery.SentAt)
	})
	return out, nil
}

func (m *MockStore) ListErrorDeliveries(_ context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.DeliveryRecord
	for _, d := range m.deliveries {
		if d.Status == domain.DeliveryError {
			out = append(out, m.record(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Delivery.UpdatedAt.After(out[j].Delivery.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) ChannelStates(_ context.Context, dayStart time.Time) (map[domain.Channel]ChannelSendState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[domain.Channel]ChannelSendState, len(domain.AllChannels))
	for _, ch := range domain.AllChannels {
		states[ch] = ChannelSendState{}
	}
	for _, d := range m.deliveries {
		st := states[d.Channel]
		switch d.Status {
		case domain.DeliveryPending:
			if draft, ok := m.drafts[d.DraftID]; ok && draft.Status == domain.DraftDispatched {
				st.Queued++
			}
		case domain.DeliverySent:
			if d.SentAt != nil {
				if !d.SentAt.Before(dayStart) {
					st.SentToday++
				}
				if st.LastSentAt == nil || d.SentAt.After(*st.LastSentAt) {
					t := *d.SentAt
					st.LastSentAt = &t
				}
			}
		case domain.DeliveryError:
			if !d.UpdatedAt.Before(dayStart) {
				st.ErrorsToday++
			}
		}
		states[d.Channel] = st
	}
	return states, nil
}

// ---- helpers ----

func (m *MockStore) moveCounter(batchID string, fn func(*domain.Batch)) {
	if b, ok := m.batches[batchID]; ok {
		fn(b)
		b.UpdatedAt = time.Now().UTC()
	}
}

func (m *MockStore) findDelivery(draftID string, ch domain.Channel) *domain.Delivery {
	for _, d := range m.deliveries {
		if d.DraftID == draftID && d.Channel == ch {
			return d
		}
	}
	return nil
}

func (m *MockStore) record(d *domain.Delivery) *domain.DeliveryRecord {
	r := &domain.DeliveryRecord{Delivery: *copyDelivery(d)}
	if draft, ok := m.drafts[d.DraftID]; ok {
		r.OfferID = draft.OfferID
		r.CopyText = draft.CopyText
		r.Priority = draft.Priority
		r.BatchID = draft.BatchID
	}
	return r
}

func deliveryBefore(d *domain.Delivery, dr *domain.Draft, other *domain.Delivery, otherDr *domain.Draft) bool {
	if dr.Priority.Rank() != otherDr.Priority.Rank() {
		return dr.Priority.Rank() < otherDr.Priority.Rank()
	}
	if !d.CreatedAt.Equal(other.CreatedAt) {
		return d.CreatedAt.Before(other.CreatedAt)
	}
	return dr.ID < otherDr.ID
}

func hasChannel(chs []domain.Channel, ch domain.Channel) bool {
	for _, c := range chs {
		if c == ch {
			return true
		}
	}
	return false
}

func copyBatch(b *domain.Batch) *domain.Batch {
	c := *b
	return &c
}

func copyDraft(d *domain.Draft) *domain.Draft {
	c := *d
	c.Channels = append([]domain.Channel(nil), d.Channels...)
	if d.CopyVariants != nil {
		c.CopyVariants = make(map[domain.Channel]string, len(d.CopyVariants))
		for k, v := range d.CopyVariants {
			c.CopyVariants[k] = v
		}
	}
	return &c
}

func copyDelivery(d *domain.Delivery) *domain.Delivery {
	c := *d
	return &c
}
