package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promohub/channel-dispatch/internal/domain"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore returns a Store backed by PostgreSQL.
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

const draftColumns = `id, batch_id, offer_id, copy_text, copy_variants, channels,
	priority, score, status, approved_at, approved_by, error_msg, created_at, updated_at`

const deliveryColumns = `id, draft_id, channel, status, sent_at, external_id,
	error_message, retries, created_at, updated_at`

const batchColumns = `id, date, scheduled_time, status, pending_count, approved_count,
	dispatched_count, error_count, rejected_count, created_at, updated_at`

// deliveryOrder implements the per-channel dispatch order: priority band
// first, FIFO within a band, draft id as the deterministic tie-break.
const deliveryOrder = `ORDER BY
	CASE d.priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END,
	del.created_at ASC, d.id ASC`

// ---- batches ----

func (s *pgStore) GetOrCreateBatch(ctx context.Context, date time.Time, scheduledTime string) (*domain.Batch, bool, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO batches (id, date, scheduled_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', $4, $4)
		ON CONFLICT (date, scheduled_time) DO NOTHING
		RETURNING `+batchColumns,
		uuid.New().String(), date, scheduledTime, now)

	b, err := scanBatch(row)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert batch: %w", err)
	}

	// Slot already exists; return it.
	row = s.pool.QueryRow(ctx, `
		SELECT `+batchColumns+` FROM batches
		WHERE date = $1 AND scheduled_time = $2`, date, scheduledTime)
	b, err = scanBatch(row)
	if err != nil {
		return nil, false, fmt.Errorf("get batch by slot: %w", err)
	}
	return b, false, nil
}

func (s *pgStore) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (s *pgStore) ListBatches(ctx context.Context, date time.Time) ([]*domain.Batch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+batchColumns+` FROM batches
		WHERE date = $1 ORDER BY scheduled_time ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (s *pgStore) SetBatchStatus(ctx context.Context, id string, status domain.BatchStatus) (*domain.Batch, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE batches SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+batchColumns, status, id)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

// ---- drafts ----

func (s *pgStore) CreateDraft(ctx context.Context, d *domain.Draft) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var status domain.BatchStatus
		err := tx.QueryRow(ctx,
			`SELECT status FROM batches WHERE id = $1 FOR UPDATE`, d.BatchID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock batch: %w", err)
		}
		switch status {
		case domain.BatchLocked:
			return domain.ErrBatchLocked
		case domain.BatchClosed:
			return domain.ErrBatchClosed
		}

		variants, err := marshalVariants(d.CopyVariants)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO drafts
				(id, batch_id, offer_id, copy_text, copy_variants, channels,
				 priority, score, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			d.ID, d.BatchID, d.OfferID, d.CopyText, variants, channelStrings(d.Channels),
			d.Priority, d.Score, d.Status, d.CreatedAt, d.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert draft: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE batches SET pending_count = pending_count + 1, updated_at = NOW()
			WHERE id = $1`, d.BatchID)
		if err != nil {
			return fmt.Errorf("bump pending count: %w", err)
		}
		return nil
	})
}

func (s *pgStore) GetDraft(ctx context.Context, id string) (*domain.Draft, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	d, err := scanDraft(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return d, err
}

func (s *pgStore) ListDrafts(ctx context.Context, f domain.DraftFilter) ([]*domain.Draft, int, error) {
	where, args := buildDraftWhere(f)
	offset := (f.Page - 1) * f.Limit

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM drafts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count drafts: %w", err)
	}

	args = append(args, f.Limit, offset)
	query := fmt.Sprintf(`
		SELECT `+draftColumns+` FROM drafts%s
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END,
		         created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	drafts, err := scanDrafts(rows)
	return drafts, total, err
}

func (s *pgStore) ListApprovedDrafts(ctx context.Context, batchID string) ([]*domain.Draft, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+draftColumns+` FROM drafts
		WHERE batch_id = $1 AND status = 'approved'
		ORDER BY created_at ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list approved drafts: %w", err)
	}
	defer rows.Close()
	return scanDrafts(rows)
}

// ---- draft state machine ----

func (s *pgStore) ApproveDraft(ctx context.Context, id, actor string, now time.Time) (*domain.Draft, error) {
	var draft *domain.Draft
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		d, err := lockDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Status != domain.DraftPending {
			return domain.ErrInvalidState
		}

		row := tx.QueryRow(ctx, `
			UPDATE drafts
			SET status = 'approved', approved_at = $1, approved_by = $2, updated_at = $1
			WHERE id = $3
			RETURNING `+draftColumns, now, actor, id)
		if draft, err = scanDraft(row); err != nil {
			return fmt.Errorf("approve draft: %w", err)
		}

		return bumpCounters(ctx, tx, d.BatchID, "pending_count", "approved_count")
	})
	return draft, err
}

func (s *pgStore) RejectDraft(ctx context.Context, id string) (*domain.Draft, error) {
	var draft *domain.Draft
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		d, err := lockDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Status != domain.DraftPending {
			return domain.ErrInvalidState
		}

		row := tx.QueryRow(ctx, `
			UPDATE drafts SET status = 'rejected', updated_at = NOW()
			WHERE id = $1
			RETURNING `+draftColumns, id)
		if draft, err = scanDraft(row); err != nil {
			return fmt.Errorf("reject draft: %w", err)
		}

		return bumpCounters(ctx, tx, d.BatchID, "pending_count", "rejected_count")
	})
	return draft, err
}

func (s *pgStore) MarkDraftError(ctx context.Context, id, message string) (*domain.Draft, error) {
	var draft *domain.Draft
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		d, err := lockDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Status.Terminal() {
			return domain.ErrInvalidState
		}

		row := tx.QueryRow(ctx, `
			UPDATE drafts SET status = 'error', error_msg = $1, updated_at = NOW()
			WHERE id = $2
			RETURNING `+draftColumns, message, id)
		if draft, err = scanDraft(row); err != nil {
			return fmt.Errorf("mark draft error: %w", err)
		}

		return bumpCounters(ctx, tx, d.BatchID, counterColumn(d.Status), "error_count")
	})
	return draft, err
}

func (s *pgStore) DispatchDraft(ctx context.Context, id string, now time.Time) (*domain.Draft, []*domain.Delivery, error) {
	var (
		draft      *domain.Draft
		deliveries []*domain.Delivery
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		d, err := lockDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Status != domain.DraftApproved {
			return domain.ErrInvalidState
		}

		// Idempotent upsert: a re-run resets a pending/error row but
		// must never duplicate nor regress an already-sent delivery.
		for _, ch := range d.Channels {
			_, err := tx.Exec(ctx, `
				INSERT INTO deliveries (id, draft_id, channel, status, retries, created_at, updated_at)
				VALUES ($1, $2, $3, 'pending', 0, $4, $4)
				ON CONFLICT (draft_id, channel) DO UPDATE
				SET status = 'pending', error_message = NULL, retries = 0, updated_at = $4
				WHERE deliveries.status <> 'sent'`,
				uuid.New().String(), d.ID, ch, now)
			if err != nil {
				return fmt.Errorf("upsert delivery %s: %w", ch, err)
			}
		}

		row := tx.QueryRow(ctx, `
			UPDATE drafts SET status = 'dispatched', updated_at = $1
			WHERE id = $2
			RETURNING `+draftColumns, now, id)
		if draft, err = scanDraft(row); err != nil {
			return fmt.Errorf("dispatch draft: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT `+deliveryColumns+` FROM deliveries
			WHERE draft_id = $1 ORDER BY channel ASC`, id)
		if err != nil {
			return fmt.Errorf("load deliveries: %w", err)
		}
		defer rows.Close()
		if deliveries, err = scanDeliveries(rows); err != nil {
			return err
		}

		return bumpCounters(ctx, tx, d.BatchID, "approved_count", "dispatched_count")
	})
	return draft, deliveries, err
}

// ---- deliveries ----

func (s *pgStore) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return d, err
}

func (s *pgStore) GetDraftDeliveries(ctx context.Context, draftID string) ([]*domain.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE draft_id = $1 ORDER BY channel ASC`, draftID)
	if err != nil {
		return nil, fmt.Errorf("get draft deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (s *pgStore) NextPendingDelivery(ctx context.Context, ch domain.Channel) (*domain.Delivery, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT del.id, del.draft_id, del.channel, del.status, del.sent_at,
		       del.external_id, del.error_message, del.retries, del.created_at, del.updated_at
		FROM deliveries del
		JOIN drafts d ON d.id = del.draft_id
		WHERE del.channel = $1 AND del.status = 'pending' AND d.status = 'dispatched'
		`+deliveryOrder+`
		LIMIT 1`, ch)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return d, err
}

func (s *pgStore) MarkDeliverySent(ctx context.Context, id, externalID string, sentAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE deliveries
		SET status = 'sent', external_id = $1, sent_at = $2, error_message = NULL, updated_at = $2
		WHERE id = $3`, externalID, sentAt, id)
	if err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}
	return nil
}

func (s *pgStore) FailDelivery(ctx context.Context, id, errMsg string, maxRetries int) (*domain.Delivery, bool, error) {
	var (
		delivery  *domain.Delivery
		escalated bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 FOR UPDATE`, id)
		d, err := scanDelivery(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock delivery: %w", err)
		}
		if d.Status != domain.DeliveryPending {
			return domain.ErrInvalidState
		}

		retries := d.Retries + 1
		status := domain.DeliveryPending
		if retries >= maxRetries {
			status = domain.DeliveryError
		}

		row = tx.QueryRow(ctx, `
			UPDATE deliveries
			SET status = $1, retries = $2, error_message = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING `+deliveryColumns, status, retries, errMsg, id)
		if delivery, err = scanDelivery(row); err != nil {
			return fmt.Errorf("fail delivery: %w", err)
		}

		if status != domain.DeliveryError {
			return nil
		}

		// Retries exhausted: escalate the draft when every sibling is
		// terminal and at least one ended in error.
		var open int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM deliveries
			WHERE draft_id = $1 AND status = 'pending'`, d.DraftID).Scan(&open)
		if err != nil {
			return fmt.Errorf("count open deliveries: %w", err)
		}
		if open > 0 {
			return nil
		}

		dr, err := lockDraft(ctx, tx, d.DraftID)
		if err != nil {
			return err
		}
		if dr.Status != domain.DraftDispatched {
			return nil // already escalated or operator-overridden
		}

		_, err = tx.Exec(ctx, `
			UPDATE drafts SET status = 'error', error_msg = $1, updated_at = NOW()
			WHERE id = $2`, "channel "+string(d.Channel)+": "+errMsg, d.DraftID)
		if err != nil {
			return fmt.Errorf("escalate draft: %w", err)
		}
		if err := bumpCounters(ctx, tx, dr.BatchID, "dispatched_count", "error_count"); err != nil {
			return err
		}
		escalated = true
		return nil
	})
	return delivery, escalated, err
}

func (s *pgStore) ManualRetryDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	var delivery *domain.Delivery
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 FOR UPDATE`, id)
		d, err := scanDelivery(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock delivery: %w", err)
		}
		if d.Status != domain.DeliveryError {
			return domain.ErrNotRetryable
		}

		row = tx.QueryRow(ctx, `
			UPDATE deliveries
			SET status = 'pending', retries = 0, error_message = NULL, updated_at = NOW()
			WHERE id = $1
			RETURNING `+deliveryColumns, id)
		if delivery, err = scanDelivery(row); err != nil {
			return fmt.Errorf("reset delivery: %w", err)
		}

		dr, err := lockDraft(ctx, tx, d.DraftID)
		if err != nil {
			return err
		}
		if dr.Status != domain.DraftError {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE drafts SET status = 'dispatched', error_msg = NULL, updated_at = NOW()
			WHERE id = $1`, d.DraftID)
		if err != nil {
			return fmt.Errorf("revert draft: %w", err)
		}
		return bumpCounters(ctx, tx, dr.BatchID, "error_count", "dispatched_count")
	})
	return delivery, err
}

// ---- listings ----

const recordQuery = `
	SELECT del.id, del.draft_id, del.channel, del.status, del.sent_at,
	       del.external_id, del.error_message, del.retries, del.created_at, del.updated_at,
	       d.offer_id, d.copy_text, d.priority, d.batch_id
	FROM deliveries del
	JOIN drafts d ON d.id = del.draft_id`

func (s *pgStore) ListExecutions(ctx context.Context, from, to time.Time) ([]*domain.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx, recordQuery+`
		WHERE del.status = 'sent' AND del.sent_at >= $1 AND del.sent_at < $2
		ORDER BY del.sent_at DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *pgStore) ListErrorDeliveries(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx, recordQuery+`
		WHERE del.status = 'error'
		ORDER BY del.updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list error deliveries: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *pgStore) ChannelStates(ctx context.Context, dayStart time.Time) (map[domain.Channel]ChannelSendState, error) {
	states := make(map[domain.Channel]ChannelSendState, len(domain.AllChannels))
	for _, ch := range domain.AllChannels {
		states[ch] = ChannelSendState{}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT del.channel, COUNT(*)
		FROM deliveries del JOIN drafts d ON d.id = del.draft_id
		WHERE del.status = 'pending' AND d.status = 'dispatched'
		GROUP BY del.channel`)
	if err != nil {
		return nil, fmt.Errorf("count queued: %w", err)
	}
	if err := mergeCounts(rows, states, func(st *ChannelSendState, n int) { st.Queued = n }); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT channel, COUNT(*) FROM deliveries
		WHERE status = 'sent' AND sent_at >= $1
		GROUP BY channel`, dayStart)
	if err != nil {
		return nil, fmt.Errorf("count sent today: %w", err)
	}
	if err := mergeCounts(rows, states, func(st *ChannelSendState, n int) { st.SentToday = n }); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT channel, COUNT(*) FROM deliveries
		WHERE status = 'error' AND updated_at >= $1
		GROUP BY channel`, dayStart)
	if err != nil {
		return nil, fmt.Errorf("count errors today: %w", err)
	}
	if err := mergeCounts(rows, states, func(st *ChannelSendState, n int) { st.ErrorsToday = n }); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT channel, MAX(sent_at) FROM deliveries
		WHERE status = 'sent'
		GROUP BY channel`)
	if err != nil {
		return nil, fmt.Errorf("last sent: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ch domain.Channel
		var last *time.Time
		if err := rows.Scan(&ch, &last); err != nil {
			return nil, err
		}
		st := states[ch]
		st.LastSentAt = last
		states[ch] = st
	}
	return states, rows.Err()
}

// ---- helpers ----

func (s *pgStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// lockDraft loads a draft FOR UPDATE so its status check and transition
// happen under the same row lock.
func lockDraft(ctx context.Context, tx pgx.Tx, id string) (*domain.Draft, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE id = $1 FOR UPDATE`, id)
	d, err := scanDraft(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock draft: %w", err)
	}
	return d, nil
}

func bumpCounters(ctx context.Context, tx pgx.Tx, batchID, dec, inc string) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE batches SET %s = %s - 1, %s = %s + 1, updated_at = NOW()
		WHERE id = $1`, dec, dec, inc, inc), batchID)
	if err != nil {
		return fmt.Errorf("update batch counters: %w", err)
	}
	return nil
}

func counterColumn(status domain.DraftStatus) string {
	switch status {
	case domain.DraftPending:
		return "pending_count"
	case domain.DraftApproved:
		return "approved_count"
	default:
		return "dispatched_count"
	}
}

func marshalVariants(v map[domain.Channel]string) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal copy variants: %w", err)
	}
	return b, nil
}

func channelStrings(chs []domain.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = string(ch)
	}
	return out
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var b domain.Batch
	err := row.Scan(
		&b.ID, &b.Date, &b.ScheduledTime, &b.Status,
		&b.PendingCount, &b.ApprovedCount, &b.DispatchedCount,
		&b.ErrorCount, &b.RejectedCount, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanDraft(row pgx.Row) (*domain.Draft, error) {
	var (
		d        domain.Draft
		variants []byte
		channels []string
	)
	err := row.Scan(
		&d.ID, &d.BatchID, &d.OfferID, &d.CopyText, &variants, &channels,
		&d.Priority, &d.Score, &d.Status, &d.ApprovedAt, &d.ApprovedBy,
		&d.ErrorMsg, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &d.CopyVariants); err != nil {
			return nil, fmt.Errorf("unmarshal copy variants: %w", err)
		}
	}
	d.Channels = make([]domain.Channel, len(channels))
	for i, ch := range channels {
		d.Channels[i] = domain.Channel(ch)
	}
	return &d, nil
}

func scanDrafts(rows pgx.Rows) ([]*domain.Draft, error) {
	var result []*domain.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	var d domain.Delivery
	err := row.Scan(
		&d.ID, &d.DraftID, &d.Channel, &d.Status, &d.SentAt,
		&d.ExternalID, &d.ErrorMessage, &d.Retries, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDeliveries(rows pgx.Rows) ([]*domain.Delivery, error) {
	var result []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func scanRecords(rows pgx.Rows) ([]*domain.DeliveryRecord, error) {
	var result []*domain.DeliveryRecord
	for rows.Next() {
		var r domain.DeliveryRecord
		err := rows.Scan(
			&r.Delivery.ID, &r.Delivery.DraftID, &r.Delivery.Channel, &r.Delivery.Status,
			&r.Delivery.SentAt, &r.Delivery.ExternalID, &r.Delivery.ErrorMessage,
			&r.Delivery.Retries, &r.Delivery.CreatedAt, &r.Delivery.UpdatedAt,
			&r.OfferID, &r.CopyText, &r.Priority, &r.BatchID,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func mergeCounts(rows pgx.Rows, states map[domain.Channel]ChannelSendState, set func(*ChannelSendState, int)) error {
	defer rows.Close()
	for rows.Next() {
		var ch domain.Channel
		var n int
		if err := rows.Scan(&ch, &n); err != nil {
			return err
		}
		st := states[ch]
		set(&st, n)
		states[ch] = st
	}
	return rows.Err()
}

func buildDraftWhere(f domain.DraftFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.BatchID != nil {
		add("batch_id = $%d", *f.BatchID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.Priority != nil {
		add("priority = $%d", *f.Priority)
	}
	if f.Channel != nil {
		add("$%d = ANY(channels)", string(*f.Channel))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
