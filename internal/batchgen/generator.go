package batchgen

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/repository"
)

// Generator creates the day's batches, one per configured slot time.
// It runs on a cron schedule (shortly after midnight by default) and can
// also be invoked on demand through the batch generation endpoint.
// Generation is idempotent: an existing (date, slot) batch is left
// untouched.
type Generator struct {
	store  repository.Store
	slots  []string
	logger *zap.Logger
	cron   *cron.Cron
}

func New(store repository.Store, slots []string, logger *zap.Logger) (*Generator, error) {
	for _, slot := range slots {
		if _, err := time.Parse("15:04", slot); err != nil {
			return nil, fmt.Errorf("invalid batch slot %q: %w", slot, err)
		}
	}
	return &Generator{
		store:  store,
		slots:  slots,
		logger: logger,
	}, nil
}

// Start schedules daily generation with the given cron spec.
func (g *Generator) Start(ctx context.Context, spec string) error {
	g.cron = cron.New()
	_, err := g.cron.AddFunc(spec, func() {
		if _, err := g.GenerateForDate(ctx, time.Now()); err != nil {
			g.logger.Error("daily batch generation failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule batch generation: %w", err)
	}
	g.cron.Start()
	g.logger.Info("batch generator started",
		zap.String("cron", spec),
		zap.Strings("slots", g.slots))
	return nil
}

// Stop halts the cron schedule and waits for a running job to finish.
func (g *Generator) Stop() {
	if g.cron != nil {
		<-g.cron.Stop().Done()
	}
}

// GenerateForDate ensures one batch per slot exists for the given date
// and returns all of the date's batches in slot order.
func (g *Generator) GenerateForDate(ctx context.Context, date time.Time) ([]*domain.Batch, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	created := 0
	for _, slot := range g.slots {
		_, isNew, err := g.store.GetOrCreateBatch(ctx, day, slot)
		if err != nil {
			return nil, fmt.Errorf("create batch %s %s: %w", day.Format("2006-01-02"), slot, err)
		}
		if isNew {
			created++
		}
	}
	g.logger.Info("batches generated",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("created", created),
		zap.Int("existing", len(g.slots)-created))

	return g.store.ListBatches(ctx, day)
}
