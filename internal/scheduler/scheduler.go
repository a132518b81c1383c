package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/dispatch"
	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/ratelimiter"
	"github.com/promohub/channel-dispatch/internal/repository"
)

// Outcome classifies what one channel did during a tick.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeFailed      Outcome = "failed"
	OutcomeEmpty       Outcome = "empty"
	OutcomeRateLimited Outcome = "rate_limited"
)

// Scheduler drives per-channel dispatch. Every tick it visits all
// channels concurrently; each channel sends at most one delivery per
// tick, admitted by the rate limiter and popped in (priority, age)
// order. Channels never block each other.
type Scheduler struct {
	store    repository.Store
	limiter  *ratelimiter.Limiter
	executor *dispatch.Executor
	interval time.Duration
	logger   *zap.Logger

	onTick        func()
	onRateLimited func(domain.Channel)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(
	store repository.Store,
	limiter *ratelimiter.Limiter,
	executor *dispatch.Executor,
	interval time.Duration,
	logger *zap.Logger,
	onTick func(),
	onRateLimited func(domain.Channel),
) *Scheduler {
	if onTick == nil {
		onTick = func() {}
	}
	if onRateLimited == nil {
		onRateLimited = func(domain.Channel) {}
	}
	return &Scheduler{
		store: store, limiter: limiter, executor: executor,
		interval: interval, logger: logger,
		onTick: onTick, onRateLimited: onRateLimited,
	}
}

// Start launches the tick loop. Safe to call once; returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the tick loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Tick visits every channel concurrently and returns each channel's
// outcome. Also the implementation behind the manual run endpoint.
func (s *Scheduler) Tick(ctx context.Context) map[domain.Channel]Outcome {
	s.onTick()

	results := make(map[domain.Channel]Outcome, len(domain.AllChannels))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range domain.AllChannels {
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()
			out := s.tickChannel(ctx, ch)
			mu.Lock()
			results[ch] = out
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

// RunChannel forces one dispatch attempt on a single channel.
func (s *Scheduler) RunChannel(ctx context.Context, ch domain.Channel) Outcome {
	return s.tickChannel(ctx, ch)
}

func (s *Scheduler) tickChannel(ctx context.Context, ch domain.Channel) Outcome {
	if !s.limiter.TryReserve(ch) {
		s.onRateLimited(ch)
		return OutcomeRateLimited
	}

	del, err := s.store.NextPendingDelivery(ctx, ch)
	if err != nil {
		s.limiter.Release(ch)
		if errors.Is(err, domain.ErrNotFound) {
			return OutcomeEmpty
		}
		s.logger.Error("failed to pop delivery",
			zap.String("channel", string(ch)), zap.Error(err))
		return OutcomeEmpty
	}

	if s.executor.Attempt(ctx, del) {
		return OutcomeSent
	}
	return OutcomeFailed
}
