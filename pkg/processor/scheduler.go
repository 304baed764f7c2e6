package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SessionLister is the slice of the queue the scheduler needs: a
// point-in-time snapshot of accounts holding undelivered messages.
type SessionLister interface {
	ListActiveSessions(ctx context.Context) ([]string, error)
}

// Runner processes one account's session; SessionProcessor is the real one.
type Runner interface {
	ProcessSession(ctx context.Context, accountNumber string) (int, error)
}

// Scheduler discovers accounts with pending work on a fixed tick and runs
// one session processor per account, concurrently up to MaxConcurrency.
type Scheduler struct {
	Lister SessionLister
	Runner Runner
	Logger *slog.Logger

	// Interval is the tick cadence; Backoff is how long a failed
	// active-session listing delays the next tick.
	Interval       time.Duration
	Backoff        time.Duration
	MaxConcurrency int

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewScheduler creates a Scheduler with the default cadence: one-minute
// ticks, 30 second backoff, eight concurrent sessions.
func NewScheduler(lister SessionLister, runner Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		Lister:         lister,
		Runner:         runner,
		Logger:         logger,
		Interval:       time.Minute,
		Backoff:        30 * time.Second,
		MaxConcurrency: 8,
	}
}

// Run ticks until ctx is canceled. Shutdown is cooperative: no new sessions
// are started once ctx is done, and Run returns only after every in-flight
// processor has finished its current message.
func (s *Scheduler) Run(ctx context.Context) {
	s.sem = make(chan struct{}, s.MaxConcurrency)
	s.Logger.Info("session scheduler started",
		slog.Duration("interval", s.Interval),
		slog.Int("max_concurrency", s.MaxConcurrency))

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if err := s.tick(ctx); err != nil {
			s.Logger.Error("failed to list active sessions, backing off", slog.Any("error", err))
			select {
			case <-time.After(s.Backoff):
			case <-ctx.Done():
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.wg.Wait()
			s.Logger.Info("session scheduler stopped")
			return
		}
	}
}

// tick takes one snapshot of active sessions and dispatches a processor per
// account. A listing failure aborts the whole tick; a failure inside one
// account's processing is logged and isolated.
func (s *Scheduler) tick(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	accounts, err := s.Lister.ListActiveSessions(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		s.Logger.Debug("no active sessions")
		return nil
	}

	s.Logger.Info("processing active sessions", slog.Int("count", len(accounts)))

	for _, accountNumber := range accounts {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		s.wg.Add(1)
		go func(accountNumber string) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			applied, err := s.Runner.ProcessSession(ctx, accountNumber)
			if err != nil {
				s.Logger.Error("failed to process account session",
					slog.String("account", accountNumber), slog.Any("error", err))
				return
			}
			if applied > 0 {
				s.Logger.Info("account session drained",
					slog.String("account", accountNumber), slog.Int("applied", applied))
			}
		}(accountNumber)
	}

	return nil
}

// RunOnce performs a single synchronous pass over all active sessions and
// returns the total number of messages applied. Used by the HTTP
// process-all operation.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	accounts, err := s.Lister.ListActiveSessions(ctx)
	if err != nil {
		return 0, err
	}

	sem := make(chan struct{}, s.MaxConcurrency)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)

	for _, accountNumber := range accounts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return total, ctx.Err()
		}

		wg.Add(1)
		go func(accountNumber string) {
			defer wg.Done()
			defer func() { <-sem }()

			applied, err := s.Runner.ProcessSession(ctx, accountNumber)
			if err != nil {
				s.Logger.Error("failed to process account session",
					slog.String("account", accountNumber), slog.Any("error", err))
				return
			}
			mu.Lock()
			total += applied
			mu.Unlock()
		}(accountNumber)
	}

	wg.Wait()
	return total, nil
}
