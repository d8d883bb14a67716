package guest

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
)

// ExpiryDeleter is the registry surface the sweeper drives.
type ExpiryDeleter interface {
	DeleteExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

var _ ExpiryDeleter = (*Registry[*Guest])(nil)

// SweepResult reports one sweep.
type SweepResult struct {
	Deleted   int
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Sweeper deletes expired guests using the configured max age.
type Sweeper struct {
	deleter  ExpiryDeleter
	maxAge   time.Duration
	schedule string
	logger   Logger
	now      func() time.Time
	onResult func(SweepResult)

	mu      sync.Mutex
	cron    *cron.Cron
	stop    chan struct{}
	watcher chan struct{}
}

// SweeperOption customizes a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperLogger sets the logger.
func WithSweeperLogger(l Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = l
	}
}

// WithSweepObserver is called after every scheduled sweep.
func WithSweepObserver(fn func(SweepResult)) SweeperOption {
	return func(s *Sweeper) {
		s.onResult = fn
	}
}

// NewSweeper returns a sweeper over deleter.
func NewSweeper(deleter ExpiryDeleter, cfg Config, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		deleter:  deleter,
		maxAge:   cfg.MaxAge,
		schedule: cfg.SweepSchedule,
		now:      time.Now,
	}
	if s.schedule == "" {
		s.schedule = DefaultConfig().SweepSchedule
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = normalizeLogger(s.logger)
	return s
}

// Run performs one sweep and returns how many guests were deleted. With
// expiry disabled it deletes nothing.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	if s.maxAge <= 0 {
		s.logger.Debug("guest expiry disabled, skipping sweep")
		return 0, nil
	}
	return s.deleter.DeleteExpired(ctx, s.maxAge)
}

// Start runs the sweeper on its cron schedule until ctx is done or Stop
// is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("sweeper already started", errors.CategoryConflict)
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		s.tick(ctx)
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryBadInput, "invalid sweep schedule").
			WithMetadata(map[string]any{"schedule": s.schedule})
	}

	stop := make(chan struct{})
	watcher := make(chan struct{})
	s.cron = c
	s.stop = stop
	s.watcher = watcher
	c.Start()
	s.logger.Info("guest sweeper started", "schedule", s.schedule, "max_age", s.maxAge.String())

	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stop:
		}
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, stop := s.cron, s.stop
	s.cron, s.stop = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	close(stop)
	<-c.Stop().Done()
	s.logger.Info("guest sweeper stopped")
}

func (s *Sweeper) tick(ctx context.Context) {
	started := s.now()
	deleted, err := s.Run(ctx)
	result := SweepResult{
		Deleted:   deleted,
		StartedAt: started,
		Duration:  s.now().Sub(started),
		Err:       err,
	}

	if err != nil {
		s.logger.Error("guest sweep failed", "deleted", deleted, "error", err)
	} else {
		s.logger.Info("guest sweep finished", "deleted", deleted, "duration", result.Duration.String())
	}

	if s.onResult != nil {
		s.onResult(result)
	}
}
