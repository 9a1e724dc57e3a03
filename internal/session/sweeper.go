package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSweepSchedule = "@every 10m"

// Sweeper evicts idle sessions on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func NewSweeper(registry *Registry, schedule string, logger *zap.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, func() {
		n := registry.Evict()
		logger.Debug("session sweep finished", zap.Int("evicted", n), zap.Int("active", registry.Len()))
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	return &Sweeper{cron: c, logger: logger}, nil
}

func (s *Sweeper) Start() {
	s.logger.Info("session sweeper started")
	s.cron.Start()
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
