package scheduler

import (
	"context"
	"fmt"
	"time"

	"betpoints/service"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Sweeper periodically auto-resolves predictions that have passed their
// closing time. Runs are mutually exclusive; a sweep still in flight when
// the next tick fires causes the tick to be skipped.
type Sweeper struct {
	cron       *cron.Cron
	resolution service.ResolutionService
	interval   time.Duration
}

// NewSweeper creates a resolution sweeper running at the given interval.
func NewSweeper(resolution service.ResolutionService, interval time.Duration) *Sweeper {
	return &Sweeper{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		resolution: resolution,
		interval:   interval,
	}
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.resolution.SweepDue(ctx); err != nil {
			log.WithError(err).Error("Resolution sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	log.WithField("interval", s.interval).Info("Resolution sweeper started")
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	log.Info("Resolution sweeper stopped")
}
