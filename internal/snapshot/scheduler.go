// internal/snapshot/scheduler.go
package snapshot

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs periodic snapshots on a cron schedule.
type Scheduler struct {
	cron        *cron.Cron
	coordinator *Coordinator
	schedule    string
	logger      *zap.Logger
}

// NewScheduler creates a scheduler driving the coordinator. The schedule is a
// standard 5-field cron expression.
func NewScheduler(coordinator *Coordinator, schedule string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:        cron.New(),
		coordinator: coordinator,
		schedule:    schedule,
		logger:      logger,
	}
}

// Start registers the snapshot job and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting snapshot scheduler", zap.String("schedule", s.schedule))

	if _, err := s.cron.AddFunc(s.schedule, s.runSnapshot); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop; a snapshot already running completes.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping snapshot scheduler")
	s.cron.Stop()
}

func (s *Scheduler) runSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	handle, err := s.coordinator.Snapshot(ctx)
	if err != nil {
		s.logger.Error("scheduled snapshot failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled snapshot completed", zap.String("name", handle.Name))
}
