package taskqueue

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs named jobs on fixed intervals in-process. Used for the
// catalog refresh tick and the task retention sweep.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With(zap.String("component", "scheduler")),
	}
}

// Every registers fn to run at the given interval. Panics inside a job
// are recovered and logged; the schedule keeps ticking.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	spec := fmt.Sprintf("@every %s", interval)
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Scheduled job panicked",
					zap.String("job", name),
					zap.Any("panic", r),
				)
			}
		}()
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("Scheduled periodic job",
		zap.String("job", name),
		zap.Duration("interval", interval),
	)
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
