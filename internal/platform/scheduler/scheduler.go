// Package scheduler runs the periodic background sweeps APLE needs:
// the webhook due-delivery scan and the budget period-rollover sweep.
// Grounded on the teacher's signal/shutdown composition shape
// (cmd/appserver/main.go), generalized into a reusable cron-driven
// runner rather than a bespoke goroutine per job.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/agent-proposal-engine/internal/platform/logging"
)

// Job is one named periodic unit of work.
type Job struct {
	Name string
	Spec string // 5-field cron expression or a descriptor such as "@every 5s"
	Run  func(ctx context.Context) error
}

// Scheduler wraps a robfig/cron runner with APLE's logging. Each job
// runs with the context passed to Register; Stop does not cancel that
// context.
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger
	cancel context.CancelFunc
}

func New(logger *logging.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), logger: logger}
}

// Register adds job to the schedule. Must be called before Start.
func (s *Scheduler) Register(ctx context.Context, job Job) error {
	_, err := s.cron.AddFunc(job.Spec, func() {
		if err := job.Run(ctx); err != nil && s.logger != nil {
			s.logger.Warn(ctx, "scheduled job failed", map[string]interface{}{"job": job.Name, "error": err.Error()})
		}
	})
	return err
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop gracefully waits for any in-flight job run to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}
