package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/service/alerts"
)

// DuePassRunner dispatches every farm's due reminders.
type DuePassRunner interface {
	RunDuePass(ctx context.Context) (alerts.PassSummary, error)
}

const passTimeout = 5 * time.Minute

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	runner   DuePassRunner
	schedule string
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance. Passes resolve each farm's
// local date themselves, so the cron clock runs in UTC.
func NewScheduler(schedule string, runner DuePassRunner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	cl := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		cron:     c,
		runner:   runner,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the due pass and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule))

	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("schedule due pass %q: %w", s.schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("stopping scheduler")
	return s.cron.Stop()
}

// RunOnce executes a single due pass.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()

	summary, err := s.runner.RunDuePass(ctx)
	if err != nil {
		s.logger.Error("due pass finished with errors", zap.Error(err), zap.Int("sent", summary.Sent))
		return
	}
	s.logger.Debug("due pass completed", zap.Int("sent", summary.Sent), zap.Int("due", summary.Due))
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
