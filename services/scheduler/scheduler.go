package schedsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/dabestan/core"
)

const defaultJobTimeout = 5 * time.Minute

type (
	// Job is a named task run on a cron schedule.
	Job struct {
		Name    string
		Spec    string
		Timeout time.Duration
		Run     func(ctx context.Context) error
	}

	Recalculator interface {
		RecalculateAll(ctx context.Context) (int, error)
	}

	Flusher interface {
		Flush(ctx context.Context) (int, error)
	}

	// Scheduler runs jobs in the background. A job still running when its next turn comes is skipped.
	Scheduler struct {
		cron   *cron.Cron
		logger core.Logger
	}
)

func New(loc *time.Location, logger core.Logger) *Scheduler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return errors.Errorf("job %q has nothing to run", job.Name)
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	_, err := s.cron.AddFunc(job.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.Error(fmt.Sprintf("job %s failed", job.Name), err)
			return
		}
		s.logger.Debug(fmt.Sprintf("job %s done", job.Name), map[string]interface{}{"took": time.Since(start).String()})
	})
	return errors.Wrapf(err, "scheduling job %q (%s)", job.Name, job.Spec)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

// RecalculateJob recalculates every student profile.
func RecalculateJob(spec string, ledger Recalculator, logger core.Logger) Job {
	return Job{
		Name: "recalculate-profiles",
		Spec: spec,
		Run: func(ctx context.Context) error {
			n, err := ledger.RecalculateAll(ctx)
			logger.Info("recalculated student profiles", map[string]interface{}{"count": n})
			return err
		},
	}
}

// FlushNotificationsJob sends queued level-up notifications.
func FlushNotificationsJob(spec string, notifier Flusher) Job {
	return Job{
		Name:    "flush-notifications",
		Spec:    spec,
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			_, err := notifier.Flush(ctx)
			return err
		},
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{} // interface compliance check

func keysAndValuesToFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValuesToFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, keysAndValuesToFields(keysAndValues))
}
