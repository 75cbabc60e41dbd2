package notifysvc

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/user"
)

const (
	levelUpTemplate = "level_up"
	flushBatchSize  = 100
)

type (
	// Queue buffers level-ups until the next flush.
	Queue interface {
		Push(ctx context.Context, lu gamification.LevelUp) error
		// Pop removes and returns up to n level-ups, oldest first.
		Pop(ctx context.Context, n int) ([]gamification.LevelUp, error)
	}

	UserDirectory interface {
		GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error)
	}

	// Service emails students when they reach a new level.
	// Without a queue the email is sent right away.
	Service struct {
		users  UserDirectory
		email  core.EmailService
		queue  Queue
		logger core.Logger
	}
)

var _ gamification.Notifier = (*Service)(nil) // interface compliance check

func NewService(users UserDirectory, email core.EmailService, queue Queue, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(email, "email"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{users: users, email: email, queue: queue, logger: logger}
}

func (svc *Service) NotifyLevelUp(ctx context.Context, lu gamification.LevelUp) error {
	if svc.queue != nil {
		err := svc.queue.Push(ctx, lu)
		if err == nil {
			return nil
		}
		svc.logger.Warn("queueing level-up failed, sending directly", err)
	}
	return svc.send(ctx, lu)
}

// Flush sends every queued level-up and returns how many were sent.
func (svc *Service) Flush(ctx context.Context) (int, error) {
	if svc.queue == nil {
		return 0, nil
	}

	var sent int
	for {
		batch, err := svc.queue.Pop(ctx, flushBatchSize)
		if err != nil {
			return sent, errors.Wrap(err, "popping level-ups")
		}
		for _, lu := range batch {
			if err = svc.send(ctx, lu); err != nil {
				svc.logger.Error("sending level-up email", err, map[string]interface{}{"student_id": lu.StudentID})
				continue
			}
			sent++
		}
		if len(batch) < flushBatchSize {
			return sent, nil
		}
	}
}

type levelUpData struct {
	Name        string
	Level       int
	TotalPoints int
}

func (svc *Service) send(ctx context.Context, lu gamification.LevelUp) error {
	usr, err := svc.users.GetByID(ctx, lu.StudentID)
	if err != nil {
		return errors.Wrap(err, "finding student")
	}
	if usr.Email == "" {
		svc.logger.Debug("student has no email, skipping level-up", map[string]interface{}{"student_id": usr.ID})
		return nil
	}

	svc.email.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("You reached level %d", lu.Level),
		TemplateName: levelUpTemplate,
		TemplateData: levelUpData{Name: usr.Name, Level: lu.Level, TotalPoints: lu.TotalPoints},
	})
	return nil
}
