package score

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/user"
)

// FullScore is the only value that earns the score bonus.
const FullScore = 20.0

var (
	ErrNotFound = errors.New("score not found")

	ErrInvalidSubject = errors.New("scores can only be recorded for active students")
	ErrRosterMismatch = errors.New("student is not enrolled in this classroom")
)

type Score struct {
	ID          string    `json:"id" db:"id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	LessonID    string    `json:"lesson_id" db:"lesson_id"`
	ClassroomID string    `json:"classroom_id" db:"classroom_id"`
	Value       float64   `json:"value" db:"value"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"` // UTC
}

type NewScore struct {
	StudentID   string  `json:"student_id" validate:"required,uuid"`
	LessonID    string  `json:"lesson_id" validate:"required"`
	ClassroomID string  `json:"classroom_id" validate:"required,uuid"`
	Value       float64 `json:"value" validate:"gte=0,lte=20"`
}

type UpdateScore struct {
	Value float64 `json:"value" validate:"gte=0,lte=20"`
}

type QueryFilter struct {
	StudentID string   `query:"student_id"`
	LessonID  string   `query:"lesson"`
	Value     *float64 `query:"value"`
}

// Created is the outcome of recording a score. Award is set when the score earned the bonus.
type Created struct {
	Score Score                `json:"score"`
	Award *gamification.Result `json:"award,omitempty"`
}

type (
	Repository interface {
		CreateScore(ctx context.Context, s Score, exec ...core.DBExecutor) (Score, error)
		GetScore(ctx context.Context, id string, exec ...core.DBExecutor) (Score, error)
		UpdateScore(ctx context.Context, s Score, exec ...core.DBExecutor) error
		QueryScores(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Score, error)
	}

	UserDirectory interface {
		GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error)
	}

	Roster interface {
		IsEnrolled(ctx context.Context, studentID, classroomID string, exec ...core.DBExecutor) (bool, error)
	}

	Ledger interface {
		Award(ctx context.Context, studentID string, def gamification.EventDefinition, note string, exec ...core.DBExecutor) (gamification.Result, error)
		Announce(ctx context.Context, res gamification.Result)
	}

	Service struct {
		tx     core.Transactor
		repo   Repository
		users  UserDirectory
		roster Roster
		ledger Ledger
	}
)

func NewService(tx core.Transactor, repo Repository, users UserDirectory, roster Roster, ledger Ledger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(roster, "roster"),
		vala.IsNotNil(ledger, "ledger"),
	).CheckAndPanic()

	return &Service{tx: tx, repo: repo, users: users, roster: roster, ledger: ledger}
}

func canGrade(actor user.Actor) bool {
	switch actor.Role {
	case user.RoleTeacher, user.RoleAdmin:
		return true
	case user.RoleStudent:
		return actor.IsStaff
	}
	return false
}

// Create records a score. A score of exactly 20 awards the full score bonus in the same transaction.
func (svc *Service) Create(ctx context.Context, actor user.Actor, ns NewScore) (Created, error) {
	if !canGrade(actor) {
		return Created{}, core.ErrPermissionDenied
	}

	student, err := svc.users.GetByID(ctx, ns.StudentID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return Created{}, errors.Wrap(err, "finding student")
	}
	if err != nil || !student.IsStudent() || !student.IsActive {
		return Created{}, core.NewValidationError(ErrInvalidSubject, core.FieldError{Field: "student_id", Error: ErrInvalidSubject.Error()})
	}
	enrolled, err := svc.roster.IsEnrolled(ctx, ns.StudentID, ns.ClassroomID)
	if err != nil {
		return Created{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Created{}, core.NewValidationError(ErrRosterMismatch, core.FieldError{Field: "classroom_id", Error: ErrRosterMismatch.Error()})
	}

	var res Created
	err = svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		s, err := svc.repo.CreateScore(ctx, Score{
			StudentID:   ns.StudentID,
			LessonID:    core.CleanString(ns.LessonID),
			ClassroomID: ns.ClassroomID,
			Value:       ns.Value,
			CreatedAt:   time.Now().UTC(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating score")
		}
		res.Score = s

		if s.Value == FullScore {
			award, err := svc.ledger.Award(ctx, s.StudentID, gamification.Score20, gamification.Score20Note, exec)
			if err != nil {
				return errors.Wrap(err, "awarding full score")
			}
			res.Award = &award
		}
		return nil
	})
	if err != nil {
		return Created{}, err
	}
	if res.Award != nil {
		svc.ledger.Announce(ctx, *res.Award)
	}
	return res, nil
}

// Update changes the value of a score. Updates never award points, even to 20.
func (svc *Service) Update(ctx context.Context, actor user.Actor, id string, us UpdateScore) (Score, error) {
	if !canGrade(actor) {
		return Score{}, core.ErrPermissionDenied
	}
	s, err := svc.repo.GetScore(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Score{}, core.NewNotFoundError("score")
		}
		return Score{}, errors.Wrap(err, "finding score")
	}
	s.Value = us.Value
	if err = svc.repo.UpdateScore(ctx, s); err != nil {
		return Score{}, errors.Wrap(err, "updating score")
	}
	return s, nil
}

// Query lists scores. Only admins and staff see other students' scores.
func (svc *Service) Query(ctx context.Context, actor user.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]Score, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	switch actor.Role {
	case user.RoleAdmin:
	case user.RoleTeacher, user.RoleStudent:
		if !actor.IsStaff {
			filter.StudentID = actor.ID
		}
	default:
		return nil, core.ErrPermissionDenied
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	return svc.repo.QueryScores(ctx, filter, ordering)
}
