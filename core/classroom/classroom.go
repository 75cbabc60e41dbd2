package classroom

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/user"
)

var ErrNotFound = errors.New("classroom not found")

type ClassRoom struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Base      string    `json:"base" db:"base"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type NewClassRoom struct {
	Name string `json:"name" validate:"required"`
	Base string `json:"base"`
}

type Enrollment struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,uuid"`
}

type (
	Repository interface {
		CreateClassRoom(ctx context.Context, cr ClassRoom, exec ...core.DBExecutor) (ClassRoom, error)
		GetClassRoom(ctx context.Context, id string, exec ...core.DBExecutor) (ClassRoom, error)
		QueryClassRooms(ctx context.Context, exec ...core.DBExecutor) ([]ClassRoom, error)
		AddStudents(ctx context.Context, classroomID string, studentIDs []string, exec ...core.DBExecutor) error
		QueryStudentIDs(ctx context.Context, classroomID string, exec ...core.DBExecutor) ([]string, error)
		IsEnrolled(ctx context.Context, studentID, classroomID string, exec ...core.DBExecutor) (bool, error)
	}

	UserDirectory interface {
		GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error)
	}

	// Service is the classroom roster.
	Service struct {
		tx    core.Transactor
		repo  Repository
		users UserDirectory
	}
)

func NewService(tx core.Transactor, repo Repository, users UserDirectory) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
	).CheckAndPanic()

	return &Service{tx: tx, repo: repo, users: users}
}

func canManage(actor user.Actor) bool {
	switch actor.Role {
	case user.RoleAdmin:
		return true
	case user.RoleTeacher, user.RoleStudent:
		return actor.IsStaff
	}
	return false
}

func (svc *Service) Create(ctx context.Context, actor user.Actor, ncr NewClassRoom) (ClassRoom, error) {
	if !canManage(actor) {
		return ClassRoom{}, core.ErrPermissionDenied
	}
	cr := ClassRoom{
		Name:      core.CleanString(ncr.Name),
		Base:      core.CleanString(ncr.Base),
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateClassRoom(ctx, cr)
}

func (svc *Service) Get(ctx context.Context, id string) (ClassRoom, error) {
	cr, err := svc.repo.GetClassRoom(ctx, id)
	if errors.Cause(err) == ErrNotFound {
		return ClassRoom{}, core.NewNotFoundError("classroom")
	}
	return cr, err
}

func (svc *Service) Query(ctx context.Context) ([]ClassRoom, error) {
	return svc.repo.QueryClassRooms(ctx)
}

// Enroll adds active students to a classroom. Already enrolled students are skipped.
func (svc *Service) Enroll(ctx context.Context, actor user.Actor, classroomID string, en Enrollment) error {
	if !canManage(actor) {
		return core.ErrPermissionDenied
	}
	return svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetClassRoom(ctx, classroomID, exec); err != nil {
			if errors.Cause(err) == ErrNotFound {
				return core.NewNotFoundError("classroom")
			}
			return errors.Wrap(err, "finding classroom")
		}
		for _, id := range en.StudentIDs {
			usr, err := svc.users.GetByID(ctx, id, exec)
			if err != nil && errors.Cause(err) != user.ErrNotFound {
				return errors.Wrap(err, "finding student")
			}
			if err != nil || !usr.IsStudent() {
				return core.NewValidationError(
					errors.New("only students can be enrolled"),
					core.FieldError{Field: "student_ids", Error: id + " is not a student"},
				)
			}
		}
		return svc.repo.AddStudents(ctx, classroomID, en.StudentIDs, exec)
	})
}

func (svc *Service) Students(ctx context.Context, classroomID string) ([]string, error) {
	if _, err := svc.Get(ctx, classroomID); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudentIDs(ctx, classroomID)
}

// IsEnrolled reports whether the student belongs to the classroom's roster.
func (svc *Service) IsEnrolled(ctx context.Context, studentID, classroomID string, exec ...core.DBExecutor) (bool, error) {
	return svc.repo.IsEnrolled(ctx, studentID, classroomID, exec...)
}
