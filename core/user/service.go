package user

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	// ProfileProvisioner creates the gamification profile of a new student.
	ProfileProvisioner interface {
		ProvisionProfile(ctx context.Context, studentID string, exec ...core.DBExecutor) error
	}

	Service struct {
		tx          core.Transactor
		repo        Repository
		provisioner ProfileProvisioner
	}
)

func NewService(tx core.Transactor, repo Repository, provisioner ProfileProvisioner) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(provisioner, "provisioner"),
	).CheckAndPanic()

	return &Service{tx: tx, repo: repo, provisioner: provisioner}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, exec ...core.DBExecutor) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exec...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Create creates a user. Students get their gamification profile in the same transaction.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if !nu.Role.Valid() {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: invalidRoleText})
	}

	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		IsStaff:   nu.IsStaff,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkUniqueness(ctx, usr.Username, usr.Email, exec); err != nil {
			return err
		}
		var err error
		if usr, err = svc.repo.CreateUser(ctx, usr, exec); err != nil {
			return errors.Wrap(err, "inserting user")
		}
		if usr.IsStudent() {
			if err = svc.provisioner.ProvisionProfile(ctx, usr.ID, exec); err != nil {
				return errors.Wrap(err, "provisioning student profile")
			}
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error) {
	return NewDirectory(svc.repo).GetByID(ctx, id, exec...)
}

// Directory looks users up by ID. It serves the components the Service itself depends on,
// such as the level-up notifier of the gamification ledger.
type Directory struct {
	repo Repository
}

func NewDirectory(repo Repository) Directory {
	return Directory{repo: repo}
}

func (d Directory) GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error) {
	return d.repo.GetUser(ctx, GetFilter{ID: id}, exec...)
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Authenticate returns the active user matching the credentials.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	return usr, nil
}

// SetPassword changes the password of the user matching uname (username or email).
func (svc *Service) SetPassword(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetActive (de)activates a user. Inactive students cannot be the subject of new attendance entries.
func (svc *Service) SetActive(ctx context.Context, id string, active bool) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.IsActive = active
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SaveAdmin updates the user matching uname or email into an active admin, creating it if needed.
func (svc *Service) SaveAdmin(ctx context.Context, name, uname, email, pwd string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: lookup})
	if err != nil && errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "finding user")
	}
	if err != nil {
		return svc.Create(ctx, NewUser{
			Name:     core.CleanString(name),
			Username: uname,
			Email:    email,
			Role:     RoleAdmin,
			IsStaff:  true,
			Password: pwd,
		})
	}

	usr.Role = RoleAdmin
	usr.IsStaff = true
	usr.IsActive = true
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}
