package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/user"
)

var (
	// ErrProfileNotFound means a student was never provisioned a profile. It is a consistency bug, never a client error.
	ErrProfileNotFound   = errors.New("student profile not found")
	ErrEventTypeNotFound = errors.New("event type not found")
	ErrThresholdNotFound = errors.New("level threshold not found")

	bestStudentsLimit = 3
)

type (
	Repository interface {
		// GetOrCreateEventType returns the event type with def.Code, inserting it from def if missing.
		// A concurrent insert of the same code must resolve to the winning row.
		GetOrCreateEventType(ctx context.Context, def EventDefinition, exec ...core.DBExecutor) (EventType, error)
		QueryEventTypes(ctx context.Context, exec ...core.DBExecutor) ([]EventType, error)
		SaveEventType(ctx context.Context, et EventType, exec ...core.DBExecutor) (EventType, error)

		// CreateProfile is a no-op returning the existing profile when the student already has one.
		CreateProfile(ctx context.Context, studentID string, exec ...core.DBExecutor) (StudentProfile, error)
		GetProfile(ctx context.Context, studentID string, exec ...core.DBExecutor) (StudentProfile, error)
		// GetProfileForUpdate locks the profile row until the end of the transaction.
		GetProfileForUpdate(ctx context.Context, studentID string, exec ...core.DBExecutor) (StudentProfile, error)
		QueryProfiles(ctx context.Context, filter *ProfileFilter, ordering []core.DBOrdering, limit int, exec ...core.DBExecutor) ([]StudentProfile, error)
		UpdateProfile(ctx context.Context, p StudentProfile, exec ...core.DBExecutor) error

		CreateEvent(ctx context.Context, ev StudentEvent, exec ...core.DBExecutor) (StudentEvent, error)
		QueryEvents(ctx context.Context, profileID string, exec ...core.DBExecutor) ([]StudentEvent, error)
		SumPoints(ctx context.Context, profileID string, exec ...core.DBExecutor) (int, error)

		// QueryThresholds returns thresholds ordered by ascending min_points.
		QueryThresholds(ctx context.Context, exec ...core.DBExecutor) ([]LevelThreshold, error)
		LockThresholds(ctx context.Context, exec ...core.DBExecutor) error
		SaveThreshold(ctx context.Context, th LevelThreshold, exec ...core.DBExecutor) error
		DeleteThreshold(ctx context.Context, level int, exec ...core.DBExecutor) error
	}

	// Notifier is told about level-ups once the awarding transaction has committed.
	Notifier interface {
		NotifyLevelUp(ctx context.Context, lu LevelUp) error
	}

	// Service is the gamification ledger.
	Service struct {
		tx       core.Transactor
		repo     Repository
		notifier Notifier
		logger   core.Logger
		nowFunc  func() time.Time
	}
)

var _ user.ProfileProvisioner = (*Service)(nil) // interface compliance check

func NewService(tx core.Transactor, repo Repository, notifier Notifier, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		tx:       tx,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// ProvisionProfile creates the student's profile at level 1 with no points.
func (svc *Service) ProvisionProfile(ctx context.Context, studentID string, exec ...core.DBExecutor) error {
	_, err := svc.repo.CreateProfile(ctx, studentID, exec...)
	return errors.Wrap(err, "creating profile")
}

// inTx runs fn in the caller's transaction if there is one, else in a new one.
func (svc *Service) inTx(ctx context.Context, exec []core.DBExecutor, fn func(exec core.DBExecutor) error) (bool, error) {
	if len(exec) > 0 {
		return false, fn(exec[0])
	}
	return true, svc.tx.InTx(ctx, fn)
}

// Award appends an event of the given type to the student's ledger and recalculates the profile.
// The event type is created from def the first time its code is used.
// When exec is given, the award joins that transaction and the caller must Announce the result after commit.
func (svc *Service) Award(ctx context.Context, studentID string, def EventDefinition, note string, exec ...core.DBExecutor) (Result, error) {
	var res Result
	own, err := svc.inTx(ctx, exec, func(exec core.DBExecutor) error {
		var err error
		res, err = svc.award(ctx, studentID, def, note, exec)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if own {
		svc.Announce(ctx, res)
	}
	return res, nil
}

func (svc *Service) award(ctx context.Context, studentID string, def EventDefinition, note string, exec core.DBExecutor) (Result, error) {
	// lock the profile first: concurrent awards for the same student queue here
	profile, err := svc.repo.GetProfileForUpdate(ctx, studentID, exec)
	if err != nil {
		return Result{}, errors.Wrapf(err, "awarding %q to student %s", def.Code, studentID)
	}

	et, err := svc.repo.GetOrCreateEventType(ctx, def, exec)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting or creating event type")
	}

	ev, err := svc.repo.CreateEvent(ctx, StudentEvent{
		ProfileID:   profile.ID,
		EventTypeID: et.ID,
		Note:        note,
		CreatedAt:   svc.nowFunc().UTC(),
		Code:        et.Code,
		Points:      et.Points,
	}, exec)
	if err != nil {
		return Result{}, errors.Wrap(err, "inserting student event")
	}

	res, err := svc.recalculate(ctx, profile, exec)
	if err != nil {
		return Result{}, err
	}
	res.Event = &ev
	res.EventType = &et
	return res, nil
}

// Recalculate re-sums the points of every event in the student's ledger and re-evaluates the level.
func (svc *Service) Recalculate(ctx context.Context, studentID string, exec ...core.DBExecutor) (Result, error) {
	var res Result
	own, err := svc.inTx(ctx, exec, func(exec core.DBExecutor) error {
		profile, err := svc.repo.GetProfileForUpdate(ctx, studentID, exec)
		if err != nil {
			return errors.Wrapf(err, "recalculating student %s", studentID)
		}
		res, err = svc.recalculate(ctx, profile, exec)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if own {
		svc.Announce(ctx, res)
	}
	return res, nil
}

// recalculate expects profile to be locked by the current transaction.
func (svc *Service) recalculate(ctx context.Context, profile StudentProfile, exec core.DBExecutor) (Result, error) {
	total, err := svc.repo.SumPoints(ctx, profile.ID, exec)
	if err != nil {
		return Result{}, errors.Wrap(err, "summing points")
	}
	thresholds, err := svc.repo.QueryThresholds(ctx, exec)
	if err != nil {
		return Result{}, errors.Wrap(err, "querying level thresholds")
	}

	res := Result{PreviousLevel: profile.Level}
	profile.TotalPoints = total
	profile.Level = ComputeLevel(total, thresholds)
	if err = svc.repo.UpdateProfile(ctx, profile, exec); err != nil {
		return Result{}, errors.Wrap(err, "updating profile")
	}
	res.Profile = profile
	return res, nil
}

// RecalculateAll recalculates every profile, each in its own transaction.
// It keeps going on failure and returns the number of recalculated profiles with the first error.
func (svc *Service) RecalculateAll(ctx context.Context) (int, error) {
	profiles, err := svc.repo.QueryProfiles(ctx, nil, nil, 0)
	if err != nil {
		return 0, errors.Wrap(err, "querying profiles")
	}

	var (
		count    int
		firstErr error
	)
	for _, p := range profiles {
		if err = ctx.Err(); err != nil {
			return count, err
		}
		if _, err = svc.Recalculate(ctx, p.StudentID); err != nil {
			svc.logger.Error(fmt.Sprintf("recalculating profile of student %s", p.StudentID), err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		count++
	}
	return count, firstErr
}

// Announce notifies level-ups. Notification failures are logged, never returned.
func (svc *Service) Announce(ctx context.Context, res Result) {
	if svc.notifier == nil || !res.LeveledUp() {
		return
	}
	lu := LevelUp{
		StudentID:     res.Profile.StudentID,
		PreviousLevel: res.PreviousLevel,
		Level:         res.Profile.Level,
		TotalPoints:   res.Profile.TotalPoints,
	}
	if err := svc.notifier.NotifyLevelUp(ctx, lu); err != nil {
		svc.logger.Error("notifying level up", errors.Wrap(err, "notifying level up"), map[string]interface{}{"student_id": lu.StudentID})
	}
}

// Queries

// QueryProfiles lists every profile for admins and staff. Students only see their own.
func (svc *Service) QueryProfiles(ctx context.Context, actor user.Actor, filter *ProfileFilter, ordering []core.DBOrdering) ([]StudentProfile, error) {
	if filter == nil {
		filter = new(ProfileFilter)
	}
	switch actor.Role {
	case user.RoleAdmin:
	case user.RoleStudent:
		if !actor.IsStaff {
			filter.StudentID = actor.ID
		}
	case user.RoleTeacher:
		if !actor.IsStaff {
			return nil, core.ErrPermissionDenied
		}
	default:
		return nil, core.ErrPermissionDenied
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "total_points", Ascending: false}}
	}
	return svc.repo.QueryProfiles(ctx, filter, ordering, 0)
}

// BestStudents returns the top students by level, then points.
func (svc *Service) BestStudents(ctx context.Context) ([]StudentProfile, error) {
	return svc.repo.QueryProfiles(ctx, nil, []core.DBOrdering{
		{Field: "level", Ascending: false},
		{Field: "total_points", Ascending: false},
	}, bestStudentsLimit)
}

// QueryEvents returns a student's ledger. Students can only read their own.
func (svc *Service) QueryEvents(ctx context.Context, actor user.Actor, studentID string) ([]StudentEvent, error) {
	switch actor.Role {
	case user.RoleAdmin, user.RoleTeacher:
	case user.RoleStudent:
		if actor.ID != studentID && !actor.IsStaff {
			return nil, core.ErrPermissionDenied
		}
	default:
		return nil, core.ErrPermissionDenied
	}

	profile, err := svc.repo.GetProfile(ctx, studentID)
	if err != nil {
		if errors.Cause(err) == ErrProfileNotFound {
			return nil, core.NewNotFoundError("student profile")
		}
		return nil, errors.Wrap(err, "finding profile")
	}
	return svc.repo.QueryEvents(ctx, profile.ID)
}

// Catalog administration

func isAdmin(actor user.Actor) bool {
	switch actor.Role {
	case user.RoleAdmin:
		return true
	case user.RoleTeacher, user.RoleStudent:
		return false
	}
	return false
}

func (svc *Service) EventTypes(ctx context.Context) ([]EventType, error) {
	return svc.repo.QueryEventTypes(ctx)
}

// SaveEventType creates or updates an event type by code. Point changes are applied to every profile.
func (svc *Service) SaveEventType(ctx context.Context, actor user.Actor, uet UpdateEventType) (EventType, error) {
	if !isAdmin(actor) {
		return EventType{}, core.ErrPermissionDenied
	}
	et, err := svc.repo.SaveEventType(ctx, EventType{
		Code:        core.CleanString(uet.Code, true /* lower */),
		Name:        core.CleanString(uet.Name),
		Description: core.CleanString(uet.Description),
		Points:      uet.Points,
	})
	if err != nil {
		return EventType{}, errors.Wrap(err, "saving event type")
	}
	svc.recalculateAllAfterCatalogChange(ctx)
	return et, nil
}

func (svc *Service) Thresholds(ctx context.Context) ([]LevelThreshold, error) {
	return svc.repo.QueryThresholds(ctx)
}

// SetThreshold adds or replaces a level threshold, rejecting configurations ComputeLevel cannot scan.
func (svc *Service) SetThreshold(ctx context.Context, actor user.Actor, th LevelThreshold) error {
	if !isAdmin(actor) {
		return core.ErrPermissionDenied
	}
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockThresholds(ctx, exec); err != nil {
			return errors.Wrap(err, "locking level thresholds")
		}
		current, err := svc.repo.QueryThresholds(ctx, exec)
		if err != nil {
			return errors.Wrap(err, "querying level thresholds")
		}
		if err = ValidateThresholds(mergeThreshold(current, th)); err != nil {
			return err
		}
		return errors.Wrap(svc.repo.SaveThreshold(ctx, th, exec), "saving level threshold")
	})
	if err != nil {
		return err
	}
	svc.recalculateAllAfterCatalogChange(ctx)
	return nil
}

func (svc *Service) DeleteThreshold(ctx context.Context, actor user.Actor, level int) error {
	if !isAdmin(actor) {
		return core.ErrPermissionDenied
	}
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockThresholds(ctx, exec); err != nil {
			return errors.Wrap(err, "locking level thresholds")
		}
		current, err := svc.repo.QueryThresholds(ctx, exec)
		if err != nil {
			return errors.Wrap(err, "querying level thresholds")
		}
		kept, found := removeThreshold(current, level)
		if !found {
			return core.NewNotFoundError("level threshold")
		}
		if err = ValidateThresholds(kept); err != nil {
			return err
		}
		return errors.Wrap(svc.repo.DeleteThreshold(ctx, level, exec), "deleting level threshold")
	})
	if err != nil {
		return err
	}
	svc.recalculateAllAfterCatalogChange(ctx)
	return nil
}

// RecalculateStudent is the admin-triggered recalculation of one profile.
func (svc *Service) RecalculateStudent(ctx context.Context, actor user.Actor, studentID string) (Result, error) {
	if !isAdmin(actor) {
		return Result{}, core.ErrPermissionDenied
	}
	if _, err := svc.repo.GetProfile(ctx, studentID); err != nil {
		if errors.Cause(err) == ErrProfileNotFound {
			return Result{}, core.NewNotFoundError("student profile")
		}
		return Result{}, errors.Wrap(err, "finding profile")
	}
	return svc.Recalculate(ctx, studentID)
}

// recalculateAllAfterCatalogChange refreshes every profile once a catalog change has committed.
func (svc *Service) recalculateAllAfterCatalogChange(ctx context.Context) {
	if _, err := svc.RecalculateAll(ctx); err != nil {
		svc.logger.Error("recalculating profiles after catalog change", err)
	}
}
