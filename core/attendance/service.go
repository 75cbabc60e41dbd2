package attendance

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/user"
)

var (
	ErrRequestNotFound = errors.New("attendance request not found")
	ErrReviewNotFound  = errors.New("attendance review not found")
	ErrRecordNotFound  = errors.New("attendance record not found")

	ErrFutureDate      = errors.New("attendance cannot be recorded for a future date")
	ErrInvalidSubject  = errors.New("attendance can only be recorded for active students")
	ErrRosterMismatch  = errors.New("student is not enrolled in this classroom")
	ErrDuplicateDate   = errors.New("attendance is already recorded for this student on this date")
	ErrAlreadyReviewed = errors.New("attendance request has already been reviewed")
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, req Request, exec ...core.DBExecutor) (Request, error)
		GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (Request, error)
		QueryRequests(ctx context.Context, filter *RequestFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Request, error)

		CreateReview(ctx context.Context, rev Review, exec ...core.DBExecutor) error
		// GetReviewForUpdate locks the review row until the end of the transaction.
		GetReviewForUpdate(ctx context.Context, requestID string, exec ...core.DBExecutor) (Review, error)
		UpdateReview(ctx context.Context, rev Review, exec ...core.DBExecutor) error
		QueryReviews(ctx context.Context, filter *ReviewFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Review, error)

		// CreateRecordIfAbsent inserts rec unless a record exists for (student, date).
		// It reports whether rec was inserted, returning the stored record either way.
		CreateRecordIfAbsent(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, bool, error)
		GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (Record, error)
		UpdateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) error
		DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error
		QueryRecords(ctx context.Context, filter *RecordFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Record, error)
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

	// Service runs the attendance approval workflow and owns attendance records.
	Service struct {
		tx      core.Transactor
		repo    Repository
		users   UserDirectory
		roster  Roster
		ledger  Ledger
		loc     *time.Location
		nowFunc func() time.Time
	}
)

func NewService(tx core.Transactor, repo Repository, users UserDirectory, roster Roster, ledger Ledger, loc *time.Location) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(roster, "roster"),
		vala.IsNotNil(ledger, "ledger"),
	).CheckAndPanic()

	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		tx:      tx,
		repo:    repo,
		users:   users,
		roster:  roster,
		ledger:  ledger,
		loc:     loc,
		nowFunc: time.Now,
	}
}

func (svc *Service) today() core.Date {
	return core.Today(svc.nowFunc(), svc.loc)
}

// canRequest reports whether actor may submit attendance requests.
func canRequest(actor user.Actor) bool {
	switch actor.Role {
	case user.RoleTeacher, user.RoleAdmin:
		return true
	case user.RoleStudent:
		return actor.IsStaff
	}
	return false
}

// canManageRecords reports whether actor may write attendance records directly.
func canManageRecords(actor user.Actor) bool {
	switch actor.Role {
	case user.RoleAdmin:
		return true
	case user.RoleTeacher, user.RoleStudent:
		return actor.IsStaff
	}
	return false
}

// checkSubject validates the student, classroom and date of an attendance before anything is written.
func (svc *Service) checkSubject(ctx context.Context, studentID, classroomID string, date core.Date, exec ...core.DBExecutor) error {
	if date.IsZero() {
		return core.NewValidationError(errDateRequired, core.FieldError{Field: "date", Error: errDateRequired.Error()})
	}
	student, err := svc.users.GetByID(ctx, studentID, exec...)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return errors.Wrap(err, "finding student")
	}
	if err != nil || !student.IsStudent() || !student.IsActive {
		return core.NewValidationError(ErrInvalidSubject, core.FieldError{Field: "student_id", Error: ErrInvalidSubject.Error()})
	}

	enrolled, err := svc.roster.IsEnrolled(ctx, studentID, classroomID, exec...)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return core.NewValidationError(ErrRosterMismatch, core.FieldError{Field: "classroom_id", Error: ErrRosterMismatch.Error()})
	}

	if date.After(svc.today()) {
		return core.NewValidationError(ErrFutureDate, core.FieldError{Field: "date", Error: ErrFutureDate.Error()})
	}
	return nil
}

// SubmitRequest files an attendance request together with its pending review.
// Several requests may exist for the same student and date.
func (svc *Service) SubmitRequest(ctx context.Context, actor user.Actor, nr NewRequest) (Request, error) {
	if !canRequest(actor) {
		return Request{}, core.ErrPermissionDenied
	}
	if !nr.RequestedStatus.Valid() {
		return Request{}, core.NewValidationError(errInvalidStatus, core.FieldError{Field: "requested_status", Error: errInvalidStatus.Error()})
	}
	if err := svc.checkSubject(ctx, nr.StudentID, nr.ClassroomID, nr.Date); err != nil {
		return Request{}, err
	}

	var req Request
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		req, err = svc.repo.CreateRequest(ctx, Request{
			TeacherID:       null.StringFrom(actor.ID),
			StudentID:       nr.StudentID,
			ClassroomID:     nr.ClassroomID,
			RequestedStatus: nr.RequestedStatus,
			Date:            nr.Date,
			CreatedAt:       svc.nowFunc().UTC(),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating attendance request")
		}
		err = svc.repo.CreateReview(ctx, Review{RequestID: req.ID, Status: ReviewPending}, exec)
		return errors.Wrap(err, "creating attendance review")
	})
	if err != nil {
		return Request{}, err
	}
	req.ReviewStatus = ReviewPending
	return req, nil
}

// Review approves or rejects a pending request, records the resulting attendance
// and awards attendance points when a new present record is created.
func (svc *Service) Review(ctx context.Context, actor user.Actor, requestID string, dec Decision) (ReviewResult, error) {
	switch actor.Role {
	case user.RoleAdmin:
	case user.RoleTeacher, user.RoleStudent:
		return ReviewResult{}, core.ErrPermissionDenied
	default:
		return ReviewResult{}, core.ErrPermissionDenied
	}
	if !dec.Status.Terminal() {
		return ReviewResult{}, core.NewValidationError(errInvalidDecision, core.FieldError{Field: "review_status", Error: errInvalidDecision.Error()})
	}

	var res ReviewResult
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		req, err := svc.repo.GetRequest(ctx, requestID, exec)
		if err != nil {
			if errors.Cause(err) == ErrRequestNotFound {
				return core.NewNotFoundError("attendance request")
			}
			return errors.Wrap(err, "finding attendance request")
		}

		// concurrent reviews of the same request queue here, the second one sees a terminal status
		rev, err := svc.repo.GetReviewForUpdate(ctx, requestID, exec)
		if err != nil {
			return errors.Wrap(err, "locking attendance review")
		}
		if rev.Status.Terminal() {
			return core.NewValidationError(ErrAlreadyReviewed, core.FieldError{Field: "review_status", Error: ErrAlreadyReviewed.Error()})
		}

		rev.Status = dec.Status
		rev.ReviewedBy = null.StringFrom(actor.ID)
		rev.ReviewedAt = null.TimeFrom(svc.nowFunc().UTC())
		if err = svc.repo.UpdateReview(ctx, rev, exec); err != nil {
			return errors.Wrap(err, "updating attendance review")
		}
		res.Review = rev

		status := req.RequestedStatus
		if dec.Status == ReviewRejected {
			status = status.rejected()
		}
		rec, created, err := svc.repo.CreateRecordIfAbsent(ctx, Record{
			StudentID:   req.StudentID,
			ClassroomID: req.ClassroomID,
			Status:      status,
			Date:        req.Date,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating attendance record")
		}
		if !created {
			return nil
		}
		res.Record = &rec

		if rec.Status == StatusPresent {
			award, err := svc.ledger.Award(ctx, rec.StudentID, gamification.AttendOnTime, gamification.AttendOnTimeNote, exec)
			if err != nil {
				return errors.Wrap(err, "awarding attendance")
			}
			res.Award = &award
		}
		return nil
	})
	if err != nil {
		return ReviewResult{}, err
	}
	if res.Award != nil {
		svc.ledger.Announce(ctx, *res.Award)
	}
	return res, nil
}

// QueryRequests lists attendance requests for teachers, admins and staff, newest date first by default.
func (svc *Service) QueryRequests(ctx context.Context, actor user.Actor, filter *RequestFilter, ordering []core.DBOrdering) ([]Request, error) {
	if !canRequest(actor) {
		return nil, core.ErrPermissionDenied
	}
	if filter == nil {
		filter = new(RequestFilter)
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date", Ascending: false}}
	}
	return svc.repo.QueryRequests(ctx, filter, ordering)
}

// QueryReviews lists reviews. Teachers only see the reviews of their own requests.
func (svc *Service) QueryReviews(ctx context.Context, actor user.Actor, filter *ReviewFilter, ordering []core.DBOrdering) ([]Review, error) {
	if filter == nil {
		filter = new(ReviewFilter)
	}
	switch actor.Role {
	case user.RoleAdmin:
	case user.RoleTeacher:
		filter.TeacherID = actor.ID
	case user.RoleStudent:
		return nil, core.ErrPermissionDenied
	default:
		return nil, core.ErrPermissionDenied
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "reviewed_at", Ascending: false}}
	}
	return svc.repo.QueryReviews(ctx, filter, ordering)
}

// Records

// CreateRecord records attendance directly, bypassing the approval workflow.
func (svc *Service) CreateRecord(ctx context.Context, actor user.Actor, nr NewRecord) (Record, error) {
	if !canManageRecords(actor) {
		return Record{}, core.ErrPermissionDenied
	}
	if !nr.Status.Valid() {
		return Record{}, core.NewValidationError(errInvalidStatus, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
	}
	if err := svc.checkSubject(ctx, nr.StudentID, nr.ClassroomID, nr.Date); err != nil {
		return Record{}, err
	}

	var (
		rec   Record
		award *gamification.Result
	)
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var (
			created bool
			err     error
		)
		rec, created, err = svc.repo.CreateRecordIfAbsent(ctx, Record{
			StudentID:   nr.StudentID,
			ClassroomID: nr.ClassroomID,
			Status:      nr.Status,
			Date:        nr.Date,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating attendance record")
		}
		if !created {
			return core.NewValidationError(ErrDuplicateDate, core.FieldError{Field: "date", Error: ErrDuplicateDate.Error()})
		}

		if rec.Status == StatusPresent {
			res, err := svc.ledger.Award(ctx, rec.StudentID, gamification.AttendOnTime, gamification.AttendOnTimeNote, exec)
			if err != nil {
				return errors.Wrap(err, "awarding attendance")
			}
			award = &res
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if award != nil {
		svc.ledger.Announce(ctx, *award)
	}
	return rec, nil
}

func (svc *Service) getRecord(ctx context.Context, id string, exec ...core.DBExecutor) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, id, exec...)
	if err != nil {
		if errors.Cause(err) == ErrRecordNotFound {
			return Record{}, core.NewNotFoundError("attendance record")
		}
		return Record{}, errors.Wrap(err, "finding attendance record")
	}
	return rec, nil
}

// UpdateRecord changes the status of a record. It never awards points.
func (svc *Service) UpdateRecord(ctx context.Context, actor user.Actor, id string, ur UpdateRecord) (Record, error) {
	if !canManageRecords(actor) {
		return Record{}, core.ErrPermissionDenied
	}
	if !ur.Status.Valid() {
		return Record{}, core.NewValidationError(errInvalidStatus, core.FieldError{Field: "status", Error: errInvalidStatus.Error()})
	}
	rec, err := svc.getRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	rec.Status = ur.Status
	if err = svc.repo.UpdateRecord(ctx, rec); err != nil {
		return Record{}, errors.Wrap(err, "updating attendance record")
	}
	return rec, nil
}

func (svc *Service) DeleteRecord(ctx context.Context, actor user.Actor, id string) error {
	if !canManageRecords(actor) {
		return core.ErrPermissionDenied
	}
	if _, err := svc.getRecord(ctx, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteRecord(ctx, id), "deleting attendance record")
}

// QueryRecords lists records. Only admins and staff see other students' records.
func (svc *Service) QueryRecords(ctx context.Context, actor user.Actor, filter *RecordFilter, ordering []core.DBOrdering) ([]Record, error) {
	if filter == nil {
		filter = new(RecordFilter)
	}
	if !canManageRecords(actor) {
		filter.StudentID = actor.ID
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date", Ascending: false}}
	}
	return svc.repo.QueryRecords(ctx, filter, ordering)
}
