package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
)

var (
	requestColumns = []string{
		"ar.id", "ar.teacher_id", "ar.student_id", "ar.classroom_id", "ar.requested_status", "ar.date", "ar.created_at",
		"rv.review_status",
	}
	reviewColumns = []string{
		"rv.request_id", "rv.review_status", "rv.reviewed_by", "rv.reviewed_at", "ar.teacher_id", "ar.student_id", "ar.date",
	}
	recordColumns = []string{"id", "student_id", "classroom_id", "status", "date"}

	requestOrderColumns = map[string]string{
		"date":       "ar.date",
		"created_at": "ar.created_at",
		"status":     "ar.requested_status",
	}
	reviewOrderColumns = map[string]string{
		"reviewed_at":   "rv.reviewed_at",
		"review_status": "rv.review_status",
		"date":          "ar.date",
	}
	recordOrderColumns = map[string]string{
		"date":   "date",
		"status": "status",
	}
)

type attendanceRepository struct {
	repository
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{repository{db: db}}
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// Requests

func (repo attendanceRepository) CreateRequest(ctx context.Context, req attendance.Request, exec ...core.DBExecutor) (attendance.Request, error) {
	req.ID = uuid.New().String()
	b := psql.Insert("attendance_request").
		Columns("id", "teacher_id", "student_id", "classroom_id", "requested_status", "date", "created_at").
		Values(req.ID, req.TeacherID, req.StudentID, req.ClassroomID, req.RequestedStatus, req.Date, req.CreatedAt.UTC())
	if _, err := repo.exec(ctx, exec, b); err != nil {
		return attendance.Request{}, errors.Wrap(err, "inserting attendance request")
	}
	return req, nil
}

func (repo attendanceRepository) requests() sq.SelectBuilder {
	return psql.Select(requestColumns...).
		From("attendance_request ar").
		Join("attendance_review rv ON rv.request_id = ar.id")
}

func (repo attendanceRepository) GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (attendance.Request, error) {
	if !validIDs(id) {
		return attendance.Request{}, attendance.ErrRequestNotFound
	}
	var req attendance.Request
	if err := repo.get(ctx, exec, &req, repo.requests().Where(sq.Eq{"ar.id": id})); err != nil {
		return attendance.Request{}, trapNoRows(err, attendance.ErrRequestNotFound, "getting attendance request")
	}
	return req, nil
}

func (repo attendanceRepository) QueryRequests(ctx context.Context, filter *attendance.RequestFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attendance.Request, error) {
	b := repo.requests()
	if filter != nil {
		if filter.Status != "" {
			b = b.Where(sq.Eq{"ar.requested_status": filter.Status})
		}
		if filter.ReviewStatus != "" {
			b = b.Where(sq.Eq{"rv.review_status": filter.ReviewStatus})
		}
		if filter.Date != nil && !filter.Date.IsZero() {
			b = b.Where(sq.Eq{"ar.date": *filter.Date})
		}
		if filter.StudentID != "" {
			b = b.Where(sq.Eq{"ar.student_id": filter.StudentID})
		}
		if filter.ClassroomID != "" {
			b = b.Where(sq.Eq{"ar.classroom_id": filter.ClassroomID})
		}
		if filter.TeacherID != "" {
			b = b.Where(sq.Eq{"ar.teacher_id": filter.TeacherID})
		}
	}
	b = orderBy(b, ordering, requestOrderColumns).OrderBy("ar.created_at DESC")

	reqs := make([]attendance.Request, 0)
	if err := repo.selectAll(ctx, exec, &reqs, b); err != nil {
		return nil, errors.Wrap(err, "querying attendance requests")
	}
	return reqs, nil
}

// Reviews

func (repo attendanceRepository) CreateReview(ctx context.Context, rev attendance.Review, exec ...core.DBExecutor) error {
	b := psql.Insert("attendance_review").
		Columns("request_id", "review_status", "reviewed_by", "reviewed_at").
		Values(rev.RequestID, rev.Status, rev.ReviewedBy, rev.ReviewedAt)
	_, err := repo.exec(ctx, exec, b)
	return errors.Wrap(err, "inserting attendance review")
}

func (repo attendanceRepository) reviews() sq.SelectBuilder {
	return psql.Select(reviewColumns...).
		From("attendance_review rv").
		Join("attendance_request ar ON ar.id = rv.request_id")
}

func (repo attendanceRepository) GetReviewForUpdate(ctx context.Context, requestID string, exec ...core.DBExecutor) (attendance.Review, error) {
	if !validIDs(requestID) {
		return attendance.Review{}, attendance.ErrReviewNotFound
	}
	var rev attendance.Review
	b := repo.reviews().Where(sq.Eq{"rv.request_id": requestID}).Suffix("FOR UPDATE OF rv")
	if err := repo.get(ctx, exec, &rev, b); err != nil {
		return attendance.Review{}, trapNoRows(err, attendance.ErrReviewNotFound, "getting attendance review")
	}
	return rev, nil
}

func (repo attendanceRepository) UpdateReview(ctx context.Context, rev attendance.Review, exec ...core.DBExecutor) error {
	b := psql.Update("attendance_review").
		Set("review_status", rev.Status).
		Set("reviewed_by", rev.ReviewedBy).
		Set("reviewed_at", rev.ReviewedAt).
		Where(sq.Eq{"request_id": rev.RequestID})
	return repo.execOne(ctx, exec, b, attendance.ErrReviewNotFound)
}

func (repo attendanceRepository) QueryReviews(ctx context.Context, filter *attendance.ReviewFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attendance.Review, error) {
	b := repo.reviews()
	if filter != nil {
		if filter.Status != "" {
			b = b.Where(sq.Eq{"rv.review_status": filter.Status})
		}
		if filter.ReviewedBy != "" {
			b = b.Where(sq.Eq{"rv.reviewed_by": filter.ReviewedBy})
		}
		if filter.Date != nil && !filter.Date.IsZero() {
			b = b.Where(sq.Eq{"ar.date": *filter.Date})
		}
		if filter.TeacherID != "" {
			b = b.Where(sq.Eq{"ar.teacher_id": filter.TeacherID})
		}
	}
	b = orderBy(b, ordering, reviewOrderColumns).OrderBy("ar.created_at DESC")

	revs := make([]attendance.Review, 0)
	if err := repo.selectAll(ctx, exec, &revs, b); err != nil {
		return nil, errors.Wrap(err, "querying attendance reviews")
	}
	return revs, nil
}

// Records

func (repo attendanceRepository) CreateRecordIfAbsent(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, bool, error) {
	rec.ID = uuid.New().String()
	ins := psql.Insert("attendance_record").
		Columns(recordColumns...).
		Values(rec.ID, rec.StudentID, rec.ClassroomID, rec.Status, rec.Date).
		Suffix("ON CONFLICT (student_id, date) DO NOTHING")
	res, err := repo.exec(ctx, exec, ins)
	if err != nil {
		return attendance.Record{}, false, errors.Wrap(err, "inserting attendance record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attendance.Record{}, false, errors.Wrap(err, "counting inserted records")
	}
	if n == 1 {
		return rec, true, nil
	}

	var existing attendance.Record
	b := psql.Select(recordColumns...).From("attendance_record").Where(sq.Eq{"student_id": rec.StudentID, "date": rec.Date})
	if err = repo.get(ctx, exec, &existing, b); err != nil {
		return attendance.Record{}, false, errors.Wrap(err, "getting existing attendance record")
	}
	return existing, false, nil
}

func (repo attendanceRepository) GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (attendance.Record, error) {
	if !validIDs(id) {
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	var rec attendance.Record
	b := psql.Select(recordColumns...).From("attendance_record").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, exec, &rec, b); err != nil {
		return attendance.Record{}, trapNoRows(err, attendance.ErrRecordNotFound, "getting attendance record")
	}
	return rec, nil
}

func (repo attendanceRepository) UpdateRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) error {
	b := psql.Update("attendance_record").Set("status", rec.Status).Where(sq.Eq{"id": rec.ID})
	return repo.execOne(ctx, exec, b, attendance.ErrRecordNotFound)
}

func (repo attendanceRepository) DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error {
	b := psql.Delete("attendance_record").Where(sq.Eq{"id": id})
	return repo.execOne(ctx, exec, b, attendance.ErrRecordNotFound)
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.RecordFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attendance.Record, error) {
	b := psql.Select(recordColumns...).From("attendance_record")
	if filter != nil {
		if filter.StudentID != "" {
			b = b.Where(sq.Eq{"student_id": filter.StudentID})
		}
		if filter.ClassroomID != "" {
			b = b.Where(sq.Eq{"classroom_id": filter.ClassroomID})
		}
		if filter.Status != "" {
			b = b.Where(sq.Eq{"status": filter.Status})
		}
		if filter.Date != nil && !filter.Date.IsZero() {
			b = b.Where(sq.Eq{"date": *filter.Date})
		}
		if filter.From != nil && !filter.From.IsZero() {
			b = b.Where(sq.GtOrEq{"date": *filter.From})
		}
		if filter.To != nil && !filter.To.IsZero() {
			b = b.Where(sq.LtOrEq{"date": *filter.To})
		}
	}
	b = orderBy(b, ordering, recordOrderColumns).OrderBy("id ASC")

	recs := make([]attendance.Record, 0)
	if err := repo.selectAll(ctx, exec, &recs, b); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	return recs, nil
}
