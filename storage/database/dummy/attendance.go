package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
)

var (
	requestComparators = comparators[attendance.Request]{
		"date":       func(a, b attendance.Request) int { return a.Date.Compare(b.Date.Time) },
		"created_at": func(a, b attendance.Request) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"status":     func(a, b attendance.Request) int { return cmpString(string(a.RequestedStatus), string(b.RequestedStatus)) },
	}
	reviewComparators = comparators[attendance.Review]{
		"reviewed_at":   func(a, b attendance.Review) int { return a.ReviewedAt.Time.Compare(b.ReviewedAt.Time) },
		"review_status": func(a, b attendance.Review) int { return cmpString(string(a.Status), string(b.Status)) },
		"date":          func(a, b attendance.Review) int { return a.Date.Compare(b.Date.Time) },
	}
	recordComparators = comparators[attendance.Record]{
		"date":   func(a, b attendance.Record) int { return a.Date.Compare(b.Date.Time) },
		"status": func(a, b attendance.Record) int { return cmpString(string(a.Status), string(b.Status)) },
	}
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func sameDate(filter *core.Date, d core.Date) bool {
	return filter == nil || filter.IsZero() || filter.Equal(d)
}

// Requests

func (repo *attendanceRepository) CreateRequest(_ context.Context, req attendance.Request, exec ...core.DBExecutor) (attendance.Request, error) {
	_ = repo.db.write(exec, func(t *tables) error {
		req.ID = uuid.New().String()
		req.ReviewStatus = ""
		t.requests[req.ID] = req
		return nil
	})
	return req, nil
}

func withReviewStatus(t *tables, req attendance.Request) attendance.Request {
	req.ReviewStatus = t.reviews[req.ID].Status
	return req
}

func (repo *attendanceRepository) GetRequest(_ context.Context, id string, exec ...core.DBExecutor) (attendance.Request, error) {
	var (
		req   attendance.Request
		found bool
	)
	_ = repo.db.read(exec, func(t *tables) error {
		if req, found = t.requests[id]; found {
			req = withReviewStatus(t, req)
		}
		return nil
	})
	if !found {
		return attendance.Request{}, attendance.ErrRequestNotFound
	}
	return req, nil
}

func (repo *attendanceRepository) QueryRequests(_ context.Context, filter *attendance.RequestFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attendance.Request, error) {
	reqs := make([]attendance.Request, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for _, req := range t.requests {
			req = withReviewStatus(t, req)
			if filter != nil {
				if filter.Status != "" && req.RequestedStatus != filter.Status {
					continue
				}
				if filter.ReviewStatus != "" && req.ReviewStatus != filter.ReviewStatus {
					continue
				}
				if !sameDate(filter.Date, req.Date) {
					continue
				}
				if filter.StudentID != "" && req.StudentID != filter.StudentID {
					continue
				}
				if filter.ClassroomID != "" && req.ClassroomID != filter.ClassroomID {
					continue
				}
				if filter.TeacherID != "" && req.TeacherID.String != filter.TeacherID {
					continue
				}
			}
			reqs = append(reqs, req)
		}
		return nil
	})
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	sortBy(reqs, ordering, requestComparators)
	return reqs, nil
}

// Reviews

func withRequest(t *tables, rev attendance.Review) attendance.Review {
	req := t.requests[rev.RequestID]
	rev.TeacherID = req.TeacherID
	rev.StudentID = req.StudentID
	rev.Date = req.Date
	return rev
}

func (repo *attendanceRepository) CreateReview(_ context.Context, rev attendance.Review, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		if _, ok := t.requests[rev.RequestID]; !ok {
			return attendance.ErrRequestNotFound
		}
		t.reviews[rev.RequestID] = rev
		return nil
	})
}

func (repo *attendanceRepository) GetReviewForUpdate(_ context.Context, requestID string, exec ...core.DBExecutor) (attendance.Review, error) {
	var (
		rev   attendance.Review
		found bool
	)
	_ = repo.db.read(exec, func(t *tables) error {
		if rev, found = t.reviews[requestID]; found {
			rev = withRequest(t, rev)
		}
		return nil
	})
	if !found {
		return attendance.Review{}, attendance.ErrReviewNotFound
	}
	return rev, nil
}

func (repo *attendanceRepository) UpdateReview(_ context.Context, rev attendance.Review, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		if _, ok := t.reviews[rev.RequestID]; !ok {
			return attendance.ErrReviewNotFound
		}
		t.reviews[rev.RequestID] = attendance.Review{
			RequestID:  rev.RequestID,
			Status:     rev.Status,
			ReviewedBy: rev.ReviewedBy,
			ReviewedAt: rev.ReviewedAt,
		}
		return nil
	})
}

func (repo *attendanceRepository) QueryReviews(_ context.Context, filter *attendance.ReviewFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attendance.Review, error) {
	revs := make([]attendance.Review, 0)
	var created map[string]int64
	_ = repo.db.read(exec, func(t *tables) error {
		created = make(map[string]int64, len(t.reviews))
		for _, rev := range t.reviews {
			rev = withRequest(t, rev)
			if filter != nil {
				if filter.Status != "" && rev.Status != filter.Status {
					continue
				}
				if filter.ReviewedBy != "" && rev.ReviewedBy.String != filter.ReviewedBy {
					continue
				}
				if !sameDate(filter.Date, rev.Date) {
					continue
				}
				if filter.TeacherID != "" && rev.TeacherID.String != filter.TeacherID {
					continue
				}
			}
			created[rev.RequestID] = t.requests[rev.RequestID].CreatedAt.UnixNano()
			revs = append(revs, rev)
		}
		return nil
	})
	sort.Slice(revs, func(i, j int) bool { return created[revs[i].RequestID] > created[revs[j].RequestID] })
	sortBy(revs, ordering, reviewComparators)
	return revs, nil
}

// Records

func (repo *attendanceRepository) CreateRecordIfAbsent(_ context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, bool, error) {
	var created bool
	_ = repo.db.write(exec, func(t *tables) error {
		for _, existing := range t.records {
			if existing.StudentID == rec.StudentID && existing.Date.Equal(rec.Date) {
				rec = existing
				return nil
			}
		}
		rec.ID = uuid.New().String()
		t.records[rec.ID] = rec
		created = true
		return nil
	})
	return rec, created, nil
}

func (repo *attendanceRepository) GetRecord(_ context.Context, id string, exec ...core.DBExecutor) (attendance.Record, error) {
	var (
		rec   attendance.Record
		found bool
	)
	_ = repo.db.read(exec, func(t *tables) error {
		rec, found = t.records[id]
		return nil
	})
	if !found {
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	return rec, nil
}

func (repo *attendanceRepository) UpdateRecord(_ context.Context, rec attendance.Record, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		existing, ok := t.records[rec.ID]
		if !ok {
			return attendance.ErrRecordNotFound
		}
		existing.Status = rec.Status
		t.records[rec.ID] = existing
		return nil
	})
}

func (repo *attendanceRepository) DeleteRecord(_ context.Context, id string, exec ...core.DBExecutor) error {
	return repo.db.write(exec, func(t *tables) error {
		if _, ok := t.records[id]; !ok {
			return attendance.ErrRecordNotFound
		}
		delete(t.records, id)
		return nil
	})
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter *attendance.RecordFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attendance.Record, error) {
	recs := make([]attendance.Record, 0)
	_ = repo.db.read(exec, func(t *tables) error {
		for _, rec := range t.records {
			if filter != nil {
				if filter.StudentID != "" && rec.StudentID != filter.StudentID {
					continue
				}
				if filter.ClassroomID != "" && rec.ClassroomID != filter.ClassroomID {
					continue
				}
				if filter.Status != "" && rec.Status != filter.Status {
					continue
				}
				if !sameDate(filter.Date, rec.Date) {
					continue
				}
				if filter.From != nil && !filter.From.IsZero() && rec.Date.Before(*filter.From) {
					continue
				}
				if filter.To != nil && !filter.To.IsZero() && rec.Date.After(*filter.To) {
					continue
				}
			}
			recs = append(recs, rec)
		}
		return nil
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	sortBy(recs, ordering, recordComparators)
	return recs, nil
}
