package attendance

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
)

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusExcused Status = "excused"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusExcused:
		return true
	}
	return false
}

// rejected returns the status recorded when a request asking for s is rejected.
func (s Status) rejected() Status {
	switch s {
	case StatusAbsent:
		return StatusPresent
	case StatusPresent:
		return StatusAbsent
	case StatusExcused:
		return StatusPresent
	}
	return s
}

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func (rs ReviewStatus) Valid() bool {
	switch rs {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	}
	return false
}

func (rs ReviewStatus) Terminal() bool {
	return rs == ReviewApproved || rs == ReviewRejected
}

// Request is a teacher's claim about a student's attendance on a date.
type Request struct {
	ID              string      `json:"id" db:"id"`
	TeacherID       null.String `json:"teacher_id" db:"teacher_id"`
	StudentID       string      `json:"student_id" db:"student_id"`
	ClassroomID     string      `json:"classroom_id" db:"classroom_id"`
	RequestedStatus Status      `json:"requested_status" db:"requested_status"`
	Date            core.Date   `json:"date" db:"date"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"` // UTC

	// read only
	ReviewStatus ReviewStatus `json:"review_status,omitempty" db:"review_status"`
}

type Review struct {
	RequestID  string       `json:"request_id" db:"request_id"`
	Status     ReviewStatus `json:"review_status" db:"review_status"`
	ReviewedBy null.String  `json:"reviewed_by" db:"reviewed_by"`
	ReviewedAt null.Time    `json:"reviewed_at" db:"reviewed_at"`

	// read only, joined from the request
	TeacherID null.String `json:"teacher_id" db:"teacher_id"`
	StudentID string      `json:"student_id" db:"student_id"`
	Date      core.Date   `json:"date" db:"date"`
}

// Record is the authoritative attendance of a student on a date.
type Record struct {
	ID          string    `json:"id" db:"id"`
	StudentID   string    `json:"student_id" db:"student_id"`
	ClassroomID string    `json:"classroom_id" db:"classroom_id"`
	Status      Status    `json:"status" db:"status"`
	Date        core.Date `json:"date" db:"date"`
}

type NewRequest struct {
	StudentID       string    `json:"student_id" validate:"required,uuid"`
	ClassroomID     string    `json:"classroom_id" validate:"required,uuid"`
	RequestedStatus Status    `json:"requested_status" validate:"required,attendancestatus"`
	Date            core.Date `json:"date" validate:"required"`
}

type Decision struct {
	Status ReviewStatus `json:"review_status" validate:"required,oneof=approved rejected"`
}

type NewRecord struct {
	StudentID   string    `json:"student_id" validate:"required,uuid"`
	ClassroomID string    `json:"classroom_id" validate:"required,uuid"`
	Status      Status    `json:"status" validate:"required,attendancestatus"`
	Date        core.Date `json:"date" validate:"required"`
}

type UpdateRecord struct {
	Status Status `json:"status" validate:"required,attendancestatus"`
}

// ReviewResult is the outcome of a review.
// Record is nil when a record already existed for the student on that date.
type ReviewResult struct {
	Review Review               `json:"review"`
	Record *Record              `json:"record,omitempty"`
	Award  *gamification.Result `json:"award,omitempty"`
}

type RequestFilter struct {
	Status       Status       `query:"status"`
	ReviewStatus ReviewStatus `query:"review_status"`
	Date         *core.Date   `query:"date"`
	StudentID    string       `query:"student_id"`
	ClassroomID  string       `query:"classroom_id"`
	TeacherID    string
}

type ReviewFilter struct {
	Status     ReviewStatus `query:"review_status"`
	ReviewedBy string       `query:"reviewed_by"`
	Date       *core.Date   `query:"date"`
	TeacherID  string
}

type RecordFilter struct {
	StudentID   string     `query:"student_id"`
	ClassroomID string     `query:"classroom_id"`
	Status      Status     `query:"status"`
	Date        *core.Date `query:"date"`
	From        *core.Date `query:"from"`
	To          *core.Date `query:"to"`
}
