package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
	"github.com/trezcool/dabestan/core/classroom"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/user"
	"github.com/trezcool/dabestan/tests"
)

type fixture struct {
	env       *testutil.Env
	admin     user.User
	teacher   user.User
	teacher2  user.User
	student   user.User
	student2  user.User
	inactive  user.User
	classroom classroom.ClassRoom
	today     core.Date
}

func setup(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	f := fixture{
		env:      env,
		admin:    testutil.CreateUser(t, env, "Admin", "admin", user.RoleAdmin, true, true),
		teacher:  testutil.CreateUser(t, env, "Teacher", "teacher", user.RoleTeacher, false, true),
		teacher2: testutil.CreateUser(t, env, "Teacher 2", "teacher2", user.RoleTeacher, false, true),
		student:  testutil.CreateUser(t, env, "Student", "student", user.RoleStudent, false, true),
		student2: testutil.CreateUser(t, env, "Student 2", "student2", user.RoleStudent, false, true),
		inactive: testutil.CreateUser(t, env, "Inactive", "inactive", user.RoleStudent, false, false),
		today:    core.Today(time.Now(), time.UTC),
	}
	f.classroom = testutil.CreateClassRoom(t, env, "6A", f.student, f.student2, f.inactive)
	return f
}

func (f fixture) submit(t *testing.T, status attendance.Status, date core.Date, students ...user.User) attendance.Request {
	t.Helper()
	student := f.student
	if len(students) > 0 {
		student = students[0]
	}
	req, err := f.env.Attendance.SubmitRequest(context.Background(), f.teacher.Actor(), attendance.NewRequest{
		StudentID:       student.ID,
		ClassroomID:     f.classroom.ID,
		RequestedStatus: status,
		Date:            date,
	})
	require.NoError(t, err)
	return req
}

func records(t *testing.T, f fixture, studentID string) []attendance.Record {
	t.Helper()
	recs, err := f.env.Attendance.QueryRecords(context.Background(), f.admin.Actor(), &attendance.RecordFilter{StudentID: studentID}, nil)
	require.NoError(t, err)
	return recs
}

func TestService_SubmitRequest(t *testing.T) {
	f := setup(t)
	other := testutil.CreateClassRoom(t, f.env, "6B")

	tests := []struct {
		name    string
		actor   user.Actor
		nr      attendance.NewRequest
		wantErr error
	}{
		{
			name:  "today",
			actor: f.teacher.Actor(),
			nr:    attendance.NewRequest{StudentID: f.student.ID, ClassroomID: f.classroom.ID, RequestedStatus: attendance.StatusPresent, Date: f.today},
		},
		{
			name:  "past date",
			actor: f.admin.Actor(),
			nr:    attendance.NewRequest{StudentID: f.student.ID, ClassroomID: f.classroom.ID, RequestedStatus: attendance.StatusAbsent, Date: f.today.AddDays(-3)},
		},
		{
			name:    "future date",
			actor:   f.teacher.Actor(),
			nr:      attendance.NewRequest{StudentID: f.student.ID, ClassroomID: f.classroom.ID, RequestedStatus: attendance.StatusPresent, Date: f.today.AddDays(1)},
			wantErr: attendance.ErrFutureDate,
		},
		{
			name:    "student actor",
			actor:   f.student.Actor(),
			nr:      attendance.NewRequest{StudentID: f.student.ID, ClassroomID: f.classroom.ID, RequestedStatus: attendance.StatusPresent, Date: f.today},
			wantErr: core.ErrPermissionDenied,
		},
		{
			name:    "inactive student",
			actor:   f.teacher.Actor(),
			nr:      attendance.NewRequest{StudentID: f.inactive.ID, ClassroomID: f.classroom.ID, RequestedStatus: attendance.StatusPresent, Date: f.today},
			wantErr: attendance.ErrInvalidSubject,
		},
		{
			name:    "teacher as subject",
			actor:   f.teacher.Actor(),
			nr:      attendance.NewRequest{StudentID: f.teacher2.ID, ClassroomID: f.classroom.ID, RequestedStatus: attendance.StatusPresent, Date: f.today},
			wantErr: attendance.ErrInvalidSubject,
		},
		{
			name:    "not enrolled",
			actor:   f.teacher.Actor(),
			nr:      attendance.NewRequest{StudentID: f.student.ID, ClassroomID: other.ID, RequestedStatus: attendance.StatusPresent, Date: f.today},
			wantErr: attendance.ErrRosterMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := f.env.Attendance.SubmitRequest(context.Background(), tt.actor, tt.nr)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotEmpty(t, req.ID)
				assert.Equal(t, attendance.ReviewPending, req.ReviewStatus)
				assert.Equal(t, tt.actor.ID, req.TeacherID.String)
				return
			}
			if tt.wantErr == core.ErrPermissionDenied {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			assert.True(t, core.IsValidationError(err, tt.wantErr), "got %v", err)
		})
	}

	// nothing is written for rejected submissions
	reqs, err := f.env.Attendance.QueryRequests(context.Background(), f.admin.Actor(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, reqs, 2)
}

func TestService_SubmitRequest_invalid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.env.Attendance.SubmitRequest(ctx, f.teacher.Actor(), attendance.NewRequest{
		StudentID: f.student.ID, ClassroomID: f.classroom.ID, RequestedStatus: "late", Date: f.today,
	})
	_, isValidation := err.(*core.ValidationError)
	assert.True(t, isValidation, "got %v", err)

	_, err = f.env.Attendance.SubmitRequest(ctx, f.teacher.Actor(), attendance.NewRequest{
		StudentID: f.student.ID, ClassroomID: f.classroom.ID, RequestedStatus: attendance.StatusPresent,
	})
	_, isValidation = err.(*core.ValidationError)
	assert.True(t, isValidation, "got %v", err)
}

func TestService_Review(t *testing.T) {
	tests := []struct {
		name       string
		requested  attendance.Status
		decision   attendance.ReviewStatus
		wantStatus attendance.Status
		wantPoints int
	}{
		{"approve present", attendance.StatusPresent, attendance.ReviewApproved, attendance.StatusPresent, 5},
		{"approve absent", attendance.StatusAbsent, attendance.ReviewApproved, attendance.StatusAbsent, 0},
		{"approve excused", attendance.StatusExcused, attendance.ReviewApproved, attendance.StatusExcused, 0},
		{"reject present", attendance.StatusPresent, attendance.ReviewRejected, attendance.StatusAbsent, 0},
		{"reject absent", attendance.StatusAbsent, attendance.ReviewRejected, attendance.StatusPresent, 5},
		{"reject excused", attendance.StatusExcused, attendance.ReviewRejected, attendance.StatusPresent, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			req := f.submit(t, tt.requested, f.today)

			res, err := f.env.Attendance.Review(context.Background(), f.admin.Actor(), req.ID, attendance.Decision{Status: tt.decision})
			require.NoError(t, err)
			assert.Equal(t, tt.decision, res.Review.Status)
			assert.Equal(t, f.admin.ID, res.Review.ReviewedBy.String)
			assert.True(t, res.Review.ReviewedAt.Valid)
			require.NotNil(t, res.Record)
			assert.Equal(t, tt.wantStatus, res.Record.Status)
			assert.True(t, res.Record.Date.Equal(f.today))
			assert.Equal(t, tt.wantPoints > 0, res.Award != nil)

			recs := records(t, f, f.student.ID)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.wantStatus, recs[0].Status)
			assert.Equal(t, tt.wantPoints, testutil.Profile(t, f.env, f.student.ID).TotalPoints)
		})
	}
}

func TestService_Review_twice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := f.submit(t, attendance.StatusPresent, f.today)

	_, err := f.env.Attendance.Review(ctx, f.admin.Actor(), req.ID, attendance.Decision{Status: attendance.ReviewApproved})
	require.NoError(t, err)

	for _, decision := range []attendance.ReviewStatus{attendance.ReviewApproved, attendance.ReviewRejected} {
		_, err = f.env.Attendance.Review(ctx, f.admin.Actor(), req.ID, attendance.Decision{Status: decision})
		assert.True(t, core.IsValidationError(err, attendance.ErrAlreadyReviewed), "got %v", err)
	}

	assert.Len(t, records(t, f, f.student.ID), 1)
	assert.Len(t, testutil.Events(t, f.env, f.student.ID), 1)
}

func TestService_Review_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := f.submit(t, attendance.StatusPresent, f.today)

	const reviewers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	wg.Add(reviewers)
	for i := 0; i < reviewers; i++ {
		go func() {
			defer wg.Done()
			_, err := f.env.Attendance.Review(ctx, f.admin.Actor(), req.ID, attendance.Decision{Status: attendance.ReviewApproved})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !core.IsValidationError(err, attendance.ErrAlreadyReviewed) {
				t.Errorf("Review() unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Len(t, records(t, f, f.student.ID), 1)
	assert.Equal(t, gamification.AttendOnTime.Points, testutil.Profile(t, f.env, f.student.ID).TotalPoints)
}

func TestService_Review_existingRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	first := f.submit(t, attendance.StatusPresent, f.today)
	second := f.submit(t, attendance.StatusAbsent, f.today)

	_, err := f.env.Attendance.Review(ctx, f.admin.Actor(), first.ID, attendance.Decision{Status: attendance.ReviewApproved})
	require.NoError(t, err)

	res, err := f.env.Attendance.Review(ctx, f.admin.Actor(), second.ID, attendance.Decision{Status: attendance.ReviewRejected})
	require.NoError(t, err)
	assert.Equal(t, attendance.ReviewRejected, res.Review.Status)
	assert.Nil(t, res.Record)
	assert.Nil(t, res.Award)

	recs := records(t, f, f.student.ID)
	require.Len(t, recs, 1)
	assert.Equal(t, attendance.StatusPresent, recs[0].Status)
	assert.Len(t, testutil.Events(t, f.env, f.student.ID), 1)
}

func TestService_Review_errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := f.submit(t, attendance.StatusPresent, f.today)

	_, err := f.env.Attendance.Review(ctx, f.teacher.Actor(), req.ID, attendance.Decision{Status: attendance.ReviewApproved})
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = f.env.Attendance.Review(ctx, f.admin.Actor(), req.ID, attendance.Decision{Status: attendance.ReviewPending})
	_, isValidation := err.(*core.ValidationError)
	assert.True(t, isValidation, "got %v", err)

	_, err = f.env.Attendance.Review(ctx, f.admin.Actor(), "00000000-0000-0000-0000-000000000000", attendance.Decision{Status: attendance.ReviewApproved})
	assert.True(t, core.IsNotFound(err), "got %v", err)

	assert.Empty(t, records(t, f, f.student.ID))
}

func TestService_Review_levelUp(t *testing.T) {
	f := setup(t)
	testutil.SetThresholds(t, f.env, gamification.LevelThreshold{Level: 2, MinPoints: 5})
	req := f.submit(t, attendance.StatusPresent, f.today)

	res, err := f.env.Attendance.Review(context.Background(), f.admin.Actor(), req.ID, attendance.Decision{Status: attendance.ReviewApproved})
	require.NoError(t, err)
	require.NotNil(t, res.Award)
	assert.True(t, res.Award.LeveledUp())
	assert.Equal(t, []gamification.LevelUp{
		{StudentID: f.student.ID, PreviousLevel: 1, Level: 2, TotalPoints: 5},
	}, f.env.Notifier.LevelUps())
}

func TestService_QueryReviews(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.submit(t, attendance.StatusPresent, f.today)

	_, err := f.env.Attendance.SubmitRequest(ctx, f.teacher2.Actor(), attendance.NewRequest{
		StudentID: f.student2.ID, ClassroomID: f.classroom.ID, RequestedStatus: attendance.StatusPresent, Date: f.today,
	})
	require.NoError(t, err)

	tests := []struct {
		name      string
		actor     user.Actor
		wantCount int
		wantErr   error
	}{
		{name: "admin", actor: f.admin.Actor(), wantCount: 2},
		{name: "teacher", actor: f.teacher.Actor(), wantCount: 1},
		{name: "student", actor: f.student.Actor(), wantErr: core.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			revs, err := f.env.Attendance.QueryReviews(ctx, tt.actor, nil, nil)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, revs, tt.wantCount)
			for _, rev := range revs {
				assert.Equal(t, attendance.ReviewPending, rev.Status)
			}
		})
	}
}

func TestService_CreateRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	nr := attendance.NewRecord{StudentID: f.student.ID, ClassroomID: f.classroom.ID, Status: attendance.StatusPresent, Date: f.today}

	_, err := f.env.Attendance.CreateRecord(ctx, f.teacher.Actor(), nr)
	assert.Equal(t, core.ErrPermissionDenied, err)

	rec, err := f.env.Attendance.CreateRecord(ctx, f.admin.Actor(), nr)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	assert.Equal(t, 5, testutil.Profile(t, f.env, f.student.ID).TotalPoints)

	nr.Status = attendance.StatusAbsent
	_, err = f.env.Attendance.CreateRecord(ctx, f.admin.Actor(), nr)
	assert.True(t, core.IsValidationError(err, attendance.ErrDuplicateDate), "got %v", err)

	nr.Date = f.today.AddDays(1)
	_, err = f.env.Attendance.CreateRecord(ctx, f.admin.Actor(), nr)
	assert.True(t, core.IsValidationError(err, attendance.ErrFutureDate), "got %v", err)

	nr.Date = f.today.AddDays(-1)
	_, err = f.env.Attendance.CreateRecord(ctx, f.admin.Actor(), nr)
	require.NoError(t, err)
	assert.Equal(t, 5, testutil.Profile(t, f.env, f.student.ID).TotalPoints, "absent records earn nothing")
}

func TestService_UpdateAndDeleteRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	rec, err := f.env.Attendance.CreateRecord(ctx, f.admin.Actor(), attendance.NewRecord{
		StudentID: f.student.ID, ClassroomID: f.classroom.ID, Status: attendance.StatusAbsent, Date: f.today,
	})
	require.NoError(t, err)

	rec, err = f.env.Attendance.UpdateRecord(ctx, f.admin.Actor(), rec.ID, attendance.UpdateRecord{Status: attendance.StatusPresent})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	assert.Equal(t, 0, testutil.Profile(t, f.env, f.student.ID).TotalPoints, "updates never award points")

	_, err = f.env.Attendance.UpdateRecord(ctx, f.admin.Actor(), "missing", attendance.UpdateRecord{Status: attendance.StatusPresent})
	assert.True(t, core.IsNotFound(err), "got %v", err)

	assert.Equal(t, core.ErrPermissionDenied, f.env.Attendance.DeleteRecord(ctx, f.student.Actor(), rec.ID))
	require.NoError(t, f.env.Attendance.DeleteRecord(ctx, f.admin.Actor(), rec.ID))
	assert.Empty(t, records(t, f, f.student.ID))
}

func TestService_QueryRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for _, s := range []user.User{f.student, f.student2} {
		_, err := f.env.Attendance.CreateRecord(ctx, f.admin.Actor(), attendance.NewRecord{
			StudentID: s.ID, ClassroomID: f.classroom.ID, Status: attendance.StatusAbsent, Date: f.today,
		})
		require.NoError(t, err)
	}

	recs, err := f.env.Attendance.QueryRecords(ctx, f.student.Actor(), nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, f.student.ID, recs[0].StudentID)

	// a student cannot widen the filter to someone else
	recs, err = f.env.Attendance.QueryRecords(ctx, f.student.Actor(), &attendance.RecordFilter{StudentID: f.student2.ID}, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, f.student.ID, recs[0].StudentID)

	recs, err = f.env.Attendance.QueryRecords(ctx, f.admin.Actor(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
