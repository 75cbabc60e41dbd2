package reportsvc_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
	"github.com/trezcool/dabestan/core/user"
	"github.com/trezcool/dabestan/services/report"
	"github.com/trezcool/dabestan/tests"
)

func readSheet(t *testing.T, data []byte) (string, [][]string) {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return sheet, rows
}

type fixture struct {
	env       *testutil.Env
	svc       *reportsvc.Service
	admin     user.Actor
	amani     user.User
	baraka    user.User
	classID   string
	today     core.Date
	yesterday core.Date
}

func setup(t *testing.T) *fixture {
	env := testutil.NewEnv(t)
	admin := testutil.CreateUser(t, env, "Admin", "admin", user.RoleAdmin, false, true)
	amani := testutil.CreateUser(t, env, "Amani", "amani", user.RoleStudent, false, true)
	baraka := testutil.CreateUser(t, env, "Baraka", "baraka", user.RoleStudent, false, true)
	cr := testutil.CreateClassRoom(t, env, "Form 1", amani, baraka)
	today := core.Today(time.Now(), time.UTC)

	return &fixture{
		env:       env,
		svc:       reportsvc.NewService(env.Users, env.Attendance, env.Ledger, testutil.Logger()),
		admin:     admin.Actor(),
		amani:     amani,
		baraka:    baraka,
		classID:   cr.ID,
		today:     today,
		yesterday: today.AddDays(-1),
	}
}

func (fx *fixture) record(t *testing.T, student user.User, status attendance.Status, date core.Date) attendance.Record {
	t.Helper()
	rec, err := fx.env.Attendance.CreateRecord(context.Background(), fx.admin, attendance.NewRecord{
		StudentID:   student.ID,
		ClassroomID: fx.classID,
		Status:      status,
		Date:        date,
	})
	require.NoError(t, err)
	return rec
}

func TestService_ExportRecords(t *testing.T) {
	fx := setup(t)
	fx.record(t, fx.amani, attendance.StatusPresent, fx.today)
	fx.record(t, fx.baraka, attendance.StatusAbsent, fx.yesterday)

	var buf bytes.Buffer
	require.NoError(t, fx.svc.ExportRecords(context.Background(), fx.admin, nil, &buf))

	sheet, rows := readSheet(t, buf.Bytes())
	assert.Equal(t, "Attendance", sheet)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Student ID", "Student", "Classroom ID", "Date", "Status"}, rows[0])
	assert.Equal(t, []string{fx.baraka.ID, "Baraka", fx.classID, fx.yesterday.String(), "absent"}, rows[1])
	assert.Equal(t, []string{fx.amani.ID, "Amani", fx.classID, fx.today.String(), "present"}, rows[2])
}

func TestService_ExportRecords_studentScope(t *testing.T) {
	fx := setup(t)
	fx.record(t, fx.amani, attendance.StatusPresent, fx.today)
	fx.record(t, fx.baraka, attendance.StatusPresent, fx.today)

	var buf bytes.Buffer
	require.NoError(t, fx.svc.ExportRecords(context.Background(), fx.amani.Actor(), nil, &buf))

	_, rows := readSheet(t, buf.Bytes())
	require.Len(t, rows, 2)
	assert.Equal(t, fx.amani.ID, rows[1][0])
}

func TestService_ExportLeaderboard(t *testing.T) {
	fx := setup(t)
	fx.record(t, fx.baraka, attendance.StatusPresent, fx.today)
	fx.record(t, fx.baraka, attendance.StatusPresent, fx.yesterday)
	fx.record(t, fx.amani, attendance.StatusPresent, fx.today)

	var buf bytes.Buffer
	require.NoError(t, fx.svc.ExportLeaderboard(context.Background(), fx.admin, &buf))

	sheet, rows := readSheet(t, buf.Bytes())
	assert.Equal(t, "Leaderboard", sheet)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", fx.baraka.ID, "Baraka", "1", "10"}, rows[1])
	assert.Equal(t, []string{"2", fx.amani.ID, "Amani", "1", "5"}, rows[2])

	err := fx.svc.ExportLeaderboard(context.Background(), user.Actor{ID: "t1", Role: user.RoleTeacher}, &buf)
	assert.Equal(t, core.ErrPermissionDenied, errors.Cause(err))
}

func TestService_ImportRecords(t *testing.T) {
	fx := setup(t)
	fx.record(t, fx.baraka, attendance.StatusAbsent, fx.yesterday)

	csvData := strings.Join([]string{
		"Student ID,Classroom ID,Date,Status,Comment",
		fx.amani.ID + "," + fx.classID + "," + fx.today.String() + ",Present,on time",
		fx.amani.ID + "," + fx.classID + "," + fx.yesterday.Format("02/01/2006") + ",absent,",
		",,,,",
		fx.baraka.ID + "," + fx.classID + "," + fx.yesterday.String() + ",present,",
		fx.baraka.ID + "," + fx.classID + ",tomorrow,present,",
		fx.baraka.ID + "," + fx.classID + "," + fx.today.AddDays(1).String() + ",present,",
	}, "\n")

	res, err := fx.svc.ImportRecords(context.Background(), fx.admin, "attendance.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, 5, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Error, attendance.ErrDuplicateDate.Error())
	assert.Equal(t, 6, res.Errors[1].Row)
	assert.Contains(t, res.Errors[1].Error, "invalid date")
	assert.Equal(t, 7, res.Errors[2].Row)
	assert.Contains(t, res.Errors[2].Error, attendance.ErrFutureDate.Error())

	assert.Equal(t, 5, testutil.Profile(t, fx.env, fx.amani.ID).TotalPoints)
}

func TestService_ImportRecords_roundTrip(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	recs := []attendance.Record{
		fx.record(t, fx.amani, attendance.StatusPresent, fx.today),
		fx.record(t, fx.baraka, attendance.StatusExcused, fx.yesterday),
	}

	var buf bytes.Buffer
	require.NoError(t, fx.svc.ExportRecords(ctx, fx.admin, nil, &buf))
	for _, rec := range recs {
		require.NoError(t, fx.env.Attendance.DeleteRecord(ctx, fx.admin, rec.ID))
	}

	res, err := fx.svc.ImportRecords(ctx, fx.admin, "export.XLSX", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 2, res.Created)
	assert.Empty(t, res.Errors)

	got, err := fx.env.Attendance.QueryRecords(ctx, fx.admin, nil, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	statuses := map[string]attendance.Status{}
	for _, rec := range got {
		statuses[rec.StudentID] = rec.Status
	}
	assert.Equal(t, attendance.StatusPresent, statuses[fx.amani.ID])
	assert.Equal(t, attendance.StatusExcused, statuses[fx.baraka.ID])
}

func TestService_ImportRecords_errors(t *testing.T) {
	fx := setup(t)

	tests := []struct {
		name     string
		actor    user.Actor
		filename string
		data     string
		wantErr  error
	}{
		{"unsupported", fx.admin, "attendance.txt", "student_id", reportsvc.ErrUnsupportedFormat},
		{"empty", fx.admin, "attendance.csv", "", reportsvc.ErrEmptyFile},
		{"missing column", fx.admin, "attendance.csv", "student_id,classroom_id,date\n", nil},
		{"bad xlsx", fx.admin, "attendance.xlsx", "not a workbook", nil},
		{"student", fx.amani.Actor(), "attendance.csv", "student_id,classroom_id,date,status\n" + fx.amani.ID + "," + fx.classID + "," + fx.today.String() + ",present", core.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.ImportRecords(context.Background(), tt.actor, tt.filename, strings.NewReader(tt.data))
			require.Error(t, err)
			if tt.wantErr == core.ErrPermissionDenied {
				assert.Equal(t, core.ErrPermissionDenied, err)
				return
			}
			if tt.wantErr != nil {
				assert.True(t, core.IsValidationError(err, tt.wantErr), err)
				return
			}
			var vErr *core.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}
