package reportsvc

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/user"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	attendanceSheet  = "Attendance"
	leaderboardSheet = "Leaderboard"
)

var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrUnsupportedFormat = errors.New("unsupported file type (csv, xlsx)")

	attendanceHeader  = []interface{}{"Student ID", "Student", "Classroom ID", "Date", "Status"}
	leaderboardHeader = []interface{}{"Rank", "Student ID", "Student", "Level", "Total Points"}
	importColumns     = []string{"student_id", "classroom_id", "date", "status"}
)

type (
	UserDirectory interface {
		GetByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error)
	}

	AttendanceStore interface {
		QueryRecords(ctx context.Context, actor user.Actor, filter *attendance.RecordFilter, ordering []core.DBOrdering) ([]attendance.Record, error)
		CreateRecord(ctx context.Context, actor user.Actor, nr attendance.NewRecord) (attendance.Record, error)
	}

	Leaderboard interface {
		QueryProfiles(ctx context.Context, actor user.Actor, filter *gamification.ProfileFilter, ordering []core.DBOrdering) ([]gamification.StudentProfile, error)
	}

	// RowError reports why a spreadsheet row was not imported. Rows are numbered from 1, the header included.
	RowError struct {
		Row   int    `json:"row"`
		Error string `json:"error"`
	}

	ImportResult struct {
		Rows    int        `json:"rows"`
		Created int        `json:"created"`
		Errors  []RowError `json:"errors"`
	}

	Service struct {
		users      UserDirectory
		attendance AttendanceStore
		ledger     Leaderboard
		logger     core.Logger
	}
)

func NewService(users UserDirectory, att AttendanceStore, ledger Leaderboard, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(att, "attendance"),
		vala.IsNotNil(ledger, "ledger"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		users:      users,
		attendance: att,
		ledger:     ledger,
		logger:     logger,
	}
}

// names resolves student names, falling back to the ID for unknown users.
func (svc *Service) names(ctx context.Context, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if _, ok := names[id]; ok {
			continue
		}
		usr, err := svc.users.GetByID(ctx, id)
		if err != nil {
			if errors.Cause(err) != user.ErrNotFound {
				svc.logger.Warn("looking up student name", err, map[string]interface{}{"student_id": id})
			}
			names[id] = id
			continue
		}
		names[id] = usr.Name
	}
	return names
}

// ExportRecords writes the attendance records visible to actor as an XLSX workbook.
func (svc *Service) ExportRecords(ctx context.Context, actor user.Actor, filter *attendance.RecordFilter, w io.Writer) error {
	recs, err := svc.attendance.QueryRecords(ctx, actor, filter, []core.DBOrdering{{Field: "date", Ascending: true}})
	if err != nil {
		return errors.Wrap(err, "querying records")
	}
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.StudentID
	}
	names := svc.names(ctx, ids)

	rows := make([][]interface{}, len(recs))
	for i, rec := range recs {
		rows[i] = []interface{}{rec.StudentID, names[rec.StudentID], rec.ClassroomID, rec.Date.String(), string(rec.Status)}
	}
	return errors.Wrap(writeSheet(w, attendanceSheet, attendanceHeader, rows), "writing attendance sheet")
}

// ExportLeaderboard writes every student profile ranked by level then points.
func (svc *Service) ExportLeaderboard(ctx context.Context, actor user.Actor, w io.Writer) error {
	profiles, err := svc.ledger.QueryProfiles(ctx, actor, nil, []core.DBOrdering{{Field: "level"}, {Field: "total_points"}})
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.StudentID
	}
	names := svc.names(ctx, ids)

	rows := make([][]interface{}, len(profiles))
	for i, p := range profiles {
		rows[i] = []interface{}{i + 1, p.StudentID, names[p.StudentID], p.Level, p.TotalPoints}
	}
	return errors.Wrap(writeSheet(w, leaderboardSheet, leaderboardHeader, rows), "writing leaderboard sheet")
}

func writeSheet(w io.Writer, sheet string, header []interface{}, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err = f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err = f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return err
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err = f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
		return err
	}
	return f.Write(w)
}

// ImportRecords creates attendance records from a CSV or XLSX upload.
// Each row is created on its own: a failing row is reported and the rest are still imported.
func (svc *Service) ImportRecords(ctx context.Context, actor user.Actor, filename string, r io.Reader) (ImportResult, error) {
	rows, err := readRows(filename, r)
	if err != nil {
		return ImportResult{}, err
	}
	if len(rows) == 0 {
		return ImportResult{}, core.NewValidationError(ErrEmptyFile)
	}

	col := mapHeaderIndexes(rows[0])
	for _, name := range importColumns {
		if _, ok := col[name]; !ok {
			return ImportResult{}, core.NewValidationError(
				errors.Errorf("missing column: %s", name),
				core.FieldError{Field: name, Error: "this column is required"},
			)
		}
	}

	res := ImportResult{Rows: len(rows) - 1, Errors: []RowError{}}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(key string) string {
			if idx, ok := col[key]; ok && idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}
		if isBlank(row) {
			res.Rows--
			continue
		}

		date, err := parseDate(get("date"))
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: i + 1, Error: fmt.Sprintf("invalid date %q", get("date"))})
			continue
		}
		nr := attendance.NewRecord{
			StudentID:   get("student_id"),
			ClassroomID: get("classroom_id"),
			Status:      attendance.Status(strings.ToLower(get("status"))),
			Date:        date,
		}
		if _, err = svc.attendance.CreateRecord(ctx, actor, nr); err != nil {
			if errors.Cause(err) == core.ErrPermissionDenied {
				return res, err
			}
			res.Errors = append(res.Errors, RowError{Row: i + 1, Error: rowErrorMessage(err)})
			continue
		}
		res.Created++
	}

	svc.logger.Info("attendance import done", actor, map[string]interface{}{
		"filename": filename,
		"rows":     res.Rows,
		"created":  res.Created,
		"failed":   len(res.Errors),
	})
	return res, nil
}

func rowErrorMessage(err error) string {
	switch cause := errors.Cause(err).(type) {
	case *core.ValidationError:
		if len(cause.Fields) == 0 {
			return cause.Error()
		}
		msgs := make([]string, len(cause.Fields))
		for i, fe := range cause.Fields {
			msgs[i] = fe.Field + ": " + fe.Error
		}
		return strings.Join(msgs, "; ")
	case *core.NotFoundError:
		return cause.Error()
	}
	return "internal error"
}

func readRows(filename string, r io.Reader) ([][]string, error) {
	switch name := strings.ToLower(filename); {
	case strings.HasSuffix(name, ".csv"):
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, core.NewValidationError(errors.Wrap(err, "reading csv"))
		}
		return rows, nil
	case strings.HasSuffix(name, ".xlsx"):
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, core.NewValidationError(errors.Wrap(err, "opening xlsx"))
		}
		defer f.Close()

		sheet := f.GetSheetName(0)
		if sheet == "" {
			sheet = "Sheet1"
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, core.NewValidationError(errors.Wrap(err, "reading xlsx"))
		}
		return rows, nil
	}
	return nil, core.NewValidationError(ErrUnsupportedFormat)
}

// mapHeaderIndexes maps normalized column names ("Student ID" -> "student_id") to their index.
func mapHeaderIndexes(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.Join(strings.Fields(key), "_")
		if _, ok := m[key]; !ok {
			m[key] = i
		}
	}
	return m
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

var dateLayouts = []string{core.DateLayout, "2/1/2006", "02/01/2006", time.RFC3339}

func parseDate(s string) (core.Date, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, errors.Errorf("unknown date format %q", s)
}
