package sqlxrepos

import (
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dabestan/core"
)

func Test_orderBy(t *testing.T) {
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		wantSQL  string
	}{
		{name: "none", wantSQL: `SELECT id FROM "user"`},
		{
			name:     "unknown fields are skipped",
			ordering: []core.DBOrdering{{Field: "password_hash"}, {Field: "name", Ascending: true}},
			wantSQL:  `SELECT id FROM "user" ORDER BY name ASC`,
		},
		{
			name:     "several fields",
			ordering: []core.DBOrdering{{Field: "role", Ascending: true}, {Field: "created_at"}},
			wantSQL:  `SELECT id FROM "user" ORDER BY role ASC, created_at DESC`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, _, err := orderBy(psql.Select("id").From(`"user"`), tt.ordering, userOrderColumns).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, query)
		})
	}
}

func Test_isUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: uniqueViolation, Constraint: "attendance_record_student_id_date_key"}

	tests := []struct {
		name       string
		err        error
		constraint []string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not a pq error", err: errors.New("lol"), want: false},
		{name: "other code", err: &pq.Error{Code: "23503"}, want: false},
		{name: "any constraint", err: dup, want: true},
		{name: "wrapped", err: errors.Wrap(dup, "inserting"), want: true},
		{name: "matching constraint", err: dup, constraint: []string{"attendance_record_student_id_date_key"}, want: true},
		{name: "other constraint", err: dup, constraint: []string{"user_email_key"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint...); got != tt.want {
				t.Errorf("isUniqueViolation() = %v; want %v", got, tt.want)
			}
		})
	}
}

func Test_trapNoRows(t *testing.T) {
	notFound := core.NewNotFoundError("score")

	assert.Equal(t, notFound, trapNoRows(errors.Wrap(sql.ErrNoRows, "scanning"), notFound, "getting score"))

	err := trapNoRows(sql.ErrConnDone, notFound, "getting score")
	assert.Equal(t, "getting score: "+sql.ErrConnDone.Error(), err.Error())
	assert.Equal(t, sql.ErrConnDone, errors.Cause(err))
}

func Test_validIDs(t *testing.T) {
	assert.True(t, validIDs())
	assert.True(t, validIDs("b3c5d1e0-0000-4000-8000-000000000000"))
	assert.False(t, validIDs("b3c5d1e0-0000-4000-8000-000000000000", "lol"))
}
