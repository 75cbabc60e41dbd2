package score_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/score"
	"github.com/trezcool/dabestan/core/user"
	"github.com/trezcool/dabestan/tests"
)

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	teacher := testutil.CreateUser(t, env, "Teacher", "teacher", user.RoleTeacher, false, true)
	student := testutil.CreateUser(t, env, "Student", "student", user.RoleStudent, false, true)
	cr := testutil.CreateClassRoom(t, env, "6A", student)

	tests := []struct {
		name       string
		value      float64
		wantAward  bool
		wantPoints int
	}{
		{"zero", 0, false, 0},
		{"almost full", 19.99, false, 0},
		{"full", 20, true, 10},
		{"full again", 20.0, true, 20},
		{"ten", 10, false, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.Scores.Create(ctx, teacher.Actor(), score.NewScore{
				StudentID:   student.ID,
				LessonID:    "math",
				ClassroomID: cr.ID,
				Value:       tt.value,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.value, res.Score.Value)
			assert.Equal(t, tt.wantAward, res.Award != nil)
			if tt.wantAward {
				assert.Equal(t, gamification.Score20.Code, res.Award.EventType.Code)
			}
			assert.Equal(t, tt.wantPoints, testutil.Profile(t, env, student.ID).TotalPoints)
		})
	}
}

func TestService_Create_errors(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	teacher := testutil.CreateUser(t, env, "Teacher", "teacher", user.RoleTeacher, false, true)
	student := testutil.CreateUser(t, env, "Student", "student", user.RoleStudent, false, true)
	staffStudent := testutil.CreateUser(t, env, "Monitor", "monitor", user.RoleStudent, true, true)
	inactive := testutil.CreateUser(t, env, "Inactive", "inactive", user.RoleStudent, false, false)
	cr := testutil.CreateClassRoom(t, env, "6A", student, inactive)
	other := testutil.CreateClassRoom(t, env, "6B")

	tests := []struct {
		name    string
		actor   user.Actor
		ns      score.NewScore
		wantErr error
	}{
		{
			name:    "student",
			actor:   student.Actor(),
			ns:      score.NewScore{StudentID: student.ID, ClassroomID: cr.ID, LessonID: "math", Value: 20},
			wantErr: core.ErrPermissionDenied,
		},
		{
			name:    "inactive student",
			actor:   teacher.Actor(),
			ns:      score.NewScore{StudentID: inactive.ID, ClassroomID: cr.ID, LessonID: "math", Value: 20},
			wantErr: score.ErrInvalidSubject,
		},
		{
			name:    "teacher as subject",
			actor:   teacher.Actor(),
			ns:      score.NewScore{StudentID: teacher.ID, ClassroomID: cr.ID, LessonID: "math", Value: 20},
			wantErr: score.ErrInvalidSubject,
		},
		{
			name:    "not enrolled",
			actor:   staffStudent.Actor(),
			ns:      score.NewScore{StudentID: student.ID, ClassroomID: other.ID, LessonID: "math", Value: 20},
			wantErr: score.ErrRosterMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Scores.Create(ctx, tt.actor, tt.ns)
			if tt.wantErr == core.ErrPermissionDenied {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			assert.True(t, core.IsValidationError(err, tt.wantErr), "got %v", err)
		})
	}
	assert.Empty(t, testutil.Events(t, env, student.ID))
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	teacher := testutil.CreateUser(t, env, "Teacher", "teacher", user.RoleTeacher, false, true)
	student := testutil.CreateUser(t, env, "Student", "student", user.RoleStudent, false, true)
	cr := testutil.CreateClassRoom(t, env, "6A", student)

	res, err := env.Scores.Create(ctx, teacher.Actor(), score.NewScore{StudentID: student.ID, ClassroomID: cr.ID, LessonID: "math", Value: 12})
	require.NoError(t, err)

	s, err := env.Scores.Update(ctx, teacher.Actor(), res.Score.ID, score.UpdateScore{Value: 20})
	require.NoError(t, err)
	assert.Equal(t, 20.0, s.Value)
	assert.Empty(t, testutil.Events(t, env, student.ID), "updating to a full score earns nothing")

	_, err = env.Scores.Update(ctx, student.Actor(), res.Score.ID, score.UpdateScore{Value: 20})
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = env.Scores.Update(ctx, teacher.Actor(), "missing", score.UpdateScore{Value: 20})
	assert.True(t, core.IsNotFound(err), "got %v", err)
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	env := testutil.NewEnv(t)
	admin := testutil.CreateUser(t, env, "Admin", "admin", user.RoleAdmin, true, true)
	teacher := testutil.CreateUser(t, env, "Teacher", "teacher", user.RoleTeacher, false, true)
	s1 := testutil.CreateUser(t, env, "Student 1", "student1", user.RoleStudent, false, true)
	s2 := testutil.CreateUser(t, env, "Student 2", "student2", user.RoleStudent, false, true)
	cr := testutil.CreateClassRoom(t, env, "6A", s1, s2)

	for _, s := range []user.User{s1, s2} {
		_, err := env.Scores.Create(ctx, admin.Actor(), score.NewScore{StudentID: s.ID, ClassroomID: cr.ID, LessonID: "math", Value: 15})
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		actor     user.Actor
		wantCount int
	}{
		{"admin", admin.Actor(), 2},
		{"student", s1.Actor(), 1},
		{"teacher", teacher.Actor(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := env.Scores.Query(ctx, tt.actor, nil, nil)
			require.NoError(t, err)
			assert.Len(t, scores, tt.wantCount)
		})
	}
}
