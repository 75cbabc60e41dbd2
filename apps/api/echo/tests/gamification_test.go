package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dabestan/apps/api/echo"
	"github.com/trezcool/dabestan/core/attendance"
	"github.com/trezcool/dabestan/core/classroom"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/score"
	"github.com/trezcool/dabestan/core/user"
	"github.com/trezcool/dabestan/services/report"
	"github.com/trezcool/dabestan/tests"
)

func (s school) newScore(t *testing.T, studentID string, value float64) []byte {
	return marshalObj(t, score.NewScore{StudentID: studentID, LessonID: "Maths", ClassroomID: s.classID, Value: value})
}

func Test_scoreApi(t *testing.T) {
	app, env := setup(t)
	s := newSchool(t, env)

	runTests(t, app, []httpTest{
		{
			name: "students cannot grade", method: http.MethodPost, path: "/v1/scores", body: s.newScore(t, s.student.ID, 20),
			token: s.studentToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errNoPermission),
		},
		{name: "out of range", method: http.MethodPost, path: "/v1/scores", body: s.newScore(t, s.student.ID, 21), token: s.teacherToken, wantCode: http.StatusBadRequest},
		{
			name: "not a student", method: http.MethodPost, path: "/v1/scores", body: s.newScore(t, testutil.CreateUser(t, env, "T2", "t2", user.RoleTeacher, false, true).ID, 10),
			token: s.teacherToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, echoapi.ErrorResponse{
				Detail: score.ErrInvalidSubject.Error(),
				Errors: map[string]string{"student_id": score.ErrInvalidSubject.Error()},
			}),
		},
	})

	var full score.Created
	t.Run("full score earns the bonus", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/scores", s.teacherToken, s.newScore(t, s.student.ID, 20))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &full)
		require.NotNil(t, full.Award)
		assert.Equal(t, gamification.Score20.Code, full.Award.Event.Code)
		assert.Equal(t, 10, full.Award.Profile.TotalPoints)
	})

	t.Run("anything else earns nothing", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/scores", s.teacherToken, s.newScore(t, s.student.ID, 19.5))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res score.Created
		decode(t, rec, &res)
		assert.Nil(t, res.Award)
		assert.Equal(t, 10, testutil.Profile(t, env, s.student.ID).TotalPoints)
	})

	t.Run("updates never award", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/scores", s.teacherToken, s.newScore(t, s.student.ID, 12))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res score.Created
		decode(t, rec, &res)

		rec = do(app, http.MethodPut, "/v1/scores/"+res.Score.ID, s.teacherToken, []byte(`{"value":20}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 10, testutil.Profile(t, env, s.student.ID).TotalPoints)
	})

	t.Run("students see their scores", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/scores?value=20", s.studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var scores []score.Score
		decode(t, rec, &scores)
		assert.Len(t, scores, 2)
		for _, sc := range scores {
			assert.Equal(t, s.student.ID, sc.StudentID)
		}
	})

	runTests(t, app, []httpTest{
		{name: "update unknown score", method: http.MethodPut, path: "/v1/scores/b3c5d1e0-0000-4000-8000-000000000000", body: []byte(`{"value":3}`), token: s.teacherToken, wantCode: http.StatusNotFound},
	})
}

func Test_gamificationApi_levels(t *testing.T) {
	app, env := setup(t)
	s := newSchool(t, env)

	threshold := func(level, minPoints int) []byte {
		return marshalObj(t, gamification.LevelThreshold{Level: level, MinPoints: minPoints})
	}

	runTests(t, app, []httpTest{
		{
			name: "admin only", method: http.MethodPut, path: "/v1/gamification/levels", body: threshold(2, 10),
			token: s.teacherToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errNoPermission),
		},
		{name: "level 1 is implicit", method: http.MethodPut, path: "/v1/gamification/levels", body: threshold(1, 0), token: s.adminToken, wantCode: http.StatusBadRequest},
		{name: "level 2", method: http.MethodPut, path: "/v1/gamification/levels", body: threshold(2, 10), token: s.adminToken, wantCode: http.StatusOK},
		{
			name: "gap", method: http.MethodPut, path: "/v1/gamification/levels", body: threshold(4, 50),
			token: s.adminToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, echoapi.ErrorResponse{
				Detail: "invalid level thresholds",
				Errors: map[string]string{"level": "level 4: levels must be contiguous starting at 2"},
			}),
		},
		{
			name: "not increasing", method: http.MethodPut, path: "/v1/gamification/levels", body: threshold(3, 5),
			token: s.adminToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, echoapi.ErrorResponse{
				Detail: "invalid level thresholds",
				Errors: map[string]string{"min_points": "level 3: min_points must be greater than level 2's"},
			}),
		},
		{
			name: "list", path: "/v1/gamification/levels", token: s.studentToken, wantCode: http.StatusOK,
			wantData: marshalObj(t, echoapi.ListResponse{Count: 1, Results: []gamification.LevelThreshold{{Level: 2, MinPoints: 10}}}),
		},
	})

	t.Run("level up", func(t *testing.T) {
		rec := do(app, http.MethodPost, "/v1/scores", s.teacherToken, s.newScore(t, s.student.ID, 20))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		p := testutil.Profile(t, env, s.student.ID)
		assert.Equal(t, 2, p.Level)
		lus := env.Notifier.LevelUps()
		require.Len(t, lus, 1)
		assert.Equal(t, gamification.LevelUp{StudentID: s.student.ID, PreviousLevel: 1, Level: 2, TotalPoints: 10}, lus[0])
	})

	runTests(t, app, []httpTest{
		{name: "delete bad level", method: http.MethodDelete, path: "/v1/gamification/levels/two", token: s.adminToken, wantCode: http.StatusNotFound},
		{name: "delete unknown level", method: http.MethodDelete, path: "/v1/gamification/levels/3", token: s.adminToken, wantCode: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/v1/gamification/levels/2", token: s.adminToken, wantCode: http.StatusNoContent},
	})

	// profiles follow the catalog
	assert.Equal(t, 1, testutil.Profile(t, env, s.student.ID).Level)
	assert.Equal(t, 10, testutil.Profile(t, env, s.student.ID).TotalPoints)
}

func Test_gamificationApi_profiles(t *testing.T) {
	app, env := setup(t)
	s := newSchool(t, env)
	baraka := testutil.CreateUser(t, env, "Baraka", "baraka", user.RoleStudent, false, true)
	barakaToken := getToken(t, baraka)
	cr := testutil.CreateClassRoom(t, env, "Form 2", baraka)

	// amani: full score, baraka: present
	rec := do(app, http.MethodPost, "/v1/scores", s.teacherToken, s.newScore(t, s.student.ID, 20))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(app, http.MethodPost, "/v1/attendance/records", s.adminToken, marshalObj(t, attendance.NewRecord{
		StudentID: baraka.ID, ClassroomID: cr.ID, Status: attendance.StatusPresent, Date: s.today,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	amaniPath := "/v1/gamification/profiles/" + s.student.ID

	runTests(t, app, []httpTest{
		{name: "teachers cannot list profiles", path: "/v1/gamification/profiles", token: s.teacherToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errNoPermission)},
		{name: "others' events", path: amaniPath + "/events", token: barakaToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errNoPermission)},
		{name: "unknown student events", path: "/v1/gamification/profiles/b3c5d1e0-0000-4000-8000-000000000000/events", token: s.adminToken, wantCode: http.StatusNotFound},
		{name: "teachers cannot recalculate", method: http.MethodPost, path: amaniPath + "/recalculate", token: s.teacherToken, wantCode: http.StatusForbidden},
		{name: "recalculate unknown", method: http.MethodPost, path: "/v1/gamification/profiles/b3c5d1e0-0000-4000-8000-000000000000/recalculate", token: s.adminToken, wantCode: http.StatusNotFound},
		{name: "recalculate all is admin only", method: http.MethodPost, path: "/v1/gamification/profiles/recalculate", token: s.teacherToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{
			name: "recalculate all", method: http.MethodPost, path: "/v1/gamification/profiles/recalculate", token: s.adminToken, wantCode: http.StatusOK,
			wantData: marshalObj(t, echoapi.DataResponse{Detail: "2 profiles recalculated", Data: 2}),
		},
	})

	t.Run("best students", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/gamification/profiles/best", barakaToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var profiles []gamification.StudentProfile
		decode(t, rec, &profiles)
		require.Len(t, profiles, 2)
		assert.Equal(t, s.student.ID, profiles[0].StudentID)
		assert.Equal(t, baraka.ID, profiles[1].StudentID)
	})

	t.Run("students only see their profile", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/gamification/profiles", barakaToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var profiles []gamification.StudentProfile
		decode(t, rec, &profiles)
		require.Len(t, profiles, 1)
		assert.Equal(t, 5, profiles[0].TotalPoints)
	})

	t.Run("own events", func(t *testing.T) {
		rec := do(app, http.MethodGet, amaniPath+"/events", s.studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var events []gamification.StudentEvent
		decode(t, rec, &events)
		require.Len(t, events, 1)
		assert.Equal(t, gamification.Score20.Code, events[0].Code)
		assert.Equal(t, gamification.Score20Note, events[0].Note)
	})

	t.Run("event types", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/gamification/event-types", s.studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ets []gamification.EventType
		decode(t, rec, &ets)
		assert.Len(t, ets, 2)

		body := marshalObj(t, gamification.UpdateEventType{Code: "SCORE_20", Name: "Excellent Score", Points: 15})
		rec = do(app, http.MethodPut, "/v1/gamification/event-types", s.teacherToken, body)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(app, http.MethodPut, "/v1/gamification/event-types", s.adminToken, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var et gamification.EventType
		decode(t, rec, &et)
		assert.Equal(t, "score_20", et.Code)
		assert.Equal(t, 15, et.Points)

		// past events are re-valued
		assert.Equal(t, 15, testutil.Profile(t, env, s.student.ID).TotalPoints)
	})

	t.Run("recalculate", func(t *testing.T) {
		rec := do(app, http.MethodPost, amaniPath+"/recalculate", s.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var p gamification.StudentProfile
		decode(t, rec, &p)
		assert.Equal(t, 15, p.TotalPoints)
	})

	t.Run("leaderboard export", func(t *testing.T) {
		rec := do(app, http.MethodGet, "/v1/gamification/leaderboard/export", s.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, reportsvc.XLSXContentType, rec.Header().Get("Content-Type"))

		rec = do(app, http.MethodGet, "/v1/gamification/leaderboard/export", barakaToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_classRoomApi(t *testing.T) {
	app, env := setup(t)
	s := newSchool(t, env)
	baraka := testutil.CreateUser(t, env, "Baraka", "baraka", user.RoleStudent, false, true)

	runTests(t, app, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/classrooms", body: []byte(`{"name":"Form 2"}`), wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "teachers cannot create", method: http.MethodPost, path: "/v1/classrooms", body: []byte(`{"name":"Form 2"}`),
			token: s.teacherToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errNoPermission),
		},
		{
			name: "name required", method: http.MethodPost, path: "/v1/classrooms", body: []byte(`{}`),
			token: s.adminToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, echoapi.ErrorResponse{Detail: "invalid input", Errors: map[string]string{"name": "this field is required"}}),
		},
		{name: "students cannot list", path: "/v1/classrooms", token: s.studentToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "unknown classroom", path: "/v1/classrooms/b3c5d1e0-0000-4000-8000-000000000000/students", token: s.teacherToken, wantCode: http.StatusNotFound},
	})

	rec := do(app, http.MethodPost, "/v1/classrooms", s.adminToken, []byte(`{"name":"  Form 2 ","base":"North"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cr classroom.ClassRoom
	decode(t, rec, &cr)
	assert.Equal(t, "Form 2", cr.Name)

	enrollPath := "/v1/classrooms/" + cr.ID + "/students"
	teacher := testutil.CreateUser(t, env, "T2", "t2", user.RoleTeacher, false, true)
	enroll := func(ids ...string) []byte {
		return marshalObj(t, classroom.Enrollment{StudentIDs: ids})
	}

	runTests(t, app, []httpTest{
		{
			name: "only students", method: http.MethodPost, path: enrollPath, body: enroll(baraka.ID, teacher.ID),
			token: s.adminToken, wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, echoapi.ErrorResponse{
				Detail: "only students can be enrolled",
				Errors: map[string]string{"student_ids": teacher.ID + " is not a student"},
			}),
		},
		{name: "empty", method: http.MethodPost, path: enrollPath, body: enroll(), token: s.adminToken, wantCode: http.StatusBadRequest},
		{
			name: "unknown classroom", method: http.MethodPost, path: "/v1/classrooms/b3c5d1e0-0000-4000-8000-000000000000/students", body: enroll(baraka.ID),
			token: s.adminToken, wantCode: http.StatusNotFound,
		},
		{name: "enroll", method: http.MethodPost, path: enrollPath, body: enroll(baraka.ID, s.student.ID), token: s.adminToken, wantCode: http.StatusOK},
		{name: "enroll again", method: http.MethodPost, path: enrollPath, body: enroll(baraka.ID), token: s.adminToken, wantCode: http.StatusOK},
	})

	t.Run("roster", func(t *testing.T) {
		rec := do(app, http.MethodGet, enrollPath, s.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ids []string
		decode(t, rec, &ids)
		assert.ElementsMatch(t, []string{baraka.ID, s.student.ID}, ids)

		rec = do(app, http.MethodGet, "/v1/classrooms", s.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var crs []classroom.ClassRoom
		decode(t, rec, &crs)
		assert.Len(t, crs, 2)
	})
}
