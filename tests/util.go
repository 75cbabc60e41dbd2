package testutil

import (
	"context"
	"io"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
	"github.com/trezcool/dabestan/core/classroom"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/score"
	"github.com/trezcool/dabestan/core/user"
	"github.com/trezcool/dabestan/services/logger"
	"github.com/trezcool/dabestan/storage/database/dummy"
)

const DefaultPassword = "Dab3stan!Pwd"

// Config returns the configuration used by tests.
func Config() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Dabestan",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:8080",
		DefaultFromEmail: mail.Address{Name: "Dabestan", Address: "noreply@localhost"},
		TimeZone:         time.UTC,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
	}
}

// Logger discards every entry.
func Logger() core.Logger {
	return logsvc.NewRollbarLogger(io.Discard, Config())
}

// Validator returns a validator with every custom validation and English translation registered.
func Validator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

// RecordingNotifier keeps the level-ups it is told about.
type RecordingNotifier struct {
	mu       sync.Mutex
	levelUps []gamification.LevelUp
}

var _ gamification.Notifier = (*RecordingNotifier)(nil) // interface compliance check

func (n *RecordingNotifier) NotifyLevelUp(_ context.Context, lu gamification.LevelUp) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levelUps = append(n.levelUps, lu)
	return nil
}

func (n *RecordingNotifier) LevelUps() []gamification.LevelUp {
	n.mu.Lock()
	defer n.mu.Unlock()
	lus := make([]gamification.LevelUp, len(n.levelUps))
	copy(lus, n.levelUps)
	return lus
}

// Env wires every service over a set of repositories, a fresh in-memory database by default.
type Env struct {
	DB       *dummydb.DB
	Notifier *RecordingNotifier

	UserRepo         user.Repository
	ClassRoomRepo    classroom.Repository
	GamificationRepo gamification.Repository
	AttendanceRepo   attendance.Repository
	ScoreRepo        score.Repository

	Users      *user.Service
	ClassRooms *classroom.Service
	Ledger     *gamification.Service
	Attendance *attendance.Service
	Scores     *score.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	db := dummydb.Open()
	env := &Env{
		DB:               db,
		Notifier:         new(RecordingNotifier),
		UserRepo:         dummydb.NewUserRepository(db),
		ClassRoomRepo:    dummydb.NewClassRoomRepository(db),
		GamificationRepo: dummydb.NewGamificationRepository(db),
		AttendanceRepo:   dummydb.NewAttendanceRepository(db),
		ScoreRepo:        dummydb.NewScoreRepository(db),
	}
	return Wire(env, db)
}

// Wire builds the services over the repositories env already holds.
func Wire(env *Env, tx core.Transactor) *Env {
	if env.Notifier == nil {
		env.Notifier = new(RecordingNotifier)
	}
	env.Ledger = gamification.NewService(tx, env.GamificationRepo, env.Notifier, Logger())
	env.Users = user.NewService(tx, env.UserRepo, env.Ledger)
	env.ClassRooms = classroom.NewService(tx, env.ClassRoomRepo, env.Users)
	env.Attendance = attendance.NewService(tx, env.AttendanceRepo, env.Users, env.ClassRooms, env.Ledger, time.UTC)
	env.Scores = score.NewService(tx, env.ScoreRepo, env.Users, env.ClassRooms, env.Ledger)
	return env
}

// CreateUser creates a user through the user service, so students get their profile.
func CreateUser(t *testing.T, env *Env, name, uname string, role user.Role, isStaff, isActive bool) user.User {
	t.Helper()
	ctx := context.Background()
	usr, err := env.Users.Create(ctx, user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           uname + "@dabestan.test",
		Role:            role,
		IsStaff:         isStaff,
		Password:        DefaultPassword,
		PasswordConfirm: DefaultPassword,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if !isActive {
		if usr, err = env.Users.SetActive(ctx, usr.ID, false); err != nil {
			t.Fatalf("CreateUser() failed to deactivate: %v", err)
		}
	}
	return usr
}

// CreateClassRoom creates a classroom with the given students enrolled.
func CreateClassRoom(t *testing.T, env *Env, name string, students ...user.User) classroom.ClassRoom {
	t.Helper()
	ctx := context.Background()
	cr, err := env.ClassRoomRepo.CreateClassRoom(ctx, classroom.ClassRoom{Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateClassRoom() failed: %v", err)
	}
	if len(students) > 0 {
		ids := make([]string, 0, len(students))
		for _, s := range students {
			ids = append(ids, s.ID)
		}
		if err = env.ClassRoomRepo.AddStudents(ctx, cr.ID, ids); err != nil {
			t.Fatalf("CreateClassRoom() failed to enroll: %v", err)
		}
	}
	return cr
}

// SetThresholds stores level thresholds without going through validation.
func SetThresholds(t *testing.T, env *Env, thresholds ...gamification.LevelThreshold) {
	t.Helper()
	for _, th := range thresholds {
		if err := env.GamificationRepo.SaveThreshold(context.Background(), th); err != nil {
			t.Fatalf("SetThresholds() failed: %v", err)
		}
	}
}

// Profile returns the student's gamification profile.
func Profile(t *testing.T, env *Env, studentID string) gamification.StudentProfile {
	t.Helper()
	p, err := env.GamificationRepo.GetProfile(context.Background(), studentID)
	if err != nil {
		t.Fatalf("Profile() failed: %v", err)
	}
	return p
}

// Events returns the student's ledger.
func Events(t *testing.T, env *Env, studentID string) []gamification.StudentEvent {
	t.Helper()
	p := Profile(t, env, studentID)
	evs, err := env.GamificationRepo.QueryEvents(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	return evs
}
