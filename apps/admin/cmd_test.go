package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/user"
	"github.com/trezcool/dabestan/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env) {
	env := testutil.NewEnv(t)
	return &commandLine{
		users:  env.Users,
		ledger: env.Ledger,
		out:    io.Discard,
	}, env
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkRunErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if errors.Cause(err) != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "attendance_notes", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env := setup(t)
	usr := testutil.CreateUser(t, env, "User", "awe", user.RoleTeacher, false, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			checkRunErr(t, tt, err)
			if err == nil {
				pwd := tt.extra.(extra).pwd
				if _, err = env.Users.Authenticate(context.Background(), usr.Username, pwd); err != nil {
					t.Errorf("failed to update password: %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env := setup(t)
	teacher := testutil.CreateUser(t, env, "Teacher", "teacher", user.RoleTeacher, false, false)

	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(testutil.DefaultPassword), nil
	}

	tests := []struct {
		cliTest
		wantUname string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"adduser"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "new admin", args: []string{"adduser", "-name", "Root", "-username", "Root", "-email", "root@dabestan.test"}}, wantUname: "root"},
		{cliTest: cliTest{name: "promote by email", args: []string{"adduser", "-email", teacher.Email}}, wantUname: teacher.Username},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt.cliTest, cli.run(args))
			if tt.wantUname == "" {
				return
			}
			usr, err := env.Users.Authenticate(context.Background(), tt.wantUname, testutil.DefaultPassword)
			if err != nil {
				t.Fatalf("Authenticate() failed: %v", err)
			}
			if usr.Role != user.RoleAdmin || !usr.IsStaff || !usr.IsActive {
				t.Errorf("user = %+v; want an active staff admin", usr)
			}
		})
	}
}

func Test_commandLine_gamification(t *testing.T) {
	cli, env := setup(t)
	student := testutil.CreateUser(t, env, "Amani", "amani", user.RoleStudent, false, true)
	if _, err := env.Ledger.Award(context.Background(), student.ID, gamification.Score20, gamification.Score20Note); err != nil {
		t.Fatalf("Award() failed: %v", err)
	}

	tests := []cliTest{
		{name: "setlevel: no args", args: []string{"setlevel"}, wantErr: errHelp},
		{name: "setlevel: non-int level", args: []string{"setlevel", "-level", "two", "-points", "10"}, wantErr: errHelp},
		{name: "setlevel: gap", args: []string{"setlevel", "-level", "3", "-points", "10"}, wantErrStr: "setting level 3: invalid level thresholds"},
		{name: "setlevel", args: []string{"setlevel", "-level", "2", "-points", "10"}},
		{name: "recalculate: unknown student", args: []string{"recalculate", "-student", "b3c5d1e0-0000-4000-8000-000000000000"}, wantErrStr: "student profile not found"},
		{name: "recalculate student", args: []string{"recalculate", "-student", student.ID}},
		{name: "recalculate all", args: []string{"recalculate"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}

	p := testutil.Profile(t, env, student.ID)
	if p.Level != 2 || p.TotalPoints != 10 {
		t.Errorf("profile = %+v; want level 2 with 10 points", p)
	}

	// min_points must increase with levels
	err := cli.setLevel(context.Background(), 3, 5)
	if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
		t.Errorf("setLevel() error = %v; want a validation error", err)
	}
}
