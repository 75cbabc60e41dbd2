package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")

	// systemActor runs catalog changes requested from the command line.
	systemActor = user.Actor{Role: user.RoleAdmin, IsStaff: true}
)

type commandLine struct {
	db     *sql.DB
	users  *user.Service
	ledger *gamification.Service
	out    io.Writer
}

func (cli *commandLine) printf(format string, a ...interface{}) {
	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, a...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  migrate COMMAND [ARGS] - run a migration command (up, down, status, ...)\n")
	cli.printf("  adduser -name NAME -username USERNAME -email EMAIL - create or promote an admin\n")
	cli.printf("  resetpassword -username USERNAME|EMAIL - reset user's password\n")
	cli.printf("  recalculate [-student STUDENT_ID] - recalculate one or every student profile\n")
	cli.printf("  setlevel -level LEVEL -points MIN_POINTS - add or replace a level threshold\n")
}

func (cli *commandLine) promptPassword() (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	cli.printf("\n")
	return string(pwd), err
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The admin's full name.")
	addUserUname := addUserCmd.String("username", "", "The admin's username.")
	addUserEmail := addUserCmd.String("email", "", "The admin's email. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	recalculateCmd := flag.NewFlagSet("recalculate", flag.ContinueOnError)
	recalculateStudent := recalculateCmd.String("student", "", "The student's ID. Every profile is recalculated when omitted.")

	setLevelCmd := flag.NewFlagSet("setlevel", flag.ContinueOnError)
	setLevelLevel := setLevelCmd.String("level", "", "The level, starting at 2.")
	setLevelPoints := setLevelCmd.String("points", "", "The minimum total points of the level.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(ctx, *addUserName, *addUserUname, *addUserEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordUname, pwd)

	case "recalculate":
		if err := recalculateCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.recalculate(ctx, *recalculateStudent)

	case "setlevel":
		if err := setLevelCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		level, err := strconv.Atoi(*setLevelLevel)
		if err != nil {
			setLevelCmd.Usage()
			return errHelp
		}
		points, err := strconv.Atoi(*setLevelPoints)
		if err != nil {
			setLevelCmd.Usage()
			return errHelp
		}
		return cli.setLevel(ctx, level, points)

	default:
		cli.printUsage()
		return errHelp
	}
}
