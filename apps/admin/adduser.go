package main

import (
	"context"

	"github.com/pkg/errors"
)

// addUser promotes the user matching uname or email to an active admin, creating it if needed.
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string) error {
	usr, err := cli.users.SaveAdmin(ctx, name, uname, email, pwd)
	if err != nil {
		return errors.Wrap(err, "saving admin")
	}
	cli.printf("admin %s saved\n", usr.Username)
	return nil
}
