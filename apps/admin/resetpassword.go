package main

import (
	"context"
)

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.users.SetPassword(ctx, uname, pwd)
	if err != nil {
		return err
	}
	cli.printf("password of %s reset\n", usr.Username)
	return nil
}
