package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core/gamification"
)

// recalculate re-sums the ledger of one student, or of every student when studentID is empty.
func (cli *commandLine) recalculate(ctx context.Context, studentID string) error {
	if studentID == "" {
		n, err := cli.ledger.RecalculateAll(ctx)
		cli.printf("%d profiles recalculated\n", n)
		return err
	}
	res, err := cli.ledger.RecalculateStudent(ctx, systemActor, studentID)
	if err != nil {
		return err
	}
	cli.printf("student %s: level %d, %d points\n", studentID, res.Profile.Level, res.Profile.TotalPoints)
	return nil
}

func (cli *commandLine) setLevel(ctx context.Context, level, minPoints int) error {
	err := cli.ledger.SetThreshold(ctx, systemActor, gamification.LevelThreshold{Level: level, MinPoints: minPoints})
	if err != nil {
		return errors.Wrapf(err, "setting level %d", level)
	}
	cli.printf("level %d starts at %d points\n", level, minPoints)
	return nil
}
