package main

import (
	"context"
	"fmt"
	"os"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/user"
	"github.com/trezcool/dabestan/services/email"
	"github.com/trezcool/dabestan/services/logger"
	"github.com/trezcool/dabestan/services/notification"
	"github.com/trezcool/dabestan/storage/database"
	"github.com/trezcool/dabestan/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stderr, conf)
	ctx := context.Background()

	// set up DB
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// level-ups caused by recalculations go through the API's queue when there is one
	rdb, err := notifysvc.NewRedisClient(ctx, conf.Redis)
	if err != nil {
		logger.Warn("redis unavailable, level-ups are emailed directly", err)
	}
	var queue notifysvc.Queue
	if rdb != nil {
		queue = notifysvc.NewRedisQueue(rdb)
	}
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(os.Stdout, conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(conf, logger)

	tx := sqlxrepos.NewTransactor(db)
	usrRepo := sqlxrepos.NewUserRepository(db)
	notifier := notifysvc.NewService(user.NewDirectory(usrRepo), mailSvc, queue, logger)
	ledger := gamification.NewService(tx, sqlxrepos.NewGamificationRepository(db), notifier, logger)

	// start CLI
	cli := commandLine{
		db:     db.DB,
		users:  user.NewService(tx, usrRepo, ledger),
		ledger: ledger,
	}
	err = cli.run(os.Args)

	if rdb != nil {
		_ = rdb.Close()
	}
	_ = db.Close()
	logger.Close()

	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
