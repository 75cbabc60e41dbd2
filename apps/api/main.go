package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/dabestan/apps/api/echo"
	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
	"github.com/trezcool/dabestan/core/classroom"
	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/core/score"
	"github.com/trezcool/dabestan/core/user"
	"github.com/trezcool/dabestan/services/email"
	"github.com/trezcool/dabestan/services/logger"
	"github.com/trezcool/dabestan/services/notification"
	"github.com/trezcool/dabestan/services/report"
	"github.com/trezcool/dabestan/services/scheduler"
	"github.com/trezcool/dabestan/storage/database"
	"github.com/trezcool/dabestan/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up logger
	logger := logsvc.NewRollbarLogger(os.Stdout, conf)
	defer logger.Close()

	ctx := context.Background()

	// set up DB
	db, err := setUpDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up redis (optional)
	rdb, err := notifysvc.NewRedisClient(ctx, conf.Redis)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
	}
	var queue notifysvc.Queue
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		queue = notifysvc.NewRedisQueue(rdb)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(os.Stdout, conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	tx := sqlxrepos.NewTransactor(db)
	usrRepo := sqlxrepos.NewUserRepository(db)

	notifier := notifysvc.NewService(user.NewDirectory(usrRepo), mailSvc, queue, logger)
	ledger := gamification.NewService(tx, sqlxrepos.NewGamificationRepository(db), notifier, logger)
	usrSvc := user.NewService(tx, usrRepo, ledger)
	classSvc := classroom.NewService(tx, sqlxrepos.NewClassRoomRepository(db), usrSvc)
	attSvc := attendance.NewService(tx, sqlxrepos.NewAttendanceRepository(db), usrSvc, classSvc, ledger, conf.TimeZone)
	scoreSvc := score.NewService(tx, sqlxrepos.NewScoreRepository(db), usrSvc, classSvc, ledger)
	reportSvc := reportsvc.NewService(usrSvc, attSvc, ledger, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	sched := schedsvc.New(conf.TimeZone, logger)
	if conf.Scheduler.Enabled {
		jobs := []schedsvc.Job{schedsvc.RecalculateJob(conf.Scheduler.RecalculateSchedule, ledger, logger)}
		if queue != nil {
			jobs = append(jobs, schedsvc.FlushNotificationsJob(conf.Scheduler.NotifyFlushSchedule, notifier))
		}
		for _, job := range jobs {
			if err = sched.Add(job); err != nil {
				logger.Fatal(fmt.Sprintf("scheduling jobs: %v", err), err)
			}
		}
		sched.Start()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			UserSvc:       usrSvc,
			ClassRoomSvc:  classSvc,
			AttendanceSvc: attSvc,
			ScoreSvc:      scoreSvc,
			LedgerSvc:     ledger,
			ReportSvc:     reportSvc,
		},
	)
	server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests and jobs a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
	if conf.Scheduler.Enabled {
		if err = sched.Stop(shutdownCtx); err != nil {
			logger.Error("could not stop scheduler gracefully", err)
		}
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
