package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/prepcards/apps/jobs"
	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/card"
	appfs "github.com/trezcool/prepcards/fs"
	emailsvc "github.com/trezcool/prepcards/services/email"
	logsvc "github.com/trezcool/prepcards/services/logger"
	"github.com/trezcool/prepcards/storage/database"
	sqlxrepos "github.com/trezcool/prepcards/storage/database/sqlx"
)

func main() {
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		stdLogger.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	if err = core.ParseEmailTemplates(appfs.FS, false); err != nil {
		logger.Fatal("parsing email templates", err)
	}

	reflDict, crpDict, err := jobs.LoadDictionaries(conf)
	if err != nil {
		logger.Fatal("loading theme dictionaries", err)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// start CLI
	cli := commandLine{
		conf:    conf,
		db:      db,
		cardSvc: card.NewService(sqlxrepos.NewCardRepository(db), validate, nil),
		jobs:    jobs.NewRunner(jobs.NewPipeline(conf, db, reflDict, crpDict, mailSvc, logger, nil), nil, logger),
		out:     os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
