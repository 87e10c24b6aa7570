package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/checkout"
	emailsvc "github.com/trezcool/colegio/services/email"
	gatewaysvc "github.com/trezcool/colegio/services/gateway"
	logsvc "github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/database"
	"github.com/trezcool/colegio/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	db, err := database.Setup(ctx, conf)
	cancel()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	// set up services
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	billing.InitValidators(validate, translator)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	billingSvc := billing.NewService(sqlxrepos.NewBillingRepository(db), validate, logger, conf)
	checkoutSvc := checkout.NewService(billingSvc, gatewaysvc.NewClient(conf), mailSvc, validate, logger, conf)

	// start CLI
	cli := commandLine{
		billingSvc:  billingSvc,
		checkoutSvc: checkoutSvc,
		out:         os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
