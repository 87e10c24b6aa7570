package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/colegio/apps/api/echo"
	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/checkout"
	emailsvc "github.com/trezcool/colegio/services/email"
	gatewaysvc "github.com/trezcool/colegio/services/gateway"
	logsvc "github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/database"
	inmemdb "github.com/trezcool/colegio/storage/database/inmem"
	"github.com/trezcool/colegio/storage/database/sqlxrepos"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Options tweak the container before it is built.
type Options struct {
	// InMemory swaps the Postgres billing repository for the in-memory one.
	InMemory bool
	// Visualize dumps the dependency graph (dot format) to stdout.
	Visualize bool
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout*6)
	defer cancel()

	db, err := database.Setup(ctx, conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := core.NewValidator(translator)
	billing.InitValidators(validate, translator)
	return validate
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	billingSvc billing.ServiceInterface,
	checkoutSvc checkout.ServiceInterface,
	validate *validator.Validate,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			BillingSvc:  billingSvc,
			CheckoutSvc: checkoutSvc,
			Validate:    validate,
			Translator:  translator,
		},
	)
}

// New returns a new dependency injection dig.Container
func New(opts Options) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	if opts.InMemory {
		must(c.Provide(inmemdb.NewDB))
		must(c.Provide(inmemdb.NewBillingRepository))
	} else {
		must(c.Provide(newDB))
		must(c.Provide(sqlxrepos.NewBillingRepository))
	}
	must(c.Provide(newEmailService))
	must(c.Provide(gatewaysvc.NewClient, dig.As(new(checkout.Gateway))))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(billing.NewService, dig.As(new(billing.ServiceInterface))))
	must(c.Provide(checkout.NewService, dig.As(new(checkout.ServiceInterface))))
	must(c.Provide(newServer))

	if opts.Visualize {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
