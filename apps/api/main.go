package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/colegio/apps/api/di/dig"
	echoapi "github.com/trezcool/colegio/apps/api/echo"
	"github.com/trezcool/colegio/core"
)

type appParams struct {
	dig.In

	Conf     *core.Config
	Logger   core.Logger
	DBLogger core.Logger `name:"dbLogger"`
	DB       *sqlx.DB    `optional:"true"` // nil when running in memory
	Server   *echoapi.Server
}

func main() {
	inMemory := flag.Bool("inmem", false, "use the in-memory billing store instead of Postgres")
	visualize := flag.Bool("graph", false, "print the dependency graph and exit")
	flag.Parse()

	c := dig_container.New(dig_container.Options{InMemory: *inMemory, Visualize: *visualize})
	if *visualize {
		return
	}

	if err := c.Invoke(run); err != nil {
		log.Fatal(err)
	}
}

func run(p appParams) {
	conf, logger, server := p.Conf, p.Logger, p.Server

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(conf, logger)

	if p.DB != nil {
		defer func() {
			if err := p.DB.Close(); err != nil {
				p.DBLogger.Fatal("Failed to close", err)
			}
		}()
	}

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
	// Start API Service

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
