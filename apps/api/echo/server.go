package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/checkout"
)

type (
	ServerDeps struct {
		Conf        *core.Config
		Logger      core.Logger
		BillingSvc  billing.ServiceInterface
		CheckoutSvc checkout.ServiceInterface
		Validate    *validator.Validate
		Translator  ut.Translator
	}

	Server struct {
		conf     *core.Config
		logger   core.Logger
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.BillingSvc, "BillingSvc"),
		vala.IsNotNil(deps.CheckoutSvc, "CheckoutSvc"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
	).CheckAndPanic()

	s := &Server{
		conf:     deps.Conf,
		logger:   deps.Logger,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps ServerDeps) {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, deps.Translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	registerBillingAPI(g, deps.BillingSvc, deps.Validate)
	registerCheckoutAPI(g, deps.CheckoutSvc)
}

// Start blocks until the server stops. Listener errors are reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
