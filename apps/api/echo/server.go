package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/odontoweb/clinica/core"
	"github.com/odontoweb/clinica/core/appointment"
	"github.com/odontoweb/clinica/core/policy"
	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
)

type (
	// ServerDeps carries everything the API server composes over. All fields
	// are required unless noted.
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		UserSvc    *user.Service
		ApptSvc    *appointment.Service
		SessionDB  session.Store
		Policy     *policy.Table
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		sessions *sessionRegistry

		shutdown     chan os.Signal
		serverErrors chan error
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:         deps,
		app:          echo.New(),
		sessions:     newSessionRegistry(deps.SessionDB, deps.Conf.Session.TTL),
		shutdown:     make(chan os.Signal, 1),
		serverErrors: make(chan error, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash(), s.gateMiddleware())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(conf, s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerAuthAPI(v1, jwt, authDeps{
		conf:     conf,
		verifier: s.deps.UserSvc,
		sessions: s.sessions,
		table:    s.deps.Policy,
		validate: s.deps.Validate,
	})
	registerUserAPI(v1, jwt, s.deps.UserSvc, s.deps.Policy, s.deps.Validate)
	registerAppointmentAPI(v1, jwt, s.deps.ApptSvc, s.deps.UserSvc, s.deps.Policy, s.deps.Validate)

	// every other path is a page navigation; the gate has already decided
	s.app.GET("/*", s.page)
	s.app.GET("/", s.page)
}

func (s *server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.serverErrors <- s.app.Start(s.deps.Conf.Server.Host)
}

func (s *server) Shutdown(ctx context.Context) error {
	s.sessions.Close()
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	s.sessions.Close()
	return s.app.Close()
}

func (s *server) Errors() <-chan error { return s.serverErrors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// signalShutdown is handed to the error handler so an integrity error can
// gracefully bring the server down.
func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) page(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Clinica Dental Universitaria")
}
