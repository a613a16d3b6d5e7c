package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/core/academic"
	"github.com/brijeshkumar2024/smart-attendance/core/attendance"
	"github.com/brijeshkumar2024/smart-attendance/core/class"
	"github.com/brijeshkumar2024/smart-attendance/core/user"
	"github.com/brijeshkumar2024/smart-attendance/services/realtime"
)

type (
	ServerDeps struct {
		Conf          *core.Config
		Logger        core.Logger
		DB            *sqlx.DB
		UserSvc       *user.Service
		ClassSvc      *class.Service
		AttendanceSvc *attendance.Service
		AcademicSvc   *academic.Service
		Hub           *realtime.Hub
		Validate      *validator.Validate
		Translator    ut.Translator
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	appJWTConfig.SigningKey = []byte(conf.SecretKey)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Pre(queryTokenMiddleware())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.AllowedOrigins,
	}))
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/health", s.health)

	jwt := middleware.JWTWithConfig(appJWTConfig)
	s.app.GET("/ws", s.serveWS, jwt)

	api := s.app.Group("/api")
	registerUserAPI(api, jwt, conf, s.deps.UserSvc, s.deps.Validate)
	registerClassAPI(api, jwt, s.deps.ClassSvc, s.deps.UserSvc, s.deps.Validate)
	registerAttendanceAPI(api, jwt, s.deps.AttendanceSvc, s.deps.UserSvc, s.deps.Validate)
	registerAcademicAPI(api, jwt, s.deps.AcademicSvc, s.deps.Validate)
}

// Start starts the server and blocks until it stops.
// A failure to serve is reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errs <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errs }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() { s.shutdown <- syscall.SIGTERM }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }

func (s *Server) Close() error { return s.app.Close() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) serveWS(ctx echo.Context) error {
	if _, err := getContextClaims(ctx); err != nil {
		return err
	}
	return s.deps.Hub.ServeWS(ctx.Response(), ctx.Request())
}

func (s *Server) health(ctx echo.Context) error {
	status := echo.Map{"status": "ok"}
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(ctx.Request().Context()); err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "down", "database": err.Error()})
		}
		status["database"] = "ok"
	}
	return ctx.JSON(http.StatusOK, status)
}
