// Package gateway is the HTTP surface: provider webhooks, the reconciliation
// and outbound-call REST API, the live event stream, health and metrics.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/providers/twilio"
	"github.com/harunnryd/voxa/pkg/reconcile"
	"github.com/harunnryd/voxa/pkg/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultAddr = ":8080"

	PathVapiWebhook    = "/webhooks/vapi"
	PathTwilioVoice    = "/webhooks/twilio/voice"
	PathTwilioSpeech   = "/webhooks/twilio/speech"
	PathTwilioStatus   = "/webhooks/twilio/status"
	PathTwilioRecord   = "/webhooks/twilio/recording"
	PathEvents         = "/ws/events"
	PathOutboundCall   = "/calls/outbound"
	defaultBodyLimit   = "1M"
	defaultReadTimeout = 15 * time.Second
)

type Config struct {
	Addr         string        `mapstructure:"addr"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins limits browser origins on the event stream; empty allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	return c
}

type Deps struct {
	Machine *session.Machine
	// Dialer and Sync are optional; their routes answer 503 when nil.
	Dialer *session.Dialer
	Sync   *reconcile.Engine
	Hub    *Hub
	Auth   *Authenticator
	// TwilioValidator enables X-Twilio-Signature checks when set.
	TwilioValidator *twilio.Validator
	Gatherer        prometheus.Gatherer
	Observer        metrics.Observer
	Logger          *slog.Logger
}

type Server struct {
	cfg     Config
	echo    *echo.Echo
	machine *session.Machine
	dialer  *session.Dialer
	sync    *reconcile.Engine
	hub     *Hub
	auth    *Authenticator
	twilio  *twilio.Validator
	obs     metrics.Observer
	log     *slog.Logger
	started time.Time
}

func New(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	obs := deps.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	auth := deps.Auth
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{})
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(auth, cfg.AllowedOrigins, log)
	}
	s := &Server{
		cfg:     cfg,
		echo:    echo.New(),
		machine: deps.Machine,
		dialer:  deps.Dialer,
		sync:    deps.Sync,
		hub:     hub,
		auth:    auth,
		twilio:  deps.TwilioValidator,
		obs:     obs,
		log:     log,
		started: time.Now(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(defaultBodyLimit))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency_ms", v.Latency.Milliseconds()}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
				s.log.Warn("http_request", attrs...)
				return nil
			}
			s.log.Debug("http_request", attrs...)
			return nil
		},
	}))
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.RegisterRoutes(s.echo, gatherer)
	return s
}

// RegisterRoutes mounts every route on e.
func (s *Server) RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	e.GET("/health", s.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	e.POST(PathVapiWebhook, s.HandleVapiWebhook)

	e.POST(PathTwilioVoice, s.HandleTwilioVoice, s.verifyTwilio)
	e.POST(PathTwilioSpeech, s.HandleTwilioSpeech, s.verifyTwilio)
	e.POST(PathTwilioStatus, s.HandleTwilioStatus, s.verifyTwilio)
	e.POST(PathTwilioRecord, s.HandleTwilioRecording, s.verifyTwilio)

	e.GET(PathEvents, s.hub.Serve)

	authed := s.auth.Middleware
	e.GET("/sync/status", s.SyncStatus, authed)
	e.POST("/sync/phone-numbers/from-remote", s.syncStep(reconcile.StepPhonesFromRemote), authed)
	e.POST("/sync/phone-numbers/to-remote", s.syncStep(reconcile.StepPhonesToRemote), authed)
	e.POST("/sync/assistants/from-remote", s.syncStep(reconcile.StepAgentsFromRemote), authed)
	e.POST("/sync/agents/to-remote", s.syncStep(reconcile.StepAgentsToRemote), authed)
	e.POST("/sync/full", s.FullSync, authed)
	e.POST(PathOutboundCall, s.PlaceOutboundCall, authed)
}

func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Addr() string { return s.cfg.Addr }

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("gateway_listening", "addr", s.cfg.Addr)
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.echo.Shutdown(ctx)
}

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"sync":           s.sync != nil && s.sync.Configured(),
		"outbound":       s.dialer != nil,
		"stream_clients": s.hub.Len(),
	})
}
