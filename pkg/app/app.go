// Package app builds the running service from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/voxa/pkg/cache"
	"github.com/harunnryd/voxa/pkg/config"
	"github.com/harunnryd/voxa/pkg/conversation"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/gateway"
	"github.com/harunnryd/voxa/pkg/llm"
	"github.com/harunnryd/voxa/pkg/logging"
	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/nlu"
	"github.com/harunnryd/voxa/pkg/observers"
	"github.com/harunnryd/voxa/pkg/providers/elevenlabs"
	nluclient "github.com/harunnryd/voxa/pkg/providers/nlu"
	"github.com/harunnryd/voxa/pkg/providers/objectstore"
	"github.com/harunnryd/voxa/pkg/providers/twilio"
	"github.com/harunnryd/voxa/pkg/providers/vapi"
	"github.com/harunnryd/voxa/pkg/reconcile"
	"github.com/harunnryd/voxa/pkg/redact"
	"github.com/harunnryd/voxa/pkg/resilience"
	"github.com/harunnryd/voxa/pkg/session"
	"github.com/harunnryd/voxa/pkg/speech"
	"github.com/harunnryd/voxa/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsBuffer = 1024

// App owns every long-lived component. Build it with New, run it with Start
// and release it with Drain.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Store     store.Store
	Cache     cache.Cache
	Metrics   *prometheus.Registry
	Observer  metrics.Observer
	Machine   *session.Machine
	Reaper    *session.Reaper
	Dialer    *session.Dialer
	Sync      *reconcile.Engine
	Scheduler *reconcile.Scheduler
	Vapi      *vapi.Client
	Server    *gateway.Server

	async   *metrics.AsyncObserver
	closers []func() error
	errs    chan error
}

// Options replaces parts of the build, mostly for tests.
type Options struct {
	Registry *ProviderRegistry
	Store    store.Store
	Cache    cache.Cache
}

// New wires the service. Optional providers that are not configured are left
// out and logged; a configured provider that fails to build is an error.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	a := &App{Config: cfg, Logger: log, errs: make(chan error, 1)}
	ok := false
	defer func() {
		if !ok {
			_ = a.close()
		}
	}()

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewPrometheusObserver(a.Metrics)
	a.async = metrics.NewAsyncObserver(observers.NewMultiObserver(
		prom,
		observers.NewLatencyObserver(prom, logging.NewComponentLogger(log, "latency")),
		observers.NewLoggerObserver(logging.NewComponentLogger(log, "metrics")),
	), metricsBuffer)
	a.Observer = a.async

	var err error
	if a.Store, err = a.buildStore(ctx, opts.Store); err != nil {
		return nil, err
	}
	if a.Cache, err = a.buildCache(ctx, opts.Cache); err != nil {
		return nil, err
	}

	engine, err := a.buildNLUEngine()
	if err != nil {
		return nil, err
	}
	completer, llmSettings, err := opts.Registry.BuildLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("providers.llm: %w", err)
	}
	if completer != nil {
		completer = llm.Wrap(completer,
			resilience.NewRetryPolicy(llmRetryAttempts, llmRetryBase),
			resilience.NewCircuitBreaker(llmBreakerFailures, llmBreakerCooldown),
			a.Observer)
	}
	nluLog := logging.NewComponentLogger(log, "nlu")
	chain := nlu.NewChain(engine, completer, nlu.Options{
		ExternalTimeout: cfg.Providers.NLU.Timeout,
		Model:           llmSettings.Model,
		Temperature:     llmSettings.Temperature,
		MaxTokens:       llmSettings.MaxTokens,
	}, a.Observer, nluLog)
	log.Info("nlu_chain_ready", "attempts", strings.Join(chain.Attempts(), ","))

	renderer, err := a.buildSpeech(ctx)
	if err != nil {
		return nil, err
	}

	deps := session.Deps{
		Store:    a.Store,
		Contexts: conversation.NewAssembler(a.Store, a.Cache, cfg.Context, logging.NewComponentLogger(log, "context")),
		NLU:      chain,
		Speech:   renderer,
		Observer: a.Observer,
		Logger:   logging.NewComponentLogger(log, "session"),
	}
	if engine != nil {
		deps.Languages = nlu.NewLanguages(engine, a.Cache, nluLog)
	}
	a.Machine = session.NewMachine(deps, cfg.Session)
	a.Reaper = session.NewReaper(a.Machine, cfg.Session.IdleTTL, cfg.Session.ReaperSchedule, logging.NewComponentLogger(log, "reaper"))

	if err := a.buildRemote(); err != nil {
		return nil, err
	}
	if err := a.buildDialer(); err != nil {
		return nil, err
	}

	auth := gateway.NewAuthenticator(cfg.Auth)
	gwLog := logging.NewComponentLogger(log, "gateway")
	hub := gateway.NewHub(auth, cfg.Server.AllowedOrigins, gwLog)
	a.Machine.AddListener(hub)
	gwDeps := gateway.Deps{
		Machine:  a.Machine,
		Dialer:   a.Dialer,
		Sync:     a.Sync,
		Hub:      hub,
		Auth:     auth,
		Gatherer: a.Metrics,
		Observer: a.Observer,
		Logger:   gwLog,
	}
	if cfg.Providers.Twilio.ValidateRequests {
		gwDeps.TwilioValidator = twilio.NewValidator(cfg.Providers.Twilio.AuthToken)
	}
	a.Server = gateway.New(cfg.Server, gwDeps)

	ok = true
	return a, nil
}

func (a *App) buildStore(ctx context.Context, override store.Store) (store.Store, error) {
	if override != nil {
		return override, nil
	}
	c := a.Config.Store
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "memory":
		a.Logger.Warn("store_in_memory", "hint", "sessions are lost on restart")
		return store.NewMemoryStore(), nil
	case "sqlite":
		s, err := store.NewSQLiteStore(ctx, c.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "postgres":
		s, err := store.NewPostgresStore(ctx, c.DSN, store.PostgresOptions{
			MaxOpenConns:    c.MaxOpenConns,
			MaxIdleConns:    c.MaxIdleConns,
			ConnMaxLifetime: c.ConnMaxLifetime,
			Migrate:         c.Migrate,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

func (a *App) buildCache(ctx context.Context, override cache.Cache) (cache.Cache, error) {
	if override != nil {
		return override, nil
	}
	c := a.Config.Cache
	if strings.EqualFold(strings.TrimSpace(c.Driver), "redis") {
		r, err := cache.NewRedisCache(ctx, cache.RedisOptions{Addr: c.Addr, Password: c.Password, DB: c.DB, KeyPrefix: c.KeyPrefix})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		return r, nil
	}
	return cache.NewMemoryCache(), nil
}

// buildNLUEngine returns a nil interface, not a typed nil, when unconfigured.
func (a *App) buildNLUEngine() (nlu.Engine, error) {
	c := a.Config.Providers.NLU
	if !c.Configured() {
		a.Logger.Info("provider_disabled", "provider", "nlu")
		return nil, nil
	}
	client, err := nluclient.New(nluclient.Config{BaseURL: c.BaseURL, Timeout: c.Timeout})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *App) buildSpeech(ctx context.Context) (*speech.Chain, error) {
	var (
		synth    speech.Synthesizer
		uploader speech.Uploader
	)
	el := a.Config.Providers.ElevenLabs
	if el.Configured() {
		c, err := elevenlabs.New(elevenlabs.Config{
			APIKey:          el.APIKey,
			BaseURL:         el.BaseURL,
			DevelopmentMode: el.DevelopmentMode,
			Timeout:         el.Timeout,
		}, logging.NewComponentLogger(a.Logger, "elevenlabs"))
		if err != nil {
			return nil, err
		}
		synth = c
	} else {
		a.Logger.Info("provider_disabled", "provider", "elevenlabs")
	}
	oc := a.Config.Providers.ObjectStore
	if oc.Configured() {
		s, err := objectstore.NewS3Store(ctx, objectstore.Config{
			Bucket:          oc.Bucket,
			Region:          oc.Region,
			Endpoint:        oc.Endpoint,
			AccessKeyID:     oc.AccessKeyID,
			SecretAccessKey: oc.SecretAccessKey,
			UsePathStyle:    oc.UsePathStyle,
		}, logging.NewComponentLogger(a.Logger, "objectstore"))
		if err != nil {
			return nil, err
		}
		uploader = s
	} else {
		a.Logger.Info("provider_disabled", "provider", "object_store")
	}
	return speech.NewChain(synth, uploader, speech.Options{URLTTL: oc.URLTTL}, a.Observer, logging.NewComponentLogger(a.Logger, "speech")), nil
}

func (a *App) buildRemote() error {
	c := a.Config.Providers.Vapi
	syncLog := logging.NewComponentLogger(a.Logger, "reconcile")
	if c.Configured() {
		client, err := vapi.New(vapi.Config{APIKey: c.APIKey, PublicKey: c.PublicKey, BaseURL: c.BaseURL, Timeout: c.Timeout},
			logging.NewComponentLogger(a.Logger, "vapi"))
		if err != nil {
			return err
		}
		a.Vapi = client
		a.Sync = reconcile.New(client, a.Store, a.Observer, syncLog)
	} else {
		a.Logger.Info("provider_disabled", "provider", "vapi", "error", errorsx.NotConfigured("providers.vapi"))
		a.Sync = reconcile.New(nil, a.Store, a.Observer, syncLog)
	}
	a.Scheduler = reconcile.NewScheduler(a.Sync, a.Config.Reconcile, syncLog)
	return nil
}

func (a *App) buildDialer() error {
	var (
		platform  session.Platform
		telephony session.Telephony
	)
	if a.Vapi != nil {
		platform = a.Vapi
	}
	tc := a.Config.Providers.Twilio
	if tc.PublicURL == "" {
		tc.PublicURL = a.Config.Server.PublicURL
	}
	if tc.VoicePath == "" {
		tc.VoicePath = gateway.PathTwilioVoice
	}
	if tc.StatusPath == "" {
		tc.StatusPath = gateway.PathTwilioStatus
	}
	if tc.Configured() {
		d, err := twilio.NewDialer(tc, logging.NewComponentLogger(a.Logger, "twilio"))
		if err != nil {
			return err
		}
		telephony = d
	}
	if platform == nil && telephony == nil {
		a.Logger.Info("outbound_calls_disabled")
		return nil
	}
	a.Dialer = session.NewDialer(a.Store, platform, telephony, logging.NewComponentLogger(a.Logger, "dialer"))
	return nil
}

// Start launches the schedules and the HTTP server. Server failures are
// reported on Errors.
func (a *App) Start(ctx context.Context) error {
	if err := a.Reaper.Start(ctx); err != nil {
		return fmt.Errorf("reaper: %w", err)
	}
	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("reconcile schedule: %w", err)
	}
	go func() {
		if err := a.Server.Start(); err != nil {
			a.Logger.Error("gateway_failed", "error", err)
			a.errs <- err
		}
	}()
	return nil
}

// Errors delivers a fatal server error.
func (a *App) Errors() <-chan error { return a.errs }

// Drain stops accepting requests, waits for in-flight work and releases
// every resource.
func (a *App) Drain(ctx context.Context) error {
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("gateway shutdown: %w", err))
		}
	}
	if a.Reaper != nil {
		a.Reaper.Stop()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) close() error {
	var errs []error
	if a.async != nil {
		_ = a.async.Drain()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
