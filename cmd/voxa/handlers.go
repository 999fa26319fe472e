package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harunnryd/voxa/pkg/app"
	"github.com/harunnryd/voxa/pkg/config"
	"github.com/harunnryd/voxa/pkg/logging"
	"github.com/harunnryd/voxa/pkg/runner"
	"github.com/harunnryd/voxa/pkg/session"
)

const defaultConfigName = "voxa.yaml"

// resolveConfigPath prefers the flag, then VOXA_CONFIG, then ./voxa.yaml when
// it exists. An empty result runs on defaults and the environment alone.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("VOXA_CONFIG")); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}
	return ""
}

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	return cfg, log, nil
}

func runServe(ctx context.Context, configPath string, drainTimeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	go func() {
		select {
		case err := <-a.Errors():
			cancel(err)
		case <-ctx.Done():
		}
	}()

	log.Info("voxa_starting",
		"version", runner.Version,
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"config", configPath,
	)
	r := runner.NewLifecycleRunner(a, runner.Hooks{
		OnStart: a.Start,
		OnStop:  func() { log.Info("voxa_stopped") },
	}, drainTimeout)
	if err := r.Run(ctx); err != nil {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// withApp builds the service without starting it and releases it afterwards.
func withApp(ctx context.Context, configPath string, fn func(*app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.Drain(context.Background()); err != nil {
		log.Warn("release_failed", "error", err)
	}
	return runErr
}

func runSync(ctx context.Context, out io.Writer, configPath, action, tenant string) error {
	return withApp(ctx, configPath, func(a *app.App) error {
		e := a.Sync
		var (
			res any
			err error
		)
		switch action {
		case "full":
			full := e.FullSync(ctx, tenant)
			res = full
			if !full.Success {
				err = errors.New("full sync finished with errors")
			}
		case "status":
			res, err = e.Status(ctx, tenant)
		case "phones-in":
			res, err = e.ImportPhoneNumbers(ctx, tenant)
		case "phones-out":
			res, err = e.ExportPhoneNumbers(ctx, tenant)
		case "assistants-in":
			res, err = e.ImportAssistants(ctx, tenant)
		case "agents-out":
			res, err = e.ExportAgents(ctx, tenant)
		default:
			return fmt.Errorf("unknown sync action %q", action)
		}
		if err != nil && action != "full" {
			return err
		}
		if werr := writeJSON(out, res); werr != nil {
			return werr
		}
		return err
	})
}

func runCall(ctx context.Context, out io.Writer, configPath, tenant, agent, to string, vars map[string]string) error {
	return withApp(ctx, configPath, func(a *app.App) error {
		if a.Dialer == nil {
			return errors.New("outbound calling is not configured: set providers.vapi.api_key or providers.twilio")
		}
		req := session.OutboundRequest{TenantID: tenant, PhoneNumber: to, AgentID: agent}
		if len(vars) > 0 {
			req.CustomerData = make(map[string]any, len(vars))
			for k, v := range vars {
				req.CustomerData[k] = v
			}
		}
		res, err := a.Dialer.PlaceOutboundCall(ctx, req)
		if err != nil {
			return err
		}
		return writeJSON(out, res)
	})
}

func runConfig(out io.Writer, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	b, err := cfg.MaskedYAML()
	if err != nil {
		return err
	}
	_, err = out.Write(b)
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
