package twilio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/providers"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

const providerName = "twilio"

type Config struct {
	AccountSID       string `mapstructure:"account_sid"`
	AuthToken        string `mapstructure:"auth_token"`
	FromNumber       string `mapstructure:"from_number"`
	PublicURL        string `mapstructure:"public_url"`
	VoicePath        string `mapstructure:"voice_path"`
	StatusPath       string `mapstructure:"status_path"`
	ValidateRequests bool   `mapstructure:"validate_requests"`
}

func (c Config) withDefaults() Config {
	if c.VoicePath == "" {
		c.VoicePath = "/webhooks/twilio/voice"
	}
	if c.StatusPath == "" {
		c.StatusPath = "/webhooks/twilio/status"
	}
	return c
}

// Configured reports whether outbound dialing is possible.
func (c Config) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer places outbound calls through the Twilio REST API.
type Dialer struct {
	cfg    Config
	client callCreator
	log    *slog.Logger
}

// NewDialer returns a NotConfiguredError when the account credentials are missing.
func NewDialer(cfg Config, log *slog.Logger) (*Dialer, error) {
	cfg = cfg.withDefaults()
	if !cfg.Configured() {
		return nil, errorsx.NotConfigured("twilio")
	}
	if log == nil {
		log = slog.Default()
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Dialer{cfg: cfg, client: rest.Api, log: log}, nil
}

// Dial places a call from the configured number (or from) to to. The voice
// webhook defaults to the public voice path.
func (d *Dialer) Dial(ctx context.Context, to, from, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if from == "" {
		from = d.cfg.FromNumber
	}
	if strings.TrimSpace(to) == "" {
		return "", errorsx.Invalid("to", "required")
	}
	if strings.TrimSpace(from) == "" {
		return "", errorsx.Invalid("from", "required")
	}
	if url == "" {
		url = PublicURL(d.cfg.PublicURL, d.cfg.VoicePath)
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(url)
	if d.cfg.PublicURL != "" {
		params.SetStatusCallback(PublicURL(d.cfg.PublicURL, d.cfg.StatusPath))
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	}
	resp, err := d.client.CreateCall(params)
	if err != nil {
		return "", providers.TransportError(providerName, "create_call", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", fmt.Errorf("missing call sid")
	}
	d.log.Info("twilio_call_created", "call_sid", *resp.Sid)
	return *resp.Sid, nil
}

// PublicURL joins the externally reachable base with path.
func PublicURL(base, path string) string {
	host := normalizePublicURL(base)
	if host == "" {
		return "http://localhost:8080" + path
	}
	return "https://" + host + path
}

func normalizePublicURL(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}
