package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxa.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "memory" || cfg.Cache.Driver != "memory" {
		t.Fatalf("drivers = %q/%q", cfg.Store.Driver, cfg.Cache.Driver)
	}
	if !cfg.Privacy.RedactPII {
		t.Fatalf("expected redact_pii on by default")
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Fatalf("idle ttl = %v", cfg.Session.IdleTTL)
	}
	if cfg.Context.TTL != 300*time.Second || cfg.Context.HistoryTurns != 10 {
		t.Fatalf("context = %+v", cfg.Context)
	}
	if cfg.Providers.Vapi.Configured() || cfg.Providers.NLU.Configured() || cfg.Providers.ObjectStore.Configured() {
		t.Fatalf("no provider should be configured by default")
	}
	if cfg.Providers.NLU.Timeout != 3*time.Second {
		t.Fatalf("nlu timeout = %v, want 3s", cfg.Providers.NLU.Timeout)
	}
	if cfg.Providers.ElevenLabs.Timeout != 3*time.Second {
		t.Fatalf("elevenlabs timeout = %v, want 3s", cfg.Providers.ElevenLabs.Timeout)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TEST_VAPI_KEY", "vapi-secret")
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	path := writeConfig(t, `
server:
  addr: ":9090"
  public_url: "https://voice.example.com"
  allowed_origins: ["https://app.example.com"]
log_format: text
store:
  driver: sqlite
  dsn: "file:voxa.db"
providers:
  vapi:
    api_key: "${TEST_VAPI_KEY}"
  llm:
    provider: openai
    settings:
      api_key: "${TEST_OPENAI_KEY}"
      model: gpt-4o-mini
      timeout: 8s
      max_tokens: 256
reconcile:
  schedule: "*/15 * * * *"
  tenants: [t1, t2]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Providers.Vapi.APIKey != "vapi-secret" {
		t.Fatalf("vapi key not expanded: %q", cfg.Providers.Vapi.APIKey)
	}
	s, err := cfg.Providers.LLM.LLMSettings()
	if err != nil {
		t.Fatalf("decode llm settings: %v", err)
	}
	if s.APIKey != "sk-test" || s.Model != "gpt-4o-mini" || s.Timeout != 8*time.Second || s.MaxTokens != 256 {
		t.Fatalf("llm settings = %+v", s)
	}
	if len(cfg.Reconcile.Tenants) != 2 {
		t.Fatalf("tenants = %v", cfg.Reconcile.Tenants)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("VOXA_LOG_LEVEL", "debug")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"store driver":    "store:\n  driver: mongo\n",
		"postgres dsn":    "store:\n  driver: postgres\n",
		"redis addr":      "cache:\n  driver: redis\n",
		"log format":      "log_format: xml\n",
		"llm provider":    "providers:\n  llm:\n    provider: cohere\n",
		"llm missing key": "providers:\n  llm:\n    provider: anthropic\n    settings:\n      model: claude\n",
		"llm unknown key": "providers:\n  llm:\n    provider: mock\n    settings:\n      colour: blue\n",
		"schedule":        "reconcile:\n  schedule: \"every day\"\n",
		"twilio token":    "providers:\n  twilio:\n    validate_requests: true\n",
		"confidence":      "session:\n  min_confidence: 1.5\n",
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"api_key"}, Optional: []string{"model"}}
	if err := ValidateSettings(map[string]any{"API-Key": "x", "model": "m"}, schema); err != nil {
		t.Fatalf("normalized keys should match: %v", err)
	}
	err := ValidateSettings(map[string]any{"api_key": " ", "extra": 1}, schema)
	if err == nil || !strings.Contains(err.Error(), "missing: api_key") || !strings.Contains(err.Error(), "unknown: extra") {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateSettings(map[string]any{"api_key": "x", "extra": 1}, Schema{Required: []string{"api_key"}, AllowUnknown: true}); err != nil {
		t.Fatalf("unknown keys allowed: %v", err)
	}
}

func TestMaskedYAML(t *testing.T) {
	t.Setenv("TEST_JWT", "jwt-secret-value")
	path := writeConfig(t, `
auth:
  jwt_secret: "${TEST_JWT}"
store:
  driver: postgres
  dsn: "postgres://voxa:hunter2@db:5432/voxa"
providers:
  llm:
    provider: openai
    settings:
      api_key: sk-live-123
  twilio:
    account_sid: AC123
    auth_token: tok
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := cfg.MaskedYAML()
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	dump := string(out)
	for _, secret := range []string{"jwt-secret-value", "hunter2", "sk-live-123", "auth_token: tok"} {
		if strings.Contains(dump, secret) {
			t.Fatalf("dump leaks %q:\n%s", secret, dump)
		}
	}
	for _, want := range []string{"account_sid: AC123", "idle_ttl: 30m0s", "driver: postgres"} {
		if !strings.Contains(dump, want) {
			t.Fatalf("dump missing %q:\n%s", want, dump)
		}
	}
}

func TestExpandEnvFallback(t *testing.T) {
	t.Setenv("TEST_SET", "value")
	t.Setenv("TEST_EMPTY", "")
	cases := map[string]string{
		"plain":                   "plain",
		"${TEST_SET}":             "value",
		"${TEST_SET:-other}":      "value",
		"${TEST_EMPTY:-fallback}": "fallback",
		"${TEST_EMPTY}":           "",
		"${TEST_MISSING:-:6379}":  ":6379",
		"redis://${TEST_SET}/0":   "redis://value/0",
		"${TEST_MISSING}":         "",
	}
	for in, want := range cases {
		if got := expandEnv(in); got != want {
			t.Fatalf("expandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}
