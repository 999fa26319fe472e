package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/resilience"
)

func TestSynthesizeResolvesVoiceAndSendsSettings(t *testing.T) {
	var body struct {
		Text          string        `json:"text"`
		ModelID       string        `json:"model_id"`
		VoiceSettings VoiceSettings `json:"voice_settings"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/21m00Tcm4TlvDq8ikWAM" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "key", BaseURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	audio, err := c.Synthesize(context.Background(), "Hello there", "Rachel")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "ID3audio" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if body.ModelID != ModelQuality || body.VoiceSettings.Stability != 0.35 || !body.VoiceSettings.UseSpeakerBoost {
		t.Fatalf("unexpected request body %+v", body)
	}
}

func TestSynthesizeMapsFailures(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	c, _ := New(Config{APIKey: "key", BaseURL: srv.URL, DevelopmentMode: true}, nil)
	if c.Model() != ModelTurbo {
		t.Fatalf("expected turbo model in development mode")
	}

	if _, err := c.Synthesize(context.Background(), "hi", "custom-voice-id"); !errorsx.IsTransient(err) {
		t.Fatalf("expected transient, got %v", err)
	}
	status = http.StatusTooManyRequests
	if _, err := c.Synthesize(context.Background(), "hi", "will"); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestVoiceForLanguage(t *testing.T) {
	cases := map[[3]string]string{
		{"en", "female", "us"}: "rachel",
		{"en", "male", "gb"}:   "daniel",
		{"es", "female", ""}:   "domi",
		{"ja", "male", ""}:     "adam_multilingual",
		{"ja", "", ""}:         "bella",
	}
	for in, want := range cases {
		if got := VoiceForLanguage(in[0], in[1], in[2]); got != want {
			t.Fatalf("VoiceForLanguage(%v) = %s, want %s", in, got, want)
		}
	}
	if ResolveVoice("") != "21m00Tcm4TlvDq8ikWAM" {
		t.Fatalf("expected empty voice to resolve to rachel")
	}
}
