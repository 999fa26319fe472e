package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/providers"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io/v1"
	ModelTurbo     = "eleven_turbo_v2_5"
	ModelQuality   = "eleven_multilingual_v2"
)

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings favors an expressive, conversational delivery.
var DefaultVoiceSettings = VoiceSettings{
	Stability:       0.35,
	SimilarityBoost: 0.75,
	Style:           0.3,
	UseSpeakerBoost: true,
}

type Config struct {
	APIKey  string
	BaseURL string
	// DevelopmentMode selects the turbo model at half the character cost.
	DevelopmentMode bool
	Settings        *VoiceSettings
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Client is a REST client for text-to-speech synthesis.
type Client struct {
	apiKey   string
	baseURL  string
	model    string
	settings VoiceSettings
	http     *http.Client
	log      *slog.Logger
}

func New(cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errorsx.NotConfigured("providers.elevenlabs")
	}
	if log == nil {
		log = slog.Default()
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	model := ModelQuality
	if cfg.DevelopmentMode {
		model = ModelTurbo
	}
	settings := DefaultVoiceSettings
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{apiKey: cfg.APIKey, baseURL: base, model: model, settings: settings, http: hc, log: log}, nil
}

func (c *Client) Name() string { return "elevenlabs" }

func (c *Client) Model() string { return c.model }

// Synthesize renders text with the given voice name or id and returns MP3 bytes.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	voiceID := ResolveVoice(voice)
	body, err := json.Marshal(map[string]any{
		"text":           text,
		"model_id":       c.model,
		"voice_settings": c.settings,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/text-to-speech/"+url.PathEscape(voiceID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providers.TransportError("elevenlabs", "synthesize", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.TransportError("elevenlabs", "synthesize", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, providers.StatusError("elevenlabs", "synthesize", resp.StatusCode, string(data))
	}
	c.log.Debug("elevenlabs_synthesized",
		slog.String("voice_id", voiceID),
		slog.Int("chars", len(text)),
		slog.Int("bytes", len(data)))
	return data, nil
}

type Voice struct {
	VoiceID     string            `json:"voice_id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Labels      map[string]string `json:"labels"`
	Description string            `json:"description"`
	PreviewURL  string            `json:"preview_url"`
}

// Voices lists the voices available to the account.
func (c *Client) Voices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, providers.TransportError("elevenlabs", "voices", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, providers.StatusError("elevenlabs", "voices", resp.StatusCode, string(data))
	}
	var payload struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Voices, nil
}
