// Package speech renders reply text as either a hosted audio URL (premium) or
// inline SSML markup for the telephony provider's own voices (baseline).
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/providers/elevenlabs"
	"github.com/harunnryd/voxa/pkg/resilience"
)

type Kind string

const (
	KindURL    Kind = "url"
	KindMarkup Kind = "markup"

	AttemptPremium  = "premium"
	AttemptBaseline = "baseline"

	DefaultURLTTL = time.Hour
)

// Audio is what the gateway plays back: a URL or inline markup.
type Audio struct {
	Kind     Kind   `json:"kind"`
	URL      string `json:"url,omitempty"`
	Markup   string `json:"markup,omitempty"`
	Voice    string `json:"voice"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type Request struct {
	Text     string
	Language string
	// Voice is the agent's baseline voice, PremiumVoice its premium voice name or id.
	Voice        string
	PremiumVoice string
}

type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string, ttl time.Duration) (string, error)
}

type Options struct {
	URLTTL time.Duration
	Retry  resilience.RetryPolicy
}

type Chain struct {
	synth    Synthesizer
	uploader Uploader
	premium  bool
	opts     Options
	obs      metrics.Observer
	log      *slog.Logger
	now      func() time.Time
}

// NewChain decides once whether the premium path is active: it needs both a
// synthesizer and an uploader.
func NewChain(synth Synthesizer, uploader Uploader, opts Options, obs metrics.Observer, log *slog.Logger) *Chain {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = DefaultURLTTL
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.NewRetryPolicy(2, 200*time.Millisecond)
	}
	c := &Chain{
		synth:    synth,
		uploader: uploader,
		premium:  synth != nil && uploader != nil,
		opts:     opts,
		obs:      obs,
		log:      log,
		now:      time.Now,
	}
	log.Info("speech_chain_ready", "premium", c.premium)
	return c
}

func (c *Chain) Premium() bool { return c.premium }

// Render never fails: premium errors fall back to baseline markup.
func (c *Chain) Render(ctx context.Context, req Request) Audio {
	if c.premium {
		start := time.Now()
		audio, err := c.renderPremium(ctx, req)
		elapsed := float64(time.Since(start).Milliseconds())
		if err == nil {
			metrics.Record(c.obs, metrics.EventTTSAttempt, elapsed, map[string]string{"attempt": AttemptPremium, "outcome": "success"})
			return audio
		}
		metrics.Record(c.obs, metrics.EventTTSAttempt, elapsed, map[string]string{"attempt": AttemptPremium, "outcome": "error"})
		c.log.Warn("tts_fallback", "provider", c.synth.Name(), "reason", string(errorsx.Reason(err)), "error", err)
	}
	audio := Baseline(req)
	metrics.Record(c.obs, metrics.EventTTSAttempt, 0, map[string]string{"attempt": AttemptBaseline, "outcome": "success"})
	return audio
}

func (c *Chain) renderPremium(ctx context.Context, req Request) (Audio, error) {
	voice := strings.TrimSpace(req.PremiumVoice)
	if voice == "" {
		voice = elevenlabs.VoiceForLanguage(baseLanguage(req.Language), "", "")
	}
	data, err := resilience.Retry(ctx, c.opts.Retry, func(ctx context.Context) ([]byte, error) {
		return c.synth.Synthesize(ctx, req.Text, voice)
	})
	if err != nil {
		return Audio{}, errorsx.Wrap(err, errorsx.ReasonTTSPremium)
	}
	if len(data) == 0 {
		return Audio{}, errorsx.Wrap(fmt.Errorf("%s returned no audio", c.synth.Name()), errorsx.ReasonTTSPremium)
	}
	key := fmt.Sprintf("audio/elevenlabs/%d-%s.mp3", c.now().UnixMilli(), uuid.NewString())
	url, err := c.uploader.Upload(ctx, key, data, "audio/mpeg", c.opts.URLTTL)
	if err != nil {
		return Audio{}, errorsx.Wrap(err, errorsx.ReasonTTSUpload)
	}
	return Audio{
		Kind:     KindURL,
		URL:      url,
		Voice:    voice,
		Language: req.Language,
		Text:     req.Text,
	}, nil
}

// Baseline renders SSML for the telephony provider's neural voices.
func Baseline(req Request) Audio {
	return Audio{
		Kind:     KindMarkup,
		Markup:   SSML(req.Text),
		Voice:    BaselineVoice(req.Voice, req.Language),
		Language: Locale(req.Language),
		Text:     req.Text,
	}
}
