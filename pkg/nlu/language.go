package nlu

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/cache"
)

const (
	DefaultLanguage = "en"

	detectTTL    = 24 * time.Hour
	translateTTL = time.Hour
)

// Languages wraps language detection and translation with a cache. Every
// failure falls back instead of returning an error.
type Languages struct {
	engine Engine
	cache  cache.Cache
	log    *slog.Logger
}

func NewLanguages(engine Engine, c cache.Cache, log *slog.Logger) *Languages {
	if log == nil {
		log = slog.Default()
	}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &Languages{engine: engine, cache: c, log: log}
}

func digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DetectLanguage returns the detected language of text, else fallback, else "en".
func (l *Languages) DetectLanguage(ctx context.Context, text, fallback string) string {
	if fallback == "" {
		fallback = DefaultLanguage
	}
	if l == nil || l.engine == nil || strings.TrimSpace(text) == "" {
		return fallback
	}
	key := "lang:" + digest(text)
	var lang string
	if hit, err := l.cache.Get(ctx, key, &lang); err == nil && hit && lang != "" {
		return lang
	}
	lang, err := l.engine.DetectLanguage(ctx, text)
	if err != nil || lang == "" {
		l.log.Warn("language_detect_failed", "error", err)
		return fallback
	}
	if err := l.cache.Set(ctx, key, lang, detectTTL); err != nil {
		l.log.Warn("language_cache_write_failed", "error", err)
	}
	return lang
}

// Translate returns text in the target language, or text unchanged on any failure.
func (l *Languages) Translate(ctx context.Context, text, from, to string) string {
	if from == "" {
		from = DefaultLanguage
	}
	if l == nil || l.engine == nil || to == "" || strings.EqualFold(from, to) || strings.TrimSpace(text) == "" {
		return text
	}
	key := "translate:" + from + ":" + to + ":" + digest(text)
	var out string
	if hit, err := l.cache.Get(ctx, key, &out); err == nil && hit && out != "" {
		return out
	}
	out, err := l.engine.Translate(ctx, text, from, to)
	if err != nil || strings.TrimSpace(out) == "" {
		l.log.Warn("translate_failed", "from", from, "to", to, "error", err)
		return text
	}
	if err := l.cache.Set(ctx, key, out, translateTTL); err != nil {
		l.log.Warn("translate_cache_write_failed", "error", err)
	}
	return out
}
