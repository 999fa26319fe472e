package mock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type TTSConfig struct {
	Audio []byte
	Err   error
}

// Synthesizer returns fixed audio bytes for every request.
type Synthesizer struct {
	cfg   TTSConfig
	mu    sync.Mutex
	calls int
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if cfg.Audio == nil {
		cfg.Audio = []byte("ID3mock")
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Synthesize(_ context.Context, _ string, _ string) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.cfg.Err != nil {
		return nil, s.cfg.Err
	}
	return s.cfg.Audio, nil
}

func (s *Synthesizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ObjectStore keeps uploads in memory and hands out fake URLs.
type ObjectStore struct {
	BaseURL string
	Err     error

	mu      sync.Mutex
	objects map[string][]byte
}

func NewObjectStore(baseURL string) *ObjectStore {
	return &ObjectStore{BaseURL: baseURL, objects: make(map[string][]byte)}
}

func (o *ObjectStore) Upload(_ context.Context, key string, data []byte, _ string, ttl time.Duration) (string, error) {
	if o.Err != nil {
		return "", o.Err
	}
	o.mu.Lock()
	o.objects[key] = append([]byte(nil), data...)
	o.mu.Unlock()
	return fmt.Sprintf("%s/%s?expires=%d", o.BaseURL, key, int(ttl.Seconds())), nil
}

func (o *ObjectStore) Objects() map[string][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]byte, len(o.objects))
	for k, v := range o.objects {
		out[k] = v
	}
	return out
}
