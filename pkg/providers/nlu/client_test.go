package nlu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
)

func TestProcessDecodesEngineReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ProcessRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/process" || req.CallID != "call-1" || req.AgentID != "a1" {
			t.Errorf("unexpected request %s %+v", r.URL.Path, req)
		}
		_, _ = w.Write([]byte(`{"response":"Goodbye!","intent":"farewell","sentiment":"positive","confidence":0.9,"should_end_call":true}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := c.Process(context.Background(), ProcessRequest{Text: "bye", Language: "en", AgentID: "a1", CallID: "call-1"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !out.ShouldEndCall || out.Intent != "farewell" || out.Response != "Goodbye!" {
		t.Fatalf("unexpected reply %+v", out)
	}
}

func TestProcessTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Process(context.Background(), ProcessRequest{Text: "hi"})
	if !errorsx.IsTransient(err) {
		t.Fatalf("expected transient timeout, got %v", err)
	}
}

func TestTranslateAndDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/detect-language":
			_, _ = w.Write([]byte(`{"language":"es"}`))
		case "/translate":
			_, _ = w.Write([]byte(`{"translated_text":"Hola"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	lang, err := c.DetectLanguage(context.Background(), "hola amigo")
	if err != nil || lang != "es" {
		t.Fatalf("detect: %q %v", lang, err)
	}
	text, err := c.Translate(context.Background(), "Hello", "en", "es")
	if err != nil || text != "Hola" {
		t.Fatalf("translate: %q %v", text, err)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{}); !errorsx.IsNotConfigured(err) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
