package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/llm"
)

func TestCompleteJoinsTextBlocks(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("expected /messages path, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("missing x-api-key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"Happy to "},{"type":"text","text":"help."}],
			"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":4}}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	resp, err := c.Complete(context.Background(), llm.Request{
		System:    "You are Ava.",
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		MaxTokens: 150,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "Happy to help." || resp.Usage.TotalTokens != 16 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if body["system"] == nil {
		t.Fatalf("expected system prompt in request")
	}
}

func TestCompleteServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	c, _ := New(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if !errorsx.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
