package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/nlu"
	"github.com/harunnryd/voxa/pkg/providers/mock"
	"github.com/harunnryd/voxa/pkg/providers/twilio"
	"github.com/harunnryd/voxa/pkg/providers/vapi"
	"github.com/harunnryd/voxa/pkg/reconcile"
	"github.com/harunnryd/voxa/pkg/session"
	"github.com/harunnryd/voxa/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	agentNumber  = "+15550009999"
	callerNumber = "+15551234567"
)

type fixture struct {
	store  *store.MemoryStore
	server *Server
	obs    *metrics.MemoryObserver
}

type options struct {
	auth      AuthConfig
	dialer    bool
	platform  session.Platform
	sync      reconcile.Remote
	validator *twilio.Validator
	publicURL string
}

func newFixture(t *testing.T, opts options) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveAgent(ctx, domain.AgentConfig{ID: "agent-a", TenantID: "t1", Name: "Agent A", Greeting: "Hi, this is Agent A.", Language: "en"}))
	require.NoError(t, st.SavePhoneNumber(ctx, domain.PhoneNumberRecord{TenantID: "t1", Number: agentNumber, AgentID: "agent-a"}))

	obs := metrics.NewMemoryObserver()
	model := mock.NewCompleter(mock.LLMConfig{ResponseText: "Sure, how can I help?"})
	m := session.NewMachine(session.Deps{Store: st, NLU: nlu.NewChain(nil, model, nlu.Options{}, obs, nil), Observer: obs}, session.Config{})
	auth := NewAuthenticator(opts.auth)
	hub := NewHub(auth, nil, nil)
	m.AddListener(hub)

	deps := Deps{Machine: m, Hub: hub, Auth: auth, Observer: obs, Gatherer: prometheus.NewRegistry(), TwilioValidator: opts.validator}
	if opts.dialer {
		deps.Dialer = session.NewDialer(st, opts.platform, nil, nil)
	}
	if opts.sync != nil {
		deps.Sync = reconcile.New(opts.sync, st, obs, nil)
	}
	return &fixture{store: st, server: New(Config{PublicURL: opts.publicURL}, deps), obs: obs}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) postJSON(path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return f.do(req)
}

func (f *fixture) postForm(path string, form url.Values, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return f.do(req)
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) WebhookReply {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var r WebhookReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	return r
}

func TestNormalizeEventType(t *testing.T) {
	cases := map[string]EventType{
		"assistant-request":  EventTypeCallStart,
		"call.started":       EventTypeCallStart,
		"transcript":         EventTypeUtterance,
		"Speech-Update":      EventTypeUtterance,
		"call.ended":         EventTypeCallEnd,
		"call-end":           EventTypeCallEnd,
		"end-of-call-report": EventTypeCallEnd,
		"status-update":      EventTypeStatusUpdate,
		"function-call":      EventTypeUnknown,
		"":                   EventTypeUnknown,
	}
	for raw, want := range cases {
		if got := NormalizeEventType(raw); got != want {
			t.Fatalf("NormalizeEventType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestVapiConversation(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	r := decodeReply(t, f.postJSON(PathVapiWebhook, `{"message":{"type":"call.started","call":{"id":"call-1","type":"inboundPhoneCall","customer":{"number":"`+callerNumber+`"},"phoneNumber":{"id":"ph-1","number":"`+agentNumber+`"}}}}`))
	assert.True(t, r.Received)
	assert.Equal(t, EventTypeCallStart, r.Event)
	assert.Equal(t, "Hi, this is Agent A.", r.Text)
	require.NotNil(t, r.Audio)
	assert.False(t, r.EndCall)

	r = decodeReply(t, f.postJSON(PathVapiWebhook, `{"type":"transcript","call":{"id":"call-1"},"transcript":{"role":"assistant","text":"Hi, this is Agent A."}}`))
	assert.True(t, r.Received)
	assert.Empty(t, r.Text)
	turns, err := f.store.ListTurns(ctx, "call-1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)

	r = decodeReply(t, f.postJSON(PathVapiWebhook, `{"type":"transcript","call":{"id":"call-1"},"transcript":{"role":"user","text":"I need help","confidence":0.92}}`))
	assert.Equal(t, "Sure, how can I help?", r.Text)
	assert.Equal(t, "LISTENING", r.State)

	r = decodeReply(t, f.postJSON(PathVapiWebhook, `{"message":{"type":"transcript","role":"user","transcriptType":"final","transcript":"thank you, goodbye","call":{"id":"call-1"}}}`))
	assert.True(t, r.EndCall)
	assert.Equal(t, "ENDED", r.State)
	turns, err = f.store.ListTurns(ctx, "call-1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 4)

	r = decodeReply(t, f.postJSON(PathVapiWebhook, `{"message":{"type":"end-of-call-report","endedReason":"customer-ended-call","call":{"id":"call-1","duration":61,"recordingUrl":"https://rec/1","cost":0.3}}}`))
	assert.True(t, r.Received)
	cs, err := f.store.GetSession(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, 61, cs.Duration)
	assert.Equal(t, "https://rec/1", cs.RecordingURL)
	assert.Equal(t, "customer-ended-call", cs.EndedReason)

	assert.Equal(t, 3, f.obs.Count(metrics.EventWebhook, map[string]string{"source": "vapi", "event": string(EventTypeUtterance)}))
}

func TestVapiWebhookAlwaysAnswers200(t *testing.T) {
	f := newFixture(t, options{})

	r := decodeReply(t, f.postJSON(PathVapiWebhook, `{not json`))
	assert.False(t, r.Received)

	r = decodeReply(t, f.postJSON(PathVapiWebhook, `{"type":"function-call","call":{"id":"c9"}}`))
	assert.True(t, r.Received)
	assert.Equal(t, EventTypeUnknown, r.Event)

	r = decodeReply(t, f.postJSON(PathVapiWebhook, `{"type":"call.ended","call":{"id":"never-started"}}`))
	assert.True(t, r.Received)

	r = decodeReply(t, f.postJSON(PathVapiWebhook, `{"type":"call.started","call":{"id":"c2","phoneNumber":{"number":"+19990001111"}}}`))
	assert.True(t, r.EndCall)
	assert.Equal(t, session.NotConfiguredLine, r.Text)

	r = decodeReply(t, f.postJSON(PathVapiWebhook, `{"type":"status-update","status":"ringing","call":{"id":"ghost"}}`))
	assert.True(t, r.Received)
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestTwilioConversation(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	rec := f.postForm(PathTwilioVoice, url.Values{"CallSid": {"CA1"}, "From": {callerNumber}, "To": {agentNumber}, "Direction": {"inbound"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<Gather")
	assert.Contains(t, body, `action="`+PathTwilioSpeech+`"`)
	assert.Contains(t, body, "Hi, this is Agent A.")

	rec = f.postForm(PathTwilioSpeech, url.Values{"CallSid": {"CA1"}, "SpeechResult": {"I need help"}, "Confidence": {"0.9"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sure, how can I help?")

	rec = f.postForm(PathTwilioStatus, url.Values{"CallSid": {"CA1"}, "CallStatus": {"in-progress"}})
	require.Equal(t, http.StatusOK, rec.Code)
	cs, err := f.store.GetSession(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "in-progress", cs.Status)
	assert.Equal(t, "LISTENING", cs.State)

	rec = f.postForm(PathTwilioStatus, url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"33"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.postForm(PathTwilioRecord, url.Values{"CallSid": {"CA1"}, "RecordingUrl": {"https://api.twilio.com/rec/RE1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	cs, err = f.store.GetSession(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "ENDED", cs.State)
	assert.Equal(t, "completed", cs.EndedReason)
	assert.Equal(t, 33, cs.Duration)
	assert.Equal(t, "https://api.twilio.com/rec/RE1", cs.RecordingURL)
}

func TestTwilioRecordingBeforeStatus(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	rec := f.postForm(PathTwilioVoice, url.Values{"CallSid": {"CA7"}, "From": {callerNumber}, "To": {agentNumber}, "Direction": {"inbound"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.postForm(PathTwilioRecord, url.Values{"CallSid": {"CA7"}, "RecordingUrl": {"https://api.twilio.com/rec/RE7"}})
	require.Equal(t, http.StatusOK, rec.Code)

	cs, err := f.store.GetSession(ctx, "CA7")
	require.NoError(t, err)
	assert.Equal(t, "ENDED", cs.State)
	assert.Equal(t, "completed", cs.EndedReason)
	assert.Equal(t, "https://api.twilio.com/rec/RE7", cs.RecordingURL)

	rec = f.postForm(PathTwilioStatus, url.Values{"CallSid": {"CA7"}, "CallStatus": {"completed"}, "CallDuration": {"21"}})
	require.Equal(t, http.StatusOK, rec.Code)
	cs, err = f.store.GetSession(ctx, "CA7")
	require.NoError(t, err)
	assert.Equal(t, 21, cs.Duration)
	assert.Equal(t, "completed", cs.EndedReason)
	assert.Equal(t, "https://api.twilio.com/rec/RE7", cs.RecordingURL)
}

func TestTwilioUnknownNumberHangsUp(t *testing.T) {
	f := newFixture(t, options{})
	rec := f.postForm(PathTwilioVoice, url.Values{"CallSid": {"CA2"}, "From": {callerNumber}, "To": {"+19990001111"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Hangup")
	assert.Contains(t, rec.Body.String(), session.NotConfiguredLine)
}

func TestTwilioSignature(t *testing.T) {
	f := newFixture(t, options{validator: twilio.NewValidator("secret"), publicURL: "https://voice.example.com"})
	form := url.Values{"CallSid": {"CA3"}, "CallStatus": {"ringing"}}

	rec := f.postForm(PathTwilioStatus, form)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.postForm(PathTwilioStatus, form, twilio.SignatureHeader, sign("secret", "https://voice.example.com"+PathTwilioStatus, form))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNormalizeCallEndReason(t *testing.T) {
	cases := map[string]string{
		"ringing": "", "in-progress": "", "completed": "completed", "busy": "busy",
		"no-answer": "no_answer", "canceled": "failed", "weird": "unknown",
	}
	for in, want := range cases {
		if got := normalizeCallEndReason(in); got != want {
			t.Fatalf("normalizeCallEndReason(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakePlatform struct{ calls int }

func (p *fakePlatform) CreateCall(context.Context, vapi.CallRequest) (*vapi.Call, error) {
	p.calls++
	return &vapi.Call{ID: "vapi-1", Status: "queued"}, nil
}

func TestOutboundCallStatusCodes(t *testing.T) {
	f := newFixture(t, options{})
	rec := f.postJSON(PathOutboundCall, `{"phoneNumber":"`+callerNumber+`","agentId":"agent-a"}`, TenantHeader, "t1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	platform := &fakePlatform{}
	f = newFixture(t, options{dialer: true, platform: platform})
	ctx := context.Background()
	require.NoError(t, f.store.SetAgentRemoteID(ctx, "agent-a", "asst-1"))
	_, err := f.store.UpsertPhoneNumber(ctx, domain.PhoneNumberRecord{TenantID: "t1", Number: agentNumber, RemotePhoneID: "ph-1"})
	require.NoError(t, err)

	rec = f.postJSON(PathOutboundCall, `{"agentId":"agent-a"}`, TenantHeader, "t1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postJSON(PathOutboundCall, `{"phoneNumber":"`+callerNumber+`","agentId":"nobody"}`, TenantHeader, "t1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.postJSON(PathOutboundCall, `{"phoneNumber":"`+callerNumber+`","agentId":"agent-a"}`, TenantHeader, "t2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.postJSON(PathOutboundCall, `{"phoneNumber":"`+callerNumber+`","agentId":"agent-a","customerData":{"name":"Ann"}}`, TenantHeader, "t1")
	require.Equal(t, http.StatusCreated, rec.Code)
	var res session.OutboundResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "vapi-1", res.CallID)
	assert.Equal(t, 1, platform.calls)

	rec = f.postJSON(PathOutboundCall, `{"phoneNumber":"`+callerNumber+`","agentId":"agent-a"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no tenant header and no default tenant")
}

func TestJWTTenant(t *testing.T) {
	f := newFixture(t, options{auth: AuthConfig{JWTSecret: "s3cret"}})

	req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	req.Header.Set(TenantHeader, "t1")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	token, err := f.server.auth.Issue("t1", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(req).Code, "authenticated but not configured")

	other := NewAuthenticator(AuthConfig{JWTSecret: "other"})
	forged, err := other.Issue("t1", time.Hour)
	require.NoError(t, err)
	_, err = f.server.auth.TenantFromToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	a := NewAuthenticator(AuthConfig{DefaultTenant: "fallback"})
	tenant, err := a.Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, "fallback", tenant)
}

type stubRemote struct{}

func (stubRemote) ListPhoneNumbers(context.Context) ([]vapi.PhoneNumber, error) {
	return []vapi.PhoneNumber{{ID: "ph-1", Number: agentNumber}}, nil
}

func (stubRemote) ListAssistants(context.Context) ([]vapi.Assistant, error) { return nil, nil }

func (stubRemote) GetAssistant(_ context.Context, id string) (*vapi.Assistant, error) {
	return &vapi.Assistant{ID: id}, nil
}

func (stubRemote) CreateAssistant(_ context.Context, a vapi.Assistant) (*vapi.Assistant, error) {
	a.ID = "asst-created"
	return &a, nil
}

func TestSyncRoutes(t *testing.T) {
	f := newFixture(t, options{sync: stubRemote{}, auth: AuthConfig{DefaultTenant: "t1"}})

	rec := f.postJSON("/sync/phone-numbers/from-remote", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Updated)

	rec = f.postJSON("/sync/full", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var full domain.FullSyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &full))
	assert.True(t, full.Success)
	require.NotNil(t, full.AgentsExported)
	assert.Equal(t, 1, full.AgentsExported.Imported)

	req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	var st domain.SyncStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.PhoneNumbers.InSync)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, options{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, options{auth: AuthConfig{JWTSecret: "s3cret"}})
	srv := httptest.NewServer(f.server.Echo())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + PathEvents
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := f.server.auth.Issue("t1", time.Hour)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	otherToken, err := f.server.auth.Issue("t2", time.Hour)
	require.NoError(t, err)
	other, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+otherToken, nil)
	require.NoError(t, err)
	defer other.Close()

	require.Eventually(t, func() bool { return f.server.Hub().Len() == 2 }, time.Second, 10*time.Millisecond)

	decodeReply(t, f.postJSON(PathVapiWebhook, `{"type":"call.started","call":{"id":"call-ws","customer":{"number":"`+callerNumber+`"},"phoneNumber":{"number":"`+agentNumber+`"}}}`))
	decodeReply(t, f.postJSON(PathVapiWebhook, `{"type":"transcript","call":{"id":"call-ws"},"transcript":{"role":"user","text":"I need help"}}`))

	var types []string
	transcripts := 0
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for transcripts < 2 {
		var ev StreamEvent
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, "call-ws", ev.CallID)
		types = append(types, ev.Type)
		if ev.Type == EventTranscriptNew {
			transcripts++
		}
	}
	require.NotEmpty(t, types)
	assert.Equal(t, EventCallStarted, types[0])
	assert.Contains(t, types, EventCallUpdated)

	_ = other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "events of tenant t1 must not reach t2")
}

func TestBroadcastScopesByTenant(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	t1 := &streamClient{id: "a", tenant: "t1", send: make(chan []byte, 4)}
	t2 := &streamClient{id: "b", tenant: "t2", send: make(chan []byte, 4)}
	hub.clients[t1] = struct{}{}
	hub.clients[t2] = struct{}{}

	hub.Broadcast("", StreamEvent{Type: EventCallStarted})
	assert.Empty(t, t1.send)
	assert.Empty(t, t2.send)

	hub.Broadcast("t1", StreamEvent{Type: EventCallStarted})
	assert.Len(t, t1.send, 1)
	assert.Empty(t, t2.send)
}
