package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/redact"
	"github.com/harunnryd/voxa/pkg/session"
	"github.com/labstack/echo/v4"
)

const (
	EventCallStarted   = "call:started"
	EventCallUpdated   = "call:updated"
	EventCallEnded     = "call:ended"
	EventTranscriptNew = "transcript:new"

	wsSendBuffer   = 64
	wsMaxReadBytes = 4096
	wsPingInterval = 20 * time.Second
	wsPongWait     = 45 * time.Second
	wsWriteWait    = 10 * time.Second
)

// StreamEvent is one message on the live event stream.
type StreamEvent struct {
	Type      string    `json:"type"`
	CallID    string    `json:"callId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type callUpdate struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Reason        string `json:"reason,omitempty"`
	AgentID       string `json:"agentId"`
	Direction     string `json:"direction"`
	CustomerPhone string `json:"customerPhone"`
	Status        string `json:"status,omitempty"`
	EndedReason   string `json:"endedReason,omitempty"`
	Duration      int    `json:"duration,omitempty"`
}

type transcript struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	TurnNumber int     `json:"turnNumber"`
	Intent     string  `json:"intent,omitempty"`
	Sentiment  string  `json:"sentiment,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Hub fans session events out to websocket clients of the same tenant. It is
// registered on the state machine as a listener.
type Hub struct {
	auth     *Authenticator
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	id     string
	tenant string
	conn   *websocket.Conn
	send   chan []byte
}

func NewHub(auth *Authenticator, allowedOrigins []string, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{})
	}
	h := &Hub{auth: auth, log: log, clients: make(map[*streamClient]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return checkOrigin(r, allowedOrigins) },
	}
	return h
}

// checkOrigin accepts requests without an Origin header and any origin listed
// either as a full URL or as a bare host.
func checkOrigin(r *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	originHost := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	for _, a := range allowed {
		a = strings.TrimRight(strings.TrimSpace(a), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

// Serve upgrades the request. The tenant comes from the token query parameter
// (or the usual headers when auth is disabled).
func (h *Hub) Serve(c echo.Context) error {
	r := c.Request()
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearer(r)
	}
	tenant, err := h.auth.Resolve(token, r.Header.Get(TenantHeader))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
	}
	conn, err := h.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		h.log.Warn("stream_upgrade_failed", "error", err)
		return nil
	}
	cl := &streamClient{id: uuid.NewString(), tenant: tenant, conn: conn, send: make(chan []byte, wsSendBuffer)}
	if !h.add(cl) {
		_ = conn.Close()
		return nil
	}
	h.log.Info("stream_client_connected", "client_id", cl.id, "tenant_id", tenant)
	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

func (h *Hub) add(cl *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	return true
}

func (h *Hub) remove(cl *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
}

// readLoop only watches for close frames and keeps the read deadline fresh.
func (h *Hub) readLoop(cl *streamClient) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
		h.log.Info("stream_client_disconnected", "client_id", cl.id)
	}()
	cl.conn.SetReadLimit(wsMaxReadBytes)
	_ = cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *streamClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = cl.conn.Close()
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = cl.conn.Close()
				return
			}
		}
	}
}

// Broadcast delivers ev to every client of tenant. Events without a tenant are
// dropped. Slow clients drop messages.
func (h *Hub) Broadcast(tenant string, ev StreamEvent) {
	if tenant == "" {
		h.log.Debug("stream_event_without_tenant", "type", ev.Type)
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("stream_encode_failed", "type", ev.Type, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		if cl.tenant != tenant {
			continue
		}
		select {
		case cl.send <- b:
		default:
			h.log.Warn("stream_client_slow", "client_id", cl.id, "type", ev.Type)
		}
	}
}

func (h *Hub) OnStateChange(ev session.StateChange) {
	typ := EventCallUpdated
	switch ev.ToState {
	case session.StateGreeting:
		typ = EventCallStarted
	case session.StateEnded:
		typ = EventCallEnded
	}
	cs := ev.Session
	h.Broadcast(cs.TenantID, StreamEvent{
		Type:      typ,
		CallID:    ev.CallID,
		Timestamp: ev.Timestamp,
		Data: callUpdate{
			From:          ev.FromState.String(),
			To:            ev.ToState.String(),
			Reason:        ev.Reason,
			AgentID:       cs.AgentID,
			Direction:     string(cs.Direction),
			CustomerPhone: redact.Number(cs.CustomerPhone),
			Status:        cs.Status,
			EndedReason:   cs.EndedReason,
			Duration:      cs.Duration,
		},
	})
}

func (h *Hub) OnTurn(cs domain.CallSession, turn domain.ConversationTurn) {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	h.Broadcast(cs.TenantID, StreamEvent{
		Type:      EventTranscriptNew,
		CallID:    cs.CallID,
		Timestamp: ts,
		Data: transcript{
			Speaker:    string(turn.Speaker),
			Text:       redact.Text(turn.Message),
			TurnNumber: turn.TurnNumber,
			Intent:     turn.Intent,
			Sentiment:  turn.Sentiment,
			Confidence: turn.Confidence,
		},
	})
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}
