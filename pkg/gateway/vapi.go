package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/session"
	"github.com/harunnryd/voxa/pkg/speech"
	"github.com/labstack/echo/v4"
)

// EventType is the normalized kind of a platform webhook.
type EventType string

const (
	EventTypeCallStart    EventType = "call-start"
	EventTypeUtterance    EventType = "utterance"
	EventTypeCallEnd      EventType = "call-end"
	EventTypeStatusUpdate EventType = "status-update"
	EventTypeUnknown      EventType = "unknown"
)

var eventAliases = map[string]EventType{
	"assistant-request":  EventTypeCallStart,
	"call.started":       EventTypeCallStart,
	"call-start":         EventTypeCallStart,
	"transcript":         EventTypeUtterance,
	"speech-update":      EventTypeUtterance,
	"call.ended":         EventTypeCallEnd,
	"call-end":           EventTypeCallEnd,
	"end-of-call-report": EventTypeCallEnd,
	"status-update":      EventTypeStatusUpdate,
}

// NormalizeEventType maps every known spelling onto an EventType.
func NormalizeEventType(raw string) EventType {
	if t, ok := eventAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return EventTypeUnknown
}

type vapiCustomer struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

type vapiPhone struct {
	ID     string `json:"id"`
	Number string `json:"number"`
}

type vapiCall struct {
	ID              string          `json:"id"`
	AssistantID     string          `json:"assistantId"`
	PhoneNumberID   string          `json:"phoneNumberId"`
	Customer        *vapiCustomer   `json:"customer"`
	PhoneNumber     json.RawMessage `json:"phoneNumber"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	StartedAt       string          `json:"startedAt"`
	CreatedAt       string          `json:"createdAt"`
	Duration        float64         `json:"duration"`
	DurationSeconds float64         `json:"durationSeconds"`
	RecordingURL    string          `json:"recordingUrl"`
	EndedReason     string          `json:"endedReason"`
	Cost            float64         `json:"cost"`
}

type vapiTranscript struct {
	Role           string  `json:"role"`
	Text           string  `json:"text"`
	TranscriptText string  `json:"transcriptText"`
	Language       string  `json:"language"`
	Confidence     float64 `json:"confidence"`
	TranscriptType string  `json:"transcriptType"`
}

type vapiMessage struct {
	Type           string          `json:"type"`
	Call           vapiCall        `json:"call"`
	PhoneNumber    json.RawMessage `json:"phoneNumber"`
	Customer       *vapiCustomer   `json:"customer"`
	Transcript     json.RawMessage `json:"transcript"`
	Role           string          `json:"role"`
	TranscriptType string          `json:"transcriptType"`
	Status         string          `json:"status"`
	EndedReason    string          `json:"endedReason"`
	RecordingURL   string          `json:"recordingUrl"`
	Cost           float64         `json:"cost"`
	DurationSecs   float64         `json:"durationSeconds"`
}

// decodeVapi accepts the payload either bare or wrapped in a "message" object.
func decodeVapi(body []byte) (vapiMessage, error) {
	var wrapper struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return vapiMessage{}, errorsx.Wrap(err, errorsx.ReasonWebhookMalformed)
	}
	raw := body
	if trimmed := bytes.TrimSpace(wrapper.Message); len(trimmed) > 0 && trimmed[0] == '{' {
		raw = trimmed
	}
	var msg vapiMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return vapiMessage{}, errorsx.Wrap(err, errorsx.ReasonWebhookMalformed)
	}
	return msg, nil
}

// transcript reads either the nested transcript object or the flat
// role/transcript string shape.
func (m vapiMessage) transcript() vapiTranscript {
	var t vapiTranscript
	raw := bytes.TrimSpace(m.Transcript)
	switch {
	case len(raw) > 0 && raw[0] == '{':
		_ = json.Unmarshal(raw, &t)
	case len(raw) > 0 && raw[0] == '"':
		_ = json.Unmarshal(raw, &t.Text)
	}
	if t.Text == "" {
		t.Text = t.TranscriptText
	}
	if t.Role == "" {
		t.Role = m.Role
	}
	if t.TranscriptType == "" {
		t.TranscriptType = m.TranscriptType
	}
	return t
}

// phoneNumbers returns our number and a customer number found in call.phoneNumber,
// which may be either the platform number object or a plain customer number.
func (m vapiMessage) phoneNumbers() (agent vapiPhone, customer string) {
	for _, raw := range []json.RawMessage{m.PhoneNumber, m.Call.PhoneNumber} {
		raw = bytes.TrimSpace(raw)
		switch {
		case len(raw) > 0 && raw[0] == '{':
			var p vapiPhone
			if json.Unmarshal(raw, &p) == nil && agent.Number == "" && agent.ID == "" {
				agent = p
			}
		case len(raw) > 0 && raw[0] == '"' && customer == "":
			_ = json.Unmarshal(raw, &customer)
		}
	}
	if m.Call.Customer != nil && m.Call.Customer.Number != "" {
		customer = m.Call.Customer.Number
	} else if m.Customer != nil && m.Customer.Number != "" {
		customer = m.Customer.Number
	}
	return agent, customer
}

func (m vapiMessage) direction() domain.Direction {
	switch strings.ToLower(m.Call.Type) {
	case "":
		return ""
	case "inboundphonecall", "inbound":
		return domain.DirectionInbound
	default:
		return domain.DirectionOutbound
	}
}

func parseTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// WebhookReply is the JSON answer to every platform webhook.
type WebhookReply struct {
	Received bool          `json:"received"`
	Event    EventType     `json:"event"`
	CallID   string        `json:"callId,omitempty"`
	Text     string        `json:"text,omitempty"`
	Audio    *speech.Audio `json:"audio,omitempty"`
	EndCall  bool          `json:"endCall"`
	State    string        `json:"state,omitempty"`
}

func replyFromPrompt(ev EventType, p session.Prompt) WebhookReply {
	r := WebhookReply{Received: true, Event: ev, CallID: p.CallID, Text: p.Text, EndCall: p.Hangup, State: p.State.String()}
	if p.Audio.Kind != "" {
		audio := p.Audio
		r.Audio = &audio
	}
	return r
}

// HandleVapiWebhook always answers 200 so the platform never retries; failures
// are logged and reported in the body.
func (s *Server) HandleVapiWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		s.log.Warn("vapi_webhook_unreadable", "error", err)
		return c.JSON(http.StatusOK, WebhookReply{Event: EventTypeUnknown})
	}
	msg, err := decodeVapi(body)
	if err != nil {
		s.log.Warn("vapi_webhook_malformed", "reason", string(errorsx.ReasonWebhookMalformed), "error", err)
		return c.JSON(http.StatusOK, WebhookReply{Event: EventTypeUnknown})
	}
	ev := NormalizeEventType(msg.Type)
	metrics.Record(s.obs, metrics.EventWebhook, 1, map[string]string{"source": "vapi", "event": string(ev)})
	log := s.log.With("call_id", msg.Call.ID, "event", string(ev), "raw_type", msg.Type)
	ctx := c.Request().Context()

	if ev != EventTypeUnknown && msg.Call.ID == "" {
		log.Warn("vapi_webhook_missing_call_id")
		return c.JSON(http.StatusOK, WebhookReply{Event: ev})
	}

	switch ev {
	case EventTypeCallStart:
		agentPhone, customer := msg.phoneNumbers()
		remotePhoneID := msg.Call.PhoneNumberID
		if remotePhoneID == "" {
			remotePhoneID = agentPhone.ID
		}
		p, err := s.machine.HandleCallStart(ctx, session.CallStartEvent{
			CallID:            msg.Call.ID,
			AgentNumber:       agentPhone.Number,
			CustomerNumber:    customer,
			RemotePhoneID:     remotePhoneID,
			RemoteAssistantID: msg.Call.AssistantID,
			Direction:         msg.direction(),
			Status:            msg.Call.Status,
			StartedAt:         parseTime(msg.Call.StartedAt, msg.Call.CreatedAt),
		})
		if err != nil {
			log.Error("vapi_call_start_failed", "error", err)
			return c.JSON(http.StatusOK, WebhookReply{Event: ev, CallID: msg.Call.ID})
		}
		return c.JSON(http.StatusOK, replyFromPrompt(ev, p))

	case EventTypeUtterance:
		t := msg.transcript()
		role := strings.ToLower(t.Role)
		if role == "assistant" || role == "agent" || role == "bot" {
			return c.JSON(http.StatusOK, WebhookReply{Received: true, Event: ev, CallID: msg.Call.ID})
		}
		if strings.EqualFold(t.TranscriptType, "partial") {
			return c.JSON(http.StatusOK, WebhookReply{Received: true, Event: ev, CallID: msg.Call.ID})
		}
		confidence := t.Confidence
		if confidence == 0 {
			confidence = 1
		}
		p, err := s.machine.HandleUtterance(ctx, msg.Call.ID, t.Text, confidence)
		if err != nil {
			log.Error("vapi_utterance_failed", "error", err)
			return c.JSON(http.StatusOK, WebhookReply{Event: ev, CallID: msg.Call.ID})
		}
		return c.JSON(http.StatusOK, replyFromPrompt(ev, p))

	case EventTypeCallEnd:
		duration := msg.Call.Duration
		if duration == 0 {
			duration = msg.Call.DurationSeconds
		}
		if duration == 0 {
			duration = msg.DurationSecs
		}
		reason := msg.EndedReason
		if reason == "" {
			reason = msg.Call.EndedReason
		}
		if reason == "" {
			reason = "unknown"
		}
		recording := msg.Call.RecordingURL
		if recording == "" {
			recording = msg.RecordingURL
		}
		cost := msg.Call.Cost
		if cost == 0 {
			cost = msg.Cost
		}
		err := s.machine.HandleCallEnd(ctx, session.CallEndEvent{
			CallID:       msg.Call.ID,
			Duration:     int(duration),
			RecordingURL: recording,
			EndedReason:  reason,
			Cost:         cost,
		})
		if err != nil {
			log.Error("vapi_call_end_failed", "error", err)
			return c.JSON(http.StatusOK, WebhookReply{Event: ev, CallID: msg.Call.ID})
		}
		return c.JSON(http.StatusOK, WebhookReply{Received: true, Event: ev, CallID: msg.Call.ID, EndCall: true})

	case EventTypeStatusUpdate:
		status := msg.Status
		if status == "" {
			status = msg.Call.Status
		}
		if err := s.machine.HandleStatusUpdate(ctx, session.StatusEvent{CallID: msg.Call.ID, Status: status}); err != nil {
			log.Error("vapi_status_update_failed", "error", err)
			return c.JSON(http.StatusOK, WebhookReply{Event: ev, CallID: msg.Call.ID})
		}
		return c.JSON(http.StatusOK, WebhookReply{Received: true, Event: ev, CallID: msg.Call.ID})
	}

	log.Info("vapi_webhook_ignored")
	return c.JSON(http.StatusOK, WebhookReply{Received: true, Event: EventTypeUnknown, CallID: msg.Call.ID})
}
