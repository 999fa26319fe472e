package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/providers/twilio"
	"github.com/harunnryd/voxa/pkg/session"
	"github.com/harunnryd/voxa/pkg/speech"
	"github.com/labstack/echo/v4"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// verifyTwilio rejects webhooks whose X-Twilio-Signature does not match.
func (s *Server) verifyTwilio(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.twilio == nil {
			return next(c)
		}
		r := c.Request()
		if err := r.ParseForm(); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		if !s.twilio.Validate(s.requestURL(r), r.PostForm, r.Header.Get(twilio.SignatureHeader)) {
			s.log.Warn("twilio_invalid_signature", "path", r.URL.Path, "reason_code", string(errorsx.ReasonWebhookInvalidSignature))
			return c.NoContent(http.StatusForbidden)
		}
		return next(c)
	}
}

// requestURL rebuilds the URL Twilio signed: the public URL when configured,
// else the forwarded scheme and host.
func (s *Server) requestURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		base := strings.TrimRight(s.cfg.PublicURL, "/")
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			base = "https://" + base
		}
		return base + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = "localhost" + s.cfg.Addr
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

// normalizeCallEndReason maps a Twilio CallStatus onto an end reason. Non-final
// statuses map to "".
func normalizeCallEndReason(raw string) string {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch r {
	case "", "queued", "initiated", "ringing", "in-progress", "inprogress", "answered":
		return ""
	case "completed":
		return "completed"
	case "busy":
		return "busy"
	case "no-answer", "no_answer", "noanswer":
		return "no_answer"
	case "failed", "canceled", "cancelled":
		return "failed"
	default:
		return "unknown"
	}
}

func (s *Server) twiml(c echo.Context, p session.Prompt) error {
	reply := twilio.Reply{
		Text:     p.Text,
		Voice:    p.Audio.Voice,
		Language: speech.Locale(p.Language),
		Hangup:   p.Hangup,
	}
	if p.Audio.Kind == speech.KindURL {
		reply.AudioURL = p.Audio.URL
	}
	if p.Listen && !p.Hangup {
		reply.GatherAction = PathTwilioSpeech
	}
	doc, err := twilio.Render(reply)
	if err != nil {
		s.log.Error("twiml_render_failed", "call_id", p.CallID, "error", err)
		return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, []byte(emptyTwiML))
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, []byte(doc))
}

func (s *Server) emptyTwiML(c echo.Context) error {
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, []byte(emptyTwiML))
}

func (s *Server) HandleTwilioVoice(c echo.Context) error {
	metrics.Record(s.obs, metrics.EventWebhook, 1, map[string]string{"source": "twilio", "event": string(EventTypeCallStart)})
	callSID := c.FormValue("CallSid")
	from, to := c.FormValue("From"), c.FormValue("To")
	ev := session.CallStartEvent{
		CallID:         callSID,
		AgentNumber:    to,
		CustomerNumber: from,
		Direction:      domain.DirectionInbound,
		Status:         c.FormValue("CallStatus"),
	}
	if strings.HasPrefix(strings.ToLower(c.FormValue("Direction")), "outbound") {
		ev.AgentNumber, ev.CustomerNumber = from, to
		ev.Direction = domain.DirectionOutbound
	}
	p, err := s.machine.HandleCallStart(c.Request().Context(), ev)
	if err != nil {
		s.log.Error("twilio_call_start_failed", "call_id", callSID, "error", err)
		p = session.Prompt{CallID: callSID, Text: session.NotConfiguredLine, Language: "en", Hangup: true}
	}
	return s.twiml(c, p)
}

func (s *Server) HandleTwilioSpeech(c echo.Context) error {
	metrics.Record(s.obs, metrics.EventWebhook, 1, map[string]string{"source": "twilio", "event": string(EventTypeUtterance)})
	callSID := c.FormValue("CallSid")
	confidence := 1.0
	if v := c.FormValue("Confidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			confidence = f
		}
	}
	p, err := s.machine.HandleUtterance(c.Request().Context(), callSID, c.FormValue("SpeechResult"), confidence)
	if err != nil {
		s.log.Error("twilio_utterance_failed", "call_id", callSID, "error", err)
		p = session.Prompt{CallID: callSID, Text: session.FallbackLine, Language: "en", Listen: true}
	}
	return s.twiml(c, p)
}

func (s *Server) HandleTwilioStatus(c echo.Context) error {
	ctx := c.Request().Context()
	callSID := c.FormValue("CallSid")
	status := c.FormValue("CallStatus")
	reason := normalizeCallEndReason(status)
	if reason == "" {
		metrics.Record(s.obs, metrics.EventWebhook, 1, map[string]string{"source": "twilio", "event": string(EventTypeStatusUpdate)})
		if err := s.machine.HandleStatusUpdate(ctx, session.StatusEvent{CallID: callSID, Status: status}); err != nil {
			s.log.Error("twilio_status_failed", "call_id", callSID, "error", err)
		}
		return s.emptyTwiML(c)
	}
	metrics.Record(s.obs, metrics.EventWebhook, 1, map[string]string{"source": "twilio", "event": string(EventTypeCallEnd)})
	duration, _ := strconv.Atoi(c.FormValue("CallDuration"))
	if err := s.machine.HandleCallEnd(ctx, session.CallEndEvent{CallID: callSID, Duration: duration, EndedReason: reason}); err != nil {
		s.log.Error("twilio_call_end_failed", "call_id", callSID, "error", err)
	}
	return s.emptyTwiML(c)
}

// HandleTwilioRecording attaches the recording. Twilio posts it once the call is over.
func (s *Server) HandleTwilioRecording(c echo.Context) error {
	metrics.Record(s.obs, metrics.EventWebhook, 1, map[string]string{"source": "twilio", "event": "recording"})
	callSID := c.FormValue("CallSid")
	url := c.FormValue("RecordingUrl")
	if callSID == "" || url == "" {
		return s.emptyTwiML(c)
	}
	duration, _ := strconv.Atoi(c.FormValue("RecordingDuration"))
	if err := s.machine.HandleCallEnd(c.Request().Context(), session.CallEndEvent{CallID: callSID, RecordingURL: url, Duration: duration}); err != nil {
		s.log.Error("twilio_recording_failed", "call_id", callSID, "error", err)
	}
	return s.emptyTwiML(c)
}
