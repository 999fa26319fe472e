// Package session drives one call through greeting, listening, processing and
// responding. Every entry point is serialized per call id and never fails the
// live call: errors are logged and turned into a spoken fallback.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/conversation"
	"github.com/harunnryd/voxa/pkg/domain"
	"github.com/harunnryd/voxa/pkg/errorsx"
	"github.com/harunnryd/voxa/pkg/metrics"
	"github.com/harunnryd/voxa/pkg/nlu"
	"github.com/harunnryd/voxa/pkg/redact"
	"github.com/harunnryd/voxa/pkg/speech"
	"github.com/harunnryd/voxa/pkg/store"
)

const (
	NotConfiguredLine = "Sorry, this number is not configured."
	RepromptLine      = "Sorry, I didn't catch that. Could you say that again?"
	FallbackLine      = "I'm here to help, could you repeat that?"
	DefaultGreeting   = "Hello! How can I help you today?"

	EndedReasonFarewell = "assistant-ended-call"
	EndedReasonIdle     = "idle-timeout"
	// EndedReasonCompleted is recorded when a call ends without a reason.
	EndedReasonCompleted = "completed"

	DefaultMinConfidence = 0.3
)

// Understander produces the agent's reply to an utterance.
type Understander interface {
	Process(ctx context.Context, req nlu.Request) nlu.Result
}

// Renderer turns reply text into playable audio.
type Renderer interface {
	Render(ctx context.Context, req speech.Request) speech.Audio
}

// LanguageService detects the caller's language and translates prompts.
type LanguageService interface {
	DetectLanguage(ctx context.Context, text, fallback string) string
	Translate(ctx context.Context, text, from, to string) string
}

type CallStartEvent struct {
	CallID string
	// AgentNumber is our side of the call: the dialed number inbound, the caller id outbound.
	AgentNumber       string
	CustomerNumber    string
	RemotePhoneID     string
	RemoteAssistantID string
	Direction         domain.Direction
	Status            string
	StartedAt         time.Time
}

type CallEndEvent struct {
	CallID       string
	Duration     int
	RecordingURL string
	EndedReason  string
	Cost         float64
	EndedAt      time.Time
}

type StatusEvent struct {
	CallID string
	Status string
}

// Prompt is what the gateway hands back to the telephony provider.
type Prompt struct {
	CallID   string       `json:"call_id"`
	Text     string       `json:"text"`
	Audio    speech.Audio `json:"audio"`
	Language string       `json:"language"`
	Intent   string       `json:"intent,omitempty"`
	// Listen asks the gateway to gather the next utterance; Hangup ends the call.
	Listen bool  `json:"listen"`
	Hangup bool  `json:"hangup"`
	State  State `json:"state"`
}

type Config struct {
	// MinConfidence is the floor below which a transcript is treated as unintelligible.
	MinConfidence  float64       `mapstructure:"min_confidence"`
	IdleTTL        time.Duration `mapstructure:"idle_ttl"`
	ReaperSchedule string        `mapstructure:"reaper_schedule"`
}

type Machine struct {
	store     store.Store
	contexts  *conversation.Assembler
	nlu       Understander
	speech    Renderer
	languages LanguageService
	locker    *Locker
	listeners []StateListener
	cfg       Config
	obs       metrics.Observer
	log       *slog.Logger
	now       func() time.Time
}

type Deps struct {
	Store     store.Store
	Contexts  *conversation.Assembler
	NLU       Understander
	Speech    Renderer
	Languages LanguageService
	Observer  metrics.Observer
	Logger    *slog.Logger
}

func NewMachine(deps Deps, cfg Config) *Machine {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	obs := deps.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	if deps.Contexts == nil {
		deps.Contexts = conversation.NewAssembler(deps.Store, nil, conversation.Options{}, log)
	}
	if deps.NLU == nil {
		deps.NLU = nlu.NewChain(nil, nil, nlu.Options{}, obs, log)
	}
	return &Machine{
		store:     deps.Store,
		contexts:  deps.Contexts,
		nlu:       deps.NLU,
		speech:    deps.Speech,
		languages: deps.Languages,
		locker:    NewLocker(),
		cfg:       cfg,
		obs:       obs,
		log:       log,
		now:       time.Now,
	}
}

// AddListener registers a listener for state changes (and turns, if it implements TurnListener).
func (m *Machine) AddListener(l StateListener) {
	m.listeners = append(m.listeners, l)
}

func (m *Machine) notify(tl *transitionLog, s *domain.CallSession) {
	for _, ev := range tl.events {
		if s != nil {
			ev.Session = *s
		}
		m.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventStateChange,
			Time:  ev.Timestamp,
			Value: 1,
			Tags:  map[string]string{"call_id": ev.CallID, "from": ev.FromState.String(), "to": ev.ToState.String()},
		})
		for _, l := range m.listeners {
			l.OnStateChange(ev)
		}
	}
	if s == nil {
		return
	}
	for _, turn := range tl.turns {
		for _, l := range m.listeners {
			if tlst, ok := l.(TurnListener); ok {
				tlst.OnTurn(*s, turn)
			}
		}
	}
}

// HandleCallStart resolves the agent, creates the session once and greets the caller.
func (m *Machine) HandleCallStart(ctx context.Context, ev CallStartEvent) (Prompt, error) {
	if strings.TrimSpace(ev.CallID) == "" {
		return Prompt{}, errorsx.Invalid("call_id", "required")
	}
	unlock := m.locker.Lock(ev.CallID)
	tl := &transitionLog{}
	var snapshot *domain.CallSession
	defer func() {
		unlock()
		m.notify(tl, snapshot)
	}()

	log := m.log.With("call_id", ev.CallID)
	now := m.now().UTC()

	existing, err := m.store.GetSession(ctx, ev.CallID)
	if err != nil && !errorsx.IsNotFound(err) {
		log.Error("call_start_lookup_failed", "error", err)
	}

	var agent *domain.AgentConfig
	if existing != nil && State(existing.State).Terminal() {
		log.Info("call_start_after_end", "state", existing.State)
		return Prompt{
			CallID:   existing.CallID,
			Language: defaultString(existing.Language, nlu.DefaultLanguage),
			Hangup:   true,
			State:    State(existing.State),
		}, nil
	}
	if existing != nil {
		agent, err = m.store.GetAgent(ctx, existing.AgentID)
		if err != nil {
			log.Error("call_start_agent_failed", "agent_id", existing.AgentID, "error", err)
			agent = &domain.AgentConfig{ID: existing.AgentID}
		}
		if State(existing.State) != StateInitiated {
			log.Info("call_start_duplicate", "state", existing.State)
			return m.greetingPrompt(ctx, existing, agent), nil
		}
	} else {
		agent, err = m.resolveAgent(ctx, ev)
		if err != nil {
			log.Warn("call_start_no_agent",
				"agent_number", redact.Number(ev.AgentNumber),
				"remote_phone_id", ev.RemotePhoneID,
				"error", err)
			return m.notConfiguredPrompt(ctx, ev.CallID), nil
		}
		dir := ev.Direction
		if dir == "" {
			dir = domain.DirectionInbound
		}
		started := ev.StartedAt
		if started.IsZero() {
			started = now
		}
		cs, err := domain.NewCallSession(ev.CallID, agent.ID, ev.CustomerNumber, dir, started.UTC())
		if err != nil {
			log.Error("call_start_invalid", "error", err)
			return m.notConfiguredPrompt(ctx, ev.CallID), nil
		}
		cs.TenantID = agent.TenantID
		cs.State = string(StateInitiated)
		cs.Status = defaultString(ev.Status, "in-progress")
		created, err := m.store.CreateSession(ctx, cs)
		if err != nil {
			log.Error("call_start_create_failed", "error", err)
			return m.greetingPrompt(ctx, cs, agent), nil
		}
		if !created {
			// lost a race with another process; the stored session wins
			if stored, err := m.store.GetSession(ctx, ev.CallID); err == nil && State(stored.State) != StateInitiated {
				return m.greetingPrompt(ctx, stored, agent), nil
			} else if err == nil {
				cs = stored
			}
		}
		existing = cs
		log.Info("call_start", "agent_id", agent.ID, "direction", string(dir), "customer", redact.Number(ev.CustomerNumber))
	}

	cs := existing
	if err := tl.move(cs, StateGreeting, "call started", now); err != nil {
		log.Error("call_start_transition_failed", "error", err)
		return m.greetingPrompt(ctx, cs, agent), nil
	}
	fallbackLang := defaultString(agent.Language, nlu.DefaultLanguage)
	cs.Language = fallbackLang
	if m.languages != nil {
		cs.Language = m.languages.DetectLanguage(ctx, cs.CustomerPhone, fallbackLang)
	}
	prompt := m.greetingPrompt(ctx, cs, agent)
	_ = tl.move(cs, StateListening, "greeting sent", now)
	prompt.State = StateListening
	cs.LastActivity = now
	if err := m.store.UpdateSession(ctx, cs); err != nil {
		log.Error("call_start_persist_failed", "error", err)
	}
	snapshot = cs
	return prompt, nil
}

// resolveAgent finds the agent by our number, then the remote phone id, then the remote assistant id.
func (m *Machine) resolveAgent(ctx context.Context, ev CallStartEvent) (*domain.AgentConfig, error) {
	var rec *domain.PhoneNumberRecord
	if number, err := domain.NormalizeNumber(ev.AgentNumber); err == nil {
		rec, _ = m.store.GetPhoneNumber(ctx, number)
	}
	if rec == nil && ev.RemotePhoneID != "" {
		rec, _ = m.store.GetPhoneNumberByRemoteID(ctx, ev.RemotePhoneID)
	}
	if rec != nil && rec.AgentID != "" {
		if agent, err := m.store.GetAgent(ctx, rec.AgentID); err == nil {
			return agent, nil
		}
	}
	assistantID := ev.RemoteAssistantID
	if assistantID == "" && rec != nil {
		assistantID = rec.RemoteAssistantID
	}
	if assistantID != "" {
		if agent, err := m.store.GetAgentByRemoteID(ctx, assistantID); err == nil {
			return agent, nil
		}
	}
	key := ev.AgentNumber
	if key == "" {
		key = defaultString(ev.RemotePhoneID, ev.RemoteAssistantID)
	}
	return nil, errorsx.NotFound("agent", key)
}

func (m *Machine) greetingPrompt(ctx context.Context, cs *domain.CallSession, agent *domain.AgentConfig) Prompt {
	lang := defaultString(cs.Language, defaultString(agent.Language, nlu.DefaultLanguage))
	greeting := defaultString(strings.TrimSpace(agent.Greeting), DefaultGreeting)
	if m.languages != nil && !strings.EqualFold(lang, nlu.DefaultLanguage) {
		greeting = m.languages.Translate(ctx, greeting, nlu.DefaultLanguage, lang)
	}
	return Prompt{
		CallID:   cs.CallID,
		Text:     greeting,
		Audio:    m.render(ctx, greeting, lang, agent),
		Language: lang,
		Listen:   true,
		State:    State(cs.State),
	}
}

func (m *Machine) notConfiguredPrompt(ctx context.Context, callID string) Prompt {
	return Prompt{
		CallID:   callID,
		Text:     NotConfiguredLine,
		Audio:    speech.Baseline(speech.Request{Text: NotConfiguredLine, Language: nlu.DefaultLanguage}),
		Language: nlu.DefaultLanguage,
		Hangup:   true,
		State:    StateError,
	}
}

func (m *Machine) render(ctx context.Context, text, lang string, agent *domain.AgentConfig) speech.Audio {
	req := speech.Request{Text: text, Language: lang}
	if agent != nil {
		req.Voice = agent.Voice
		req.PremiumVoice = agent.ElevenLabsVoice
	}
	if m.speech == nil {
		return speech.Baseline(req)
	}
	return m.speech.Render(ctx, req)
}

// HandleUtterance runs one conversational turn for a caller transcript.
func (m *Machine) HandleUtterance(ctx context.Context, callID, text string, confidence float64) (Prompt, error) {
	unlock := m.locker.Lock(callID)
	tl := &transitionLog{}
	var snapshot *domain.CallSession
	defer func() {
		unlock()
		m.notify(tl, snapshot)
	}()

	start := time.Now()
	log := m.log.With("call_id", callID)
	now := m.now().UTC()

	cs, err := m.store.GetSession(ctx, callID)
	if err != nil {
		log.Warn("utterance_without_session", "error", err)
		return Prompt{
			CallID:   callID,
			Text:     FallbackLine,
			Audio:    speech.Baseline(speech.Request{Text: FallbackLine}),
			Language: nlu.DefaultLanguage,
			Listen:   true,
			State:    StateListening,
		}, nil
	}
	snapshot = cs
	agent, err := m.store.GetAgent(ctx, cs.AgentID)
	if err != nil {
		log.Error("utterance_agent_failed", "agent_id", cs.AgentID, "error", err)
		agent = &domain.AgentConfig{ID: cs.AgentID}
	}
	lang := defaultString(cs.Language, defaultString(agent.Language, nlu.DefaultLanguage))

	state := State(cs.State)
	if state.Terminal() {
		return Prompt{CallID: callID, Language: lang, Hangup: true, State: state}, nil
	}
	switch state {
	case StateGreeting:
		_ = tl.move(cs, StateListening, "caller spoke during greeting", now)
	case StateProcessing, StateResponding, StateInitiated:
		// a previous turn never completed
		log.Warn("session_state_recovered", "state", cs.State)
		cs.State = string(StateListening)
	}

	if strings.TrimSpace(text) == "" || (confidence > 0 && confidence < m.cfg.MinConfidence) {
		_ = tl.move(cs, StateListening, "unintelligible input", now)
		cs.LastActivity = now
		if err := m.store.UpdateSession(ctx, cs); err != nil {
			log.Error("reprompt_persist_failed", "error", err)
		}
		return Prompt{
			CallID:   callID,
			Text:     RepromptLine,
			Audio:    m.render(ctx, m.translate(ctx, RepromptLine, lang), lang, agent),
			Language: lang,
			Listen:   true,
			State:    StateListening,
		}, nil
	}

	if err := tl.move(cs, StateProcessing, "utterance received", now); err != nil {
		log.Error("utterance_transition_failed", "error", err)
	}
	log.Info("utterance", "text", redact.Text(text), "confidence", confidence)

	res, err := m.process(ctx, cs, agent, text, confidence, lang, tl)
	if err != nil {
		log.Error("processing_failed", "reason", string(errorsx.Reason(err)), "error", err)
		res = nlu.Result{Response: FallbackLine, Intent: nlu.IntentUnknown, Source: "fallback"}
		fallbackTurn := domain.ConversationTurn{Speaker: domain.SpeakerAgent, Message: FallbackLine}
		if err := m.contexts.AddConversationTurn(ctx, callID, &fallbackTurn); err == nil {
			tl.turns = append(tl.turns, fallbackTurn)
		}
	}
	_ = tl.move(cs, StateResponding, "reply ready", now)

	prompt := Prompt{
		CallID:   callID,
		Text:     res.Response,
		Audio:    m.render(ctx, res.Response, lang, agent),
		Language: lang,
		Intent:   res.Intent,
	}
	if res.ShouldEndCall {
		_ = tl.move(cs, StateEnded, "conversation finished", now)
		ended := now
		cs.EndedAt = &ended
		cs.EndedReason = EndedReasonFarewell
		cs.Duration = int(now.Sub(cs.StartedAt).Seconds())
		prompt.Hangup = true
	} else {
		_ = tl.move(cs, StateListening, "reply sent", now)
		prompt.Listen = true
	}
	prompt.State = State(cs.State)
	cs.LastActivity = now
	if err := m.store.UpdateSession(ctx, cs); err != nil {
		log.Error("utterance_persist_failed", "error", err)
	}
	if res.ShouldEndCall {
		m.recordCustomerCall(ctx, cs)
	}
	m.contexts.Invalidate(ctx, callID)
	log.Debug("turn_done", "source", res.Source, "elapsed_ms", time.Since(start).Milliseconds())
	return prompt, nil
}

func (m *Machine) process(ctx context.Context, cs *domain.CallSession, agent *domain.AgentConfig, text string, confidence float64, lang string, tl *transitionLog) (nlu.Result, error) {
	intent, _ := nlu.ClassifyIntent(text)
	sentiment, _ := nlu.Sentiment(text)
	callerTurn := domain.ConversationTurn{
		Speaker:    domain.SpeakerCaller,
		Message:    text,
		Intent:     intent,
		Sentiment:  sentiment,
		Confidence: confidence,
	}
	if err := m.contexts.AddConversationTurn(ctx, cs.CallID, &callerTurn); err != nil {
		return nlu.Result{}, err
	}
	tl.turns = append(tl.turns, callerTurn)

	cc, err := m.contexts.GetCallContext(ctx, cs.CallID, cs.CustomerPhone, cs.AgentID)
	if err != nil {
		return nlu.Result{}, err
	}
	if knowledge, err := m.contexts.SearchKnowledge(ctx, cs.AgentID, text); err == nil {
		cc.Knowledge = knowledge
	}
	if cc.Agent.ID == "" {
		cc.Agent = *agent
	}

	res := m.nlu.Process(ctx, nlu.Request{
		CallID:   cs.CallID,
		Text:     text,
		Language: lang,
		Agent:    cc.Agent,
		Context:  cc,
	})

	agentTurn := domain.ConversationTurn{
		Speaker:    domain.SpeakerAgent,
		Message:    res.Response,
		Intent:     res.Intent,
		Sentiment:  res.Sentiment,
		Confidence: res.Confidence,
		Entities:   res.Entities,
	}
	if err := m.contexts.AddConversationTurn(ctx, cs.CallID, &agentTurn); err != nil {
		return nlu.Result{}, err
	}
	tl.turns = append(tl.turns, agentTurn)

	update := conversation.SessionUpdate{Context: res.Context, CollectedInfo: map[string]any{}}
	if res.Intent != "" && res.Intent != nlu.IntentUnknown {
		update.ConversationState = res.Intent
		update.CollectedInfo["last_intent"] = res.Intent
	}
	for k, v := range res.Entities {
		update.CollectedInfo[k] = v
	}
	conversation.Merge(cs, update)
	return res, nil
}

func (m *Machine) translate(ctx context.Context, text, lang string) string {
	if m.languages == nil {
		return text
	}
	return m.languages.Translate(ctx, text, nlu.DefaultLanguage, lang)
}

// HandleCallEnd closes the session. Unknown calls are ignored and repeated
// deliveries only refresh the recorded fields.
func (m *Machine) HandleCallEnd(ctx context.Context, ev CallEndEvent) error {
	unlock := m.locker.Lock(ev.CallID)
	tl := &transitionLog{}
	var snapshot *domain.CallSession
	defer func() {
		unlock()
		m.notify(tl, snapshot)
	}()

	log := m.log.With("call_id", ev.CallID)
	cs, err := m.store.GetSession(ctx, ev.CallID)
	if errorsx.IsNotFound(err) {
		log.Info("call_end_unknown_call", "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	now := m.now().UTC()
	endedAt := ev.EndedAt
	if endedAt.IsZero() {
		endedAt = now
	}
	alreadyEnded := State(cs.State) == StateEnded
	if !alreadyEnded {
		if err := tl.move(cs, StateEnded, defaultString(ev.EndedReason, "call ended"), now); err != nil {
			return err
		}
		cs.EndedAt = &endedAt
	}
	if ev.Duration > 0 {
		cs.Duration = ev.Duration
	} else if cs.Duration == 0 && cs.EndedAt != nil {
		cs.Duration = int(cs.EndedAt.Sub(cs.StartedAt).Seconds())
	}
	if ev.RecordingURL != "" {
		cs.RecordingURL = ev.RecordingURL
	}
	if ev.EndedReason != "" {
		cs.EndedReason = ev.EndedReason
	} else if cs.EndedReason == "" {
		cs.EndedReason = EndedReasonCompleted
	}
	if ev.Cost > 0 {
		cs.Cost = ev.Cost
	}
	cs.Status = "ended"
	cs.LastActivity = now
	if err := m.store.UpdateSession(ctx, cs); err != nil {
		return err
	}
	if !alreadyEnded {
		m.recordCustomerCall(ctx, cs)
	}
	m.contexts.Invalidate(ctx, ev.CallID)
	snapshot = cs
	log.Info("call_end", "duration", cs.Duration, "reason", cs.EndedReason, "repeat", alreadyEnded)
	return nil
}

func (m *Machine) recordCustomerCall(ctx context.Context, cs *domain.CallSession) {
	if cs.CustomerPhone == "" {
		return
	}
	if _, err := m.store.GetOrCreateCustomer(ctx, cs.CustomerPhone, cs.Language); err != nil {
		m.log.Error("customer_profile_failed", "call_id", cs.CallID, "error", err)
		return
	}
	if err := m.store.RecordCustomerCall(ctx, cs.CustomerPhone, m.now().UTC()); err != nil {
		m.log.Error("customer_profile_failed", "call_id", cs.CallID, "error", err)
	}
}

// HandleStatusUpdate records the provider status without touching the conversation state.
func (m *Machine) HandleStatusUpdate(ctx context.Context, ev StatusEvent) error {
	unlock := m.locker.Lock(ev.CallID)
	defer unlock()

	cs, err := m.store.GetSession(ctx, ev.CallID)
	if errorsx.IsNotFound(err) {
		m.log.Info("status_unknown_call", "call_id", ev.CallID, "status", ev.Status)
		return nil
	}
	if err != nil {
		return err
	}
	if ev.Status == "" || ev.Status == cs.Status {
		return nil
	}
	cs.Status = ev.Status
	cs.LastActivity = m.now().UTC()
	if err := m.store.UpdateSession(ctx, cs); err != nil {
		return err
	}
	m.contexts.Invalidate(ctx, ev.CallID)
	return nil
}

// Session returns the stored session of a call.
func (m *Machine) Session(ctx context.Context, callID string) (*domain.CallSession, error) {
	return m.store.GetSession(ctx, callID)
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
