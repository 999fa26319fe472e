package domain

import (
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
)

// DefaultConversationState is the conversation tag of a freshly created session.
const DefaultConversationState = "greeting"

// Terminal session states as persisted in CallSession.State.
const (
	SessionStateEnded = "ENDED"
	SessionStateError = "ERROR"
)

// CallSession is the stateful record of one call. Identity is the provider call id.
type CallSession struct {
	CallID            string         `json:"call_id"`
	TenantID          string         `json:"tenant_id,omitempty"`
	Direction         Direction      `json:"direction"`
	CustomerPhone     string         `json:"customer_phone"`
	AgentID           string         `json:"agent_id"`
	Status            string         `json:"status"`
	State             string         `json:"state"`
	ConversationState string         `json:"conversation_state"`
	Language          string         `json:"language,omitempty"`
	Context           map[string]any `json:"context,omitempty"`
	CollectedInfo     map[string]any `json:"collected_info,omitempty"`
	PendingActions    []string       `json:"pending_actions,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
	Duration          int            `json:"duration,omitempty"`
	RecordingURL      string         `json:"recording_url,omitempty"`
	EndedReason       string         `json:"ended_reason,omitempty"`
	Cost              float64        `json:"cost,omitempty"`
	LastActivity      time.Time      `json:"last_activity"`
}

// NewCallSession validates the identity fields of a session.
func NewCallSession(callID, agentID, customerPhone string, dir Direction, now time.Time) (*CallSession, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return nil, errorsx.Invalid("call_id", "required")
	}
	if strings.TrimSpace(agentID) == "" {
		return nil, errorsx.Invalid("agent_id", "required")
	}
	if dir != DirectionInbound && dir != DirectionOutbound {
		return nil, errorsx.Invalid("direction", "must be inbound or outbound")
	}
	return &CallSession{
		CallID:            callID,
		Direction:         dir,
		CustomerPhone:     strings.TrimSpace(customerPhone),
		AgentID:           agentID,
		ConversationState: DefaultConversationState,
		Context:           map[string]any{},
		CollectedInfo:     map[string]any{},
		StartedAt:         now,
		LastActivity:      now,
	}, nil
}

// ConversationTurn is one numbered utterance inside a session. Append-only.
type ConversationTurn struct {
	CallID     string         `json:"call_id"`
	TurnNumber int            `json:"turn_number"`
	Speaker    Speaker        `json:"speaker"`
	Message    string         `json:"message"`
	Intent     string         `json:"intent,omitempty"`
	Sentiment  string         `json:"sentiment,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Entities   map[string]any `json:"entities,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (t ConversationTurn) Validate() error {
	if strings.TrimSpace(t.CallID) == "" {
		return errorsx.Invalid("call_id", "required")
	}
	if t.Speaker != SpeakerAgent && t.Speaker != SpeakerCaller {
		return errorsx.Invalid("speaker", "must be agent or caller")
	}
	return nil
}

// CustomerProfile is keyed by the caller's number and survives across calls.
type CustomerProfile struct {
	Phone              string     `json:"phone"`
	Name               string     `json:"name,omitempty"`
	LanguagePreference string     `json:"language_preference"`
	TotalCalls         int        `json:"total_calls"`
	LastCallDate       *time.Time `json:"last_call_date,omitempty"`
	CommunicationStyle string     `json:"communication_style,omitempty"`
	SentimentTrend     string     `json:"sentiment_trend,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// CallSummary is a prior call as shown in the recent-history prompt section.
type CallSummary struct {
	CallID      string    `json:"call_id"`
	AgentName   string    `json:"agent_name,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Duration    int       `json:"duration"`
	EndedReason string    `json:"ended_reason,omitempty"`
	Status      string    `json:"status"`
}

// AgentConfig is the tenant-owned agent definition.
type AgentConfig struct {
	ID                  string    `json:"id"`
	TenantID            string    `json:"tenant_id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	Greeting            string    `json:"greeting"`
	Language            string    `json:"language"`
	Voice               string    `json:"voice,omitempty"`
	ElevenLabsVoice     string    `json:"elevenlabs_voice,omitempty"`
	Personality         string    `json:"personality,omitempty"`
	SystemPrompt        string    `json:"system_prompt,omitempty"`
	Intents             []string  `json:"intents,omitempty"`
	BusinessRules       string    `json:"business_rules,omitempty"`
	SpecialInstructions string    `json:"special_instructions,omitempty"`
	RemoteAssistantID   string    `json:"remote_assistant_id,omitempty"`
	Status              string    `json:"status"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (a AgentConfig) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errorsx.Invalid("id", "required")
	}
	if strings.TrimSpace(a.TenantID) == "" {
		return errorsx.Invalid("tenant_id", "required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return errorsx.Invalid("name", "required")
	}
	return nil
}

// PhoneNumberRecord links a unique number to at most one agent and one remote phone id.
type PhoneNumberRecord struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	Number            string    `json:"number"`
	CountryCode       string    `json:"country_code"`
	AgentID           string    `json:"agent_id,omitempty"`
	RemotePhoneID     string    `json:"remote_phone_id,omitempty"`
	RemoteAssistantID string    `json:"remote_assistant_id,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// KnowledgeEntry is one knowledge-base article scoped to an agent.
type KnowledgeEntry struct {
	ID       string `json:"id"`
	AgentID  string `json:"agent_id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category,omitempty"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
}
