package vapi

import (
	"strings"

	"github.com/harunnryd/voxa/pkg/domain"
)

const DefaultVoiceID = "ErXwobaYiN019PkySvjV"

type PhoneNumber struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	AssistantID string `json:"assistantId,omitempty"`
	Name        string `json:"name,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

type Model struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
}

type Voice struct {
	Provider        string  `json:"provider"`
	VoiceID         string  `json:"voiceId"`
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarityBoost,omitempty"`
	Style           float64 `json:"style,omitempty"`
}

type Transcriber struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

// Assistant is both the create payload and the listing shape.
type Assistant struct {
	ID                     string       `json:"id,omitempty"`
	Name                   string       `json:"name"`
	Model                  *Model       `json:"model,omitempty"`
	Voice                  *Voice       `json:"voice,omitempty"`
	FirstMessage           string       `json:"firstMessage,omitempty"`
	Transcriber            *Transcriber `json:"transcriber,omitempty"`
	RecordingEnabled       bool         `json:"recordingEnabled,omitempty"`
	EndCallFunctionEnabled bool         `json:"endCallFunctionEnabled,omitempty"`
	SilenceTimeoutSeconds  int          `json:"silenceTimeoutSeconds,omitempty"`
	MaxDurationSeconds     int          `json:"maxDurationSeconds,omitempty"`
	BackgroundSound        string       `json:"backgroundSound,omitempty"`
}

// Language returns the transcriber language or "en".
func (a Assistant) Language() string {
	if a.Transcriber != nil && a.Transcriber.Language != "" {
		return a.Transcriber.Language
	}
	return "en"
}

func (a Assistant) VoiceID() string {
	if a.Voice == nil {
		return ""
	}
	return a.Voice.VoiceID
}

func (a Assistant) SystemPrompt() string {
	if a.Model == nil {
		return ""
	}
	return a.Model.SystemPrompt
}

type Customer struct {
	Number string         `json:"number"`
	Name   string         `json:"name,omitempty"`
	Extra  map[string]any `json:"-"`
}

type CallRequest struct {
	AssistantID   string   `json:"assistantId"`
	PhoneNumberID string   `json:"phoneNumberId"`
	Customer      Customer `json:"customer"`
}

type Call struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BuildSystemPrompt joins personality, role and system prompt text.
func BuildSystemPrompt(agent domain.AgentConfig) string {
	var b strings.Builder
	if agent.Personality != "" {
		b.WriteString(agent.Personality)
		b.WriteString("\n\n")
	}
	if agent.Description != "" {
		b.WriteString("Role: ")
		b.WriteString(agent.Description)
		b.WriteString("\n\n")
	}
	b.WriteString(agent.SystemPrompt)
	if strings.TrimSpace(b.String()) == "" {
		return "You are a helpful AI assistant."
	}
	return b.String()
}

// AssistantFromAgent renders the hosted-platform definition of an agent.
func AssistantFromAgent(agent domain.AgentConfig) Assistant {
	voiceID := agent.ElevenLabsVoice
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	greeting := agent.Greeting
	if greeting == "" {
		greeting = "Hello! How can I help you today?"
	}
	language := agent.Language
	if language == "" {
		language = "en"
	}
	return Assistant{
		Name: agent.Name,
		Model: &Model{
			Provider:     "openai",
			Model:        "gpt-4-turbo",
			Temperature:  0.8,
			MaxTokens:    200,
			SystemPrompt: BuildSystemPrompt(agent),
		},
		Voice: &Voice{
			Provider:        "11labs",
			VoiceID:         voiceID,
			Stability:       0.35,
			SimilarityBoost: 0.75,
			Style:           0.3,
		},
		FirstMessage: greeting,
		Transcriber: &Transcriber{
			Provider: "deepgram",
			Model:    "nova-2",
			Language: language,
		},
		RecordingEnabled:       true,
		EndCallFunctionEnabled: true,
		SilenceTimeoutSeconds:  30,
		MaxDurationSeconds:     600,
		BackgroundSound:        "off",
	}
}
