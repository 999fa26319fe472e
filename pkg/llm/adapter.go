package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Request is a single non-streaming completion. System is sent out of band
// for providers that separate it from the message list.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Model        string
	Usage        Usage
	FinishReason string
}

// Completer is implemented by every language-model provider.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}
