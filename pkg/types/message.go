// Package types defines the shared message and model types used across
// the Chimera orchestration layer.
package types

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	// RoleSystem is a system instruction message.
	RoleSystem MessageRole = "system"

	// RoleUser is a message authored by the end user.
	RoleUser MessageRole = "user"

	// RoleAssistant is a message authored by the model.
	RoleAssistant MessageRole = "assistant"
)

// Message represents a single chat message exchanged with a provider.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// ModelInfo describes the model behind a provider adapter.
type ModelInfo struct {
	// Provider is the adapter family (e.g. "openai", "ollama").
	Provider string

	// Name is the model identifier sent to the backend.
	Name string

	// SupportsVision indicates the model accepts image input.
	SupportsVision bool

	// MaxTokens is the advertised completion token limit, if known.
	MaxTokens int

	// Metadata holds adapter-specific details (base URL overrides, etc).
	Metadata map[string]interface{}
}
