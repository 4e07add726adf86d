package types

// MessageRole is the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // RoleSystem is a system instruction.
	RoleUser      MessageRole = "user"      // RoleUser is a prompt sent by us.
	RoleAssistant MessageRole = "assistant" // RoleAssistant is a reply from the model.
)

// Message is one turn of a conversation with an LLM.
type Message struct {
	// Metadata holds optional additional information about the message.
	Metadata map[string]interface{}

	// Content is the message text.
	Content string

	// Role identifies the author.
	Role MessageRole
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

// ModelInfo describes the model behind a provider.
type ModelInfo struct {
	// Metadata holds provider specific details such as a custom base URL.
	Metadata map[string]interface{}

	// Provider is the provider name, e.g. "openai".
	Provider string

	// Name is the model name.
	Name string

	// MaxTokens is the context window in tokens.
	MaxTokens int

	// SupportsStreaming reports whether StreamCompletion is incremental.
	SupportsStreaming bool
}
