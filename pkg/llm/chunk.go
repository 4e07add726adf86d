package llm

// ContentType distinguishes reasoning from answer text in a stream.
type ContentType string

const (
	ContentTypeMessage  ContentType = "message"  // ContentTypeMessage is answer text.
	ContentTypeThinking ContentType = "thinking" // ContentTypeThinking is text inside <thinking> tags.
)

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	// Error is set when the stream failed. No further chunks follow.
	Error error

	// Content is a text delta.
	Content string

	// Role is set on the first chunk, typically "assistant".
	Role string

	// Type says whether Content is thinking or message text.
	Type ContentType

	// Finished marks the last chunk of a successful stream.
	Finished bool
}

// IsError returns true if the chunk carries an error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// IsThinking returns true if the chunk is reasoning content.
func (c *StreamChunk) IsThinking() bool {
	return c.Type == ContentTypeThinking
}

// IsMessage returns true if the chunk is answer content. Untyped chunks with
// content count as message content.
func (c *StreamChunk) IsMessage() bool {
	return c.Type == ContentTypeMessage || (c.Type == "" && c.Content != "")
}
