// Package llm provides abstractions for LLM provider integration.
//
// A provider is one way to reach the translation agent: the llm channel
// keeps the conversation history and streams each reply into a buffer that
// the observer polls.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("deepseek-chat"),
//	    openai.WithBaseURL("https://api.deepseek.com/v1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stream, err := provider.StreamCompletion(ctx, []*types.Message{
//	    types.NewUserMessage(prompt),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for chunk := range stream {
//	    if chunk.IsError() {
//	        log.Fatal(chunk.Error)
//	    }
//	    if chunk.IsMessage() {
//	        fmt.Print(chunk.Content)
//	    }
//	}
package llm

import (
	"context"

	"github.com/entrhq/translator/pkg/types"
)

// Provider defines the interface for LLM integrations.
//
// Providers handle API communication and return plain StreamChunks. They do
// not know about tasks, batches or observation.
type Provider interface {
	// StreamCompletion sends messages to the LLM and streams back response chunks.
	//
	// The channel is closed when streaming completes or an error occurs;
	// callers should read until it is closed. An error is returned only when
	// the stream cannot be started. Stream-time errors arrive as chunks with
	// Error set.
	StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *StreamChunk, error)

	// Complete sends messages and returns the full assistant message, without
	// thinking content.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModelInfo returns information about the model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string

	// GetBaseURL returns the base URL being used for API requests.
	GetBaseURL() string
}
