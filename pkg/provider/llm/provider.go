// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance) and exposes a uniform completion call so the grammar
// analyzer does not couple to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"encoding/json"

	"github.com/MrWong99/nova/pkg/types"
)

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ResponseSchema asks the backend to answer with a single JSON object that
// matches Schema. Backends with native structured output enforce it; the rest
// receive the schema as part of the system prompt.
type ResponseSchema struct {
	// Name identifies the schema to the backend (letters, digits, '_' and '-').
	Name string

	// Description is an optional hint about what the object represents.
	Description string

	// Schema is the JSON Schema document.
	Schema map[string]any
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []types.Message

	// SystemPrompt is an optional instruction injected before Messages.
	SystemPrompt string

	// Temperature in [0.0, 2.0]. Zero means provider default.
	Temperature float64

	// MaxTokens caps completion tokens. Zero means provider default.
	MaxTokens int

	// Schema, when set, requests a JSON object response.
	Schema *ResponseSchema
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() types.ModelCapabilities
}

// Instruction renders the schema as a prompt suffix for backends without
// native structured output.
func (s *ResponseSchema) Instruction() string {
	doc, err := json.MarshalIndent(s.Schema, "", "  ")
	if err != nil {
		return "Respond with a single JSON object and nothing else."
	}
	return "Respond with a single JSON object and nothing else. It must match this JSON Schema:\n" + string(doc)
}
