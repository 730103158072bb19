package openai

import (
	"strings"
	"testing"

	"github.com/MrWong99/nova/pkg/provider/llm"
	"github.com/MrWong99/nova/pkg/types"
)

func TestConvertMessage_Roles(t *testing.T) {
	for _, role := range []string{"system", "user", "assistant"} {
		t.Run(role, func(t *testing.T) {
			got, err := convertMessage(types.Message{Role: role, Content: "hi"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch role {
			case "system":
				if got.OfSystem == nil {
					t.Fatal("expected OfSystem to be set")
				}
			case "user":
				if got.OfUser == nil {
					t.Fatal("expected OfUser to be set")
				}
			case "assistant":
				if got.OfAssistant == nil {
					t.Fatal("expected OfAssistant to be set")
				}
			}
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(types.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unsupported role")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model      string
		structured bool
		window     int
	}{
		{model: "gpt-4o-mini", structured: true, window: 128_000},
		{model: "gpt-4.1-mini", structured: true, window: 128_000},
		{model: "gpt-4", structured: false, window: 8_192},
		{model: "gpt-3.5-turbo", structured: false, window: 16_385},
		{model: "o3-mini", structured: true, window: 200_000},
		{model: "my-custom-model", structured: true, window: 128_000},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.SupportsStructuredOutput != tt.structured {
				t.Errorf("SupportsStructuredOutput = %v, want %v", caps.SupportsStructuredOutput, tt.structured)
			}
			if caps.ContextWindow != tt.window {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.window)
			}
		})
	}
}

func testSchema() *llm.ResponseSchema {
	return &llm.ResponseSchema{
		Name:        "analysis",
		Description: "grammar verdict",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"isCorrect": map[string]any{"type": "boolean"}},
		},
	}
}

func TestBuildParams_StructuredOutput(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a tutor.",
		Messages:     []types.Message{{Role: "user", Content: "I goes home"}},
		Temperature:  0.2,
		MaxTokens:    256,
		Schema:       testSchema(),
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(params.Messages))
	}
	js := params.ResponseFormat.OfJSONSchema
	if js == nil {
		t.Fatal("expected json_schema response format")
	}
	if js.JSONSchema.Name != "analysis" {
		t.Errorf("schema name = %q", js.JSONSchema.Name)
	}
	if !js.JSONSchema.Strict.Value {
		t.Error("expected strict schema")
	}
	if params.Temperature.Value != 0.2 {
		t.Errorf("temperature = %v", params.Temperature.Value)
	}
	if params.MaxCompletionTokens.Value != 256 {
		t.Errorf("max tokens = %v", params.MaxCompletionTokens.Value)
	}
}

func TestBuildParams_SchemaInPromptForLegacyModels(t *testing.T) {
	p := &Provider{model: "gpt-3.5-turbo"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a tutor.",
		Messages:     []types.Message{{Role: "user", Content: "hello"}},
		Schema:       testSchema(),
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Fatal("expected json_object response format")
	}
	sys := params.Messages[0].OfSystem
	if sys == nil {
		t.Fatal("expected a system message first")
	}
	if !strings.Contains(sys.Content.OfString.Value, "isCorrect") {
		t.Errorf("system prompt does not embed the schema: %q", sys.Content.OfString.Value)
	}
}

func TestBuildParams_NoMessages(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	if _, err := p.buildParams(llm.CompletionRequest{SystemPrompt: "x"}); err == nil {
		t.Fatal("expected error for empty messages")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "gpt-4o" {
		t.Errorf("model = %q", p.model)
	}
}
