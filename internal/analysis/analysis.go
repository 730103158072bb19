// Package analysis grades a learner utterance with an LLM.
//
// The model is asked for a single JSON object whose shape is derived from
// [tutor.AnalysisResult]. The reply is checked against that schema before it
// is decoded, so a partial or chatty answer surfaces as [ErrMalformed] rather
// than as a zero-valued result that would be scored as a grammar mistake.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/nova/internal/observe"
	"github.com/MrWong99/nova/internal/tutor"
	"github.com/MrWong99/nova/pkg/provider/llm"
	"github.com/MrWong99/nova/pkg/types"
)

// ErrMalformed is wrapped by every error caused by an unusable model reply.
var ErrMalformed = errors.New("analysis: malformed model reply")

const (
	defaultTutorName = "Nova"
	schemaName       = "analysis_result"
)

var _ tutor.Analyzer = (*Analyzer)(nil)

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithTutorName sets the persona the model answers as. Defaults to "Nova".
func WithTutorName(name string) Option {
	return func(a *Analyzer) {
		if name != "" {
			a.tutorName = name
		}
	}
}

// WithMetrics records latency and request counts on m instead of
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithProviderName labels metrics with the LLM backend name.
func WithProviderName(name string) Option {
	return func(a *Analyzer) { a.providerName = name }
}

// WithTemperature sets the sampling temperature. Zero keeps the provider default.
func WithTemperature(t float64) Option {
	return func(a *Analyzer) { a.temperature = t }
}

// Analyzer implements tutor.Analyzer on top of an llm.Provider.
type Analyzer struct {
	llm          llm.Provider
	tutorName    string
	temperature  float64
	metrics      *observe.Metrics
	providerName string

	schema   *jsonschema.Resolved
	response *llm.ResponseSchema
}

// New builds an Analyzer. It fails only if the result schema cannot be derived.
func New(p llm.Provider, opts ...Option) (*Analyzer, error) {
	if p == nil {
		return nil, errors.New("analysis: llm provider is required")
	}
	a := &Analyzer{llm: p, tutorName: defaultTutorName, providerName: "llm"}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	schema, raw, err := resultSchema()
	if err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("analysis: resolve schema: %w", err)
	}
	a.schema = resolved
	a.response = &llm.ResponseSchema{
		Name:        schemaName,
		Description: "Assessment of one spoken English practice sentence.",
		Schema:      raw,
	}
	return a, nil
}

// resultSchema derives the strict object schema for tutor.AnalysisResult and
// its plain-map form for the provider.
func resultSchema() (*jsonschema.Schema, map[string]any, error) {
	schema, err := jsonschema.For[tutor.AnalysisResult](nil)
	if err != nil {
		return nil, nil, fmt.Errorf("analysis: derive schema: %w", err)
	}
	// Every field is mandatory and nothing else is allowed.
	schema.Required = []string{"isEnglish", "hasBengali", "isCorrect", "correction", "feedback", "response"}
	schema.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, fmt.Errorf("analysis: encode schema: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("analysis: encode schema: %w", err)
	}
	return schema, raw, nil
}

// Analyze sends one grading request. There are no retries.
func (a *Analyzer) Analyze(ctx context.Context, text string) (tutor.AnalysisResult, error) {
	ctx, span := observe.StartSpan(ctx, "analysis.Analyze")
	defer span.End()

	start := time.Now()
	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: a.systemPrompt(),
		Messages:     []types.Message{{Role: "user", Content: Prompt(text, a.tutorName)}},
		Temperature:  a.temperature,
		Schema:       a.response,
	})
	a.metrics.RecordProviderCall(ctx, a.metrics.LLMDuration, a.providerName, "llm", start, err)
	if err != nil {
		span.RecordError(err)
		return tutor.AnalysisResult{}, fmt.Errorf("analysis: complete: %w", err)
	}
	if resp == nil {
		return tutor.AnalysisResult{}, fmt.Errorf("%w: empty response", ErrMalformed)
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens),
	)

	result, err := a.parse(resp.Content)
	if err != nil {
		span.RecordError(err)
		observe.Logger(ctx).Debug("analysis: rejected reply", "content", resp.Content, "err", err)
		return tutor.AnalysisResult{}, err
	}
	return result, nil
}

func (a *Analyzer) parse(content string) (tutor.AnalysisResult, error) {
	body := StripFences(content)
	if body == "" {
		return tutor.AnalysisResult{}, fmt.Errorf("%w: empty content", ErrMalformed)
	}

	var instance map[string]any
	if err := json.Unmarshal([]byte(body), &instance); err != nil {
		return tutor.AnalysisResult{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}
	if err := a.schema.Validate(instance); err != nil {
		return tutor.AnalysisResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var result tutor.AnalysisResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return tutor.AnalysisResult{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}
	return result, nil
}

func (a *Analyzer) systemPrompt() string {
	return "You are " + a.tutorName + ", a friendly English tutor helping a Bengali-speaking learner practice spoken English."
}

// Prompt is the grading instruction for one utterance, answered as the tutor
// persona name.
func Prompt(text, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this user speech input: %q.\n", text)
	b.WriteString("The user is practicing English.\n")
	b.WriteString("1. Check if the text is primarily English.\n")
	b.WriteString("2. Check if the text contains any Bengali words/phrases.\n")
	b.WriteString("3. Check for English grammatical correctness.\n")
	b.WriteString("4. Provide a corrected version if there are errors.\n")
	b.WriteString("5. Provide a short, friendly encouraging feedback.\n")
	fmt.Fprintf(&b, "6. Provide a natural spoken response as a female robot tutor named %s.", name)
	return b.String()
}

// StripFences removes a surrounding Markdown code fence, with or without a
// language tag, and trims whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
