// Package types defines the small set of values shared between the provider
// packages and the tutor. Each package keeps its own domain types; only data
// that crosses provider boundaries lives here.
package types

import "time"

// Message is a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Transcript is a speech-to-text result. Partial and final results share it.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal marks an authoritative (non-interim) result.
	IsFinal bool

	// SpeechFinal marks the last final of an utterance: the speaker paused
	// long enough for the provider to close the segment.
	SpeechFinal bool

	// Confidence is in [0, 1]. Zero when the provider does not report it.
	Confidence float64

	// Duration is the length of the utterance when known.
	Duration time.Duration
}

// VoiceProfile selects a TTS voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier ("nova", an ElevenLabs
	// voice id, a Coqui speaker name).
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider names the TTS backend this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0). Zero means provider default.
	SpeedFactor float64

	// Instructions is a free-form style hint for providers that accept one.
	Instructions string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	ContextWindow   int
	MaxOutputTokens int

	// SupportsStructuredOutput means the backend can be constrained to a JSON
	// schema natively. Other backends get the schema in the system prompt.
	SupportsStructuredOutput bool
}
