// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider accepts a live stream of 16-bit signed little-endian PCM and
// emits transcripts on two channels: Partials for interim hypotheses and
// Finals for committed text. A final with SpeechFinal set ends an utterance.
//
// Implementations must be safe for concurrent use. Both transcript channels
// are closed by the implementation once Close has flushed pending audio or the
// stream context is cancelled, so consumers can range over Finals.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/nova/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig configures a single streaming session.
type StreamConfig struct {
	// SampleRate of the PCM audio in Hz. Zero means provider default.
	SampleRate int

	// Channels of the PCM audio. Zero means mono.
	Channels int

	// Language is a BCP-47 code ("en", "en-US"). Empty means provider default.
	Language string
}

// SessionHandle is a live transcription session.
type SessionHandle interface {
	// SendAudio queues a PCM chunk for recognition.
	SendAudio(chunk []byte) error

	// Partials returns interim transcripts. Consumers that do not need them
	// may ignore the channel; providers never block on it.
	Partials() <-chan types.Transcript

	// Finals returns committed transcripts.
	Finals() <-chan types.Transcript

	// Close stops accepting audio, flushes what was already sent and closes
	// both channels. Idempotent.
	Close() error
}

// Provider opens streaming sessions.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
