// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A provider turns text into 16-bit signed little-endian PCM in the format it
// reports via Format. Text arrives on a channel so streaming backends can start
// speaking before the whole reply is known; batch backends collect it first.
//
// Implementations must be safe for concurrent use. The returned audio channel
// is closed when synthesis finishes or ctx is cancelled.
package tts

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/types"
)

// ErrNoAudio is returned by [Synthesize] when the backend produced nothing.
var ErrNoAudio = errors.New("tts: no audio produced")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream reads text fragments until the channel is closed and
	// emits PCM chunks as they are produced.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the voices the backend offers.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// Format is the PCM format of emitted chunks.
	Format() audio.Format
}

// Synthesize renders text in a single call and returns the complete clip.
// Chunks are collected until the provider closes its channel; a cancelled ctx
// returns ctx.Err().
func Synthesize(ctx context.Context, p Provider, text string, voice types.VoiceProfile) (audio.Clip, error) {
	in := make(chan string, 1)
	in <- text
	close(in)

	out, err := p.SynthesizeStream(ctx, in, voice)
	if err != nil {
		return audio.Clip{}, err
	}

	var pcm []byte
	for chunk := range out {
		pcm = append(pcm, chunk...)
	}
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	clip := audio.Clip{Data: pcm, Format: p.Format()}
	if clip.Empty() {
		return audio.Clip{}, ErrNoAudio
	}
	return clip, nil
}

// SplitSentences breaks text at '.', '!' or '?' followed by whitespace or the
// end of input. "Dr.Smith" and "3.14" are not split. Empty pieces are dropped.
func SplitSentences(text string) []string {
	var out []string
	rest := text
	for {
		i := sentenceBoundary(rest)
		if i < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:i+1]); s != "" {
			out = append(out, s)
		}
		rest = rest[i+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		out = append(out, s)
	}
	return out
}

func sentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
