package tts_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/provider/tts"
	"github.com/MrWong99/nova/pkg/provider/tts/mock"
	"github.com/MrWong99/nova/pkg/types"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"Hello", []string{"Hello"}},
		{"Great job! You said it well. Try again?", []string{"Great job!", "You said it well.", "Try again?"}},
		{"Pi is 3.14 exactly. Dr.Smith agrees", []string{"Pi is 3.14 exactly.", "Dr.Smith agrees"}},
		{"  spaced out.   ", []string{"spaced out."}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := tts.SplitSentences(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	p := &mock.Provider{
		SynthesizeChunks: [][]byte{{1, 0}, {2, 0, 3, 0}},
		AudioFormat:      audio.SpeechFormat,
	}
	clip, err := tts.Synthesize(context.Background(), p, "Well done!", types.VoiceProfile{ID: "nova"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !reflect.DeepEqual(clip.Data, []byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("data = %v", clip.Data)
	}
	if clip.Format != audio.SpeechFormat {
		t.Errorf("format = %v", clip.Format)
	}

	calls := p.Calls()
	if len(calls) != 1 || calls[0].Text != "Well done!" || calls[0].Voice.ID != "nova" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	p := &mock.Provider{AudioFormat: audio.SpeechFormat}
	if _, err := tts.Synthesize(context.Background(), p, "hi", types.VoiceProfile{}); !errors.Is(err, tts.ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
}

func TestSynthesize_ProviderError(t *testing.T) {
	boom := errors.New("quota exceeded")
	p := &mock.Provider{SynthesizeErr: boom}
	if _, err := tts.Synthesize(context.Background(), p, "hi", types.VoiceProfile{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestSynthesize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &mock.Provider{SynthesizeChunks: [][]byte{{1, 0}}, AudioFormat: audio.SpeechFormat}
	if _, err := tts.Synthesize(ctx, p, "hi", types.VoiceProfile{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
