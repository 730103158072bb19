package coqui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/types"
)

// ---- test helpers ----

func speechWAV(pcm []byte) []byte {
	return audio.EncodeWAV(audio.Clip{Data: pcm, Format: audio.SpeechFormat})
}

func drainAudio(ch <-chan []byte) []byte {
	var out []byte
	for chunk := range ch {
		out = append(out, chunk...)
	}
	return out
}

func sendFragments(fragments ...string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

// ---- Provider creation ----

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q", p.serverURL)
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want standard", p.apiMode)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v", p.httpClient.Timeout)
		}
		if p.Format() != audio.SpeechFormat {
			t.Errorf("Format = %v", p.Format())
		}
	})
	t.Run("options", func(t *testing.T) {
		p := mustNew(t, "http://x", WithLanguage("de"), WithTimeout(time.Second), WithAPIMode(APIModeXTTS))
		if p.language != "de" || p.httpClient.Timeout != time.Second || p.apiMode != APIModeXTTS {
			t.Errorf("options not applied: %+v", p)
		}
	})
	t.Run("empty url", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error")
		}
	})
	t.Run("unknown mode", func(t *testing.T) {
		if _, err := New("http://x", WithAPIMode("grpc")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestSynthesizeStream_EmptyVoiceID_XTTS(t *testing.T) {
	p := mustNew(t, "http://localhost:8002", WithAPIMode(APIModeXTTS))
	if _, err := p.SynthesizeStream(context.Background(), sendFragments("hi"), types.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice ID in XTTS mode")
	}
}

// ---- synthesis ----

func TestSynthesizeStream_StandardAPI(t *testing.T) {
	t.Parallel()

	wantPCM := make([]byte, 80)
	for i := range wantPCM {
		wantPCM[i] = 0x33
	}

	var (
		mu    sync.Mutex
		texts []string
		query []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		mu.Lock()
		texts = append(texts, q.Get("text"))
		query = append(query, q.Get("speaker_id")+"|"+q.Get("language_id"))
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(speechWAV(wantPCM))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithLanguage("en"))
	out, err := p.SynthesizeStream(context.Background(),
		sendFragments("Great job! You ", "said it well."),
		types.VoiceProfile{ID: "p225"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	pcm := drainAudio(out)
	if len(pcm) != 2*len(wantPCM) {
		t.Errorf("total PCM bytes = %d, want %d", len(pcm), 2*len(wantPCM))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 2 || texts[0] != "Great job!" || texts[1] != "You said it well." {
		t.Errorf("sentences sent = %q", texts)
	}
	if query[0] != "p225|en" {
		t.Errorf("speaker|language = %q", query[0])
	}
}

func TestSynthesizeStream_XTTSResamples(t *testing.T) {
	t.Parallel()

	// 22050 Hz input must come out at 24000 Hz.
	src := audio.Clip{Data: make([]byte, 22050*2), Format: audio.Format{SampleRate: 22050, Channels: 1}}

	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write(audio.EncodeWAV(src))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("en"))
	out, err := p.SynthesizeStream(context.Background(), sendFragments("Hello"), types.VoiceProfile{ID: "studio_ana"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	pcm := drainAudio(out)
	clip := audio.Clip{Data: pcm, Format: audio.SpeechFormat}
	if d := clip.Duration(); d < 990*time.Millisecond || d > 1010*time.Millisecond {
		t.Errorf("converted duration = %v, want ~1s", d)
	}
	if got.Text != "Hello" || got.SpeakerWav != "studio_ana" || got.Language != "en" {
		t.Errorf("request body = %+v", got)
	}
}

func TestSynthesizeStream_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	out, err := p.SynthesizeStream(context.Background(), sendFragments("One. Two."), types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if pcm := drainAudio(out); len(pcm) != 0 {
		t.Errorf("expected no audio on server error, got %d bytes", len(pcm))
	}
}

func TestSynthesizeStream_NotWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ID3 mp3 bytes"))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.synthesize(context.Background(), "hi", types.VoiceProfile{}); err == nil {
		t.Fatal("expected error for non-WAV response")
	}
}

func TestSynthesizeStream_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := mustNew(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	out, err := p.SynthesizeStream(ctx, sendFragments("Slow sentence."), types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		drainAudio(out)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("audio channel not closed after cancellation")
	}
}

// ---- voices ----

func TestListVoices_XTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"speaker_bob":{},"speaker_alice":{}}`))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "speaker_alice" || voices[1].ID != "speaker_bob" {
		t.Fatalf("voices = %+v", voices)
	}
	if voices[0].Provider != "coqui" {
		t.Errorf("Provider = %q", voices[0].Provider)
	}
}

func TestListVoices_StandardAPI(t *testing.T) {
	tests := []struct {
		name    string
		details detailsResponse
		want    []string
	}{
		{"multi-speaker", detailsResponse{ModelName: "vctk", Speakers: []string{"p227", "p225"}}, []string{"p225", "p227"}},
		{"single-speaker", detailsResponse{ModelName: "tts_models/en/ljspeech/vits"}, []string{"tts_models/en/ljspeech/vits"}},
		{"unnamed", detailsResponse{}, []string{"default"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(tt.details)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != detailsEndpoint {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write(data)
			}))
			defer srv.Close()

			voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tt.want) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tt.want))
			}
			for i, w := range tt.want {
				if voices[i].ID != w {
					t.Errorf("voices[%d].ID = %q, want %q", i, voices[i].ID, w)
				}
			}
		})
	}
}

func TestListVoices_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := mustNew(t, srv.URL).ListVoices(context.Background())
	if err == nil {
		t.Fatal("expected error on server failure")
	}
	if !strings.Contains(err.Error(), "coqui:") {
		t.Errorf("error %q missing 'coqui:' prefix", err)
	}
}
