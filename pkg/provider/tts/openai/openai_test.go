package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/nova/pkg/audio"
	"github.com/MrWong99/nova/pkg/types"
)

func feed(parts ...string) <-chan string {
	ch := make(chan string, len(parts))
	for _, p := range parts {
		ch <- p
	}
	close(ch)
	return ch
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestFormat(t *testing.T) {
	p, _ := New("key")
	if p.Format() != audio.SpeechFormat {
		t.Errorf("Format = %v", p.Format())
	}
}

func TestListVoices(t *testing.T) {
	p, _ := New("key")
	got, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(got) != len(voices) {
		t.Fatalf("got %d voices, want %d", len(got), len(voices))
	}
	found := false
	for _, v := range got {
		if v.ID == "nova" && v.Provider == "openai" {
			found = true
		}
	}
	if !found {
		t.Error("nova voice missing")
	}
}

func TestSynthesizeStream_FakeServer(t *testing.T) {
	pcm := make([]byte, 10000)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pcm)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL+"/v1/"), WithTimeout(5*time.Second))
	voice := types.VoiceProfile{ID: "nova", SpeedFactor: 0.9, Instructions: "Speak warmly."}
	out, err := p.SynthesizeStream(context.Background(), feed("Great ", "job!"), voice)
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var got []byte
	chunks := 0
	for c := range out {
		got = append(got, c...)
		chunks++
	}
	if len(got) != len(pcm) {
		t.Fatalf("got %d bytes, want %d", len(got), len(pcm))
	}
	if chunks != 3 {
		t.Errorf("chunks = %d, want 3", chunks)
	}

	want := map[string]any{
		"input":           "Great job!",
		"model":           "gpt-4o-mini-tts",
		"voice":           "nova",
		"response_format": "pcm",
		"instructions":    "Speak warmly.",
		"speed":           0.9,
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("request %s = %v, want %v", k, body[k], v)
		}
	}
}

func TestSynthesizeStream_EmptyInput(t *testing.T) {
	p, _ := New("key", WithBaseURL("http://127.0.0.1:1/"))
	out, err := p.SynthesizeStream(context.Background(), feed("  "), types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if _, open := <-out; open {
		t.Error("expected closed channel for blank input")
	}
}

func TestSynthesizeStream_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL+"/"))
	if _, err := p.SynthesizeStream(context.Background(), feed("hi"), types.VoiceProfile{ID: "bogus"}); err == nil {
		t.Fatal("expected error on 400")
	}
}

func TestBuildParams_LegacyModelDropsInstructions(t *testing.T) {
	srvBody := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b map[string]any
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &b)
		srvBody <- b
		_, _ = w.Write([]byte{0, 0})
	}))
	defer srv.Close()

	p, _ := New("key", WithModel("tts-1"), WithBaseURL(srv.URL+"/"))
	out, err := p.SynthesizeStream(context.Background(), feed("hi"), types.VoiceProfile{Instructions: "ignored", SpeedFactor: 1})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	for range out {
	}
	b := <-srvBody
	if _, ok := b["instructions"]; ok {
		t.Error("instructions must be omitted for tts-1")
	}
	if _, ok := b["speed"]; ok {
		t.Error("speed 1.0 should be omitted")
	}
	if b["voice"] != "nova" {
		t.Errorf("default voice = %v, want nova", b["voice"])
	}
}
