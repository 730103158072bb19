package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/nova/pkg/provider/stt"
)

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "endpointing", "300", q.Get("endpointing"))
	assertEqual(t, "utterance_end_ms", "1000", q.Get("utterance_end_ms"))
}

func TestBuildURL_Options(t *testing.T) {
	p, err := New("key", WithModel("nova-2"), WithLanguage("en-GB"), WithSampleRate(48000), WithEndpointing(500))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q, _ := url.Parse(rawURL)

	assertEqual(t, "model", "nova-2", q.Query().Get("model"))
	assertEqual(t, "language", "en-GB", q.Query().Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Query().Get("sample_rate"))
	assertEqual(t, "endpointing", "500", q.Query().Get("endpointing"))
	assertEqual(t, "channels", "1", q.Query().Get("channels"))
}

func TestBuildURL_LanguageOverriddenByCfg(t *testing.T) {
	p, _ := New("key", WithLanguage("en"))
	rawURL, err := p.buildURL(stt.StreamConfig{Language: "en-US"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "en-US", u.Query().Get("language"))
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- response parsing ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name        string
		msg         string
		ok          bool
		text        string
		final       bool
		speechFinal bool
	}{
		{
			name:  "interim",
			msg:   `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"I goes","confidence":0.8}]}}`,
			ok:    true,
			text:  "I goes",
			final: false,
		},
		{
			name:        "speech final",
			msg:         `{"type":"Results","is_final":true,"speech_final":true,"duration":1.5,"channel":{"alternatives":[{"transcript":"I goes home.","confidence":0.95}]}}`,
			ok:          true,
			text:        "I goes home.",
			final:       true,
			speechFinal: true,
		},
		{
			name:        "utterance end",
			msg:         `{"type":"UtteranceEnd","last_word_end":2.1}`,
			ok:          true,
			final:       true,
			speechFinal: true,
		},
		{name: "metadata ignored", msg: `{"type":"Metadata","request_id":"x"}`},
		{name: "no alternatives", msg: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", msg: `{not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDeepgramResponse([]byte(tt.msg))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Text != tt.text || got.IsFinal != tt.final || got.SpeechFinal != tt.speechFinal {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestParseDeepgramResponse_Duration(t *testing.T) {
	got, ok := parseDeepgramResponse([]byte(`{"type":"Results","is_final":true,"duration":1.5,"channel":{"alternatives":[{"transcript":"x"}]}}`))
	if !ok {
		t.Fatal("expected ok")
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", got.Duration)
	}
}

// ---- end-to-end against a fake server ----

// fakeDeepgram accepts one connection, counts binary frames and answers
// CloseStream with a speech-final result before closing the socket.
type fakeDeepgram struct {
	mu     sync.Mutex
	auth   string
	frames int
}

func (f *fakeDeepgram) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				f.mu.Lock()
				f.frames++
				f.mu.Unlock()
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"I has"}]}}`))
				_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"I has a cat."}]}}`))
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
	}
}

func TestSession_FlushesFinalsOnClose(t *testing.T) {
	fake := &fakeDeepgram{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	for range 3 {
		if err := sess.SendAudio(make([]byte, 320)); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var finals []string
	for tr := range sess.Finals() {
		finals = append(finals, tr.Text)
		if !tr.SpeechFinal {
			t.Errorf("expected SpeechFinal on %q", tr.Text)
		}
	}
	if len(finals) != 1 || finals[0] != "I has a cat." {
		t.Fatalf("finals = %v", finals)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.frames != 3 {
		t.Errorf("server received %d audio frames, want 3", fake.frames)
	}
	if fake.auth != "Token secret" {
		t.Errorf("Authorization = %q", fake.auth)
	}

	if err := sess.SendAudio([]byte{0, 0}); err != stt.ErrSessionClosed {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
}
