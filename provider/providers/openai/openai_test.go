package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lookatitude/vox-interpret/lang"
)

func mockServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func chatCompletionResponse(content string) string {
	resp := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestTranslator_Translate(t *testing.T) {
	var receivedBody map[string]any
	ts := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&receivedBody)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatCompletionResponse("hola"))
	})

	tr := NewTranslator(Config{APIKey: "sk-test", BaseURL: ts.URL})

	out, err := tr.Translate(context.Background(), "hello", lang.Pair{Source: lang.English, Target: lang.Spanish}, false)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out != "hola" {
		t.Errorf("Translate() = %q, want %q", out, "hola")
	}
	if receivedBody["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v, want gpt-4o-mini (default)", receivedBody["model"])
	}
}

func TestTranslator_Translate_EmptyChoicesIsPermanentError(t *testing.T) {
	ts := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"id": "chatcmpl-empty", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": []map[string]any{},
			"usage":   map[string]any{"prompt_tokens": 1, "completion_tokens": 0, "total_tokens": 1},
		}
		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})

	tr := NewTranslator(Config{APIKey: "sk-test", BaseURL: ts.URL})

	_, err := tr.Translate(context.Background(), "hello", lang.Pair{Source: lang.English, Target: lang.Spanish}, false)
	if err == nil {
		t.Fatal("Translate() error = nil, want error on empty choices")
	}
}

func TestTranslator_Translate_HTTPError(t *testing.T) {
	ts := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
	})

	tr := NewTranslator(Config{APIKey: "sk-test", BaseURL: ts.URL})

	_, err := tr.Translate(context.Background(), "hello", lang.Pair{Source: lang.English, Target: lang.Spanish}, false)
	if err == nil {
		t.Fatal("Translate() error = nil, want error on 429")
	}
}

func TestTranscriber_TranscribeUtterance(t *testing.T) {
	ts := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"hello there"}`)
	})

	tr := NewTranscriber(Config{APIKey: "sk-test", BaseURL: ts.URL})

	text, err := tr.TranscribeUtterance(context.Background(), []byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("TranscribeUtterance() error = %v", err)
	}
	if text != "hello there" {
		t.Errorf("TranscribeUtterance() = %q, want %q", text, "hello there")
	}
}

func TestTranscriber_DefaultModel(t *testing.T) {
	tr := NewTranscriber(Config{APIKey: "sk-test"})
	if tr.model != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", tr.model)
	}
}

func TestTTS_Synthesize(t *testing.T) {
	ts := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write([]byte{0x00, 0x01, 0x02, 0x03})
	})

	tts := NewTTS(Config{APIKey: "sk-test", BaseURL: ts.URL})

	rc, err := tts.Synthesize(context.Background(), "hello", "alloy")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading synthesized audio: %v", err)
	}
	if len(data) != 4 {
		t.Errorf("synthesized audio len = %d, want 4", len(data))
	}
}

func TestNames(t *testing.T) {
	if got := NewTranslator(Config{APIKey: "k"}).Name(); got != "openai-chat" {
		t.Errorf("Translator.Name() = %q, want openai-chat", got)
	}
	if got := NewTranscriber(Config{APIKey: "k"}).Name(); got != "openai-whisper" {
		t.Errorf("Transcriber.Name() = %q, want openai-whisper", got)
	}
	if got := NewTTS(Config{APIKey: "k"}).Name(); got != "openai-tts" {
		t.Errorf("TTS.Name() = %q, want openai-tts", got)
	}
}
