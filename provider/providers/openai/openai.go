// Package openai adapts the OpenAI API into vox-interpret's provider
// contracts: Whisper transcription (wrapped by provider.VADChunker, since
// the REST endpoint is not a streaming backend), chat-completion-based
// translation, and the speech endpoint for TTS.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/provider"
)

// Config configures the OpenAI-backed adapters.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func newClient(cfg Config) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(oc)
}

// Transcriber wraps the Whisper transcription endpoint.
type Transcriber struct {
	client *openai.Client
	model  string
}

// NewTranscriber constructs a provider.RESTTranscriber over Whisper. Callers
// wrap it in provider.NewVADChunker before handing it to a Pipeline.
func NewTranscriber(cfg Config) *Transcriber {
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Transcriber{client: newClient(cfg), model: model}
}

func (t *Transcriber) Name() string { return "openai-whisper" }

func (t *Transcriber) Health(ctx context.Context) error {
	_, err := t.client.ListModels(ctx)
	return err
}

func (t *Transcriber) Close() error { return nil }

func (t *Transcriber) TranscribeUtterance(ctx context.Context, pcm []byte) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:  t.model,
		Reader: bytes.NewReader(pcm),
		FilePath: "utterance.raw",
	})
	if err != nil {
		return "", provider.NewTransientError("openai.transcribe", err)
	}
	return resp.Text, nil
}

// Translator wraps chat completions for text translation.
type Translator struct {
	client *openai.Client
	model  string
}

func NewTranslator(cfg Config) *Translator {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Translator{client: newClient(cfg), model: model}
}

func (t *Translator) Name() string { return "openai-chat" }

func (t *Translator) Health(ctx context.Context) error {
	_, err := t.client.ListModels(ctx)
	return err
}

func (t *Translator) Close() error { return nil }

func (t *Translator) Translate(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error) {
	tone := "natural, conversational"
	if formal {
		tone = "formal"
	}
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"Translate from %s to %s in a %s tone. Reply with only the translation.",
					pair.Source, pair.Target, tone,
				),
			},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", provider.NewTransientError("openai.translate", err)
	}
	if len(resp.Choices) == 0 {
		return "", provider.NewPermanentError("openai.translate", fmt.Errorf("empty completion"))
	}
	return resp.Choices[0].Message.Content, nil
}

// TTS wraps the speech synthesis endpoint.
type TTS struct {
	client *openai.Client
}

func NewTTS(cfg Config) *TTS {
	return &TTS{client: newClient(cfg)}
}

func (t *TTS) Name() string { return "openai-tts" }

func (t *TTS) Health(ctx context.Context) error {
	_, err := t.client.ListModels(ctx)
	return err
}

func (t *TTS) Close() error { return nil }

func (t *TTS) Synthesize(ctx context.Context, text string, avatarID string) (io.ReadCloser, error) {
	resp, err := t.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(avatarID),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, provider.NewTransientError("openai.synthesize", err)
	}
	return resp, nil
}
