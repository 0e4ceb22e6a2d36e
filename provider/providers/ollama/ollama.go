// Package ollama adapts a local Ollama server into a provider.Translator,
// used as the local fallback when the cloud translators are slow or failing
// (see the provider.NewHedgedTranslator chain in cmd/workerhost).
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/provider"
)

// Config configures the Ollama-backed translator.
type Config struct {
	BaseURL string
	Model   string
}

// Translator wraps a local Ollama chat model for text translation.
type Translator struct {
	client *api.Client
	model  string
}

func NewTranslator(cfg Config) (*Translator, error) {
	var client *api.Client
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama: parse base url: %w", err)
		}
		client = api.NewClient(base, http.DefaultClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: client from environment: %w", err)
		}
	}
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &Translator{client: client, model: model}, nil
}

func (t *Translator) Name() string { return "ollama-chat" }

func (t *Translator) Health(ctx context.Context) error {
	return t.client.Heartbeat(ctx)
}

func (t *Translator) Close() error { return nil }

func (t *Translator) Translate(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error) {
	tone := "natural, conversational"
	if formal {
		tone = "formal"
	}
	system := fmt.Sprintf(
		"Translate from %s to %s in a %s tone. Reply with only the translation.",
		pair.Source, pair.Target, tone,
	)

	var result string
	stream := false
	req := &api.ChatRequest{
		Model: t.model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: text},
		},
		Stream: &stream,
	}

	err := t.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		result = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", provider.NewTransientError("ollama.translate", err)
	}
	if result == "" {
		return "", provider.NewPermanentError("ollama.translate", fmt.Errorf("empty response"))
	}
	return result, nil
}
