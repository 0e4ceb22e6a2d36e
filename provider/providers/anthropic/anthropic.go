// Package anthropic adapts the Anthropic Messages API into a
// provider.Translator, used as the secondary translator in a
// resilience.Hedge race against the primary backend.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/provider"
)

// Config configures the Anthropic-backed translator.
type Config struct {
	APIKey  string
	Model   string
	Version string
	BaseURL string
}

// Translator wraps the Messages API for text translation.
type Translator struct {
	client anthropic.Client
	model  string
}

func NewTranslator(cfg Config) *Translator {
	model := cfg.Model
	if model == "" {
		model = "claude-3-haiku-20240307"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Translator{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (t *Translator) Name() string { return "anthropic-messages" }

func (t *Translator) Health(ctx context.Context) error {
	_, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	return err
}

func (t *Translator) Close() error { return nil }

func (t *Translator) Translate(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error) {
	tone := "natural, conversational"
	if formal {
		tone = "formal and precise"
	}
	system := fmt.Sprintf(
		"Translate from %s to %s in a %s register. Respond with only the translation, no preamble.",
		pair.Source, pair.Target, tone,
	)

	msg, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", provider.NewTransientError("anthropic.translate", err)
	}
	if len(msg.Content) == 0 {
		return "", provider.NewPermanentError("anthropic.translate", fmt.Errorf("empty response"))
	}
	return msg.Content[0].Text, nil
}
