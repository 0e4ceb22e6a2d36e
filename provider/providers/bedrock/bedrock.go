// Package bedrock adapts Amazon Bedrock's InvokeModel API into a
// provider.Translator. It deliberately stops at text translation: an Amazon
// Nova speech-to-speech model could fold translation into the audio call
// itself, but doing so would bypass the Translation Buffer's ordering and
// deadline discipline, so this adapter only ever produces translated text.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/provider"
)

// Config configures the Bedrock-backed translator.
type Config struct {
	Region  string
	ModelID string
}

// invokeAPI is the subset of bedrockruntime.Client this package depends on.
// Narrowing to an interface lets tests inject a fake instead of hitting AWS.
type invokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Translator wraps bedrockruntime.InvokeModel for text translation.
type Translator struct {
	client  invokeAPI
	modelID string
}

// NewTranslator builds a Translator using the default AWS credential chain.
func NewTranslator(ctx context.Context, cfg Config) (*Translator, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}
	return &Translator{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: defaultModelID(cfg.ModelID),
	}, nil
}

// NewWithClient builds a Translator around an already-constructed invokeAPI,
// for tests.
func NewWithClient(client invokeAPI, modelID string) *Translator {
	return &Translator{client: client, modelID: defaultModelID(modelID)}
}

func defaultModelID(modelID string) string {
	if modelID == "" {
		return "anthropic.claude-3-haiku-20240307-v1:0"
	}
	return modelID
}

func (t *Translator) Name() string { return "bedrock-invoke" }

func (t *Translator) Health(ctx context.Context) error {
	_, err := t.invoke(ctx, "ping", lang.Pair{Source: lang.English, Target: lang.English}, false)
	return err
}

func (t *Translator) Close() error { return nil }

func (t *Translator) Translate(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error) {
	return t.invoke(ctx, text, pair, formal)
}

type invokeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (t *Translator) invoke(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error) {
	tone := "natural, conversational"
	if formal {
		tone = "formal and precise"
	}
	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        1024,
		System: fmt.Sprintf(
			"Translate from %s to %s in a %s register. Respond with only the translation.",
			pair.Source, pair.Target, tone,
		),
		Messages: []message{{Role: "user", Content: text}},
	})
	if err != nil {
		return "", provider.NewPermanentError("bedrock.translate", err)
	}

	out, err := t.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(t.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		var throttle *types.ThrottlingException
		if errors.As(err, &throttle) {
			return "", provider.NewRateLimitedError("bedrock.translate", err)
		}
		return "", provider.NewTransientError("bedrock.translate", err)
	}

	var resp invokeResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", provider.NewPermanentError("bedrock.translate", err)
	}
	if len(resp.Content) == 0 {
		return "", provider.NewPermanentError("bedrock.translate", fmt.Errorf("empty response"))
	}
	return resp.Content[0].Text, nil
}
