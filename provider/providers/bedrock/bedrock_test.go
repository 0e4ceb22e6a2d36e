package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lookatitude/vox-interpret/core"
	"github.com/lookatitude/vox-interpret/lang"
)

// mockClient implements invokeAPI for testing.
type mockClient struct {
	invokeFunc func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

func (m *mockClient) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return m.invokeFunc(ctx, params, optFns...)
}

func invokeResponseBody(text string) []byte {
	b, _ := json.Marshal(invokeResponse{Content: []struct {
		Text string `json:"text"`
	}{{Text: text}}})
	return b
}

func TestTranslate(t *testing.T) {
	client := &mockClient{
		invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			if aws.ToString(params.ModelId) != "test-model" {
				t.Errorf("ModelId = %q, want test-model", aws.ToString(params.ModelId))
			}
			var req invokeRequest
			if err := json.Unmarshal(params.Body, &req); err != nil {
				t.Fatalf("unmarshal request body: %v", err)
			}
			if req.Messages[0].Content != "hello" {
				t.Errorf("request content = %q, want hello", req.Messages[0].Content)
			}
			return &bedrockruntime.InvokeModelOutput{Body: invokeResponseBody("hola")}, nil
		},
	}

	tr := NewWithClient(client, "test-model")

	out, err := tr.Translate(context.Background(), "hello", lang.Pair{Source: lang.English, Target: lang.Spanish}, false)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out != "hola" {
		t.Errorf("Translate() = %q, want hola", out)
	}
}

func TestTranslate_EmptyContentIsPermanentError(t *testing.T) {
	client := &mockClient{
		invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			b, _ := json.Marshal(invokeResponse{})
			return &bedrockruntime.InvokeModelOutput{Body: b}, nil
		},
	}

	tr := NewWithClient(client, "test-model")

	_, err := tr.Translate(context.Background(), "hello", lang.Pair{Source: lang.English, Target: lang.Spanish}, false)
	if err == nil {
		t.Fatal("Translate() error = nil, want error on empty content")
	}
	var cerr *core.Error
	if errors.As(err, &cerr) && cerr.Code != core.ErrPermanent {
		t.Errorf("error code = %v, want ErrPermanent", cerr.Code)
	}
}

func TestTranslate_ThrottlingIsRateLimited(t *testing.T) {
	client := &mockClient{
		invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			return nil, &types.ThrottlingException{Message: aws.String("too many requests")}
		},
	}

	tr := NewWithClient(client, "test-model")

	_, err := tr.Translate(context.Background(), "hello", lang.Pair{Source: lang.English, Target: lang.Spanish}, false)
	if err == nil {
		t.Fatal("Translate() error = nil, want error on throttle")
	}
	var cerr *core.Error
	if errors.As(err, &cerr) && cerr.Code != core.ErrRateLimit {
		t.Errorf("error code = %v, want ErrRateLimit", cerr.Code)
	}
}

func TestTranslate_FormalTone(t *testing.T) {
	var captured invokeRequest
	client := &mockClient{
		invokeFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			_ = json.Unmarshal(params.Body, &captured)
			return &bedrockruntime.InvokeModelOutput{Body: invokeResponseBody("ok")}, nil
		},
	}

	tr := NewWithClient(client, "test-model")
	_, err := tr.Translate(context.Background(), "hi", lang.Pair{Source: lang.English, Target: lang.French}, true)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if !contains(captured.System, "formal") {
		t.Errorf("system prompt = %q, want it to mention a formal register", captured.System)
	}
}

func TestDefaultModelID(t *testing.T) {
	tr := NewWithClient(&mockClient{}, "")
	if tr.modelID != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Errorf("modelID = %q, want default claude-3-haiku model", tr.modelID)
	}
}

func TestName(t *testing.T) {
	tr := NewWithClient(&mockClient{}, "test-model")
	if tr.Name() != "bedrock-invoke" {
		t.Errorf("Name() = %q, want bedrock-invoke", tr.Name())
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
