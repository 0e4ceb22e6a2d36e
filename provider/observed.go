package provider

import (
	"context"
	"time"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/o11y"
)

// ObservedTranslator wraps a Translator and reports every call to an
// o11y.TraceExporter, so translation cost and latency can be inspected in a
// backend like Langfuse alongside whatever LLM calls a room's providers make
// directly.
type ObservedTranslator struct {
	Translator
	exporter o11y.TraceExporter
	model    string
}

// NewObservedTranslator wraps inner so every Translate call is exported.
// model is the identifier recorded against each call (e.g. "gpt-4o-mini").
func NewObservedTranslator(inner Translator, exporter o11y.TraceExporter, model string) *ObservedTranslator {
	return &ObservedTranslator{Translator: inner, exporter: exporter, model: model}
}

func (o *ObservedTranslator) Translate(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error) {
	start := time.Now()
	out, err := o.Translator.Translate(ctx, text, pair, formal)

	data := o11y.LLMCallData{
		Model:    o.model,
		Provider: o.Translator.Name(),
		Duration: time.Since(start),
		Messages: []map[string]any{{"role": "user", "content": text, "source": pair.Source, "target": pair.Target}},
		Metadata: map[string]any{"formal": formal},
	}
	if err != nil {
		data.Error = err.Error()
	} else {
		data.Response = map[string]any{"content": out}
	}

	// Export asynchronously: a slow or unreachable observability backend must
	// never add latency to a listener's live translation.
	go func() {
		_ = o.exporter.ExportLLMCall(context.WithoutCancel(ctx), data)
	}()

	return out, err
}
