package provider

import (
	"context"
	"time"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/resilience"
)

// HedgedTranslator races a primary and secondary Translator via
// resilience.Hedge, returning whichever finishes first successfully. It is
// used to bound tail latency when a primary cloud translator occasionally
// stalls, per the Translation Buffer's max_delay_ms deadline.
type HedgedTranslator struct {
	primary   Translator
	secondary Translator
	delay     time.Duration
}

// NewHedgedTranslator builds a Translator that launches secondary after
// delay if primary hasn't answered yet.
func NewHedgedTranslator(primary, secondary Translator, delay time.Duration) *HedgedTranslator {
	return &HedgedTranslator{primary: primary, secondary: secondary, delay: delay}
}

func (h *HedgedTranslator) Name() string { return h.primary.Name() + "+hedge(" + h.secondary.Name() + ")" }

func (h *HedgedTranslator) Health(ctx context.Context) error {
	return h.primary.Health(ctx)
}

func (h *HedgedTranslator) Close() error {
	if err := h.primary.Close(); err != nil {
		return err
	}
	return h.secondary.Close()
}

func (h *HedgedTranslator) Translate(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error) {
	return resilience.Hedge(ctx,
		func(ctx context.Context) (string, error) { return h.primary.Translate(ctx, text, pair, formal) },
		func(ctx context.Context) (string, error) { return h.secondary.Translate(ctx, text, pair, formal) },
		h.delay,
	)
}
