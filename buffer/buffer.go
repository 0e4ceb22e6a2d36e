// Package buffer implements the Translation Buffer: the per-(listener,
// speaker) component that turns a stream of interim/final STT results into
// an ordered stream of translated segments, deciding when a segment is
// mature enough to translate and dropping segments that fall too far
// behind.
package buffer

import (
	"container/list"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/o11y"
	"github.com/lookatitude/vox-interpret/provider"
)

// SegmentState is a segment's position in its open -> translating ->
// spoken|dropped lifecycle.
type SegmentState string

const (
	StateOpen        SegmentState = "open"
	StateTranslating SegmentState = "translating"
	StateSpoken      SegmentState = "spoken"
	StateDropped     SegmentState = "dropped"
)

// Segment is one unit of source speech moving through the buffer.
type Segment struct {
	ID          string
	Text        string
	IsFinal     bool
	FirstSeenAt time.Time
	State       SegmentState

	triggeredText string // text at the time the last translate was triggered
	cancel        context.CancelFunc
}

// TranscriptEvent is a single STT result fed into the buffer.
type TranscriptEvent struct {
	Text    string
	IsFinal bool
}

// TranslatedSegment is emitted once a segment's translation completes.
type TranslatedSegment struct {
	SegmentID string
	Original  string
	Text      string
	IsFinal   bool
}

// Policy tunes the buffer's triggering, deadline, and backpressure
// behavior.
type Policy struct {
	InterimTrigger time.Duration
	MaxDelay       time.Duration
	SilenceGap     time.Duration
	MaxPending     int
	EditDistance   int // minimum edit distance since last trigger to re-trigger an interim
}

func (p Policy) normalized() Policy {
	if p.InterimTrigger <= 0 {
		p.InterimTrigger = 250 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 500 * time.Millisecond
	}
	if p.SilenceGap <= 0 {
		p.SilenceGap = 700 * time.Millisecond
	}
	if p.MaxPending <= 0 {
		p.MaxPending = 8
	}
	if p.EditDistance <= 0 {
		p.EditDistance = 3
	}
	return p
}

// Stats summarizes buffer activity for metrics and tests.
type Stats struct {
	Completed int
	Failed    int
	Dropped   int
	Pending   int
}

// Buffer is a single (listener, speaker) Translation Buffer. All mutation
// happens on its owning goroutine via Run; callers only send to channels.
type Buffer struct {
	pair       lang.Pair
	formal     bool
	translator provider.Translator
	policy     Policy
	logger     *o11y.Logger

	in  chan TranscriptEvent
	out chan TranslatedSegment

	translated chan translateResult

	segments *list.List // of *Segment, ordered by FirstSeenAt
	stats    Stats

	now func() time.Time
}

type translateResult struct {
	segment *Segment
	text    string
	err     error
}

// New constructs a Buffer for one (listener, speaker) pair's translation
// path. Call Run to start its event loop and Close when the pipeline tears
// down.
func New(pair lang.Pair, formal bool, translator provider.Translator, policy Policy, logger *o11y.Logger) *Buffer {
	return &Buffer{
		pair:       pair,
		formal:     formal,
		translator: translator,
		policy:     policy.normalized(),
		logger:     logger,
		in:         make(chan TranscriptEvent, 16),
		out:        make(chan TranslatedSegment, 8),
		translated: make(chan translateResult, 4),
		segments:   list.New(),
		now:        time.Now,
	}
}

// Submit enqueues an STT transcript event. It never blocks for long: the
// input channel is sized to absorb normal STT burstiness.
func (b *Buffer) Submit(ctx context.Context, ev TranscriptEvent) {
	select {
	case b.in <- ev:
	case <-ctx.Done():
	}
}

// Out returns the channel of translated segments ready for TTS.
func (b *Buffer) Out() <-chan TranslatedSegment {
	return b.out
}

// Stats returns a snapshot of the buffer's counters.
func (b *Buffer) Stats() Stats {
	s := b.stats
	s.Pending = b.segments.Len()
	return s
}

// Run drives the buffer's event loop until ctx is cancelled. It is the only
// goroutine that ever touches b.segments.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	defer close(b.out)

	var lastEventAt time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-b.in:
			lastEventAt = b.now()
			b.handleEvent(ctx, ev)

		case res := <-b.translated:
			b.handleTranslated(res)

		case <-ticker.C:
			b.sweep(ctx, lastEventAt)
		}
	}
}

func (b *Buffer) handleEvent(ctx context.Context, ev TranscriptEvent) {
	back := b.segments.Back()
	var seg *Segment
	if back != nil {
		if s := back.Value.(*Segment); !s.IsFinal && (s.State == StateOpen || s.State == StateTranslating) {
			seg = s
		}
	}

	if seg == nil {
		seg = &Segment{
			ID:          uuid.NewString(),
			FirstSeenAt: b.now(),
			State:       StateOpen,
		}
		b.segments.PushBack(seg)
	}

	seg.Text = ev.Text
	if ev.IsFinal {
		seg.IsFinal = true
		b.triggerTranslate(ctx, seg)
		return
	}

	if seg.State == StateOpen && b.shouldTriggerInterim(seg) {
		b.triggerTranslate(ctx, seg)
	}
}

func (b *Buffer) shouldTriggerInterim(seg *Segment) bool {
	if b.now().Sub(seg.FirstSeenAt) < b.policy.InterimTrigger {
		return false
	}
	return editDistance(seg.triggeredText, seg.Text) >= b.policy.EditDistance
}

// triggerTranslate starts (or restarts) translation for seg, cancelling any
// in-flight call for a superseded interim of the same segment.
func (b *Buffer) triggerTranslate(ctx context.Context, seg *Segment) {
	if seg.cancel != nil {
		seg.cancel()
	}
	callCtx, cancel := context.WithTimeout(ctx, b.policy.MaxDelay)
	seg.cancel = cancel
	seg.triggeredText = seg.Text
	seg.State = StateTranslating

	text := seg.Text
	pair := b.pair
	formal := b.formal
	translator := b.translator

	go func() {
		out, err := translator.Translate(callCtx, text, pair, formal)
		select {
		case b.translated <- translateResult{segment: seg, text: out, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (b *Buffer) handleTranslated(res translateResult) {
	seg := res.segment
	if seg.State == StateSpoken || seg.State == StateDropped {
		return // superseded
	}

	if res.err != nil {
		if seg.IsFinal {
			seg.State = StateDropped
			b.stats.Failed++
			b.removeSegment(seg)
		} else {
			seg.State = StateOpen // allow another trigger later
		}
		return
	}

	out := TranslatedSegment{SegmentID: seg.ID, Original: seg.Text, Text: res.text, IsFinal: seg.IsFinal}
	if seg.IsFinal {
		seg.State = StateSpoken
		b.stats.Completed++
		o11y.Histogram(context.Background(), "buffer.segment.latency_ms", float64(b.now().Sub(seg.FirstSeenAt).Milliseconds()))
		b.removeSegment(seg)
	} else {
		seg.State = StateOpen
	}
	b.out <- out
}

// sweep enforces the per-segment deadline, promotes a long-silent interim
// segment to final, and applies backpressure.
func (b *Buffer) sweep(ctx context.Context, lastEventAt time.Time) {
	now := b.now()

	if !lastEventAt.IsZero() && now.Sub(lastEventAt) >= b.policy.SilenceGap {
		if back := b.segments.Back(); back != nil {
			seg := back.Value.(*Segment)
			if !seg.IsFinal && (seg.State == StateOpen || seg.State == StateTranslating) {
				seg.IsFinal = true
				b.triggerTranslate(ctx, seg)
			}
		}
	}

	for e := b.segments.Front(); e != nil; {
		next := e.Next()
		seg := e.Value.(*Segment)
		if now.Sub(seg.FirstSeenAt) > b.policy.MaxDelay && seg.State != StateSpoken && seg.State != StateDropped {
			if seg.cancel != nil {
				seg.cancel()
			}
			seg.State = StateDropped
			b.stats.Dropped++
			b.segments.Remove(e)
		}
		e = next
	}

	for b.segments.Len() > b.policy.MaxPending {
		front := b.segments.Front()
		if front == nil {
			break
		}
		seg := front.Value.(*Segment)
		if seg.cancel != nil {
			seg.cancel()
		}
		seg.State = StateDropped
		b.stats.Dropped++
		b.segments.Remove(front)
	}
}

func (b *Buffer) removeSegment(seg *Segment) {
	for e := b.segments.Front(); e != nil; e = e.Next() {
		if e.Value.(*Segment) == seg {
			b.segments.Remove(e)
			return
		}
	}
}
