package buffer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/o11y"
)

type fakeTranslator struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (f *fakeTranslator) Name() string                 { return "fake" }
func (f *fakeTranslator) Health(context.Context) error { return nil }
func (f *fakeTranslator) Close() error                  { return nil }

func (f *fakeTranslator) Translate(ctx context.Context, text string, _ lang.Pair, _ bool) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return "t:" + text, nil
}

func testPair() lang.Pair {
	return lang.Pair{Source: lang.English, Target: lang.Spanish}
}

func TestBuffer_FinalSegmentTranslatesAndSpeaks(t *testing.T) {
	ft := &fakeTranslator{}
	b := New(testPair(), false, ft, Policy{}, o11y.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Submit(ctx, TranscriptEvent{Text: "hello there", IsFinal: true})

	select {
	case seg := <-b.Out():
		if seg.Text != "t:hello there" {
			t.Errorf("Text = %q, want %q", seg.Text, "t:hello there")
		}
		if !seg.IsFinal {
			t.Error("expected IsFinal = true")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for translated segment")
	}

	time.Sleep(30 * time.Millisecond)
	if stats := b.Stats(); stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
}

func TestBuffer_InterimTriggersAfterAgeAndEditDistance(t *testing.T) {
	ft := &fakeTranslator{}
	policy := Policy{InterimTrigger: 20 * time.Millisecond, EditDistance: 2, MaxDelay: time.Second, SilenceGap: time.Second}
	b := New(testPair(), false, ft, policy, o11y.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Submit(ctx, TranscriptEvent{Text: "hel", IsFinal: false})
	time.Sleep(30 * time.Millisecond)
	b.Submit(ctx, TranscriptEvent{Text: "hello world", IsFinal: false})

	select {
	case seg := <-b.Out():
		if seg.IsFinal {
			t.Error("expected a non-final interim translation")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for interim translation")
	}
}

func TestBuffer_DeadlineDropsStaleSegment(t *testing.T) {
	ft := &fakeTranslator{delay: 500 * time.Millisecond}
	policy := Policy{MaxDelay: 50 * time.Millisecond, InterimTrigger: time.Millisecond, SilenceGap: time.Second}
	b := New(testPair(), false, ft, policy, o11y.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Submit(ctx, TranscriptEvent{Text: "slow segment", IsFinal: false})

	time.Sleep(150 * time.Millisecond)
	stats := b.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}

func TestBuffer_BackpressureDropsOldestUnspoken(t *testing.T) {
	ft := &fakeTranslator{delay: 200 * time.Millisecond}
	policy := Policy{MaxPending: 1, MaxDelay: time.Second, InterimTrigger: time.Millisecond, SilenceGap: time.Second}
	b := New(testPair(), false, ft, policy, o11y.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Submit(ctx, TranscriptEvent{Text: "first", IsFinal: true})
	time.Sleep(10 * time.Millisecond)
	b.Submit(ctx, TranscriptEvent{Text: "second", IsFinal: true})

	time.Sleep(60 * time.Millisecond)
	if stats := b.Stats(); stats.Dropped == 0 {
		t.Error("expected at least one dropped segment under backpressure")
	}
}

func TestBuffer_FailedFinalTranslationIsDropped(t *testing.T) {
	ft := &fakeTranslator{err: errors.New("boom")}
	b := New(testPair(), false, ft, Policy{}, o11y.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Submit(ctx, TranscriptEvent{Text: "oops", IsFinal: true})

	time.Sleep(50 * time.Millisecond)
	if stats := b.Stats(); stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"hello", "hello", 0},
	}
	for _, c := range cases {
		if got := editDistance(c.a, c.b); got != c.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
