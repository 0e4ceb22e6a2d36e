package pipeline

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lookatitude/vox-interpret/buffer"
	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/provider"
)

type fakeSTT struct {
	events chan provEvent
}

type provEvent struct {
	text    string
	isFinal bool
}

func (f *fakeSTT) Name() string                 { return "fake-stt" }
func (f *fakeSTT) Health(context.Context) error { return nil }
func (f *fakeSTT) Close() error                  { return nil }

func (f *fakeSTT) Stream(ctx context.Context, _ <-chan []byte) (<-chan provider.TranscriptEvent, <-chan error) {
	out := make(chan provider.TranscriptEvent, 8)
	errs := make(chan error)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-f.events:
				if !ok {
					return
				}
				out <- provider.TranscriptEvent{Text: ev.text, IsFinal: ev.isFinal}
			}
		}
	}()
	return out, errs
}

type fakeTranslator struct{}

func (f *fakeTranslator) Name() string                 { return "fake-translator" }
func (f *fakeTranslator) Health(context.Context) error { return nil }
func (f *fakeTranslator) Close() error                  { return nil }
func (f *fakeTranslator) Translate(_ context.Context, text string, _ lang.Pair, _ bool) (string, error) {
	return "t:" + text, nil
}

type fakeTTS struct{}

func (f *fakeTTS) Name() string                 { return "fake-tts" }
func (f *fakeTTS) Health(context.Context) error { return nil }
func (f *fakeTTS) Close() error                  { return nil }
func (f *fakeTTS) Synthesize(_ context.Context, text string, _ string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte(text))), nil
}

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *fakeSink) WriteFrame(_ context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestPipeline_TranscribesTranslatesAndSynthesizes(t *testing.T) {
	stt := &fakeSTT{events: make(chan provEvent, 4)}
	sink := &fakeSink{}

	p := New(Config{
		ListenerID: "listener-1",
		SpeakerID:  "speaker-1",
		Pair:       lang.Pair{Source: lang.English, Target: lang.Spanish},
		STT:        stt,
		Translator: &fakeTranslator{},
		TTS:        &fakeTTS{},
		Sink:       sink,
		AudioIn:    make(chan []byte),
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stt.events <- provEvent{text: "hello", isFinal: true}

	deadline := time.After(2 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for synthesized frame")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if p.State() != StateRunning {
		t.Errorf("State() = %v, want %v", p.State(), StateRunning)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestPipeline_BufferStatsReflectCompletedSegment(t *testing.T) {
	stt := &fakeSTT{events: make(chan provEvent, 4)}
	sink := &fakeSink{}

	p := New(Config{
		Pair:       lang.Pair{Source: lang.English, Target: lang.French},
		STT:        stt,
		Translator: &fakeTranslator{},
		TTS:        &fakeTTS{},
		Sink:       sink,
		AudioIn:    make(chan []byte),
		BufferPolicy: buffer.Policy{
			InterimTrigger: 10 * time.Millisecond,
			MaxDelay:       time.Second,
			SilenceGap:     time.Second,
			MaxPending:     4,
		},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stt.events <- provEvent{text: "bonjour", isFinal: true}

	deadline := time.After(2 * time.Second)
	for p.BufferStats().Completed == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for completed segment")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
