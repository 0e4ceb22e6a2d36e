// Package pipeline implements the per-(listener, speaker) interpretation
// Pipeline: an STT reader, a Translation Buffer, and a TTS writer running as
// three cooperating goroutines over bounded channels.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lookatitude/vox-interpret/buffer"
	"github.com/lookatitude/vox-interpret/core"
	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/o11y"
	"github.com/lookatitude/vox-interpret/provider"
)

// State is a Pipeline's position in its initializing -> running ->
// draining|failed -> terminated lifecycle.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning       State = "running"
	StateDraining      State = "draining"
	StateFailed        State = "failed"
	StateTerminated    State = "terminated"
)

// AudioSink receives synthesized PCM frames for the listener's private
// track. Implementations adapt this onto a concrete transport (e.g. a
// LiveKit local audio track writer).
type AudioSink interface {
	WriteFrame(ctx context.Context, frame []byte) error
}

// Config names the collaborators and audio endpoints of one Pipeline.
type Config struct {
	ListenerID string
	SpeakerID  string
	Pair       lang.Pair
	FormalTone bool
	AvatarID   string

	STT        provider.StreamingSTT
	Translator provider.Translator
	TTS        provider.StreamingTTS
	Sink       AudioSink

	AudioIn <-chan []byte // raw PCM frames for SpeakerID

	BufferPolicy buffer.Policy
	Logger       *o11y.Logger
}

// Pipeline is one (listener, speaker) interpretation path. It satisfies
// core.Lifecycle so a room.Coordinator can manage it uniformly alongside
// other components.
type Pipeline struct {
	cfg Config
	buf *buffer.Buffer

	mu    sync.Mutex
	state State
	err   error

	cancel context.CancelFunc
	done   chan struct{}

	onFailure func(err error)

	restarts atomic.Int32
}

// New constructs a Pipeline in the initializing state. Start begins its
// three goroutines.
func New(cfg Config, onFailure func(err error)) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = o11y.NewLogger()
	}
	cfg.Logger = logger
	return &Pipeline{
		cfg:       cfg,
		buf:       buffer.New(cfg.Pair, cfg.FormalTone, cfg.Translator, cfg.BufferPolicy, logger),
		state:     StateInitializing,
		onFailure: onFailure,
	}
}

// State returns the Pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State, err error) {
	p.mu.Lock()
	p.state = s
	if err != nil {
		p.err = err
	}
	p.mu.Unlock()
}

// Start launches the STT reader, buffer, and TTS writer goroutines. It
// returns once all three are running; failures after Start are reported
// asynchronously via onFailure and surfaced through Health.
func (p *Pipeline) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(p.guard("buffer", func() error {
		p.buf.Run(gctx)
		return nil
	}))
	g.Go(p.guard("stt-reader", func() error {
		return p.sttLoop(gctx)
	}))
	g.Go(p.guard("tts-writer", func() error {
		return p.ttsLoop(gctx)
	}))

	p.setState(StateRunning, nil)

	go func() {
		err := g.Wait()
		close(p.done)
		if err != nil {
			p.setState(StateFailed, err)
			p.cfg.Logger.Error(context.Background(), "pipeline: terminated with error",
				"listener_id", p.cfg.ListenerID, "speaker_id", p.cfg.SpeakerID, "pair", p.cfg.Pair, "error", err)
			if p.onFailure != nil {
				p.onFailure(err)
			}
		} else {
			p.setState(StateTerminated, nil)
		}
	}()

	return nil
}

// guard wraps a pipeline goroutine so an internal invariant panic becomes a
// core.ErrInvariantViolation error instead of crashing the process, per the
// "crash the pipeline, let the owner recover" recovery policy.
func (p *Pipeline) guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = core.NewError(name, core.ErrInvariantViolation, fmt.Sprintf("panic: %v", r), nil)
			}
		}()
		return fn()
	}
}

func (p *Pipeline) sttLoop(ctx context.Context) error {
	events, errs := p.cfg.STT.Stream(ctx, p.cfg.AudioIn)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.buf.Submit(ctx, buffer.TranscriptEvent{Text: ev.Text, IsFinal: ev.IsFinal})
		case err, ok := <-errs:
			if !ok {
				continue
			}
			if err != nil && !core.IsRetryable(err) {
				return err
			}
		}
	}
}

func (p *Pipeline) ttsLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case seg, ok := <-p.buf.Out():
			if !ok {
				return nil
			}
			if !seg.IsFinal {
				continue // only final segments are worth the synthesis cost
			}
			if err := p.synthesizeAndWrite(ctx, seg); err != nil && !core.IsRetryable(err) {
				return err
			}
		}
	}
}

func (p *Pipeline) synthesizeAndWrite(ctx context.Context, seg buffer.TranslatedSegment) error {
	start := time.Now()
	rc, err := p.cfg.TTS.Synthesize(ctx, seg.Text, p.cfg.AvatarID)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, 4096)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if werr := p.cfg.Sink.WriteFrame(ctx, append([]byte(nil), buf[:n]...)); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	elapsed := time.Since(start)
	o11y.Histogram(ctx, "pipeline.segment.end_to_end_ms", float64(elapsed.Milliseconds()))
	if elapsed > 500*time.Millisecond {
		o11y.Counter(ctx, "pipeline.latency_exceeded", 1)
	}
	return nil
}

// Stop cancels the pipeline's goroutines and waits (bounded by ctx) for
// them to finish draining.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.setState(StateDraining, nil)
	if p.cancel != nil {
		p.cancel()
	}
	if p.done == nil {
		return nil
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Health reports the pipeline's lifecycle state as a core.HealthStatus.
func (p *Pipeline) Health() core.HealthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := core.HealthHealthy
	msg := string(p.state)
	switch p.state {
	case StateFailed:
		status = core.HealthUnhealthy
		if p.err != nil {
			msg = p.err.Error()
		}
	case StateDraining:
		status = core.HealthDegraded
	}
	return core.HealthStatus{Status: status, Message: msg, Timestamp: time.Now()}
}

// BufferStats exposes the underlying Translation Buffer's counters for the
// translation-stats HTTP surface.
func (p *Pipeline) BufferStats() buffer.Stats {
	return p.buf.Stats()
}
