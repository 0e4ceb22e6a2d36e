package room

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lookatitude/vox-interpret/core"
	"github.com/lookatitude/vox-interpret/lang"
)

type fakePipeline struct {
	stopped   atomic.Bool
	onFailure func(error)
}

func (p *fakePipeline) Start(context.Context) error { return nil }
func (p *fakePipeline) Stop(context.Context) error {
	p.stopped.Store(true)
	return nil
}
func (p *fakePipeline) Health() core.HealthStatus {
	return core.HealthStatus{Status: core.HealthHealthy}
}

type fakeFactory struct {
	mu      sync.Mutex
	created map[string]*fakePipeline
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: map[string]*fakePipeline{}}
}

func (f *fakeFactory) build(listenerID, speakerID string, pair lang.Pair, onFailure func(error)) (Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePipeline{onFailure: onFailure}
	f.created[pairKey(listenerID, speakerID)] = p
	return p, nil
}

func (f *fakeFactory) get(key string) *fakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[key]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func newTestCoordinator(factory *fakeFactory) *Coordinator {
	return New(Config{
		RoomID:            "room-1",
		NewPipeline:       factory.build,
		ReconcileInterval: 20 * time.Millisecond,
		EmptyRoomTimeout:  50 * time.Millisecond,
	})
}

type fakeControlChannel struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

func (f *fakeControlChannel) PublishDiagnostic(_ context.Context, d Diagnostic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diagnostics = append(f.diagnostics, d)
	return nil
}

func (f *fakeControlChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.diagnostics)
}

func newTestCoordinatorWithControlChannel(factory *fakeFactory, cc ControlChannelPublisher) *Coordinator {
	return New(Config{
		RoomID:            "room-1",
		NewPipeline:       factory.build,
		ReconcileInterval: 20 * time.Millisecond,
		EmptyRoomTimeout:  50 * time.Millisecond,
		ControlChannel:    cc,
	})
}

func runCoordinator(t *testing.T, c *Coordinator) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

// TestTwoParticipantsDifferentLanguages covers the two-party, two-language
// seed scenario: each participant gets exactly one inbound Pipeline from
// the other.
func TestTwoParticipantsDifferentLanguages(t *testing.T) {
	factory := newFakeFactory()
	c := newTestCoordinator(factory)
	stop := runCoordinator(t, c)
	defer stop()

	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "alice", Language: lang.English, TrackID: "t-alice"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "bob", Language: lang.Spanish, TrackID: "t-bob"})

	waitFor(t, func() bool { return c.PipelineCount() == 2 })
}

// TestThreeParticipantsThreeLanguages covers the N-party seed scenario:
// every ordered (listener, speaker) pair with distinct people gets its own
// Pipeline, i.e. N*(N-1) pipelines for N speaking participants.
func TestThreeParticipantsThreeLanguages(t *testing.T) {
	factory := newFakeFactory()
	c := newTestCoordinator(factory)
	stop := runCoordinator(t, c)
	defer stop()

	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "alice", Language: lang.English, TrackID: "t-alice"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "bob", Language: lang.Spanish, TrackID: "t-bob"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "carla", Language: lang.French, TrackID: "t-carla"})

	waitFor(t, func() bool { return c.PipelineCount() == 6 })
}

// TestParticipantLeaveTearsDownItsPipelines covers mid-call departure:
// pipelines involving the departed participant are stopped, others
// survive.
func TestParticipantLeaveTearsDownItsPipelines(t *testing.T) {
	factory := newFakeFactory()
	c := newTestCoordinator(factory)
	stop := runCoordinator(t, c)
	defer stop()

	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "alice", Language: lang.English, TrackID: "t-alice"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "bob", Language: lang.Spanish, TrackID: "t-bob"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "carla", Language: lang.French, TrackID: "t-carla"})
	waitFor(t, func() bool { return c.PipelineCount() == 6 })

	aliceBob := factory.get(pairKey("alice", "bob"))

	c.Submit(Event{Kind: EventParticipantLeft, ParticipantID: "bob"})
	waitFor(t, func() bool { return c.PipelineCount() == 2 })

	if !aliceBob.stopped.Load() {
		t.Error("expected alice<-bob pipeline to be stopped after bob left")
	}
}

// TestMetadataChangeRewiresLanguage covers a participant switching their
// listening language mid-call: the coordinator re-reconciles without
// requiring a leave/rejoin.
func TestMetadataChangeRewiresLanguage(t *testing.T) {
	factory := newFakeFactory()
	c := newTestCoordinator(factory)
	stop := runCoordinator(t, c)
	defer stop()

	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "alice", Language: lang.English, TrackID: "t-alice"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "bob", Language: lang.Spanish, TrackID: "t-bob"})
	waitFor(t, func() bool { return c.PipelineCount() == 2 })

	c.Submit(Event{Kind: EventMetadataChanged, ParticipantID: "alice", Language: lang.French})

	time.Sleep(30 * time.Millisecond)
	if c.PipelineCount() != 2 {
		t.Errorf("PipelineCount() = %d, want 2 after a metadata-only change", c.PipelineCount())
	}
}

// TestPipelineFailureTriggersRestart covers crash recovery: a failed
// Pipeline is torn down and a fresh one takes its place for the same pair.
func TestPipelineFailureTriggersRestart(t *testing.T) {
	factory := newFakeFactory()
	c := newTestCoordinator(factory)
	stop := runCoordinator(t, c)
	defer stop()

	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "alice", Language: lang.English, TrackID: "t-alice"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "bob", Language: lang.Spanish, TrackID: "t-bob"})
	waitFor(t, func() bool { return c.PipelineCount() == 2 })

	key := pairKey("alice", "bob")
	before := factory.get(key)

	c.Submit(Event{Kind: EventPipelineFailed, PipelineKey: key, Err: context.DeadlineExceeded})

	waitFor(t, func() bool {
		after := factory.get(key)
		return after != before && c.PipelineCount() == 2
	})
	if !before.stopped.Load() {
		t.Error("expected the failed pipeline to have been stopped")
	}
}

// TestPermanentPipelineFailureDoesNotAutoRecreate covers seed scenario 6
// (voice unavailable): a PermanentProvider failure tears the pipeline down
// and reconcile must not recreate it with the same parameters on subsequent
// ticks, unlike a transient failure.
func TestPermanentPipelineFailureDoesNotAutoRecreate(t *testing.T) {
	factory := newFakeFactory()
	c := newTestCoordinator(factory)
	stop := runCoordinator(t, c)
	defer stop()

	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "alice", Language: lang.English, TrackID: "t-alice"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "bob", Language: lang.Spanish, TrackID: "t-bob"})
	waitFor(t, func() bool { return c.PipelineCount() == 2 })

	key := pairKey("alice", "bob")
	before := factory.get(key)

	permErr := core.NewError("tts.synthesize", core.ErrPermanent, "voice unavailable", nil)
	c.Submit(Event{Kind: EventPipelineFailed, PipelineKey: key, Err: permErr})

	waitFor(t, func() bool { return before.stopped.Load() })

	// Give several reconcile ticks a chance to wrongly recreate the pair.
	time.Sleep(80 * time.Millisecond)
	if c.PipelineCount() != 1 {
		t.Errorf("PipelineCount() = %d, want 1 (alice<-bob must stay blocked)", c.PipelineCount())
	}
	if factory.get(key) != before {
		t.Error("expected the blocked pair not to be recreated by reconcile")
	}

	// A metadata change clears the block and lets it be recreated.
	c.Submit(Event{Kind: EventMetadataChanged, ParticipantID: "bob", Language: lang.Spanish})
	waitFor(t, func() bool { return c.PipelineCount() == 2 })
}

// TestPermanentPipelineFailurePublishesDiagnostic covers the control-channel
// notification side of a permanent failure: the operator learns about it
// out of band instead of silently losing the pipeline.
func TestPermanentPipelineFailurePublishesDiagnostic(t *testing.T) {
	factory := newFakeFactory()
	cc := &fakeControlChannel{}
	c := newTestCoordinatorWithControlChannel(factory, cc)
	stop := runCoordinator(t, c)
	defer stop()

	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "alice", Language: lang.English, TrackID: "t-alice"})
	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "bob", Language: lang.Spanish, TrackID: "t-bob"})
	waitFor(t, func() bool { return c.PipelineCount() == 2 })

	key := pairKey("alice", "bob")
	permErr := core.NewError("tts.synthesize", core.ErrPermanent, "voice unavailable", nil)
	c.Submit(Event{Kind: EventPipelineFailed, PipelineKey: key, Err: permErr})

	waitFor(t, func() bool { return cc.count() == 1 })
}

// TestEmptyRoomSweepMarksRoomEmpty covers the all-participants-leave seed
// scenario: after EmptyRoomTimeout with nobody present, IsEmpty becomes
// true so the workerhost can retire the job.
func TestEmptyRoomSweepMarksRoomEmpty(t *testing.T) {
	factory := newFakeFactory()
	c := newTestCoordinator(factory)
	stop := runCoordinator(t, c)
	defer stop()

	c.Submit(Event{Kind: EventParticipantJoined, ParticipantID: "alice", Language: lang.English, TrackID: "t-alice"})
	c.Submit(Event{Kind: EventParticipantLeft, ParticipantID: "alice"})

	waitFor(t, c.IsEmpty)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
