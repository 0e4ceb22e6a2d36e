// Package room implements the Room Coordinator: the single-owner event loop
// that reconciles room membership against the router's subscription
// topology and the set of running per-(listener, speaker) Pipelines.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lookatitude/vox-interpret/core"
	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/o11y"
	"github.com/lookatitude/vox-interpret/router"
)

// EventKind identifies the kind of Event delivered to a Coordinator.
type EventKind string

const (
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventMetadataChanged   EventKind = "metadata_changed"
	EventPipelineFailed    EventKind = "pipeline_failed"
	EventTick              EventKind = "tick"
)

// Event is a typed message fed into the Coordinator's single event loop.
// Exactly one goroutine (the Coordinator's own Run loop) ever reads these.
type Event struct {
	Kind EventKind

	ParticipantID string
	Language      lang.Tag
	TrackID       string

	PipelineKey string
	Err         error
}

// PipelineHandle is the opaque reference a Coordinator hands back for a
// running pipeline. Pipelines never hold a direct reference to their owning
// Coordinator; they report failure by sending an EventPipelineFailed Event
// through the channel captured at creation time.
type PipelineHandle struct {
	Key string
}

// Pipeline is the subset of pipeline.Pipeline the Coordinator depends on.
// Defined locally to avoid a hard dependency from room on pipeline's
// provider/buffer wiring.
type Pipeline interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() core.HealthStatus
}

// PipelineFactory builds a Pipeline for one (listener, speaker) pair, given
// the lang.Pair resolved from the room's current participant metadata
// (speaker's spoken language to listener's preferred language), wired to
// report failure back to the Coordinator via onFailure.
type PipelineFactory func(listenerID, speakerID string, pair lang.Pair, onFailure func(error)) (Pipeline, error)

// Diagnostic is the operator-facing notification a Coordinator emits when a
// pipeline is permanently blocked and will not be auto-recreated. It is
// forwarded out of process by a ControlChannelPublisher.
type Diagnostic struct {
	RoomID      string
	PipelineKey string
	ListenerID  string
	SpeakerID   string
	Reason      string
}

// LogValue implements slog.LogValuer so o11y.Logger can log a Diagnostic
// directly without a hand-maintained field list at every call site.
func (d Diagnostic) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("room_id", d.RoomID),
		slog.String("pipeline", d.PipelineKey),
		slog.String("listener_id", d.ListenerID),
		slog.String("speaker_id", d.SpeakerID),
		slog.String("reason", d.Reason),
	)
}

// ControlChannelPublisher forwards Diagnostics to operators out of band from
// the media path, e.g. as a LiveKit data-channel packet to the affected
// listener. Implementations must not block the Coordinator's event loop.
type ControlChannelPublisher interface {
	PublishDiagnostic(ctx context.Context, d Diagnostic) error
}

// Config configures a Coordinator for one room.
type Config struct {
	RoomID            string
	Router            *router.Router
	NewPipeline       PipelineFactory
	ReconcileInterval time.Duration
	EmptyRoomTimeout  time.Duration
	Logger            *o11y.Logger
	ControlChannel    ControlChannelPublisher
}

// Coordinator owns one room's membership state, its router.RoomState, and
// the Pipelines derived from it. All mutation happens on the Run goroutine.
type Coordinator struct {
	cfg Config

	events chan Event

	mu         sync.Mutex
	state      router.RoomState
	pipelines  map[string]Pipeline
	lastActive time.Time
	empty      bool

	// blocked holds the keys of pairs whose pipeline failed permanently
	// (auth, unsupported language, voice unavailable). reconcile skips
	// these until a metadata change clears the entry; see §4.5/§7.
	blocked map[string]struct{}
}

// New constructs a Coordinator for roomID. Call Run to start its event
// loop.
func New(cfg Config) *Coordinator {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 5 * time.Second
	}
	if cfg.EmptyRoomTimeout <= 0 {
		cfg.EmptyRoomTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = o11y.NewLogger()
	}
	return &Coordinator{
		cfg:        cfg,
		events:     make(chan Event, 64),
		state:      router.RoomState{Participants: map[string]router.Participant{}},
		pipelines:  map[string]Pipeline{},
		blocked:    map[string]struct{}{},
		lastActive: time.Now(),
	}
}

// Submit enqueues an Event for the Coordinator's loop. Safe to call from
// any goroutine (e.g. a webrtc room callback, or a failing Pipeline).
func (c *Coordinator) Submit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.cfg.Logger.Error(context.Background(), "room: event queue full, dropping event", "room_id", c.cfg.RoomID, "kind", ev.Kind)
	}
}

// Run drives the Coordinator's event loop until ctx is cancelled. It is the
// single owner of room state: reconciliation, pipeline creation, and
// pipeline teardown all happen here, serialized by this one goroutine.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.teardownAll(context.Background())
			return nil

		case ev := <-c.events:
			c.handle(ctx, ev)

		case <-ticker.C:
			c.handle(ctx, Event{Kind: EventTick})
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventParticipantJoined:
		p := router.Participant{ID: ev.ParticipantID, Language: ev.Language, TrackID: ev.TrackID}
		c.state.Participants[ev.ParticipantID] = p
		c.cfg.Logger.Info(ctx, "room: participant joined", "room_id", c.cfg.RoomID, "participant", p)
		c.lastActive = time.Now()
		c.mu.Lock()
		c.empty = false
		c.mu.Unlock()
		c.reconcile(ctx)

	case EventMetadataChanged:
		if p, ok := c.state.Participants[ev.ParticipantID]; ok {
			p.Language = ev.Language
			c.state.Participants[ev.ParticipantID] = p
			c.clearBlockedFor(ev.ParticipantID)
			c.teardownPipelinesFor(ctx, ev.ParticipantID)
			c.reconcile(ctx)
		}

	case EventParticipantLeft:
		delete(c.state.Participants, ev.ParticipantID)
		c.reconcile(ctx)
		c.teardownPipelinesFor(ctx, ev.ParticipantID)
		c.clearBlockedFor(ev.ParticipantID)
		if len(c.state.Participants) == 0 {
			c.lastActive = time.Now()
		}

	case EventPipelineFailed:
		if isPermanentFailure(ev.Err) {
			c.failPermanently(ctx, ev.PipelineKey, ev.Err)
		} else {
			c.cfg.Logger.Error(ctx, "room: pipeline failed, restarting", "room_id", c.cfg.RoomID, "pipeline", ev.PipelineKey, "error", ev.Err)
			c.restartPipeline(ctx, ev.PipelineKey)
		}

	case EventTick:
		c.reconcile(ctx)
		c.sweepEmptyRoom(ctx)
	}
}

// reconcile recomputes the desired router.Plan and ensures one Pipeline
// exists for every (listener, speaker) pair the topology requires, per
// spec.md's one-pipeline-per-ordered-pair rule.
func (c *Coordinator) reconcile(ctx context.Context) {
	plan := router.ComputePlan(c.state)
	if c.cfg.Router != nil {
		if err := c.cfg.Router.Apply(ctx, plan); err != nil {
			c.cfg.Logger.Error(ctx, "room: router apply failed", "room_id", c.cfg.RoomID, "error", err)
		}
	}

	want := map[string]struct{}{}
	for listenerID := range c.state.Participants {
		for speakerID, speaker := range c.state.Participants {
			if listenerID == speakerID || speaker.SilentOnly || speaker.TrackID == "" {
				continue
			}
			key := pairKey(listenerID, speakerID)
			want[key] = struct{}{}
			if _, blocked := c.blocked[key]; blocked {
				continue
			}
			if _, exists := c.pipelines[key]; !exists {
				c.startPipeline(ctx, listenerID, speakerID)
			}
		}
	}

	for key, p := range c.pipelines {
		if _, ok := want[key]; !ok {
			_ = p.Stop(ctx)
			delete(c.pipelines, key)
		}
	}
	for key := range c.blocked {
		if _, ok := want[key]; !ok {
			delete(c.blocked, key)
		}
	}
}

func (c *Coordinator) startPipeline(ctx context.Context, listenerID, speakerID string) {
	key := pairKey(listenerID, speakerID)
	if c.cfg.NewPipeline == nil {
		return
	}
	pair := lang.Pair{Source: c.state.Participants[speakerID].Language, Target: c.state.Participants[listenerID].Language}
	p, err := c.cfg.NewPipeline(listenerID, speakerID, pair, func(err error) {
		c.Submit(Event{Kind: EventPipelineFailed, PipelineKey: key, Err: err})
	})
	if err != nil {
		c.cfg.Logger.Error(ctx, "room: pipeline creation failed", "room_id", c.cfg.RoomID, "pipeline", key, "pair", pair, "error", err)
		return
	}
	if err := p.Start(ctx); err != nil {
		c.cfg.Logger.Error(ctx, "room: pipeline start failed", "room_id", c.cfg.RoomID, "pipeline", key, "pair", pair, "error", err)
		return
	}
	c.cfg.Logger.Debug(ctx, "room: pipeline started", "room_id", c.cfg.RoomID, "pipeline", key, "pair", pair)
	c.pipelines[key] = p
}

func (c *Coordinator) restartPipeline(ctx context.Context, key string) {
	if p, ok := c.pipelines[key]; ok {
		_ = p.Stop(ctx)
		delete(c.pipelines, key)
	}
	listenerID, speakerID, ok := splitPairKey(key)
	if !ok {
		return
	}
	if _, stillPresent := c.state.Participants[listenerID]; !stillPresent {
		return
	}
	if _, stillPresent := c.state.Participants[speakerID]; !stillPresent {
		return
	}
	c.startPipeline(ctx, listenerID, speakerID)
}

// failPermanently tears a pipeline down and marks its pair as blocked so
// reconcile will not recreate it with the same parameters. Per §4.3/§4.5/§7,
// only an explicit metadata change (or the participant leaving) clears the
// block; it is never auto-cleared by retrying.
func (c *Coordinator) failPermanently(ctx context.Context, key string, cause error) {
	if p, ok := c.pipelines[key]; ok {
		_ = p.Stop(ctx)
		delete(c.pipelines, key)
	}
	c.blocked[key] = struct{}{}

	listenerID, speakerID, _ := splitPairKey(key)
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	diag := Diagnostic{
		RoomID:      c.cfg.RoomID,
		PipelineKey: key,
		ListenerID:  listenerID,
		SpeakerID:   speakerID,
		Reason:      reason,
	}
	c.cfg.Logger.Error(ctx, "room: pipeline failed permanently, will not auto-recreate", "diagnostic", diag)

	if c.cfg.ControlChannel != nil {
		if err := c.cfg.ControlChannel.PublishDiagnostic(ctx, diag); err != nil {
			c.cfg.Logger.Error(ctx, "room: control channel publish failed", "room_id", c.cfg.RoomID, "pipeline", key, "error", err)
		}
	}
}

// isPermanentFailure classifies err per spec.md §7: PermanentProvider errors
// (auth, unsupported language, voice unavailable, malformed request) must
// not be retried with identical parameters. TransientProvider and
// TransportError failures (and any plain, unclassified error reported by a
// pipeline) fall through to the existing restart path.
func isPermanentFailure(err error) bool {
	var e *core.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case core.ErrPermanent, core.ErrAuth, core.ErrInvalidInput:
		return true
	default:
		return false
	}
}

// clearBlockedFor removes every blocked pair involving participantID, so a
// subsequent reconcile is free to recreate pipelines for it — the metadata
// change (or departure) that clears a permanent block per §4.5.
func (c *Coordinator) clearBlockedFor(participantID string) {
	for key := range c.blocked {
		listenerID, speakerID, ok := splitPairKey(key)
		if !ok {
			continue
		}
		if listenerID == participantID || speakerID == participantID {
			delete(c.blocked, key)
		}
	}
}

func (c *Coordinator) teardownPipelinesFor(ctx context.Context, participantID string) {
	for key, p := range c.pipelines {
		listenerID, speakerID, ok := splitPairKey(key)
		if !ok {
			continue
		}
		if listenerID == participantID || speakerID == participantID {
			_ = p.Stop(ctx)
			delete(c.pipelines, key)
		}
	}
}

func (c *Coordinator) teardownAll(ctx context.Context) {
	for key, p := range c.pipelines {
		_ = p.Stop(ctx)
		delete(c.pipelines, key)
	}
}

// sweepEmptyRoom is where a caller owning the Coordinator's lifecycle would
// learn a room has been empty past EmptyRoomTimeout and should be torn
// down; room.Coordinator itself doesn't self-terminate so the workerhost
// can decide job disposal.
func (c *Coordinator) sweepEmptyRoom(ctx context.Context) {
	if len(c.state.Participants) != 0 {
		return
	}
	if time.Since(c.lastActive) < c.cfg.EmptyRoomTimeout {
		return
	}
	c.mu.Lock()
	wasEmpty := c.empty
	c.empty = true
	c.mu.Unlock()
	if !wasEmpty {
		c.cfg.Logger.Info(ctx, "room: empty past timeout", "room_id", c.cfg.RoomID)
	}
}

// IsEmpty reports whether the room has had no participants for longer than
// its configured EmptyRoomTimeout.
func (c *Coordinator) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.empty
}

// PipelineCount returns the number of Pipelines currently running, for
// tests and the translation-stats HTTP surface.
func (c *Coordinator) PipelineCount() int {
	return len(c.pipelines)
}

func pairKey(listenerID, speakerID string) string {
	return fmt.Sprintf("%s|%s", listenerID, speakerID)
}

func splitPairKey(key string) (listenerID, speakerID string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
