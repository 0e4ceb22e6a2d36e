// Package router computes and applies the subscription topology that keeps
// each listener hearing only their own per-speaker interpreted tracks: never
// their own voice, and never another participant's raw, untranslated track.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/o11y"
)

// Participant is one room member as the router sees them: an identity, a
// listening language, and the track they publish when speaking.
type Participant struct {
	ID         string
	Language   lang.Tag
	TrackID    string // raw source track published when this participant speaks
	SilentOnly bool   // true for participants who never speak (e.g. an operator console)
}

// LogValue implements slog.LogValuer so a Participant can be logged
// directly instead of call sites hand-listing its fields.
func (p Participant) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", p.ID),
		slog.String("language", string(p.Language)),
		slog.Bool("silent_only", p.SilentOnly),
	)
}

// RoomState is the router's view of one room's membership.
type RoomState struct {
	Participants map[string]Participant
}

// InterpretedTrackID names the private track carrying speaker's audio
// interpreted for listener. Deterministic so repeated planning is stable.
func InterpretedTrackID(speakerID, listenerID string) string {
	return fmt.Sprintf("interp:%s->%s", speakerID, listenerID)
}

// Plan is the set of per-participant subscribe/unsubscribe operations
// needed to move a room to the topology RoomState describes.
type Plan struct {
	Subscribe   map[string][]string
	Unsubscribe map[string][]string
}

func newPlan() Plan {
	return Plan{Subscribe: map[string][]string{}, Unsubscribe: map[string][]string{}}
}

func (p *Plan) addSubscribe(listenerID, trackID string) {
	p.Subscribe[listenerID] = append(p.Subscribe[listenerID], trackID)
}

func (p *Plan) addUnsubscribe(listenerID, trackID string) {
	p.Unsubscribe[listenerID] = append(p.Unsubscribe[listenerID], trackID)
}

// ComputePlan derives the desired subscription set for every participant in
// state: each listener subscribes to the interpreted track of every other
// speaking participant, whatever that speaker's language, and is
// unsubscribed from every speaker's raw track and from their own track.
// Same-language pairs are not served from the raw track; they also go
// through the interpreted track.
// The function is pure and idempotent: calling it twice on the same state
// yields the same Plan.
func ComputePlan(state RoomState) Plan {
	plan := newPlan()

	ids := make([]string, 0, len(state.Participants))
	for id := range state.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, listenerID := range ids {
		listener := state.Participants[listenerID]
		for _, speakerID := range ids {
			if speakerID == listenerID {
				plan.addUnsubscribe(listenerID, state.Participants[speakerID].TrackID)
				continue
			}
			speaker := state.Participants[speakerID]
			if speaker.SilentOnly || speaker.TrackID == "" {
				continue
			}

			plan.addUnsubscribe(listenerID, speaker.TrackID)

			// Even a same-language pair subscribes through the interpreted
			// track rather than the raw one: it keeps the subscription
			// topology, and the pipeline's latency budget, uniform
			// regardless of language, and passthrough is just a Pipeline
			// whose Translator is a no-op.
			plan.addSubscribe(listenerID, InterpretedTrackID(speakerID, listenerID))
		}
	}

	return plan
}

// Transport applies subscription changes against the underlying media
// server. LiveKitTransport is the production implementation.
type Transport interface {
	UpdateSubscriptions(ctx context.Context, participantID string, subscribeTrackIDs, unsubscribeTrackIDs []string) error
}

// Router applies Plans to a Transport, always subscribing to new tracks
// before unsubscribing from old ones so a listener is never silent between
// the two operations.
type Router struct {
	transport Transport
	logger    *o11y.Logger
}

// New constructs a Router over the given Transport.
func New(transport Transport, logger *o11y.Logger) *Router {
	if logger == nil {
		logger = o11y.NewLogger()
	}
	return &Router{transport: transport, logger: logger}
}

// Apply pushes plan to the transport, one participant at a time, ordered
// subscribe-then-unsubscribe per participant. It is safe to call with a
// Plan computed from a state identical to the last applied one: the
// Transport is expected to treat repeat subscribe/unsubscribe calls as
// idempotent no-ops.
func (r *Router) Apply(ctx context.Context, plan Plan) error {
	ids := make(map[string]struct{}, len(plan.Subscribe)+len(plan.Unsubscribe))
	for id := range plan.Subscribe {
		ids[id] = struct{}{}
	}
	for id := range plan.Unsubscribe {
		ids[id] = struct{}{}
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		sub := dedupe(plan.Subscribe[id])
		unsub := dedupe(plan.Unsubscribe[id])
		if len(sub) == 0 && len(unsub) == 0 {
			continue
		}
		r.logger.Debug(ctx, "router: updating subscriptions", "listener_id", id, "subscribe", sub, "unsubscribe", unsub)
		if err := r.transport.UpdateSubscriptions(ctx, id, sub, unsub); err != nil {
			return fmt.Errorf("router: apply plan for %s: %w", id, err)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
