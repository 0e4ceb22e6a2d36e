// Package transport adapts the pipeline and room packages' abstract
// AudioSink/ControlChannelPublisher contracts onto a concrete LiveKit room
// connection.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"

	"github.com/lookatitude/vox-interpret/room"
)

// ListenerTrack publishes one listener's interpreted audio as a local
// sample track into the room, implementing pipeline.AudioSink. The worker
// host publishes one ListenerTrack per (speaker, listener) pair, and PCM
// frames from that pair's Pipeline are written to it as they arrive.
type ListenerTrack struct {
	track *lksdk.LocalSampleTrack
}

// NewListenerTrack creates and publishes a PCM16 mono track named trackName
// to participant under room.
func NewListenerTrack(room *lksdk.Room, trackName string) (*ListenerTrack, error) {
	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  "audio/L16",
		ClockRate: 16000,
		Channels:  1,
	})
	if err != nil {
		return nil, err
	}
	if _, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name: trackName,
	}); err != nil {
		return nil, err
	}
	return &ListenerTrack{track: track}, nil
}

// WriteFrame implements pipeline.AudioSink.
func (t *ListenerTrack) WriteFrame(_ context.Context, frame []byte) error {
	return t.track.WriteSample(media.Sample{Data: frame, Duration: 20 * time.Millisecond}, nil)
}

// diagnosticPacket is the wire shape of a control-channel notification,
// published as reliable LiveKit data so the affected listener's client can
// surface it even though the interpreted audio track itself never recovers.
type diagnosticPacket struct {
	PipelineKey string `json:"pipeline_key"`
	ListenerID  string `json:"listener_id"`
	SpeakerID   string `json:"speaker_id"`
	Reason      string `json:"reason"`
}

// ControlChannel publishes room.Diagnostic notifications as LiveKit data
// packets, implementing room.ControlChannelPublisher. One ControlChannel is
// shared by every pipeline in a room; it never carries interpreted audio.
type ControlChannel struct {
	room *lksdk.Room
}

// NewControlChannel wraps an already-connected room for diagnostic publish.
func NewControlChannel(room *lksdk.Room) *ControlChannel {
	return &ControlChannel{room: room}
}

// PublishDiagnostic implements room.ControlChannelPublisher. It targets the
// destination identity only, leaving other participants in the room unaware
// of a given listener's pipeline going down.
func (c *ControlChannel) PublishDiagnostic(_ context.Context, d room.Diagnostic) error {
	data, err := json.Marshal(diagnosticPacket{
		PipelineKey: d.PipelineKey,
		ListenerID:  d.ListenerID,
		SpeakerID:   d.SpeakerID,
		Reason:      d.Reason,
	})
	if err != nil {
		return fmt.Errorf("marshal diagnostic packet: %w", err)
	}
	return c.room.LocalParticipant.PublishData(data, livekit.DataPacket_RELIABLE, []string{d.ListenerID})
}
