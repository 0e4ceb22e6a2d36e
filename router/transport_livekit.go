package router

import (
	"context"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
)

// LiveKitTransport implements Transport over a LiveKit RoomServiceClient,
// issuing one UpdateSubscriptions call for the subscribe set and one for
// the unsubscribe set (the underlying RPC only carries a single direction
// per call).
type LiveKitTransport struct {
	client *lksdk.RoomServiceClient
	room   string
}

// NewLiveKitTransport builds a Transport backed by the LiveKit room service
// API for roomName.
func NewLiveKitTransport(client *lksdk.RoomServiceClient, roomName string) *LiveKitTransport {
	return &LiveKitTransport{client: client, room: roomName}
}

func (t *LiveKitTransport) UpdateSubscriptions(ctx context.Context, participantID string, subscribeTrackIDs, unsubscribeTrackIDs []string) error {
	if len(subscribeTrackIDs) > 0 {
		if _, err := t.client.UpdateSubscriptions(ctx, &livekit.UpdateSubscriptionsRequest{
			Room:      t.room,
			Identity:  participantID,
			TrackSids: subscribeTrackIDs,
			Subscribe: true,
		}); err != nil {
			return err
		}
	}
	if len(unsubscribeTrackIDs) > 0 {
		if _, err := t.client.UpdateSubscriptions(ctx, &livekit.UpdateSubscriptionsRequest{
			Room:      t.room,
			Identity:  participantID,
			TrackSids: unsubscribeTrackIDs,
			Subscribe: false,
		}); err != nil {
			return err
		}
	}
	return nil
}
