// Package profile models participant voice/language preferences and a
// process-local TTL cache for them, so the Room Coordinator never blocks a
// reconciliation sweep on an external profile store.
package profile

import (
	"context"

	"github.com/lookatitude/vox-interpret/lang"
)

// VoiceAvatar identifies the synthesized voice a listener wants to hear
// translated speech in.
type VoiceAvatar struct {
	ID       string
	Provider string
	Style    string
}

// UserProfile is the immutable set of preferences resolved for a
// participant at join time.
type UserProfile struct {
	ParticipantID string
	Language      lang.Tag
	Avatar        VoiceAvatar
	FormalTone    bool
}

// Store is the external collaborator that durably owns profile records.
// vox-interpret only reads through it; nothing here writes to a Store.
type Store interface {
	Get(ctx context.Context, participantID string) (UserProfile, error)
}

// VoiceCatalog is the external collaborator that resolves an avatar ID to
// provider-specific synthesis parameters. Not implemented here: the
// concrete catalog is a deployment detail outside this module's scope.
type VoiceCatalog interface {
	Resolve(ctx context.Context, avatarID string) (VoiceAvatar, error)
}
