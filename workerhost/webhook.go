package workerhost

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/room"
)

// WebhookHandler turns LiveKit room webhook deliveries into Job acceptance
// and room.Event submission against a Host.
type WebhookHandler struct {
	host        *Host
	keyProvider auth.KeyProvider
	roomType    string
}

// NewWebhookHandler builds a WebhookHandler that verifies deliveries with
// apiKey/apiSecret and routes accepted events to host.
func NewWebhookHandler(host *Host, apiKey, apiSecret, roomType string) *WebhookHandler {
	return &WebhookHandler{
		host:        host,
		keyProvider: auth.NewSimpleKeyProvider(apiKey, apiSecret),
		roomType:    roomType,
	}
}

// Register mounts the webhook endpoint on r.
func (h *WebhookHandler) Register(r *mux.Router) {
	r.HandleFunc("/webhooks/livekit", h.serveHTTP).Methods(http.MethodPost)
}

func (h *WebhookHandler) serveHTTP(w http.ResponseWriter, req *http.Request) {
	event, err := webhook.Receive(req, h.keyProvider)
	if err != nil {
		http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
		return
	}

	switch event.Event {
	case "room_started":
		if event.Room == nil {
			break
		}
		_ = h.host.Accept(req.Context(), Job{RoomID: event.Room.Name, RoomType: h.roomType})

	case "room_finished":
		if event.Room != nil {
			h.host.Retire(event.Room.Name)
		}

	case "participant_joined":
		h.forward(event, room.EventParticipantJoined)

	case "participant_left":
		h.forward(event, room.EventParticipantLeft)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) forward(event *livekit.WebhookEvent, kind room.EventKind) {
	if event.Room == nil || event.Participant == nil {
		return
	}
	language, _ := lang.Parse(participantLanguage(event.Participant))
	h.host.Submit(event.Room.Name, room.Event{
		Kind:          kind,
		ParticipantID: event.Participant.Identity,
		Language:      language,
		TrackID:       "", // track SIDs arrive via track_published, not participant events
	})
}

// participantLanguage extracts a listening-language tag from participant
// metadata, where the room's client application is expected to publish it
// as raw JSON: {"language": "es"}.
func participantLanguage(p *livekit.ParticipantInfo) string {
	if p.Metadata == "" {
		return string(lang.English)
	}
	var meta struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(p.Metadata), &meta); err != nil || meta.Language == "" {
		return string(lang.English)
	}
	return meta.Language
}
