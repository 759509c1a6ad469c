// Package realtime is the connection registry: which users are connected
// right now, and the per-connection outbound queues deliveries go into.
//
// The registry lives in one process. Running several server processes
// needs an external broker to route deliveries between them.
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an asynchronous delivery.
type EventType string

const (
	EventMessageNew     EventType = "message.new"
	EventMessageEdited  EventType = "message.edited"
	EventMessageDeleted EventType = "message.deleted"

	EventCallOffer    EventType = "call.offer"
	EventCallAnswered EventType = "call.answered"
	EventCallEnded    EventType = "call.ended"
	EventCallRejected EventType = "call.rejected"

	EventChannelCreated       EventType = "channel.created"
	EventChannelMemberAdded   EventType = "channel.member_added"
	EventChannelMemberRemoved EventType = "channel.member_removed"
	EventChannelClosed        EventType = "channel.closed"
)

// Envelope is the JSON frame written to a websocket.
type Envelope struct {
	Type      EventType `json:"type"`
	ChannelID uuid.UUID `json:"channel_id"`
	Payload   any       `json:"payload"`
	SentAt    time.Time `json:"sent_at"`
}

// NewEnvelope stamps SentAt with the current time.
func NewEnvelope(t EventType, channelID uuid.UUID, payload any) Envelope {
	return Envelope{Type: t, ChannelID: channelID, Payload: payload, SentAt: time.Now().UTC()}
}
