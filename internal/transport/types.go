// Package transport defines the contract between the routing engine and the
// chat transport client, plus the session registry that tracks connected
// accounts. Concrete clients live outside this module.
package transport

import (
	"context"
	"time"
)

// MessageKind classifies an inbound event by its transport-level type.
type MessageKind string

const (
	KindChat     MessageKind = "chat"
	KindAudio    MessageKind = "audio"
	KindPTT      MessageKind = "ptt"
	KindVideo    MessageKind = "video"
	KindImage    MessageKind = "image"
	KindDocument MessageKind = "document"
	KindVCard    MessageKind = "vcard"
	KindSticker  MessageKind = "sticker"
	KindLocation MessageKind = "location"
)

// AckLevel is the delivery state reported by the transport for a sent message.
type AckLevel int

const (
	AckError   AckLevel = -1
	AckPending AckLevel = 0
	AckServer  AckLevel = 1
	AckDevice  AckLevel = 2
	AckRead    AckLevel = 3
)

// MessageEvent is a raw message event as delivered by the transport.
// ChatJID identifies the conversation (the group id for group chats);
// SenderJID identifies the author and differs from ChatJID in groups.
type MessageEvent struct {
	ID        string
	ChatJID   string
	SenderJID string
	Kind      MessageKind
	Body      string
	FromMe    bool
	Broadcast bool
	IsGroup   bool
	Unread    int
	Timestamp time.Time

	HasMedia bool
	// MediaPending marks a self-sent media event that arrived before the
	// upload finalized; the transport re-delivers it once the media exists.
	MediaPending bool
	Filename     string
	MimeType     string

	QuotedID string

	// Location payload, set when Kind is KindLocation.
	Latitude     float64
	Longitude    float64
	LocationName string
	// LocationThumb is a base64 PNG preview supplied by the transport.
	LocationThumb string
}

// AckEvent reports a delivery-state change for a previously sent message.
type AckEvent struct {
	MessageID string
	Level     AckLevel
}

// EventType discriminates entries on a session's event stream.
type EventType string

const (
	EventMessage EventType = "message"
	EventAck     EventType = "ack"
)

// Event is one entry on a session's event stream.
type Event struct {
	Type    EventType
	Message MessageEvent
	Ack     AckEvent
}

// ContactInfo is the profile metadata the transport knows about a chat peer.
type ContactInfo struct {
	JID       string
	Number    string
	Name      string
	AvatarURL string
	IsGroup   bool
}

// Media is a downloaded media payload.
type Media struct {
	Data     []byte
	MimeType string
	Filename string
}

// Client is the capability set the engine needs from a connected transport
// session.
type Client interface {
	// SendText delivers body to the conversation and returns the resulting
	// self-sent message event.
	SendText(ctx context.Context, chatJID, body string) (MessageEvent, error)
	ContactInfo(ctx context.Context, jid string) (ContactInfo, error)
	DownloadMedia(ctx context.Context, messageID string) (Media, error)
}

// Session pairs a connected account with its client and event stream.
type Session struct {
	AccountID string
	Client    Client
	Events    <-chan Event
}
