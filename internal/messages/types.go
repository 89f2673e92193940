package messages

import "time"

// Message is one stored chat message. ID is the transport-native id, which
// makes storage idempotent and lets ack events correlate back to the row.
// ContactID is nil for outbound/self-sent messages.
type Message struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	ContactID   *string   `json:"contact_id"`
	Body        string    `json:"body"`
	MediaURL    string    `json:"media_url,omitempty"`
	MediaType   string    `json:"media_type,omitempty"`
	FromMe      bool      `json:"from_me"`
	Read        bool      `json:"read"`
	Ack         int       `json:"ack"`
	QuotedMsgID *string   `json:"quoted_msg_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
