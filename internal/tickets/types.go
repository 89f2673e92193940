package tickets

import "time"

// Ticket statuses. A ticket stays resolvable until it is closed.
const (
	StatusPending = "pending"
	StatusOpen    = "open"
	StatusClosed  = "closed"
)

// Ticket is the durable record of one ongoing conversation on one account.
type Ticket struct {
	ID          string    `json:"id"`
	ContactID   string    `json:"contact_id"`
	AccountID   string    `json:"account_id"`
	QueueID     *string   `json:"queue_id"`
	UserID      *string   `json:"user_id"`
	Status      string    `json:"status"`
	LastMessage string    `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
	IsGroup     bool      `json:"is_group"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FindOrCreateParams identifies the conversation to resolve. ContactID is the
// conversation identity: for group chats, the group's own contact.
type FindOrCreateParams struct {
	ContactID   string
	AccountID   string
	UnreadCount int
	IsGroup     bool
}
