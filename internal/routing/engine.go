// Package routing implements the inbound admission and routing engine: it
// classifies raw transport events, materializes contacts and tickets, applies
// queue business-hours admission, and drives the automated replies.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chatdesk/chatdesk/internal/accounts"
	"github.com/chatdesk/chatdesk/internal/contacts"
	"github.com/chatdesk/chatdesk/internal/errtrack"
	"github.com/chatdesk/chatdesk/internal/media"
	"github.com/chatdesk/chatdesk/internal/messages"
	"github.com/chatdesk/chatdesk/internal/messages/event"
	"github.com/chatdesk/chatdesk/internal/queues"
	"github.com/chatdesk/chatdesk/internal/schedule"
	"github.com/chatdesk/chatdesk/internal/tickets"
	"github.com/chatdesk/chatdesk/internal/transport"
)

// menuBackHint is appended to every absence reply, pointing the sender back
// to the menu.
const menuBackHint = "_0 - Back_"

// ContactStore materializes chat peers.
type ContactStore interface {
	Upsert(ctx context.Context, params contacts.UpsertParams) (contacts.Contact, error)
}

// AccountStore reads account configuration with its queues in menu order.
type AccountStore interface {
	GetWithQueues(ctx context.Context, id string) (accounts.Account, []queues.Queue, error)
}

// TicketStore resolves and mutates tickets.
type TicketStore interface {
	FindOrCreate(ctx context.Context, params tickets.FindOrCreateParams) (tickets.Ticket, error)
	AssignQueue(ctx context.Context, ticketID, queueID string, force bool) (tickets.Ticket, error)
	UpdateLastMessage(ctx context.Context, ticketID, body string) error
}

// MessageStore persists messages keyed by transport-native id.
type MessageStore interface {
	Upsert(ctx context.Context, m messages.Message) (messages.Message, error)
	GetByID(ctx context.Context, id string) (messages.Message, error)
	UpdateAck(ctx context.Context, id string, ack int) (messages.Message, error)
}

// QueueStore reads queue configuration.
type QueueStore interface {
	GetByID(ctx context.Context, id string) (queues.Queue, error)
}

// MediaStore persists downloaded media payloads.
type MediaStore interface {
	Store(ctx context.Context, input media.StoreInput) (media.Stored, error)
}

// Config holds the engine's timing knobs.
type Config struct {
	// MenuDebounce is the quiescence window for the queue-selection menu.
	MenuDebounce time.Duration
	// AckDelay is waited before an ack lookup to absorb ack-before-store
	// races from the transport.
	AckDelay time.Duration
}

// Deps are the collaborators the engine orchestrates.
type Deps struct {
	Contacts ContactStore
	Accounts AccountStore
	Tickets  TicketStore
	Messages MessageStore
	Queues   QueueStore
	Media    MediaStore
	Events   event.Publisher
	Tracker  *errtrack.Tracker
}

// Engine routes inbound chat events into the ticketing workflow.
type Engine struct {
	contacts ContactStore
	accounts AccountStore
	tickets  TicketStore
	messages MessageStore
	queues   QueueStore
	media    MediaStore
	events   event.Publisher
	tracker  *errtrack.Tracker

	menu     *Debouncer
	ackDelay time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewEngine(log *slog.Logger, cfg Config, deps Deps) *Engine {
	if cfg.MenuDebounce <= 0 {
		cfg.MenuDebounce = 3000 * time.Millisecond
	}
	if cfg.AckDelay <= 0 {
		cfg.AckDelay = 500 * time.Millisecond
	}
	return &Engine{
		contacts: deps.Contacts,
		accounts: deps.Accounts,
		tickets:  deps.Tickets,
		messages: deps.Messages,
		queues:   deps.Queues,
		media:    deps.Media,
		events:   deps.Events,
		tracker:  deps.Tracker,
		menu:     NewDebouncer(cfg.MenuDebounce),
		ackDelay: cfg.AckDelay,
		now:      time.Now,
		logger:   log.With(slog.String("service", "routing")),
	}
}

// Close cancels pending debounced menus.
func (e *Engine) Close() {
	e.menu.Stop()
}

// HandleMessage processes one inbound message event end to end. The inbound
// message is always stored before any automated reply is attempted, so a
// failed send never loses history.
func (e *Engine) HandleMessage(ctx context.Context, sess *transport.Session, evt transport.MessageEvent) error {
	if sess == nil || sess.Client == nil {
		return fmt.Errorf("transport session not configured")
	}
	if !isValidMessage(evt) {
		e.logger.Debug("skipping unsupported event",
			slog.String("message_id", evt.ID),
			slog.String("kind", string(evt.Kind)))
		return nil
	}
	// Anti-echo: our own tagged replies come back as self-sent events.
	if evt.FromMe && IsEngineGenerated(evt.Body) {
		return nil
	}
	// Self-sent media events before upload finalization are re-delivered
	// later with the media attached.
	if evt.FromMe && evt.HasMedia && evt.MediaPending {
		return nil
	}

	account, queueList, err := e.accounts.GetWithQueues(ctx, sess.AccountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	unread := evt.Unread
	if evt.FromMe {
		unread = 0
	}
	// An outbound farewell with nothing unread closes the exchange; it must
	// not open a conversation turn of its own.
	if evt.FromMe && unread == 0 && account.FarewellMessage != "" && evt.Body == account.FarewellMessage {
		return nil
	}

	chatContact, senderContact, err := e.resolveContacts(ctx, sess, evt)
	if err != nil {
		return err
	}

	ticket, err := e.tickets.FindOrCreate(ctx, tickets.FindOrCreateParams{
		ContactID:   chatContact.ID,
		AccountID:   sess.AccountID,
		UnreadCount: unread,
		IsGroup:     evt.IsGroup,
	})
	if err != nil {
		return fmt.Errorf("resolve ticket: %w", err)
	}

	if _, err := e.storeMessage(ctx, sess, evt, ticket, senderContact); err != nil {
		return err
	}

	if evt.Kind == transport.KindVCard {
		e.importVCardContacts(ctx, evt)
	}

	// Routing applies only to inbound individual messages on tickets without
	// a human operator.
	if evt.FromMe || evt.IsGroup || ticket.UserID != nil {
		return nil
	}

	if ticket.QueueID != nil {
		return e.recheckAssignedQueue(ctx, sess, evt, ticket)
	}
	if len(queueList) == 0 {
		return nil
	}
	return e.route(ctx, sess, evt, account, queueList, ticket)
}

// resolveContacts upserts the conversation contact and, for group chats, the
// sender's own contact. The conversation contact (the group for group chats)
// anchors the ticket; the sender contact is referenced by the stored message.
func (e *Engine) resolveContacts(ctx context.Context, sess *transport.Session, evt transport.MessageEvent) (chatContact, senderContact contacts.Contact, err error) {
	info, err := sess.Client.ContactInfo(ctx, evt.ChatJID)
	if err != nil {
		return contacts.Contact{}, contacts.Contact{}, fmt.Errorf("contact info: %w", err)
	}
	number := info.Number
	if number == "" {
		number = jidNumber(evt.ChatJID)
	}
	chatContact, err = e.contacts.Upsert(ctx, contacts.UpsertParams{
		Number:    number,
		Name:      info.Name,
		AvatarURL: info.AvatarURL,
		IsGroup:   evt.IsGroup || info.IsGroup,
	})
	if err != nil {
		return contacts.Contact{}, contacts.Contact{}, fmt.Errorf("upsert contact: %w", err)
	}

	senderContact = chatContact
	if evt.IsGroup && !evt.FromMe && evt.SenderJID != "" && evt.SenderJID != evt.ChatJID {
		senderInfo, err := sess.Client.ContactInfo(ctx, evt.SenderJID)
		if err != nil {
			e.logger.Warn("group sender lookup failed",
				slog.String("sender_jid", evt.SenderJID), slog.Any("error", err))
			return chatContact, chatContact, nil
		}
		senderNumber := senderInfo.Number
		if senderNumber == "" {
			senderNumber = jidNumber(evt.SenderJID)
		}
		sender, err := e.contacts.Upsert(ctx, contacts.UpsertParams{
			Number:    senderNumber,
			Name:      senderInfo.Name,
			AvatarURL: senderInfo.AvatarURL,
		})
		if err != nil {
			e.logger.Warn("group sender upsert failed", slog.Any("error", err))
			return chatContact, chatContact, nil
		}
		senderContact = sender
	}
	return chatContact, senderContact, nil
}

// storeMessage normalizes the event into a message record and persists it.
// Media download failure is fatal for this message: without the payload no
// durable record can be produced.
func (e *Engine) storeMessage(ctx context.Context, sess *transport.Session, evt transport.MessageEvent, ticket tickets.Ticket, sender contacts.Contact) (messages.Message, error) {
	m := messages.Message{
		ID:       evt.ID,
		TicketID: ticket.ID,
		Body:     evt.Body,
		FromMe:   evt.FromMe,
		Read:     evt.FromMe,
	}
	if !evt.FromMe {
		contactID := sender.ID
		m.ContactID = &contactID
	}
	if evt.QuotedID != "" {
		if quoted, err := e.messages.GetByID(ctx, evt.QuotedID); err == nil {
			m.QuotedMsgID = &quoted.ID
		}
	}

	switch {
	case evt.HasMedia:
		payload, err := sess.Client.DownloadMedia(ctx, evt.ID)
		if err != nil {
			return messages.Message{}, fmt.Errorf("download media: %w", err)
		}
		stored, err := e.media.Store(ctx, media.StoreInput{
			Data:     payload.Data,
			Filename: coalesce(evt.Filename, payload.Filename),
			MimeType: coalesce(payload.MimeType, evt.MimeType),
		})
		if err != nil {
			return messages.Message{}, fmt.Errorf("store media: %w", err)
		}
		m.MediaURL = stored.URL
		m.MediaType = stored.MediaType
		if m.Body == "" {
			m.Body = stored.Filename
		}
	case evt.Kind == transport.KindLocation:
		m.Body = locationBody(evt)
		m.MediaType = string(transport.KindLocation)
	default:
		m.MediaType = string(evt.Kind)
	}

	stored, err := e.messages.Upsert(ctx, m)
	if err != nil {
		return messages.Message{}, fmt.Errorf("store message: %w", err)
	}
	if err := e.tickets.UpdateLastMessage(ctx, ticket.ID, stored.Body); err != nil {
		e.logger.Warn("update ticket preview failed",
			slog.String("ticket_id", ticket.ID), slog.Any("error", err))
	}
	e.publish(event.TypeMessageCreated, ticket.ID, stored)
	return stored, nil
}

// recheckAssignedQueue re-evaluates the ticket's queue on every inbound
// message; outside business hours the sender gets the absence text with a
// hint back to the menu. The message itself was already stored.
func (e *Engine) recheckAssignedQueue(ctx context.Context, sess *transport.Session, evt transport.MessageEvent, ticket tickets.Ticket) error {
	queue, err := e.queues.GetByID(ctx, *ticket.QueueID)
	if err != nil {
		return fmt.Errorf("load assigned queue: %w", err)
	}
	result := schedule.Evaluate(queue.Hours(), e.now())
	if result == schedule.Admit {
		return nil
	}
	e.logger.Info("assigned queue outside business hours",
		slog.String("ticket_id", ticket.ID),
		slog.String("queue", queue.Name),
		slog.String("result", result.String()))
	if queue.AbsenceMessage == "" {
		return nil
	}
	return e.sendReply(ctx, sess, evt.ChatJID, ticket, absenceBody(queue))
}

// absenceBody is the closed-queue reply: the queue's absence text with the
// back-to-menu hint on its own line.
func absenceBody(queue queues.Queue) string {
	return queue.AbsenceMessage + "\n" + menuBackHint
}

// route performs queue assignment for a ticket that has none yet.
func (e *Engine) route(ctx context.Context, sess *transport.Session, evt transport.MessageEvent, account accounts.Account, queueList []queues.Queue, ticket tickets.Ticket) error {
	if len(queueList) == 1 {
		queue := queueList[0]
		result := schedule.Evaluate(queue.Hours(), e.now())
		if result != schedule.Admit {
			// Rejections leave the single-queue ticket unassigned, for both
			// day and hour rejections.
			if queue.AbsenceMessage == "" {
				return nil
			}
			return e.sendReply(ctx, sess, evt.ChatJID, ticket, absenceBody(queue))
		}
		if _, err := e.tickets.AssignQueue(ctx, ticket.ID, queue.ID, false); err != nil {
			return fmt.Errorf("assign queue: %w", err)
		}
		if queue.GreetingMessage == "" {
			return nil
		}
		return e.sendReply(ctx, sess, evt.ChatJID, ticket, queue.GreetingMessage)
	}

	if choice, ok := parseMenuSelection(evt.Body, len(queueList)); ok {
		queue := queueList[choice-1]
		switch schedule.Evaluate(queue.Hours(), e.now()) {
		case schedule.RejectDay:
			// A day rejection never assigns.
			if queue.AbsenceMessage == "" {
				return nil
			}
			return e.sendReply(ctx, sess, evt.ChatJID, ticket, absenceBody(queue))
		case schedule.RejectHours:
			// The sender pre-selected this queue; record the assignment even
			// though service is closed so follow-up lands in the right place.
			if queue.AbsenceMessage != "" {
				if err := e.sendReply(ctx, sess, evt.ChatJID, ticket, absenceBody(queue)); err != nil {
					return err
				}
			}
			if _, err := e.tickets.AssignQueue(ctx, ticket.ID, queue.ID, true); err != nil {
				return fmt.Errorf("assign selected queue: %w", err)
			}
			return nil
		default:
			if _, err := e.tickets.AssignQueue(ctx, ticket.ID, queue.ID, true); err != nil {
				return fmt.Errorf("assign selected queue: %w", err)
			}
			if queue.GreetingMessage == "" {
				return nil
			}
			return e.sendReply(ctx, sess, evt.ChatJID, ticket, queue.GreetingMessage)
		}
	}

	// Not a valid selection: re-present the menu, debounced per ticket so a
	// burst of messages produces a single menu.
	chatJID := evt.ChatJID
	e.menu.Trigger(ticket.ID, func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.sendReply(sendCtx, sess, chatJID, ticket, menuBody(account, queueList)); err != nil {
			e.logger.Error("send queue menu failed",
				slog.String("ticket_id", ticket.ID), slog.Any("error", err))
			e.tracker.Capture(err, map[string]string{"ticket_id": ticket.ID})
		}
	})
	return nil
}

// menuBody renders the queue-selection menu: the account greeting followed by
// the queues enumerated in configured order, 1-based.
func menuBody(account accounts.Account, queueList []queues.Queue) string {
	var b strings.Builder
	if account.GreetingMessage != "" {
		b.WriteString(account.GreetingMessage)
		b.WriteString("\n\n")
	}
	for i, queue := range queueList {
		fmt.Fprintf(&b, "*%d* - %s\n", i+1, queue.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// sendReply tags, sends, and records an automated reply. The returned
// self-sent event is stored so the outbound side of the conversation is
// durable too.
func (e *Engine) sendReply(ctx context.Context, sess *transport.Session, chatJID string, ticket tickets.Ticket, body string) error {
	sent, err := sess.Client.SendText(ctx, chatJID, TagEngineGenerated(body))
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	if sent.ID == "" {
		e.logger.Warn("transport returned no id for sent reply", slog.String("ticket_id", ticket.ID))
		return nil
	}
	outBody := sent.Body
	if outBody == "" {
		outBody = TagEngineGenerated(body)
	}
	stored, err := e.messages.Upsert(ctx, messages.Message{
		ID:        sent.ID,
		TicketID:  ticket.ID,
		Body:      outBody,
		MediaType: string(transport.KindChat),
		FromMe:    true,
		Read:      true,
	})
	if err != nil {
		return fmt.Errorf("store reply: %w", err)
	}
	if err := e.tickets.UpdateLastMessage(ctx, ticket.ID, stored.Body); err != nil {
		e.logger.Warn("update ticket preview failed",
			slog.String("ticket_id", ticket.ID), slog.Any("error", err))
	}
	e.publish(event.TypeMessageCreated, ticket.ID, stored)
	return nil
}

// importVCardContacts creates contacts for the numbers carried in a received
// contact card. Best effort; a malformed card never fails the message.
func (e *Engine) importVCardContacts(ctx context.Context, evt transport.MessageEvent) {
	for _, entry := range parseVCard(evt.Body) {
		if _, err := e.contacts.Upsert(ctx, contacts.UpsertParams{
			Number: entry.Number,
			Name:   entry.Name,
		}); err != nil {
			e.logger.Warn("vcard contact import failed",
				slog.String("number", entry.Number), slog.Any("error", err))
		}
	}
}

func (e *Engine) publish(eventType event.Type, ticketID string, m messages.Message) {
	if e.events == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		e.logger.Warn("encode message event failed", slog.Any("error", err))
		return
	}
	e.events.Publish(event.Event{Type: eventType, TicketID: ticketID, Data: data})
}

func jidNumber(jid string) string {
	if i := strings.Index(jid, "@"); i >= 0 {
		return jid[:i]
	}
	return jid
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
