// Package tickets resolves and mutates conversation tickets.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatdesk/chatdesk/internal/db"
)

// ErrTicketNotFound is returned when a ticket id does not resolve.
var ErrTicketNotFound = fmt.Errorf("ticket not found")

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	// creation is serialized per contact+account key; the partial unique
	// index on open tickets backs this up across processes.
	creates keyedMutex
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "tickets")),
	}
}

const ticketColumns = "id, contact_id, account_id, queue_id, user_id, status, last_message, unread_count, is_group, created_at, updated_at"

// FindOrCreate returns the open ticket for the contact+account pair, creating
// one when none exists. Concurrent resolutions for the same pair yield the
// same ticket: creation holds a per-key mutex and retries the lookup when the
// open-ticket unique index reports a race lost to another process.
func (s *Service) FindOrCreate(ctx context.Context, params FindOrCreateParams) (Ticket, error) {
	if s.pool == nil {
		return Ticket{}, fmt.Errorf("tickets pool not configured")
	}
	pgContactID, err := db.ParseUUID(params.ContactID)
	if err != nil {
		return Ticket{}, err
	}
	pgAccountID, err := db.ParseUUID(params.AccountID)
	if err != nil {
		return Ticket{}, err
	}

	unlock := s.creates.lock(params.ContactID + ":" + params.AccountID)
	defer unlock()

	ticket, err := s.findOpen(ctx, pgContactID, pgAccountID, params.UnreadCount)
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Ticket{}, fmt.Errorf("find open ticket: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tickets (contact_id, account_id, status, unread_count, is_group)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+ticketColumns,
		pgContactID, pgAccountID, StatusPending, params.UnreadCount, params.IsGroup,
	)
	ticket, err = scanTicket(row)
	if err == nil {
		return ticket, nil
	}
	if !db.IsUniqueViolation(err) {
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}

	// Another process created the open ticket between lookup and insert.
	ticket, err = s.findOpen(ctx, pgContactID, pgAccountID, params.UnreadCount)
	if err != nil {
		return Ticket{}, fmt.Errorf("find ticket after conflict: %w", err)
	}
	return ticket, nil
}

// findOpen fetches the open ticket for the pair and refreshes its unread
// counter in one round trip.
func (s *Service) findOpen(ctx context.Context, contactID, accountID pgtype.UUID, unread int) (Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tickets
		SET unread_count = $3, updated_at = now()
		WHERE contact_id = $1 AND account_id = $2 AND status <> 'closed'
		RETURNING `+ticketColumns,
		contactID, accountID, unread,
	)
	return scanTicket(row)
}

func (s *Service) GetByID(ctx context.Context, id string) (Ticket, error) {
	if s.pool == nil {
		return Ticket{}, fmt.Errorf("tickets pool not configured")
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Ticket{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, pgID)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ticket{}, ErrTicketNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// AssignQueue sets the ticket's queue only while no queue is assigned, so a
// concurrent human assignment is never clobbered. When force is set the
// assignment overwrites regardless; the menu-selection path uses this since
// the sender pre-selected the queue.
func (s *Service) AssignQueue(ctx context.Context, ticketID, queueID string, force bool) (Ticket, error) {
	if s.pool == nil {
		return Ticket{}, fmt.Errorf("tickets pool not configured")
	}
	pgTicketID, err := db.ParseUUID(ticketID)
	if err != nil {
		return Ticket{}, err
	}
	pgQueueID, err := db.ParseUUID(queueID)
	if err != nil {
		return Ticket{}, err
	}
	query := `
		UPDATE tickets SET queue_id = $2, updated_at = now()
		WHERE id = $1 AND queue_id IS NULL
		RETURNING ` + ticketColumns
	if force {
		query = `
		UPDATE tickets SET queue_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + ticketColumns
	}
	row := s.pool.QueryRow(ctx, query, pgTicketID, pgQueueID)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already assigned by someone else; return current state.
		return s.GetByID(ctx, ticketID)
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("assign queue: %w", err)
	}
	return ticket, nil
}

// UpdateLastMessage refreshes the conversation preview. Last write wins.
func (s *Service) UpdateLastMessage(ctx context.Context, ticketID, body string) error {
	if s.pool == nil {
		return fmt.Errorf("tickets pool not configured")
	}
	pgID, err := db.ParseUUID(ticketID)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `UPDATE tickets SET last_message = $2, updated_at = now() WHERE id = $1`, pgID, body); err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (Ticket, error) {
	var (
		id, contactID, accountID pgtype.UUID
		queueID, userID          pgtype.UUID
		status, lastMessage      string
		unreadCount              int
		isGroup                  bool
		createdAt, updatedAt     pgtype.Timestamptz
	)
	if err := row.Scan(&id, &contactID, &accountID, &queueID, &userID, &status, &lastMessage, &unreadCount, &isGroup, &createdAt, &updatedAt); err != nil {
		return Ticket{}, err
	}
	return Ticket{
		ID:          db.UUIDToString(id),
		ContactID:   db.UUIDToString(contactID),
		AccountID:   db.UUIDToString(accountID),
		QueueID:     uuidToPtr(queueID),
		UserID:      uuidToPtr(userID),
		Status:      status,
		LastMessage: lastMessage,
		UnreadCount: unreadCount,
		IsGroup:     isGroup,
		CreatedAt:   db.TimeFromPg(createdAt),
		UpdatedAt:   db.TimeFromPg(updatedAt),
	}, nil
}

func uuidToPtr(value pgtype.UUID) *string {
	if !value.Valid {
		return nil
	}
	s := db.UUIDToString(value)
	return &s
}

// keyedMutex hands out one mutex per key and frees it once no goroutine
// holds or waits on it.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu      sync.Mutex
	waiters int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = map[string]*keyedMutexEntry{}
	}
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedMutexEntry{}
		k.entries[key] = entry
	}
	entry.waiters++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.waiters--
		if entry.waiters == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
