// Package messages stores chat messages keyed by transport-native id.
package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatdesk/chatdesk/internal/db"
)

// ErrMessageNotFound is returned when a transport-native id does not resolve.
var ErrMessageNotFound = fmt.Errorf("message not found")

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "messages")),
	}
}

const messageColumns = "id, ticket_id, contact_id, body, media_url, media_type, from_me, read, ack, quoted_msg_id, created_at, updated_at"

// Upsert stores the message. Re-ingesting an id updates the existing row and
// never produces a duplicate.
func (s *Service) Upsert(ctx context.Context, m Message) (Message, error) {
	if s.pool == nil {
		return Message{}, fmt.Errorf("messages pool not configured")
	}
	if m.ID == "" {
		return Message{}, fmt.Errorf("message id is required")
	}
	pgTicketID, err := db.ParseUUID(m.TicketID)
	if err != nil {
		return Message{}, err
	}
	pgContactID := pgtype.UUID{}
	if m.ContactID != nil {
		pgContactID, err = db.ParseUUID(*m.ContactID)
		if err != nil {
			return Message{}, err
		}
	}
	quoted := pgtype.Text{}
	if m.QuotedMsgID != nil {
		quoted = pgtype.Text{String: *m.QuotedMsgID, Valid: true}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, ticket_id, contact_id, body, media_url, media_type, from_me, read, ack, quoted_msg_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET body = EXCLUDED.body,
		    media_url = EXCLUDED.media_url,
		    media_type = EXCLUDED.media_type,
		    read = EXCLUDED.read,
		    updated_at = now()
		RETURNING `+messageColumns,
		m.ID, pgTicketID, pgContactID, m.Body, m.MediaURL, m.MediaType, m.FromMe, m.Read, m.Ack, quoted,
	)
	stored, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("upsert message: %w", err)
	}
	return stored, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Message, error) {
	if s.pool == nil {
		return Message{}, fmt.Errorf("messages pool not configured")
	}
	row := s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// UpdateAck records a delivery-state change. Unknown ids return
// ErrMessageNotFound so the caller can treat them as a no-op.
func (s *Service) UpdateAck(ctx context.Context, id string, ack int) (Message, error) {
	if s.pool == nil {
		return Message{}, fmt.Errorf("messages pool not configured")
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE messages SET ack = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+messageColumns, id, ack)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("update ack: %w", err)
	}
	return m, nil
}

// ListByTicket returns the ticket's messages in chronological order.
func (s *Service) ListByTicket(ctx context.Context, ticketID string, limit int32) ([]Message, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("messages pool not configured")
	}
	pgTicketID, err := db.ParseUUID(ticketID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE ticket_id = $1
		ORDER BY created_at
		LIMIT $2`, pgTicketID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		id                        string
		ticketID, contactID       pgtype.UUID
		body, mediaURL, mediaType string
		fromMe, read              bool
		ack                       int
		quoted                    pgtype.Text
		createdAt, updatedAt      pgtype.Timestamptz
	)
	if err := row.Scan(&id, &ticketID, &contactID, &body, &mediaURL, &mediaType, &fromMe, &read, &ack, &quoted, &createdAt, &updatedAt); err != nil {
		return Message{}, err
	}
	m := Message{
		ID:        id,
		TicketID:  db.UUIDToString(ticketID),
		Body:      body,
		MediaURL:  mediaURL,
		MediaType: mediaType,
		FromMe:    fromMe,
		Read:      read,
		Ack:       ack,
		CreatedAt: db.TimeFromPg(createdAt),
		UpdatedAt: db.TimeFromPg(updatedAt),
	}
	if contactID.Valid {
		s := db.UUIDToString(contactID)
		m.ContactID = &s
	}
	if quoted.Valid {
		s := quoted.String
		m.QuotedMsgID = &s
	}
	return m, nil
}
