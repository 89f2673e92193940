// Package contacts materializes chat peers in PostgreSQL.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatdesk/chatdesk/internal/db"
)

type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "contacts")),
	}
}

const contactColumns = "id, number, name, avatar_url, is_group, created_at, updated_at"

// Upsert creates the contact on first sighting and refreshes its profile
// fields on later ones. Concurrent upserts for the same number resolve to a
// single row through the unique number constraint.
func (s *Service) Upsert(ctx context.Context, params UpsertParams) (Contact, error) {
	if s.pool == nil {
		return Contact{}, fmt.Errorf("contacts pool not configured")
	}
	number := strings.TrimSpace(params.Number)
	if number == "" {
		return Contact{}, fmt.Errorf("contact number is required")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (number, name, avatar_url, is_group)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (number) DO UPDATE
		SET name = EXCLUDED.name, avatar_url = EXCLUDED.avatar_url, updated_at = now()
		RETURNING `+contactColumns,
		number, strings.TrimSpace(params.Name), params.AvatarURL, params.IsGroup,
	)
	contact, err := scanContact(row)
	if err != nil {
		return Contact{}, fmt.Errorf("upsert contact: %w", err)
	}
	return contact, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Contact, error) {
	if s.pool == nil {
		return Contact{}, fmt.Errorf("contacts pool not configured")
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, pgID)
	contact, err := scanContact(row)
	if err != nil {
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (Contact, error) {
	if s.pool == nil {
		return Contact{}, fmt.Errorf("contacts pool not configured")
	}
	row := s.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE number = $1`, strings.TrimSpace(number))
	contact, err := scanContact(row)
	if err != nil {
		return Contact{}, fmt.Errorf("get contact by number: %w", err)
	}
	return contact, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (Contact, error) {
	var (
		id                   pgtype.UUID
		number, name, avatar string
		isGroup              bool
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &number, &name, &avatar, &isGroup, &createdAt, &updatedAt); err != nil {
		return Contact{}, err
	}
	return Contact{
		ID:        db.UUIDToString(id),
		Number:    number,
		Name:      name,
		AvatarURL: avatar,
		IsGroup:   isGroup,
		CreatedAt: db.TimeFromPg(createdAt),
		UpdatedAt: db.TimeFromPg(updatedAt),
	}, nil
}
