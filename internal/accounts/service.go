// Package accounts reads transport account configuration.
package accounts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatdesk/chatdesk/internal/db"
	"github.com/chatdesk/chatdesk/internal/queues"
)

type Service struct {
	pool   *pgxpool.Pool
	queues *queues.Service
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool, queueService *queues.Service) *Service {
	return &Service{
		pool:   pool,
		queues: queueService,
		logger: log.With(slog.String("service", "accounts")),
	}
}

const accountColumns = "id, name, status, greeting_message, farewell_message, created_at, updated_at"

func (s *Service) GetByID(ctx context.Context, id string) (Account, error) {
	if s.pool == nil {
		return Account{}, fmt.Errorf("accounts pool not configured")
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Account{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, pgID)
	account, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// GetWithQueues loads the account and its queues in menu order. Read fresh on
// every call; schedule and greeting changes apply to the next message.
func (s *Service) GetWithQueues(ctx context.Context, id string) (Account, []queues.Queue, error) {
	account, err := s.GetByID(ctx, id)
	if err != nil {
		return Account{}, nil, err
	}
	if s.queues == nil {
		return account, nil, nil
	}
	queueList, err := s.queues.ListByAccount(ctx, id)
	if err != nil {
		return Account{}, nil, fmt.Errorf("account queues: %w", err)
	}
	return account, queueList, nil
}

// SetStatus records the transport connection state (e.g. CONNECTED).
func (s *Service) SetStatus(ctx context.Context, id, status string) error {
	if s.pool == nil {
		return fmt.Errorf("accounts pool not configured")
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `UPDATE accounts SET status = $2, updated_at = now() WHERE id = $1`, pgID, status); err != nil {
		return fmt.Errorf("set account status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		id                   pgtype.UUID
		name, status         string
		greeting, farewell   string
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &name, &status, &greeting, &farewell, &createdAt, &updatedAt); err != nil {
		return Account{}, err
	}
	return Account{
		ID:              db.UUIDToString(id),
		Name:            name,
		Status:          status,
		GreetingMessage: greeting,
		FarewellMessage: farewell,
		CreatedAt:       db.TimeFromPg(createdAt),
		UpdatedAt:       db.TimeFromPg(updatedAt),
	}, nil
}
