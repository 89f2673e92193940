// Package queues reads queue configuration. Management of queues happens
// outside this service; the engine only consumes them, fresh at evaluation
// time.
package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

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
		logger: log.With(slog.String("service", "queues")),
	}
}

const queueColumns = "id, name, color, greeting_message, absence_message, start_work, end_work, work_days, created_at, updated_at"

func (s *Service) GetByID(ctx context.Context, id string) (Queue, error) {
	if s.pool == nil {
		return Queue{}, fmt.Errorf("queues pool not configured")
	}
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Queue{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queues WHERE id = $1`, pgID)
	queue, err := scanQueue(row)
	if err != nil {
		return Queue{}, fmt.Errorf("get queue: %w", err)
	}
	return queue, nil
}

// ListByAccount returns the account's queues in configured order. The
// position in the returned slice is the menu's 1-based index minus one.
func (s *Service) ListByAccount(ctx context.Context, accountID string) ([]Queue, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("queues pool not configured")
	}
	pgAccountID, err := db.ParseUUID(accountID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+prefixedQueueColumns("q")+`
		FROM queues q
		JOIN account_queues aq ON aq.queue_id = q.id
		WHERE aq.account_id = $1
		ORDER BY aq.position`, pgAccountID)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var items []Queue
	for rows.Next() {
		queue, err := scanQueue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		items = append(items, queue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return items, nil
}

func prefixedQueueColumns(alias string) string {
	return alias + ".id, " + alias + ".name, " + alias + ".color, " +
		alias + ".greeting_message, " + alias + ".absence_message, " +
		alias + ".start_work, " + alias + ".end_work, " + alias + ".work_days, " +
		alias + ".created_at, " + alias + ".updated_at"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueue(row rowScanner) (Queue, error) {
	var (
		id                   pgtype.UUID
		name, color          string
		greeting, absence    string
		startWork, endWork   pgtype.Text
		workDaysRaw          []byte
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &name, &color, &greeting, &absence, &startWork, &endWork, &workDaysRaw, &createdAt, &updatedAt); err != nil {
		return Queue{}, err
	}
	workDays, err := decodeWorkDays(workDaysRaw)
	if err != nil {
		return Queue{}, err
	}
	return Queue{
		ID:              db.UUIDToString(id),
		Name:            name,
		Color:           color,
		GreetingMessage: greeting,
		AbsenceMessage:  absence,
		StartWork:       textToPtr(startWork),
		EndWork:         textToPtr(endWork),
		WorkDays:        workDays,
		CreatedAt:       db.TimeFromPg(createdAt),
		UpdatedAt:       db.TimeFromPg(updatedAt),
	}, nil
}

func textToPtr(value pgtype.Text) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

// decodeWorkDays unmarshals the jsonb weekday map. Keys are weekday indexes
// serialized as strings; unknown keys are skipped rather than failing the row.
func decodeWorkDays(raw []byte) (map[int]bool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var byName map[string]bool
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("decode work days: %w", err)
	}
	if len(byName) == 0 {
		return nil, nil
	}
	days := make(map[int]bool, len(byName))
	for key, open := range byName {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx > 6 {
			continue
		}
		days[idx] = open
	}
	return days, nil
}
