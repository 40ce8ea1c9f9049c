package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// HistoryRepository stores audit entries. Entries are append-only.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.HistoryEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.HistoryEntry, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository builds repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, message, author_id)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.Message,
		entry.AuthorID,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *historyRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.HistoryEntry, error) {
	const query = `
        SELECT id, ticket_id, message, author_id, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.HistoryEntry
	for rows.Next() {
		var entry domain.HistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Message,
			&entry.AuthorID,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
