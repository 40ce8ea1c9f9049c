package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const ticketColumns = `id, external_key, requester_id, technician_id, title, description,
               type, subtype, attachment_path, status, priority, support_level,
               active, recently_updated, updated_for_requester, updated_for_technician,
               conclusion, completion_date, created_at, updated_at`

// TicketRepository encapsulates ticket persistence. The workflow service
// only needs get-by-id, save-fields, targeted flag updates and an ordered
// filtered listing.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByStatus(ctx context.Context, status *domain.TicketStatus, limit, offset int) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context, status *domain.TicketStatus) (int, error)
	SetRecentlyUpdated(ctx context.Context, id string, recentlyUpdated bool) error
	SetNotificationFlags(ctx context.Context, id string, forRequester, forTechnician bool) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, requester_id, technician_id, title, description,
            type, subtype, attachment_path, status, priority, support_level, active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.RequesterID,
		ticket.TechnicianID,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Subtype,
		ticket.AttachmentPath,
		ticket.Status,
		ticket.Priority,
		ticket.SupportLevel,
		ticket.Active,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET technician_id=$1, title=$2, description=$3, type=$4, subtype=$5,
            attachment_path=$6, status=$7, priority=$8, support_level=$9, active=$10,
            recently_updated=$11, updated_for_requester=$12, updated_for_technician=$13,
            conclusion=$14, completion_date=$15, updated_at=$16
        WHERE id=$17`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.TechnicianID,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Subtype,
		ticket.AttachmentPath,
		ticket.Status,
		ticket.Priority,
		ticket.SupportLevel,
		ticket.Active,
		ticket.RecentlyUpdated,
		ticket.UpdatedForRequester,
		ticket.UpdatedForTechnician,
		ticket.Conclusion,
		ticket.CompletionDate,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(ticketFields(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByStatus(ctx context.Context, status *domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets`
	args := []any{}
	if status != nil {
		query += ` WHERE status=$1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`
	args = append(args, limit, offset)
	if status != nil {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountByStatus(ctx context.Context, status *domain.TicketStatus) (int, error) {
	var count int
	if status != nil {
		err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE status=$1`, *status).Scan(&count)
		return count, err
	}
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&count)
	return count, err
}

func (r *ticketRepository) SetRecentlyUpdated(ctx context.Context, id string, recentlyUpdated bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET recently_updated=$1 WHERE id=$2`, recentlyUpdated, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) SetNotificationFlags(ctx context.Context, id string, forRequester, forTechnician bool) error {
	const query = `UPDATE tickets SET updated_for_requester=$1, updated_for_technician=$2 WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, forRequester, forTechnician, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func ticketFields(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.RequesterID,
		&ticket.TechnicianID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Type,
		&ticket.Subtype,
		&ticket.AttachmentPath,
		&ticket.Status,
		&ticket.Priority,
		&ticket.SupportLevel,
		&ticket.Active,
		&ticket.RecentlyUpdated,
		&ticket.UpdatedForRequester,
		&ticket.UpdatedForTechnician,
		&ticket.Conclusion,
		&ticket.CompletionDate,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketFields(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
