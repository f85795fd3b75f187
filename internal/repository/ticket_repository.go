package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// ClaimOutcome reports the result of a conditional claim update.
type ClaimOutcome int

const (
	ClaimWon ClaimOutcome = iota
	ClaimLost
	ClaimNotFound
)

// StatusChange describes a guarded status transition. From lists the
// statuses the row must currently be in for the update to apply; the single
// UPDATE ... WHERE status = ANY(from) is what linearizes concurrent
// transitions on one ticket.
type StatusChange struct {
	To          domain.TicketStatus
	From        []domain.TicketStatus
	EscalatedTo *string
	ArchivedBy  *string
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error)
	AttachChannel(ctx context.Context, id, channelRef string) error
	Claim(ctx context.Context, tenantID, id, staffID string) (ClaimOutcome, *domain.Ticket, error)
	ApplyTransition(ctx context.Context, tenantID, id string, change StatusChange) (*domain.Ticket, error)
	ListOpenIDs(ctx context.Context, tenantID string) ([]string, error)
	ListTenantsWithActive(ctx context.Context) ([]string, error)
	ListIdleCandidates(ctx context.Context, tenantID string, olderThan time.Time) ([]domain.Ticket, error)
	CountByStatus(ctx context.Context, tenantID string, since *time.Time) (map[domain.TicketStatus]int, error)
	AverageCycleSeconds(ctx context.Context, tenantID string, since *time.Time) (*float64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, tenant_id, requester_id, display_name, description, status,
       channel_ref, claimed_by, claimed_at, escalated_to, archived_at, archived_by,
       closed_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (tenant_id, requester_id, display_name, description, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.RequesterID,
		ticket.DisplayName,
		ticket.Description,
		ticket.Status,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE tenant_id=$1 AND id=$2`
	row := r.pool.QueryRow(ctx, query, tenantID, id)
	return scanTicket(row)
}

// AttachChannel records the transport channel reference. Best-effort from
// the caller's perspective: a failure here never fails ticket creation.
func (r *ticketRepository) AttachChannel(ctx context.Context, id, channelRef string) error {
	const query = `UPDATE tickets SET channel_ref=$2 WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id, channelRef)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Claim performs the atomic conditional OPEN->CLAIMED update. Exactly one
// of N concurrent attempts matches the WHERE clause; losers observe a row
// that is no longer claimable and get ClaimLost.
func (r *ticketRepository) Claim(ctx context.Context, tenantID, id, staffID string) (ClaimOutcome, *domain.Ticket, error) {
	query := `
        UPDATE tickets
        SET status=$4, claimed_by=$3, claimed_at=NOW(), updated_at=NOW()
        WHERE tenant_id=$1 AND id=$2 AND status=$5 AND claimed_by IS NULL
        RETURNING ` + ticketColumns
	row := r.pool.QueryRow(ctx, query, tenantID, id, staffID,
		domain.TicketStatusClaimed, domain.TicketStatusOpen)
	ticket, err := scanTicket(row)
	if err == nil {
		return ClaimWon, ticket, nil
	}
	if err != pgx.ErrNoRows {
		return ClaimNotFound, nil, err
	}

	existing, err := r.GetByID(ctx, tenantID, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ClaimNotFound, nil, nil
		}
		return ClaimNotFound, nil, err
	}
	return ClaimLost, existing, nil
}

func (r *ticketRepository) ApplyTransition(ctx context.Context, tenantID, id string, change StatusChange) (*domain.Ticket, error) {
	set := `status=$3, updated_at=NOW()`
	args := []any{tenantID, id, change.To}
	switch change.To {
	case domain.TicketStatusClosed:
		set += `, closed_at=NOW()`
	case domain.TicketStatusArchived:
		args = append(args, change.ArchivedBy)
		set += `, archived_at=NOW(), archived_by=$4`
	case domain.TicketStatusEscalated:
		args = append(args, change.EscalatedTo)
		set += `, escalated_to=$4`
	}

	from := make([]string, 0, len(change.From))
	for _, status := range change.From {
		from = append(from, string(status))
	}
	args = append(args, from)

	query := `UPDATE tickets SET ` + set + `
        WHERE tenant_id=$1 AND id=$2 AND status = ANY($` + strconv.Itoa(len(args)) + `)
        RETURNING ` + ticketColumns
	row := r.pool.QueryRow(ctx, query, args...)
	return scanTicket(row)
}

func (r *ticketRepository) ListOpenIDs(ctx context.Context, tenantID string) ([]string, error) {
	const query = `
        SELECT id FROM tickets
        WHERE tenant_id=$1 AND status NOT IN ($2,$3)
        ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, tenantID,
		domain.TicketStatusClosed, domain.TicketStatusArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ticketRepository) ListTenantsWithActive(ctx context.Context) ([]string, error) {
	const query = `
        SELECT DISTINCT tenant_id FROM tickets
        WHERE status = ANY($1)
        ORDER BY tenant_id`
	rows, err := r.pool.Query(ctx, query, statusStrings(domain.ActiveStatuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

func (r *ticketRepository) ListIdleCandidates(ctx context.Context, tenantID string, olderThan time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE tenant_id=$1 AND status = ANY($2) AND updated_at < $3
        ORDER BY updated_at`
	rows, err := r.pool.Query(ctx, query, tenantID, statusStrings(domain.ActiveStatuses), olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountByStatus(ctx context.Context, tenantID string, since *time.Time) (map[domain.TicketStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM tickets WHERE tenant_id=$1`
	args := []any{tenantID}
	if since != nil {
		args = append(args, *since)
		query += ` AND created_at >= $2`
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var status domain.TicketStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// AverageCycleSeconds averages closed_at-created_at over tickets that have
// actually closed. Archived tickets keep their closed_at and stay counted.
func (r *ticketRepository) AverageCycleSeconds(ctx context.Context, tenantID string, since *time.Time) (*float64, error) {
	query := `
        SELECT AVG(EXTRACT(EPOCH FROM closed_at - created_at))
        FROM tickets
        WHERE tenant_id=$1 AND closed_at IS NOT NULL`
	args := []any{tenantID}
	if since != nil {
		args = append(args, *since)
		query += ` AND closed_at >= $2`
	}

	var avg *float64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&avg); err != nil {
		return nil, err
	}
	return avg, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TenantID,
		&ticket.RequesterID,
		&ticket.DisplayName,
		&ticket.Description,
		&ticket.Status,
		&ticket.ChannelRef,
		&ticket.ClaimedBy,
		&ticket.ClaimedAt,
		&ticket.EscalatedTo,
		&ticket.ArchivedAt,
		&ticket.ArchivedBy,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
