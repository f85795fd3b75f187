package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// TopicRepository persists closing summaries and accepted FAQ candidates.
type TopicRepository interface {
	InsertSummary(ctx context.Context, summary *domain.TopicSummary) error
	SummaryByTicket(ctx context.Context, ticketID string) (*domain.TopicSummary, error)
	CountByKeySince(ctx context.Context, tenantID, similarityKey string, since time.Time) (int, error)
	ClaimProposal(ctx context.Context, tenantID, similarityKey string, window time.Duration) (bool, error)
	LatestSummaryForKey(ctx context.Context, tenantID, similarityKey string) (string, error)
	TopKeysSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.TopicCount, error)
	InsertFaqCandidate(ctx context.Context, candidate *domain.FaqCandidate) error
	ListFaqCandidates(ctx context.Context, tenantID string, limit int) ([]domain.FaqCandidate, error)
}

type topicRepository struct {
	pool *pgxpool.Pool
}

// NewTopicRepository instantiates repository.
func NewTopicRepository(pool *pgxpool.Pool) TopicRepository {
	return &topicRepository{pool: pool}
}

// InsertSummary writes one immutable summary row. The unique ticket_id
// constraint enforces at most one summary per ticket.
func (r *topicRepository) InsertSummary(ctx context.Context, summary *domain.TopicSummary) error {
	const query = `
        INSERT INTO topic_summaries (tenant_id, ticket_id, summary, similarity_key)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id) DO NOTHING
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		summary.TenantID,
		summary.TicketID,
		summary.SummaryText,
		summary.SimilarityKey,
	).Scan(&summary.ID, &summary.CreatedAt)
	return err
}

func (r *topicRepository) SummaryByTicket(ctx context.Context, ticketID string) (*domain.TopicSummary, error) {
	const query = `
        SELECT id, tenant_id, ticket_id, summary, similarity_key, created_at
        FROM topic_summaries
        WHERE ticket_id=$1`
	var summary domain.TopicSummary
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&summary.ID,
		&summary.TenantID,
		&summary.TicketID,
		&summary.SummaryText,
		&summary.SimilarityKey,
		&summary.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *topicRepository) CountByKeySince(ctx context.Context, tenantID, similarityKey string, since time.Time) (int, error) {
	const query = `
        SELECT COUNT(*) FROM topic_summaries
        WHERE tenant_id=$1 AND similarity_key=$2 AND created_at >= $3`
	var count int
	err := r.pool.QueryRow(ctx, query, tenantID, similarityKey, since).Scan(&count)
	return count, err
}

// ClaimProposal atomically claims the right to propose a key. The upsert
// succeeds for the first caller per key and window; concurrent callers and
// later occurrences inside the window observe no row and back off. This is
// what makes the threshold crossing fire exactly once even when racing
// closes both count past it.
func (r *topicRepository) ClaimProposal(ctx context.Context, tenantID, similarityKey string, window time.Duration) (bool, error) {
	const query = `
        INSERT INTO topic_proposals (tenant_id, similarity_key)
        VALUES ($1,$2)
        ON CONFLICT (tenant_id, similarity_key)
        DO UPDATE SET proposed_at = NOW()
        WHERE topic_proposals.proposed_at < NOW() - make_interval(secs => $3)
        RETURNING proposed_at`
	var proposedAt time.Time
	err := r.pool.QueryRow(ctx, query, tenantID, similarityKey, window.Seconds()).Scan(&proposedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *topicRepository) LatestSummaryForKey(ctx context.Context, tenantID, similarityKey string) (string, error) {
	const query = `
        SELECT summary FROM topic_summaries
        WHERE tenant_id=$1 AND similarity_key=$2
        ORDER BY created_at DESC
        LIMIT 1`
	var summary string
	err := r.pool.QueryRow(ctx, query, tenantID, similarityKey).Scan(&summary)
	return summary, err
}

func (r *topicRepository) TopKeysSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.TopicCount, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
        SELECT similarity_key, COUNT(*) AS occurrences,
               (ARRAY_AGG(summary ORDER BY created_at DESC))[1] AS latest
        FROM topic_summaries
        WHERE tenant_id=$1 AND created_at >= $2
        GROUP BY similarity_key
        ORDER BY occurrences DESC, similarity_key
        LIMIT $3`
	rows, err := r.pool.Query(ctx, query, tenantID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TopicCount
	for rows.Next() {
		var entry domain.TopicCount
		if err := rows.Scan(&entry.SimilarityKey, &entry.Count, &entry.LatestSummary); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *topicRepository) InsertFaqCandidate(ctx context.Context, candidate *domain.FaqCandidate) error {
	const query = `
        INSERT INTO faq_candidates (tenant_id, similarity_key, summary, created_by)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		candidate.TenantID,
		candidate.SimilarityKey,
		candidate.SummaryText,
		candidate.ProposedBy,
	).Scan(&candidate.ID, &candidate.CreatedAt)
}

func (r *topicRepository) ListFaqCandidates(ctx context.Context, tenantID string, limit int) ([]domain.FaqCandidate, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, tenant_id, similarity_key, summary, created_by, created_at
        FROM faq_candidates
        WHERE tenant_id=$1
        ORDER BY created_at DESC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.FaqCandidate
	for rows.Next() {
		var candidate domain.FaqCandidate
		if err := rows.Scan(
			&candidate.ID,
			&candidate.TenantID,
			&candidate.SimilarityKey,
			&candidate.SummaryText,
			&candidate.ProposedBy,
			&candidate.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, candidate)
	}
	return result, rows.Err()
}
