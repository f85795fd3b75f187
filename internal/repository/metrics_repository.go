package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// MetricsRepository appends metrics snapshots. Rows are never mutated.
type MetricsRepository interface {
	Insert(ctx context.Context, snapshot *domain.MetricsSnapshot) error
	ListRecent(ctx context.Context, scope string, limit int) ([]domain.MetricsSnapshot, error)
}

type metricsRepository struct {
	pool *pgxpool.Pool
}

// NewMetricsRepository instantiates repository.
func NewMetricsRepository(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepository{pool: pool}
}

func (r *metricsRepository) Insert(ctx context.Context, snapshot *domain.MetricsSnapshot) error {
	countsJSON, err := json.Marshal(snapshot.Counts)
	if err != nil {
		return err
	}
	var topicJSON []byte
	if snapshot.Topic != nil {
		topicJSON, err = json.Marshal(snapshot.Topic)
		if err != nil {
			return err
		}
	}

	const query = `
        INSERT INTO ticket_metrics (scope, counts_json, average_cycle_seconds, triggered_by, topic_json)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		snapshot.Scope,
		countsJSON,
		snapshot.AverageCycleSeconds,
		snapshot.TriggeredBy,
		topicJSON,
	).Scan(&snapshot.ID, &snapshot.CreatedAt)
}

func (r *metricsRepository) ListRecent(ctx context.Context, scope string, limit int) ([]domain.MetricsSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
        SELECT id, scope, counts_json, average_cycle_seconds, triggered_by, topic_json, created_at
        FROM ticket_metrics
        WHERE scope=$1
        ORDER BY created_at DESC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, scope, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MetricsSnapshot
	for rows.Next() {
		var snapshot domain.MetricsSnapshot
		var countsJSON []byte
		var topicJSON []byte
		if err := rows.Scan(
			&snapshot.ID,
			&snapshot.Scope,
			&countsJSON,
			&snapshot.AverageCycleSeconds,
			&snapshot.TriggeredBy,
			&topicJSON,
			&snapshot.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(countsJSON, &snapshot.Counts); err != nil {
			return nil, err
		}
		if len(topicJSON) > 0 {
			var topic domain.TopicRef
			if err := json.Unmarshal(topicJSON, &topic); err != nil {
				return nil, err
			}
			snapshot.Topic = &topic
		}
		result = append(result, snapshot)
	}
	return result, rows.Err()
}
