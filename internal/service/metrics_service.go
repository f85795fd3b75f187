package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// MetricsService appends metrics snapshots on every close and on explicit
// stats requests. Snapshot persistence is strictly best-effort: a failure
// is logged and swallowed, never surfaced to the triggering operation.
type MetricsService struct {
	tickets    repository.TicketRepository
	metrics    repository.MetricsRepository
	topics     repository.TopicRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// MetricsDependencies bundles collaborators for the metrics service.
type MetricsDependencies struct {
	TicketRepo  repository.TicketRepository
	MetricsRepo repository.MetricsRepository
	TopicRepo   repository.TopicRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewMetricsService constructs the service.
func NewMetricsService(deps MetricsDependencies) *MetricsService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &MetricsService{
		tickets:    deps.TicketRepo,
		metrics:    deps.MetricsRepo,
		topics:     deps.TopicRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        now,
	}
}

// RegisterHandlers subscribes the recorder to ticket closes.
func (s *MetricsService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventTicketClosed, s.handleTicketClosed)
}

func (s *MetricsService) handleTicketClosed(ctx context.Context, event events.Event) error {
	var topic *domain.TopicRef
	if summary, err := s.topics.SummaryByTicket(ctx, event.TicketID); err == nil {
		topic = &domain.TopicRef{
			SimilarityKey:  summary.SimilarityKey,
			SummaryPreview: stringPreview(summary.SummaryText, 120),
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Debug("topic lookup for snapshot failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
	}
	s.record(ctx, event.TenantID, string(event.Actor.Kind)+":"+event.Actor.ID, topic)
	return nil
}

// record captures and appends one snapshot, swallowing persistence errors.
func (s *MetricsService) record(ctx context.Context, tenantID, triggeredBy string, topic *domain.TopicRef) {
	counts, err := s.tickets.CountByStatus(ctx, tenantID, nil)
	if err != nil {
		s.logger.Warn("metrics snapshot count failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	avg, err := s.tickets.AverageCycleSeconds(ctx, tenantID, nil)
	if err != nil {
		s.logger.Warn("metrics snapshot average failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}

	snapshot := &domain.MetricsSnapshot{
		Scope:               tenantID,
		Counts:              counts,
		AverageCycleSeconds: avg,
		TriggeredBy:         triggeredBy,
		Topic:               topic,
	}
	if err := s.metrics.Insert(ctx, snapshot); err != nil {
		s.logger.Warn("metrics snapshot insert failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// RecentSnapshots lists the newest appended snapshots for a tenant.
func (s *MetricsService) RecentSnapshots(ctx context.Context, tenantID string, limit int) ([]domain.MetricsSnapshot, error) {
	snapshots, err := s.metrics.ListRecent(ctx, tenantID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return snapshots, nil
}

// Stats answers an explicit stats request with the live view and appends a
// snapshot attributed to the requesting actor.
func (s *MetricsService) Stats(ctx context.Context, tenantID string, window domain.StatsWindow, actor domain.Actor) (*domain.StatsView, error) {
	since := window.Since(s.now())

	counts, err := s.tickets.CountByStatus(ctx, tenantID, since)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	openIDs, err := s.tickets.ListOpenIDs(ctx, tenantID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	avg, err := s.tickets.AverageCycleSeconds(ctx, tenantID, since)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.record(ctx, tenantID, string(actor.Kind)+":"+actor.ID, nil)

	return &domain.StatsView{
		TenantID:            tenantID,
		Window:              window,
		Counts:              counts,
		OpenTicketIDs:       openIDs,
		AverageCycleSeconds: avg,
	}, nil
}
