package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/platform"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/tenant"
	"github.com/spec-kit/ticket-lifecycle/internal/topickey"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

const (
	// ProposalThreshold is the same-key occurrence count that triggers a
	// FAQ proposal. Exactly one proposal fires, at the moment the count
	// reaches the threshold inside the trailing window.
	ProposalThreshold = 3

	// clusterWindow is the trailing period over which same-key summaries
	// are counted toward a proposal.
	clusterWindow = 7 * 24 * time.Hour

	// reportingWindow backs the top-keys read path.
	reportingWindow = 30 * 24 * time.Hour

	summaryPreviewLen = 120
)

// TopicService detects recurring support topics from closing summaries and
// proposes knowledge-base entries. Proposals only ever reach staff as a
// notification; persisting a FaqCandidate requires explicit acceptance.
type TopicService struct {
	topics     repository.TopicRepository
	summarizer platform.Summarizer
	notifier   platform.Notifier
	tenants    tenant.ConfigProvider
	staff      tenant.StaffDirectory
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TopicDependencies bundles collaborators for the topic service.
type TopicDependencies struct {
	TopicRepo  repository.TopicRepository
	Summarizer platform.Summarizer
	Notifier   platform.Notifier
	Tenants    tenant.ConfigProvider
	Staff      tenant.StaffDirectory
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewTopicService constructs the service.
func NewTopicService(deps TopicDependencies) *TopicService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TopicService{
		topics:     deps.TopicRepo,
		summarizer: deps.Summarizer,
		notifier:   deps.Notifier,
		tenants:    deps.Tenants,
		staff:      deps.Staff,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        now,
	}
}

// RegisterHandlers subscribes the clustering pipeline to ticket closes.
func (s *TopicService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventTicketClosed, s.handleTicketClosed)
}

// handleTicketClosed runs the summarize -> key -> persist -> threshold
// pipeline for one closed ticket. Every step degrades independently: a
// summarizer failure or empty summary simply means no topic row for this
// ticket, never a failed close.
func (s *TopicService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok || payload.ChannelRef == nil {
		return nil
	}

	summary, err := s.summarizer.Summarize(ctx, *payload.ChannelRef)
	if err != nil {
		s.logger.Warn("summarizer failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return nil
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil
	}

	key := topickey.Key(summary)
	if key == "" {
		return nil
	}

	record := &domain.TopicSummary{
		TenantID:      event.TenantID,
		TicketID:      event.TicketID,
		SummaryText:   summary,
		SimilarityKey: key,
	}
	if err := s.topics.InsertSummary(ctx, record); err != nil {
		// a second close event for the same ticket hits the unique
		// constraint; that is the at-most-once-per-ticket guarantee working
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	count, err := s.topics.CountByKeySince(ctx, event.TenantID, key, s.now().Add(-clusterWindow))
	if err != nil {
		return err
	}
	// racing closes can both insert before either counts, so the count may
	// skip past the threshold; the claim row decides which observer fires
	// the single proposal for this window
	if count >= ProposalThreshold {
		claimed, err := s.topics.ClaimProposal(ctx, event.TenantID, key, clusterWindow)
		if err != nil {
			return err
		}
		if claimed {
			s.propose(ctx, event.TenantID, key, count, summary)
		}
	}
	return nil
}

// propose notifies the tenant's staff surface about a repeated pattern.
// Only a human acting on the proposal persists a FaqCandidate.
func (s *TopicService) propose(ctx context.Context, tenantID, key string, count int, fallbackSummary string) {
	// the triggering close is not necessarily the newest row for the key
	latest, err := s.topics.LatestSummaryForKey(ctx, tenantID, key)
	if err != nil {
		latest = fallbackSummary
	}
	preview := stringPreview(latest, summaryPreviewLen)
	settings := s.tenants.Settings(ctx, tenantID)
	if settings.StaffChannel != "" {
		content := "Repeated support topic detected (" + key + ", " +
			strconv.Itoa(count) + " occurrences in 7 days): " + preview
		if err := s.notifier.Notify(ctx, settings.StaffChannel, content); err != nil {
			s.logger.Warn("faq proposal notification failed",
				zap.String("tenant_id", tenantID),
				zap.String("similarity_key", key), zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:     events.EventFaqProposed,
			TenantID: tenantID,
			Actor:    domain.SystemActor,
			Payload: events.FaqProposedPayload{
				SimilarityKey:  key,
				Occurrences:    count,
				SummaryPreview: preview,
			},
		})
	}
}

// AcceptFaqCandidate persists a FAQ candidate on explicit staff
// acceptance. This is the only code path that writes faq_candidates.
func (s *TopicService) AcceptFaqCandidate(ctx context.Context, tenantID, similarityKey, summary string, actor domain.Actor) (*domain.FaqCandidate, error) {
	if actor.ID == "" {
		return nil, apperrors.NewUnauthorized("actor identity required")
	}
	if !s.staff.IsStaff(ctx, actor, tenantID) {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if strings.TrimSpace(similarityKey) == "" {
		return nil, apperrors.NewValidationError("similarity_key required", nil)
	}

	candidate := &domain.FaqCandidate{
		TenantID:      tenantID,
		SimilarityKey: similarityKey,
		SummaryText:   strings.TrimSpace(summary),
		ProposedBy:    actor.ID,
	}
	if err := s.topics.InsertFaqCandidate(ctx, candidate); err != nil {
		return nil, apperrors.MapError(err)
	}
	return candidate, nil
}

// TopKeys returns the most frequent similarity keys over the trailing
// 30-day reporting window.
func (s *TopicService) TopKeys(ctx context.Context, tenantID string, limit int) ([]domain.TopicCount, error) {
	counts, err := s.topics.TopKeysSince(ctx, tenantID, s.now().Add(-reportingWindow), limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return counts, nil
}

// FaqCandidates lists accepted candidates for a tenant.
func (s *TopicService) FaqCandidates(ctx context.Context, tenantID string, limit int) ([]domain.FaqCandidate, error) {
	candidates, err := s.topics.ListFaqCandidates(ctx, tenantID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return candidates, nil
}
