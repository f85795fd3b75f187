package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/platform"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/tenant"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// TicketService owns the ticket state machine. Every transition is a
// single guarded UPDATE in the store, so correctness holds across
// replicated serving instances without in-process locking.
type TicketService struct {
	tickets    repository.TicketRepository
	staff      tenant.StaffDirectory
	channels   platform.ChannelManager
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Staff      tenant.StaffDirectory
	Channels   platform.ChannelManager
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		staff:      deps.Staff,
		channels:   deps.Channels,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Create opens a ticket for a requester. Creation needs only a valid
// requester identity; it is the one operation without a staff check. A
// store failure is surfaced, never swallowed.
func (s *TicketService) Create(ctx context.Context, tenantID string, actor domain.Actor, displayName, description string) (*domain.Ticket, error) {
	if actor.ID == "" {
		return nil, apperrors.NewUnauthorized("requester identity required")
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperrors.NewValidationError("tenant_id required", nil)
	}

	ticket := &domain.Ticket{
		TenantID:    tenantID,
		RequesterID: actor.ID,
		DisplayName: strings.TrimSpace(displayName),
		Description: strings.TrimSpace(description),
		Status:      domain.TicketStatusOpen,
	}
	if ticket.DisplayName == "" {
		ticket.DisplayName = "support request"
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	// channel provisioning is best-effort: the ticket exists even when the
	// transport channel could not be attached
	if ref, err := s.channels.Provision(ctx, tenantID, ticket.ID); err != nil {
		s.logger.Warn("channel provisioning failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	} else if err := s.tickets.AttachChannel(ctx, ticket.ID, ref); err != nil {
		s.logger.Warn("channel attach failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("channel_ref", ref), zap.Error(err))
	} else {
		ticket.ChannelRef = &ref
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TenantID: tenantID,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			RequesterID: ticket.RequesterID,
			DisplayName: ticket.DisplayName,
			ChannelRef:  ticket.ChannelRef,
		},
	})
	return ticket, nil
}

// Claim attempts the OPEN->CLAIMED transition for a staff actor. Exactly
// one of any number of concurrent attempts wins; every loser receives a
// CLAIM_LOST error rather than a generic conflict.
func (s *TicketService) Claim(ctx context.Context, tenantID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	if err := s.requireStaff(ctx, actor, tenantID); err != nil {
		return nil, err
	}

	outcome, ticket, err := s.tickets.Claim(ctx, tenantID, ticketID, actor.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	switch outcome {
	case repository.ClaimWon:
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketClaimed,
			TenantID: tenantID,
			TicketID: ticket.ID,
			Actor:    actor,
			Payload:  events.TicketClaimedPayload{ClaimedBy: actor.ID},
		})
		return ticket, nil
	case repository.ClaimLost:
		return nil, apperrors.NewClaimLost(ticketID)
	default:
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
}

// Close transitions a ticket to CLOSED and kicks off the best-effort
// summary/clustering/metrics pipeline. Closing an already-closed ticket is
// rejected without touching updated_at.
func (s *TicketService) Close(ctx context.Context, tenantID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	if err := s.requireStaff(ctx, actor, tenantID); err != nil {
		return nil, err
	}
	return s.close(ctx, tenantID, ticketID, actor, false)
}

// AutoClose is the sweep's force-close: system actor, channel renamed to
// mark the automatic closure, same pipeline as a manual close.
func (s *TicketService) AutoClose(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	return s.close(ctx, tenantID, ticketID, domain.SystemActor, true)
}

func (s *TicketService) close(ctx context.Context, tenantID, ticketID string, actor domain.Actor, renameChannel bool) (*domain.Ticket, error) {
	sources := domain.TransitionSources(domain.TicketStatusClosed)
	ticket, err := s.tickets.ApplyTransition(ctx, tenantID, ticketID, repository.StatusChange{
		To:   domain.TicketStatusClosed,
		From: sources,
	})
	if err != nil {
		return nil, s.transitionFailure(ctx, tenantID, ticketID, domain.TicketStatusClosed, err)
	}

	// requester writes are disabled from here; read access is retained
	if ticket.ChannelRef != nil {
		if err := s.channels.Lock(ctx, *ticket.ChannelRef); err != nil {
			s.logger.Warn("channel lock failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		if renameChannel {
			if err := s.channels.Rename(ctx, *ticket.ChannelRef, "closed-"+ticket.DisplayName); err != nil {
				s.logger.Warn("channel rename failed",
					zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TenantID: tenantID,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketClosedPayload{
			ChannelRef: ticket.ChannelRef,
		},
	})
	return ticket, nil
}

// SetStatus applies a staff-directed transition to CLAIMED (back from
// waiting), WAITING_FOR_USER, or ESCALATED. Close and archive have their
// own operations so their side effects always run.
func (s *TicketService) SetStatus(ctx context.Context, tenantID, ticketID string, actor domain.Actor, target domain.TicketStatus, escalateTo *string) (*domain.Ticket, error) {
	if err := s.requireStaff(ctx, actor, tenantID); err != nil {
		return nil, err
	}

	switch target {
	case domain.TicketStatusClosed:
		return s.close(ctx, tenantID, ticketID, actor, false)
	case domain.TicketStatusArchived:
		return s.Archive(ctx, tenantID, ticketID, actor)
	case domain.TicketStatusClaimed, domain.TicketStatusWaitingForUser, domain.TicketStatusEscalated:
	default:
		return nil, apperrors.NewValidationError("unsupported target status",
			map[string]any{"target": target})
	}

	current, err := s.tickets.GetByID(ctx, tenantID, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !domain.CanTransition(current.Status, target) {
		return nil, apperrors.NewInvalidTransition(string(current.Status), string(target),
			map[string]any{"ticket_id": ticketID})
	}
	// CLAIMED via set_status only moves a waiting ticket back; claiming an
	// open ticket must go through Claim so claimed_by is recorded atomically
	if target == domain.TicketStatusClaimed && current.Status != domain.TicketStatusWaitingForUser {
		return nil, apperrors.NewInvalidTransition(string(current.Status), string(target),
			map[string]any{"ticket_id": ticketID})
	}

	change := repository.StatusChange{To: target, From: []domain.TicketStatus{current.Status}}
	if target == domain.TicketStatusEscalated {
		change.EscalatedTo = escalateTo
	}
	ticket, err := s.tickets.ApplyTransition(ctx, tenantID, ticketID, change)
	if err != nil {
		return nil, s.transitionFailure(ctx, tenantID, ticketID, target, err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TenantID: tenantID,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: current.Status,
			NewStatus: target,
		},
	})
	return ticket, nil
}

// Archive moves a closed ticket to the terminal ARCHIVED state and
// requests best-effort deletion of the transport channel. The record
// itself persists for audit.
func (s *TicketService) Archive(ctx context.Context, tenantID, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	if err := s.requireStaff(ctx, actor, tenantID); err != nil {
		return nil, err
	}

	archivedBy := actor.ID
	ticket, err := s.tickets.ApplyTransition(ctx, tenantID, ticketID, repository.StatusChange{
		To:         domain.TicketStatusArchived,
		From:       []domain.TicketStatus{domain.TicketStatusClosed},
		ArchivedBy: &archivedBy,
	})
	if err != nil {
		return nil, s.transitionFailure(ctx, tenantID, ticketID, domain.TicketStatusArchived, err)
	}

	if ticket.ChannelRef != nil {
		if err := s.channels.Delete(ctx, *ticket.ChannelRef); err != nil {
			s.logger.Warn("channel delete failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketArchived,
		TenantID: tenantID,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload:  events.TicketArchivedPayload{ArchivedBy: actor.ID},
	})
	return ticket, nil
}

// OpenTicketIDs lists non-terminal ticket ids for listing/autocomplete.
func (s *TicketService) OpenTicketIDs(ctx context.Context, tenantID string) ([]string, error) {
	ids, err := s.tickets.ListOpenIDs(ctx, tenantID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ids, nil
}

// transitionFailure turns a guard miss into the precise rejection: a
// missing row becomes NOT_FOUND, an existing row in the wrong state
// becomes INVALID_TRANSITION. Never a silent no-op.
func (s *TicketService) transitionFailure(ctx context.Context, tenantID, ticketID string, target domain.TicketStatus, err error) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}
	current, fetchErr := s.tickets.GetByID(ctx, tenantID, ticketID)
	if fetchErr != nil {
		if errors.Is(fetchErr, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(fetchErr)
	}
	return apperrors.NewInvalidTransition(string(current.Status), string(target),
		map[string]any{"ticket_id": ticketID})
}

func (s *TicketService) requireStaff(ctx context.Context, actor domain.Actor, tenantID string) error {
	if actor.ID == "" {
		return apperrors.NewUnauthorized("actor identity required")
	}
	if !s.staff.IsStaff(ctx, actor, tenantID) {
		return apperrors.NewForbidden("staff role required")
	}
	return nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
