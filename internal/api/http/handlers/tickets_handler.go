package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// TicketsHandler manages ticket lifecycle endpoints.
type TicketsHandler struct {
	tickets *service.TicketService
	metrics *service.MetricsService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, metrics *service.MetricsService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, metrics: metrics}
}

// CreateTicket POST /tenants/:tenant/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}

	ticket, err := h.tickets.Create(c.UserContext(), c.Params("tenant"), actor, req.DisplayName, req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListOpenTickets GET /tenants/:tenant/tickets.
func (h *TicketsHandler) ListOpenTickets(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	ids, err := h.tickets.OpenTicketIDs(c.UserContext(), c.Params("tenant"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ids})
}

// ClaimTicket POST /tenants/:tenant/tickets/:id/claim.
func (h *TicketsHandler) ClaimTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	ticket, err := h.tickets.Claim(c.UserContext(), c.Params("tenant"), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CloseTicket POST /tenants/:tenant/tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	ticket, err := h.tickets.Close(c.UserContext(), c.Params("tenant"), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// SetStatus POST /tenants/:tenant/tickets/:id/status.
func (h *TicketsHandler) SetStatus(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}

	ticket, err := h.tickets.SetStatus(c.UserContext(), c.Params("tenant"), c.Params("id"), actor, req.Status, req.EscalateTo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ArchiveTicket POST /tenants/:tenant/tickets/:id/archive.
func (h *TicketsHandler) ArchiveTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	ticket, err := h.tickets.Archive(c.UserContext(), c.Params("tenant"), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Stats GET /tenants/:tenant/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	window, ok := domain.ParseStatsWindow(c.Query("window"))
	if !ok {
		return apperrors.NewValidationError("window must be one of all, 7d, 30d", nil)
	}

	view, err := h.metrics.Stats(c.UserContext(), c.Params("tenant"), window, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": statsResponse(view)})
}

// Snapshots GET /tenants/:tenant/metrics.
func (h *TicketsHandler) Snapshots(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	snapshots, err := h.metrics.RecentSnapshots(c.UserContext(), c.Params("tenant"), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	items := make([]dto.MetricsSnapshotResponse, 0, len(snapshots))
	for i := range snapshots {
		items = append(items, snapshotResponse(&snapshots[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func snapshotResponse(snapshot *domain.MetricsSnapshot) dto.MetricsSnapshotResponse {
	counts := make(map[string]int, len(snapshot.Counts))
	for status, count := range snapshot.Counts {
		counts[string(status)] = count
	}
	resp := dto.MetricsSnapshotResponse{
		ID:                  snapshot.ID,
		Counts:              counts,
		AverageCycleSeconds: snapshot.AverageCycleSeconds,
		TriggeredBy:         snapshot.TriggeredBy,
		CreatedAt:           snapshot.CreatedAt,
	}
	if snapshot.Topic != nil {
		resp.Topic = &dto.TopicRefResponse{
			SimilarityKey:  snapshot.Topic.SimilarityKey,
			SummaryPreview: snapshot.Topic.SummaryPreview,
		}
	}
	return resp
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:          ticket.ID,
		TenantID:    ticket.TenantID,
		RequesterID: ticket.RequesterID,
		DisplayName: ticket.DisplayName,
		Description: ticket.Description,
		Status:      ticket.Status,
		ChannelRef:  ticket.ChannelRef,
		ClaimedBy:   ticket.ClaimedBy,
		ClaimedAt:   ticket.ClaimedAt,
		EscalatedTo: ticket.EscalatedTo,
		ArchivedAt:  ticket.ArchivedAt,
		ArchivedBy:  ticket.ArchivedBy,
		ClosedAt:    ticket.ClosedAt,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func statsResponse(view *domain.StatsView) dto.StatsResponse {
	counts := make(map[string]int, len(view.Counts))
	for status, count := range view.Counts {
		counts[string(status)] = count
	}
	ids := view.OpenTicketIDs
	if ids == nil {
		ids = []string{}
	}
	return dto.StatsResponse{
		TenantID:            view.TenantID,
		Window:              string(view.Window),
		Counts:              counts,
		OpenTicketIDs:       ids,
		AverageCycleSeconds: view.AverageCycleSeconds,
	}
}
