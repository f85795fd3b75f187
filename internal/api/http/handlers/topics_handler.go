package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util"
)

// TopicsHandler exposes the clustering read paths and FAQ acceptance.
type TopicsHandler struct {
	topics *service.TopicService
}

// NewTopicsHandler constructs handler.
func NewTopicsHandler(topics *service.TopicService) *TopicsHandler {
	return &TopicsHandler{topics: topics}
}

// TopKeys GET /tenants/:tenant/topics.
func (h *TopicsHandler) TopKeys(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	counts, err := h.topics.TopKeys(c.UserContext(), c.Params("tenant"), c.QueryInt("limit", 10))
	if err != nil {
		return err
	}
	items := make([]dto.TopicCountResponse, 0, len(counts))
	for _, entry := range counts {
		items = append(items, dto.TopicCountResponse{
			SimilarityKey: entry.SimilarityKey,
			Count:         entry.Count,
			LatestSummary: entry.LatestSummary,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// AcceptFaq POST /tenants/:tenant/faq.
func (h *TopicsHandler) AcceptFaq(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.AcceptFaqRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	candidate, err := h.topics.AcceptFaqCandidate(c.UserContext(), c.Params("tenant"), req.SimilarityKey, req.Summary, actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": faqCandidateResponse(candidate)})
}

// ListFaq GET /tenants/:tenant/faq.
func (h *TopicsHandler) ListFaq(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	candidates, err := h.topics.FaqCandidates(c.UserContext(), c.Params("tenant"), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	items := make([]dto.FaqCandidateResponse, 0, len(candidates))
	for i := range candidates {
		items = append(items, faqCandidateResponse(&candidates[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func faqCandidateResponse(candidate *domain.FaqCandidate) dto.FaqCandidateResponse {
	return dto.FaqCandidateResponse{
		ID:            candidate.ID,
		SimilarityKey: candidate.SimilarityKey,
		Summary:       candidate.SummaryText,
		CreatedBy:     candidate.ProposedBy,
		CreatedAt:     candidate.CreatedAt,
	}
}
