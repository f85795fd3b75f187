package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// SetStatusRequest payload.
type SetStatusRequest struct {
	Status     domain.TicketStatus `json:"status"`
	EscalateTo *string             `json:"escalate_to,omitempty"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID          string              `json:"id"`
	TenantID    string              `json:"tenant_id"`
	RequesterID string              `json:"requester_id"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description"`
	Status      domain.TicketStatus `json:"status"`
	ChannelRef  *string             `json:"channel_ref,omitempty"`
	ClaimedBy   *string             `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time          `json:"claimed_at,omitempty"`
	EscalatedTo *string             `json:"escalated_to,omitempty"`
	ArchivedAt  *time.Time          `json:"archived_at,omitempty"`
	ArchivedBy  *string             `json:"archived_by,omitempty"`
	ClosedAt    *time.Time          `json:"closed_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// StatsResponse is the snapshot view for a tenant and window.
type StatsResponse struct {
	TenantID            string         `json:"tenant_id"`
	Window              string         `json:"window"`
	Counts              map[string]int `json:"counts"`
	OpenTicketIDs       []string       `json:"open_ticket_ids"`
	AverageCycleSeconds *float64       `json:"average_cycle_seconds,omitempty"`
}

// MetricsSnapshotResponse is one appended metrics snapshot.
type MetricsSnapshotResponse struct {
	ID                  string            `json:"id"`
	Counts              map[string]int    `json:"counts"`
	AverageCycleSeconds *float64          `json:"average_cycle_seconds,omitempty"`
	TriggeredBy         string            `json:"triggered_by"`
	Topic               *TopicRefResponse `json:"topic,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// TopicRefResponse is the topic context attached to a snapshot.
type TopicRefResponse struct {
	SimilarityKey  string `json:"similarity_key"`
	SummaryPreview string `json:"summary_preview"`
}

// TopicCountResponse is one row of the top-keys report.
type TopicCountResponse struct {
	SimilarityKey string `json:"similarity_key"`
	Count         int    `json:"count"`
	LatestSummary string `json:"latest_summary"`
}

// AcceptFaqRequest payload.
type AcceptFaqRequest struct {
	SimilarityKey string `json:"similarity_key"`
	Summary       string `json:"summary"`
}

// FaqCandidateResponse is an accepted knowledge-base candidate.
type FaqCandidateResponse struct {
	ID            string    `json:"id"`
	SimilarityKey string    `json:"similarity_key"`
	Summary       string    `json:"summary"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}
