package events

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketClaimed       EventType = "ticket_claimed"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketArchived      EventType = "ticket_archived"
	EventIdleReminder        EventType = "idle_reminder"
	EventFaqProposed         EventType = "faq_proposed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TenantID  string       `json:"tenant_id"`
	TicketID  string       `json:"ticket_id,omitempty"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	RequesterID string  `json:"requester_id"`
	DisplayName string  `json:"display_name"`
	ChannelRef  *string `json:"channel_ref,omitempty"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	ClaimedBy string `json:"claimed_by"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketClosedPayload carries everything the close pipeline needs so
// subscribers never re-read the row.
type TicketClosedPayload struct {
	ChannelRef *string `json:"channel_ref,omitempty"`
}

// TicketArchivedPayload payload.
type TicketArchivedPayload struct {
	ArchivedBy string `json:"archived_by"`
}

// IdleReminderPayload payload.
type IdleReminderPayload struct {
	RequesterID string    `json:"requester_id"`
	IdleSince   time.Time `json:"idle_since"`
}

// FaqProposedPayload payload.
type FaqProposedPayload struct {
	SimilarityKey  string `json:"similarity_key"`
	Occurrences    int    `json:"occurrences"`
	SummaryPreview string `json:"summary_preview"`
}
