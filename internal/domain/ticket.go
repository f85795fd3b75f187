package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen           TicketStatus = "OPEN"
	TicketStatusClaimed        TicketStatus = "CLAIMED"
	TicketStatusWaitingForUser TicketStatus = "WAITING_FOR_USER"
	TicketStatusEscalated      TicketStatus = "ESCALATED"
	TicketStatusClosed         TicketStatus = "CLOSED"
	TicketStatusArchived       TicketStatus = "ARCHIVED"
)

// ActiveStatuses are the states the idle sweep evaluates.
var ActiveStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusClaimed,
	TicketStatusWaitingForUser,
}

// Ticket is the aggregate for support requests. Records are never
// physically deleted; ARCHIVED is terminal and the row persists for audit
// even after the transport channel is gone.
type Ticket struct {
	ID          string
	TenantID    string
	RequesterID string
	DisplayName string
	Description string
	Status      TicketStatus
	ChannelRef  *string
	ClaimedBy   *string
	ClaimedAt   *time.Time
	EscalatedTo *string
	ArchivedAt  *time.Time
	ArchivedBy  *string
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsTerminal reports whether no further transitions are possible.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusArchived
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:           {TicketStatusClaimed, TicketStatusEscalated, TicketStatusClosed},
	TicketStatusClaimed:        {TicketStatusWaitingForUser, TicketStatusEscalated, TicketStatusClosed},
	TicketStatusWaitingForUser: {TicketStatusClaimed, TicketStatusEscalated, TicketStatusClosed},
	TicketStatusEscalated:      {TicketStatusClosed},
	TicketStatusClosed:         {TicketStatusArchived},
	TicketStatusArchived:       {},
}

// CanTransition reports whether current -> next follows a legal edge.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionSources returns every status from which target is reachable.
func TransitionSources(target TicketStatus) []TicketStatus {
	var sources []TicketStatus
	for from, targets := range allowedTransitions {
		for _, to := range targets {
			if to == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}
