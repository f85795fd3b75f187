package domain

import "time"

// TopicSummary records the closing summary of one ticket together with its
// similarity key. At most one per ticket, written only when the close
// produced a non-empty summary. Immutable once written.
type TopicSummary struct {
	ID            string
	TenantID      string
	TicketID      string
	SummaryText   string
	SimilarityKey string
	CreatedAt     time.Time
}

// FaqCandidate is a knowledge-base entry proposal accepted by a human.
// Clustering alone never creates one. Immutable once written.
type FaqCandidate struct {
	ID            string
	TenantID      string
	SimilarityKey string
	SummaryText   string
	ProposedBy    string
	CreatedAt     time.Time
}

// TopicCount pairs a similarity key with its occurrence count inside a
// reporting window.
type TopicCount struct {
	SimilarityKey string
	Count         int
	LatestSummary string
}
