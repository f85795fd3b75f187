package domain

import "time"

// StatsWindow selects the trailing period for stats queries.
type StatsWindow string

const (
	StatsWindowAll StatsWindow = "all"
	StatsWindow7d  StatsWindow = "7d"
	StatsWindow30d StatsWindow = "30d"
)

// ParseStatsWindow validates a window string, defaulting to all.
func ParseStatsWindow(raw string) (StatsWindow, bool) {
	switch StatsWindow(raw) {
	case StatsWindowAll, "":
		return StatsWindowAll, true
	case StatsWindow7d:
		return StatsWindow7d, true
	case StatsWindow30d:
		return StatsWindow30d, true
	default:
		return StatsWindowAll, false
	}
}

// Since returns the window's lower bound, or nil for the unbounded window.
func (w StatsWindow) Since(now time.Time) *time.Time {
	var d time.Duration
	switch w {
	case StatsWindow7d:
		d = 7 * 24 * time.Hour
	case StatsWindow30d:
		d = 30 * 24 * time.Hour
	default:
		return nil
	}
	t := now.Add(-d)
	return &t
}

// TopicRef carries the topic context attached to a metrics snapshot.
type TopicRef struct {
	SimilarityKey  string `json:"similarity_key"`
	SummaryPreview string `json:"summary_preview"`
}

// MetricsSnapshot is an append-only rollup of ticket counts and cycle time.
type MetricsSnapshot struct {
	ID                  string
	Scope               string
	Counts              map[TicketStatus]int
	AverageCycleSeconds *float64
	TriggeredBy         string
	Topic               *TopicRef
	CreatedAt           time.Time
}

// StatsView is the live answer to a stats request.
type StatsView struct {
	TenantID            string
	Window              StatsWindow
	Counts              map[TicketStatus]int
	OpenTicketIDs       []string
	AverageCycleSeconds *float64
}
