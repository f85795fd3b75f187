package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/tenant"
)

type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int
	now     func() time.Time
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		now:     time.Now,
		tickets: make(map[string]*domain.Ticket),
	}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = "t-" + strconv.Itoa(r.seq)
	ticket.CreatedAt = r.now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok || ticket.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *fakeTicketRepo) AttachChannel(ctx context.Context, id, channelRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ref := channelRef
	ticket.ChannelRef = &ref
	return nil
}

func (r *fakeTicketRepo) Claim(ctx context.Context, tenantID, id, staffID string) (repository.ClaimOutcome, *domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok || ticket.TenantID != tenantID {
		return repository.ClaimNotFound, nil, nil
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.ClaimedBy != nil {
		clone := *ticket
		return repository.ClaimLost, &clone, nil
	}
	now := r.now()
	claimer := staffID
	ticket.Status = domain.TicketStatusClaimed
	ticket.ClaimedBy = &claimer
	ticket.ClaimedAt = &now
	ticket.UpdatedAt = now
	clone := *ticket
	return repository.ClaimWon, &clone, nil
}

func (r *fakeTicketRepo) ApplyTransition(ctx context.Context, tenantID, id string, change repository.StatusChange) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok || ticket.TenantID != tenantID {
		return nil, pgx.ErrNoRows
	}
	matched := false
	for _, from := range change.From {
		if ticket.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return nil, pgx.ErrNoRows
	}
	now := r.now()
	ticket.Status = change.To
	ticket.UpdatedAt = now
	switch change.To {
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
	case domain.TicketStatusArchived:
		ticket.ArchivedAt = &now
		ticket.ArchivedBy = change.ArchivedBy
	case domain.TicketStatusEscalated:
		ticket.EscalatedTo = change.EscalatedTo
	}
	clone := *ticket
	return &clone, nil
}

func (r *fakeTicketRepo) ListOpenIDs(ctx context.Context, tenantID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for i := 1; i <= r.seq; i++ {
		id := "t-" + strconv.Itoa(i)
		ticket, ok := r.tickets[id]
		if !ok || ticket.TenantID != tenantID {
			continue
		}
		if ticket.Status == domain.TicketStatusClosed || ticket.Status == domain.TicketStatusArchived {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *fakeTicketRepo) ListTenantsWithActive(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var tenants []string
	for _, ticket := range r.tickets {
		if !isActive(ticket.Status) || seen[ticket.TenantID] {
			continue
		}
		seen[ticket.TenantID] = true
		tenants = append(tenants, ticket.TenantID)
	}
	return tenants, nil
}

func (r *fakeTicketRepo) ListIdleCandidates(ctx context.Context, tenantID string, olderThan time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.TenantID != tenantID || !isActive(ticket.Status) {
			continue
		}
		if ticket.UpdatedAt.Before(olderThan) {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

func (r *fakeTicketRepo) CountByStatus(ctx context.Context, tenantID string, since *time.Time) (map[domain.TicketStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.TicketStatus]int)
	for _, ticket := range r.tickets {
		if ticket.TenantID != tenantID {
			continue
		}
		if since != nil && ticket.CreatedAt.Before(*since) {
			continue
		}
		counts[ticket.Status]++
	}
	return counts, nil
}

func (r *fakeTicketRepo) AverageCycleSeconds(ctx context.Context, tenantID string, since *time.Time) (*float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	var count int
	for _, ticket := range r.tickets {
		if ticket.TenantID != tenantID || ticket.ClosedAt == nil {
			continue
		}
		if since != nil && ticket.ClosedAt.Before(*since) {
			continue
		}
		total += ticket.ClosedAt.Sub(ticket.CreatedAt).Seconds()
		count++
	}
	if count == 0 {
		return nil, nil
	}
	avg := total / float64(count)
	return &avg, nil
}

// put inserts a ticket directly, bypassing the service, for test setup.
func (r *fakeTicketRepo) put(ticket domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if ticket.ID == "" {
		ticket.ID = "t-" + strconv.Itoa(r.seq)
	}
	clone := ticket
	r.tickets[ticket.ID] = &clone
}

func isActive(status domain.TicketStatus) bool {
	for _, candidate := range domain.ActiveStatuses {
		if status == candidate {
			return true
		}
	}
	return false
}

type fakeStaffDirectory struct {
	members map[string]map[string]bool
}

func newFakeStaffDirectory() *fakeStaffDirectory {
	return &fakeStaffDirectory{members: make(map[string]map[string]bool)}
}

func (d *fakeStaffDirectory) add(tenantID, staffID string) {
	if d.members[tenantID] == nil {
		d.members[tenantID] = make(map[string]bool)
	}
	d.members[tenantID][staffID] = true
}

func (d *fakeStaffDirectory) IsStaff(ctx context.Context, actor domain.Actor, tenantID string) bool {
	if actor.Kind == domain.ActorKindSystem {
		return true
	}
	return actor.Kind == domain.ActorKindStaff && d.members[tenantID][actor.ID]
}

type channelCall struct {
	op  string
	ref string
}

type fakeChannelManager struct {
	mu    sync.Mutex
	seq   int
	calls []channelCall
}

func (m *fakeChannelManager) Provision(ctx context.Context, tenantID, ticketID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := "chan-" + strconv.Itoa(m.seq)
	m.calls = append(m.calls, channelCall{op: "provision", ref: ref})
	return ref, nil
}

func (m *fakeChannelManager) Lock(ctx context.Context, channelRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, channelCall{op: "lock", ref: channelRef})
	return nil
}

func (m *fakeChannelManager) Rename(ctx context.Context, channelRef, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, channelCall{op: "rename", ref: channelRef})
	return nil
}

func (m *fakeChannelManager) Delete(ctx context.Context, channelRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, channelCall{op: "delete", ref: channelRef})
	return nil
}

func (m *fakeChannelManager) ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ops []string
	for _, call := range m.calls {
		ops = append(ops, call.op)
	}
	return ops
}

type notification struct {
	recipient string
	content   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(ctx context.Context, recipient, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{recipient: recipient, content: content})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeSummarizer struct {
	summaries map[string]string
}

func (s *fakeSummarizer) Summarize(ctx context.Context, channelRef string) (string, error) {
	return s.summaries[channelRef], nil
}

type fakeTopicRepo struct {
	mu         sync.Mutex
	seq        int
	now        func() time.Time
	summaries  []domain.TopicSummary
	candidates []domain.FaqCandidate
	proposals  map[string]time.Time
}

func newFakeTopicRepo() *fakeTopicRepo {
	return &fakeTopicRepo{now: time.Now}
}

func (r *fakeTopicRepo) InsertSummary(ctx context.Context, summary *domain.TopicSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.summaries {
		if existing.TicketID == summary.TicketID {
			return pgx.ErrNoRows
		}
	}
	r.seq++
	summary.ID = "s-" + strconv.Itoa(r.seq)
	summary.CreatedAt = r.now()
	r.summaries = append(r.summaries, *summary)
	return nil
}

func (r *fakeTopicRepo) SummaryByTicket(ctx context.Context, ticketID string) (*domain.TopicSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, summary := range r.summaries {
		if summary.TicketID == ticketID {
			clone := summary
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTopicRepo) CountByKeySince(ctx context.Context, tenantID, similarityKey string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, summary := range r.summaries {
		if summary.TenantID == tenantID && summary.SimilarityKey == similarityKey && !summary.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeTopicRepo) ClaimProposal(ctx context.Context, tenantID, similarityKey string, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proposals == nil {
		r.proposals = make(map[string]time.Time)
	}
	key := tenantID + "/" + similarityKey
	now := r.now()
	if at, ok := r.proposals[key]; ok && now.Sub(at) < window {
		return false, nil
	}
	r.proposals[key] = now
	return true, nil
}

func (r *fakeTopicRepo) LatestSummaryForKey(ctx context.Context, tenantID, similarityKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.summaries) - 1; i >= 0; i-- {
		if r.summaries[i].TenantID == tenantID && r.summaries[i].SimilarityKey == similarityKey {
			return r.summaries[i].SummaryText, nil
		}
	}
	return "", pgx.ErrNoRows
}

func (r *fakeTopicRepo) TopKeysSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.TopicCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]*domain.TopicCount)
	for _, summary := range r.summaries {
		if summary.TenantID != tenantID || summary.CreatedAt.Before(since) {
			continue
		}
		entry, ok := counts[summary.SimilarityKey]
		if !ok {
			entry = &domain.TopicCount{SimilarityKey: summary.SimilarityKey}
			counts[summary.SimilarityKey] = entry
		}
		entry.Count++
		entry.LatestSummary = summary.SummaryText
	}
	var result []domain.TopicCount
	for _, entry := range counts {
		result = append(result, *entry)
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeTopicRepo) InsertFaqCandidate(ctx context.Context, candidate *domain.FaqCandidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	candidate.ID = "f-" + strconv.Itoa(r.seq)
	candidate.CreatedAt = r.now()
	r.candidates = append(r.candidates, *candidate)
	return nil
}

func (r *fakeTopicRepo) ListFaqCandidates(ctx context.Context, tenantID string, limit int) ([]domain.FaqCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.FaqCandidate
	for _, candidate := range r.candidates {
		if candidate.TenantID == tenantID {
			result = append(result, candidate)
		}
	}
	return result, nil
}

type fakeMetricsRepo struct {
	mu        sync.Mutex
	seq       int
	failing   bool
	snapshots []domain.MetricsSnapshot
}

func (r *fakeMetricsRepo) Insert(ctx context.Context, snapshot *domain.MetricsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return context.DeadlineExceeded
	}
	r.seq++
	snapshot.ID = "m-" + strconv.Itoa(r.seq)
	snapshot.CreatedAt = time.Now()
	r.snapshots = append(r.snapshots, *snapshot)
	return nil
}

func (r *fakeMetricsRepo) ListRecent(ctx context.Context, scope string, limit int) ([]domain.MetricsSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.MetricsSnapshot
	for _, snapshot := range r.snapshots {
		if snapshot.Scope == scope {
			result = append(result, snapshot)
		}
	}
	return result, nil
}

var _ repository.TicketRepository = (*fakeTicketRepo)(nil)
var _ repository.TopicRepository = (*fakeTopicRepo)(nil)
var _ repository.MetricsRepository = (*fakeMetricsRepo)(nil)
var _ tenant.StaffDirectory = (*fakeStaffDirectory)(nil)
