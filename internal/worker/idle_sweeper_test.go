package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/tenant"
)

type sweepTicketRepo struct {
	mu      sync.Mutex
	tickets []domain.Ticket
}

func (r *sweepTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error { return nil }

func (r *sweepTicketRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}

func (r *sweepTicketRepo) AttachChannel(ctx context.Context, id, channelRef string) error {
	return nil
}

func (r *sweepTicketRepo) Claim(ctx context.Context, tenantID, id, staffID string) (repository.ClaimOutcome, *domain.Ticket, error) {
	return repository.ClaimNotFound, nil, nil
}

func (r *sweepTicketRepo) ApplyTransition(ctx context.Context, tenantID, id string, change repository.StatusChange) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}

func (r *sweepTicketRepo) ListOpenIDs(ctx context.Context, tenantID string) ([]string, error) {
	return nil, nil
}

func (r *sweepTicketRepo) ListTenantsWithActive(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var tenants []string
	for _, ticket := range r.tickets {
		if !seen[ticket.TenantID] {
			seen[ticket.TenantID] = true
			tenants = append(tenants, ticket.TenantID)
		}
	}
	return tenants, nil
}

func (r *sweepTicketRepo) ListIdleCandidates(ctx context.Context, tenantID string, olderThan time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.TenantID == tenantID && ticket.UpdatedAt.Before(olderThan) {
			result = append(result, ticket)
		}
	}
	return result, nil
}

func (r *sweepTicketRepo) CountByStatus(ctx context.Context, tenantID string, since *time.Time) (map[domain.TicketStatus]int, error) {
	return nil, nil
}

func (r *sweepTicketRepo) AverageCycleSeconds(ctx context.Context, tenantID string, since *time.Time) (*float64, error) {
	return nil, nil
}

type fakeHealth struct {
	err error
}

func (h *fakeHealth) Health(ctx context.Context) error { return h.err }

type fakeLeader struct {
	leader bool
}

func (l *fakeLeader) Acquire(ctx context.Context) (bool, error) { return l.leader, nil }

type fakeCloser struct {
	mu     sync.Mutex
	closed []string
	err    error
}

func (c *fakeCloser) AutoClose(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.closed = append(c.closed, ticketID)
	return &domain.Ticket{ID: ticketID, TenantID: tenantID, Status: domain.TicketStatusClosed}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[string][]string)
	}
	n.sent[recipient] = append(n.sent[recipient], content)
	return nil
}

func (n *recordingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, messages := range n.sent {
		count += len(messages)
	}
	return count
}

type sweepFixture struct {
	repo     *sweepTicketRepo
	health   *fakeHealth
	leader   *fakeLeader
	closer   *fakeCloser
	notifier *recordingNotifier
	sweeper  *IdleSweeper
	now      time.Time
}

func newSweepFixture() *sweepFixture {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fx := &sweepFixture{
		repo:     &sweepTicketRepo{},
		health:   &fakeHealth{},
		leader:   &fakeLeader{leader: true},
		closer:   &fakeCloser{},
		notifier: &recordingNotifier{},
		now:      now,
	}
	fx.sweeper = NewIdleSweeper(SweeperDependencies{
		Health:     fx.health,
		Leader:     fx.leader,
		TicketRepo: fx.repo,
		Closer:     fx.closer,
		Tenants:    tenant.StaticConfigProvider{Values: tenant.Settings{IdleDays: 5, AutoCloseDays: 14, StaffChannel: "staff-room"}},
		Notifier:   fx.notifier,
		Logger:     zap.NewNop(),
		Config:     config.SweepConfig{TicketParallelism: 2},
		Now:        func() time.Time { return now },
	})
	return fx
}

func (fx *sweepFixture) addTicket(id, tenantID string, idleFor time.Duration) {
	updated := fx.now.Add(-idleFor)
	fx.repo.tickets = append(fx.repo.tickets, domain.Ticket{
		ID:          id,
		TenantID:    tenantID,
		RequesterID: "user-" + id,
		DisplayName: "ticket " + id,
		Status:      domain.TicketStatusClaimed,
		CreatedAt:   updated,
		UpdatedAt:   updated,
	})
}

func TestSweepRemindsIdleTickets(t *testing.T) {
	fx := newSweepFixture()
	fx.addTicket("t-idle", "acme", 6*24*time.Hour)
	fx.addTicket("t-fresh", "acme", 2*24*time.Hour)

	if err := fx.sweeper.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(fx.closer.closed) != 0 {
		t.Errorf("auto-closed = %v, want none inside the reminder window", fx.closer.closed)
	}
	if got := len(fx.notifier.sent["user-t-idle"]); got != 1 {
		t.Errorf("requester reminders = %d, want 1", got)
	}
	if got := len(fx.notifier.sent["staff-room"]); got != 1 {
		t.Errorf("staff notices = %d, want 1", got)
	}
	if got := len(fx.notifier.sent["user-t-fresh"]); got != 0 {
		t.Errorf("fresh ticket reminded %d times, want 0", got)
	}
}

func TestSweepAutoClosesPastDeadline(t *testing.T) {
	fx := newSweepFixture()
	fx.addTicket("t-stale", "acme", 15*24*time.Hour)
	fx.addTicket("t-idle", "acme", 6*24*time.Hour)

	if err := fx.sweeper.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if len(fx.closer.closed) != 1 || fx.closer.closed[0] != "t-stale" {
		t.Errorf("auto-closed = %v, want [t-stale]", fx.closer.closed)
	}
	if got := len(fx.notifier.sent["user-t-stale"]); got != 0 {
		t.Errorf("stale ticket reminded %d times, want auto-close only", got)
	}
	if got := len(fx.notifier.sent["user-t-idle"]); got != 1 {
		t.Errorf("idle ticket reminders = %d, want 1", got)
	}
}

func TestSweepSkipsCycleWhenStoreUnreachable(t *testing.T) {
	fx := newSweepFixture()
	fx.addTicket("t-stale", "acme", 20*24*time.Hour)
	fx.health.err = errors.New("connection refused")

	if err := fx.sweeper.RunCycle(context.Background()); err == nil {
		t.Fatal("expected an error from an unreachable store")
	}
	if len(fx.closer.closed) != 0 || fx.notifier.total() != 0 {
		t.Error("cycle ran side effects against an unreachable store")
	}
}

func TestSweepSkipsWhenNotLeader(t *testing.T) {
	fx := newSweepFixture()
	fx.addTicket("t-stale", "acme", 20*24*time.Hour)
	fx.leader.leader = false

	if err := fx.sweeper.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(fx.closer.closed) != 0 || fx.notifier.total() != 0 {
		t.Error("non-leader replica ran the sweep")
	}
}

func TestSweepHandlesTenantsIndependently(t *testing.T) {
	fx := newSweepFixture()
	fx.addTicket("t-a", "acme", 15*24*time.Hour)
	fx.addTicket("t-b", "globex", 15*24*time.Hour)

	if err := fx.sweeper.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(fx.closer.closed) != 2 {
		t.Errorf("auto-closed = %v, want both tenants' tickets", fx.closer.closed)
	}
}

func TestSweepContinuesPastCloseFailures(t *testing.T) {
	fx := newSweepFixture()
	fx.closer.err = errors.New("transition rejected")
	fx.addTicket("t-stale", "acme", 15*24*time.Hour)
	fx.addTicket("t-idle", "acme", 6*24*time.Hour)

	if err := fx.sweeper.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle should not fail on per-ticket errors: %v", err)
	}
	if got := len(fx.notifier.sent["user-t-idle"]); got != 1 {
		t.Errorf("idle ticket reminders = %d, want 1 despite close failure", got)
	}
}

type blockingCloser struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	ctxErr  error
}

func (c *blockingCloser) AutoClose(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error) {
	close(c.started)
	<-c.release
	c.mu.Lock()
	c.ctxErr = ctx.Err()
	c.mu.Unlock()
	return &domain.Ticket{ID: ticketID, TenantID: tenantID, Status: domain.TicketStatusClosed}, nil
}

func TestShutdownDoesNotAbortInFlightAutoClose(t *testing.T) {
	fx := newSweepFixture()
	closer := &blockingCloser{started: make(chan struct{}), release: make(chan struct{})}
	fx.sweeper = NewIdleSweeper(SweeperDependencies{
		Health:     fx.health,
		Leader:     fx.leader,
		TicketRepo: fx.repo,
		Closer:     closer,
		Tenants:    tenant.StaticConfigProvider{Values: tenant.Settings{IdleDays: 5, AutoCloseDays: 14}},
		Notifier:   fx.notifier,
		Logger:     zap.NewNop(),
		Config:     config.SweepConfig{TicketParallelism: 1, SideEffectTimeoutSecs: 30},
		Now:        func() time.Time { return fx.now },
	})
	fx.addTicket("t-stale", "acme", 15*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fx.sweeper.RunCycle(ctx)
	}()

	<-closer.started
	cancel()
	close(closer.release)
	<-done

	closer.mu.Lock()
	defer closer.mu.Unlock()
	if closer.ctxErr != nil {
		t.Errorf("in-flight auto-close saw context error %v, want none", closer.ctxErr)
	}
}

func TestRepeatedCyclesRemindAgain(t *testing.T) {
	fx := newSweepFixture()
	fx.addTicket("t-idle", "acme", 6*24*time.Hour)

	for i := 0; i < 2; i++ {
		if err := fx.sweeper.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle: %v", err)
		}
	}
	if got := len(fx.notifier.sent["user-t-idle"]); got != 2 {
		t.Errorf("reminders across two cycles = %d, want 2", got)
	}
}
