package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/platform"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/tenant"
)

// HealthChecker reports whether the store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// LeaderElector decides which replica runs a sweep cycle.
type LeaderElector interface {
	Acquire(ctx context.Context) (bool, error)
}

// autoCloser is the slice of TicketService the sweeper needs.
type autoCloser interface {
	AutoClose(ctx context.Context, tenantID, ticketID string) (*domain.Ticket, error)
}

// IdleSweeper is the periodic job enforcing the two inactivity deadlines:
// tickets idle past idle_days get a reminder, tickets idle past
// auto_close_days are force-closed as the system actor.
type IdleSweeper struct {
	health     HealthChecker
	leader     LeaderElector
	tickets    repository.TicketRepository
	closer     autoCloser
	tenants    tenant.ConfigProvider
	notifier   platform.Notifier
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.SweepConfig
	now        func() time.Time
}

// SweeperDependencies bundles collaborators for the sweeper.
type SweeperDependencies struct {
	Health     HealthChecker
	Leader     LeaderElector
	TicketRepo repository.TicketRepository
	Closer     autoCloser
	Tenants    tenant.ConfigProvider
	Notifier   platform.Notifier
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Config     config.SweepConfig
	Now        func() time.Time
}

// NewIdleSweeper constructs the sweeper.
func NewIdleSweeper(deps SweeperDependencies) *IdleSweeper {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &IdleSweeper{
		health:     deps.Health,
		leader:     deps.Leader,
		tickets:    deps.TicketRepo,
		closer:     deps.Closer,
		tenants:    deps.Tenants,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		cfg:        deps.Config,
		now:        now,
	}
}

// Run blocks until ctx is cancelled. It never starts sweeping before the
// store reports healthy; startup degrades to polling instead of failing.
func (s *IdleSweeper) Run(ctx context.Context) {
	if !s.waitForHealthy(ctx) {
		return
	}

	s.logger.Info("idle sweeper started",
		zap.Duration("interval", s.cfg.Interval()))

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("idle sweeper stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *IdleSweeper) waitForHealthy(ctx context.Context) bool {
	for {
		err := s.health.Health(ctx)
		if err == nil {
			return true
		}
		s.logger.Warn("store not healthy yet, sweeper waiting", zap.Error(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.HealthPoll()):
		}
	}
}

func (s *IdleSweeper) runCycle(ctx context.Context) {
	if err := s.RunCycle(ctx); err != nil {
		s.logger.Warn("sweep cycle skipped", zap.Error(err))
	}
}

// RunCycle executes one sweep. An unreachable store at the start defers
// the entire cycle to the next interval; per-ticket failures inside the
// cycle are logged and skipped.
func (s *IdleSweeper) RunCycle(ctx context.Context) error {
	if err := s.health.Health(ctx); err != nil {
		return err
	}
	if s.leader != nil {
		isLeader, err := s.leader.Acquire(ctx)
		if err != nil {
			return err
		}
		if !isLeader {
			s.logger.Debug("another replica holds the sweep lock")
			return nil
		}
	}

	tenants, err := s.tickets.ListTenantsWithActive(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sweepTenant(ctx, tenantID, now)
	}
	return nil
}

func (s *IdleSweeper) sweepTenant(ctx context.Context, tenantID string, now time.Time) {
	settings := s.tenants.Settings(ctx, tenantID)
	idleCutoff := now.Add(-time.Duration(settings.IdleDays) * 24 * time.Hour)
	closeCutoff := now.Add(-time.Duration(settings.AutoCloseDays) * 24 * time.Hour)

	candidates, err := s.tickets.ListIdleCandidates(ctx, tenantID, idleCutoff)
	if err != nil {
		s.logger.Warn("idle candidate listing failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		return
	}

	parallelism := s.cfg.TicketParallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	var group errgroup.Group
	group.SetLimit(parallelism)

	for i := range candidates {
		ticket := candidates[i]
		// an in-flight ticket finishes; remaining tickets are not started
		// once shutdown begins
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			// detached from cancellation so shutdown never aborts a ticket
			// mid-transition; the timeout bounds how long it can run on
			ticketCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SideEffectTimeout())
			defer cancel()
			if ticket.UpdatedAt.Before(closeCutoff) {
				s.autoClose(ticketCtx, ticket)
			} else {
				s.remind(ticketCtx, ticket, settings)
			}
			return nil
		})
	}
	_ = group.Wait()
}

func (s *IdleSweeper) autoClose(ctx context.Context, ticket domain.Ticket) {
	if _, err := s.closer.AutoClose(ctx, ticket.TenantID, ticket.ID); err != nil {
		s.logger.Warn("auto-close failed",
			zap.String("tenant_id", ticket.TenantID),
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	s.logger.Info("ticket auto-closed",
		zap.String("tenant_id", ticket.TenantID),
		zap.String("ticket_id", ticket.ID))
}

// remind sends one idle notification per sweep cycle: a direct message to
// the requester plus a staff notice. Status is unchanged and failures are
// not retried; the next cycle re-evaluates idleness.
func (s *IdleSweeper) remind(ctx context.Context, ticket domain.Ticket, settings tenant.Settings) {
	content := "Your support ticket \"" + ticket.DisplayName +
		"\" has been inactive; it will be closed automatically if it stays idle."
	if err := s.notifier.Notify(ctx, ticket.RequesterID, content); err != nil {
		s.logger.Warn("idle reminder to requester failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	if settings.StaffChannel != "" {
		notice := "Ticket \"" + ticket.DisplayName + "\" (" + ticket.ID + ") is idle."
		if err := s.notifier.Notify(ctx, settings.StaffChannel, notice); err != nil {
			s.logger.Warn("idle notice to staff failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventIdleReminder,
			TenantID:  ticket.TenantID,
			TicketID:  ticket.ID,
			Actor:     domain.SystemActor,
			Timestamp: s.now(),
			Payload: events.IdleReminderPayload{
				RequesterID: ticket.RequesterID,
				IdleSince:   ticket.UpdatedAt,
			},
		})
	}
}

// RedisLeaderLock elects a sweep leader with SET NX so replicated
// instances run at most one sweep per interval.
type RedisLeaderLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLeaderLock constructs the lock.
func NewRedisLeaderLock(client *redis.Client, cfg config.SweepConfig) *RedisLeaderLock {
	ttl := time.Duration(cfg.LeaderLockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLeaderLock{client: client, key: "sweep:leader", ttl: ttl}
}

// Acquire implements LeaderElector. Without a redis client every instance
// sweeps, which is still correct because transitions are store-guarded.
func (l *RedisLeaderLock) Acquire(ctx context.Context) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
