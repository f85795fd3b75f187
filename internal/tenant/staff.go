package tenant

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// StaffDirectory answers whether an actor may perform staff-only
// transitions in a tenant. The system actor always qualifies so sweep
// closes are not subject to membership lookups.
type StaffDirectory interface {
	IsStaff(ctx context.Context, actor domain.Actor, tenantID string) bool
}

// redisStaffDirectory checks membership in a per-tenant set maintained by
// the platform's role sync.
type redisStaffDirectory struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStaffDirectory constructs the directory.
func NewRedisStaffDirectory(client *redis.Client, logger *zap.Logger) StaffDirectory {
	return &redisStaffDirectory{client: client, logger: logger}
}

func staffKey(tenantID string) string {
	return "tenant:" + tenantID + ":staff"
}

func (d *redisStaffDirectory) IsStaff(ctx context.Context, actor domain.Actor, tenantID string) bool {
	if actor.Kind == domain.ActorKindSystem {
		return true
	}
	if actor.Kind != domain.ActorKindStaff || d.client == nil {
		return false
	}
	member, err := d.client.SIsMember(ctx, staffKey(tenantID), actor.ID).Result()
	if err != nil {
		// fail closed: an unreachable directory must not grant access
		d.logger.Warn("staff lookup failed",
			zap.String("tenant_id", tenantID),
			zap.String("actor_id", actor.ID),
			zap.Error(err))
		return false
	}
	return member
}
