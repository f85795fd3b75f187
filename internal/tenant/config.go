package tenant

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Settings are the per-tenant values the lifecycle core consumes.
type Settings struct {
	IdleDays      int
	AutoCloseDays int
	StaffChannel  string
	LogChannel    string
}

// Built-in defaults applied when a tenant has no override.
const (
	DefaultIdleDays      = 5
	DefaultAutoCloseDays = 14
)

// ConfigProvider supplies tenant-scoped configuration. Core logic never
// reads ambient configuration directly; it always goes through this
// capability.
type ConfigProvider interface {
	Settings(ctx context.Context, tenantID string) Settings
}

// redisConfigProvider reads overrides from a per-tenant redis hash written
// by the external settings service. Missing or unreachable values fall back
// to the built-in defaults; the sweep must never stall on config reads.
type redisConfigProvider struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisConfigProvider constructs the provider.
func NewRedisConfigProvider(client *redis.Client, logger *zap.Logger) ConfigProvider {
	return &redisConfigProvider{client: client, logger: logger}
}

func settingsKey(tenantID string) string {
	return "tenant:" + tenantID + ":settings"
}

func (p *redisConfigProvider) Settings(ctx context.Context, tenantID string) Settings {
	settings := Settings{
		IdleDays:      DefaultIdleDays,
		AutoCloseDays: DefaultAutoCloseDays,
	}
	if p.client == nil {
		return settings
	}

	values, err := p.client.HGetAll(ctx, settingsKey(tenantID)).Result()
	if err != nil {
		p.logger.Warn("tenant settings unavailable, using defaults",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return settings
	}

	if v, ok := intField(values, "idle_days"); ok && v > 0 {
		settings.IdleDays = v
	}
	if v, ok := intField(values, "auto_close_days"); ok && v > 0 {
		settings.AutoCloseDays = v
	}
	// The settings service enforces auto_close_days > idle_days; guard
	// anyway so a bad override cannot make the sweep close before warning.
	if settings.AutoCloseDays <= settings.IdleDays {
		settings.AutoCloseDays = settings.IdleDays + 1
	}
	settings.StaffChannel = values["staff_channel"]
	settings.LogChannel = values["log_channel"]
	return settings
}

func intField(values map[string]string, key string) (int, bool) {
	raw, ok := values[key]
	if !ok || raw == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// StaticConfigProvider returns fixed settings for every tenant.
type StaticConfigProvider struct {
	Values Settings
}

// Settings implements ConfigProvider.
func (p StaticConfigProvider) Settings(ctx context.Context, tenantID string) Settings {
	return p.Values
}
