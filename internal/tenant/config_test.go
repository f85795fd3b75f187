package tenant

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestSettingsDefaultsWithoutRedis(t *testing.T) {
	provider := NewRedisConfigProvider(nil, zap.NewNop())

	settings := provider.Settings(context.Background(), "acme")
	if settings.IdleDays != DefaultIdleDays {
		t.Errorf("idle days = %d, want %d", settings.IdleDays, DefaultIdleDays)
	}
	if settings.AutoCloseDays != DefaultAutoCloseDays {
		t.Errorf("auto close days = %d, want %d", settings.AutoCloseDays, DefaultAutoCloseDays)
	}
	if settings.AutoCloseDays <= settings.IdleDays {
		t.Error("auto close must come after the idle warning")
	}
}

func TestIntFieldParsing(t *testing.T) {
	values := map[string]string{"idle_days": "7", "auto_close_days": "abc", "empty": ""}

	if v, ok := intField(values, "idle_days"); !ok || v != 7 {
		t.Errorf("idle_days = %d,%v, want 7,true", v, ok)
	}
	if _, ok := intField(values, "auto_close_days"); ok {
		t.Error("non-numeric value parsed")
	}
	if _, ok := intField(values, "empty"); ok {
		t.Error("empty value parsed")
	}
	if _, ok := intField(values, "missing"); ok {
		t.Error("missing key parsed")
	}
}

func TestStaticConfigProvider(t *testing.T) {
	provider := StaticConfigProvider{Values: Settings{IdleDays: 2, AutoCloseDays: 4}}

	settings := provider.Settings(context.Background(), "anything")
	if settings.IdleDays != 2 || settings.AutoCloseDays != 4 {
		t.Errorf("settings = %+v", settings)
	}
}
