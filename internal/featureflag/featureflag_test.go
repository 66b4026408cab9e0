package featureflag

import (
	"context"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	ctx := context.Background()
	p := EnvProvider{}

	t.Setenv("ENABLE_PROPERTY_LOOKUP", "")
	if p.Enabled(ctx, FlagPropertyLookup) {
		t.Error("unset flag should be off")
	}
	t.Setenv("ENABLE_PROPERTY_LOOKUP", "true")
	if !p.Enabled(ctx, FlagPropertyLookup) {
		t.Error("flag should be on")
	}
}

func TestEnvKey(t *testing.T) {
	if got := EnvKey(FlagPropertyLookup); got != "ENABLE_PROPERTY_LOOKUP" {
		t.Errorf("EnvKey = %q", got)
	}
}

func TestStatic(t *testing.T) {
	s := Static{FlagPropertyLookup: true}
	if !s.Enabled(context.Background(), FlagPropertyLookup) {
		t.Error("expected flag on")
	}
	if s.Enabled(context.Background(), "other") {
		t.Error("unknown flag should be off")
	}
}

func TestNewLDProviderRequiresKey(t *testing.T) {
	if _, err := NewLDProvider("", 0, nil); err == nil {
		t.Error("expected error without sdk key")
	}
}
