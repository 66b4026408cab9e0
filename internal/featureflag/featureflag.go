// Package featureflag resolves boolean feature flags from the environment or LaunchDarkly.
package featureflag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"

	"github.com/BTreeMap/LeadPipe/internal/util"
)

// Flag keys.
const (
	FlagPropertyLookup = "enable_property_lookup"
)

// Defaults for the LaunchDarkly provider.
const (
	DefaultLDConnectionTimeout = 5 * time.Second
	ldServerContextKind        = "service"
	ldServerContextKey         = "leadpipe"
)

// Provider answers whether a flag is on.
type Provider interface {
	Enabled(ctx context.Context, flag string) bool
}

// EnvProvider reads a flag from the environment variable named after it in upper case,
// e.g. enable_property_lookup from ENABLE_PROPERTY_LOOKUP. Unset flags are off.
type EnvProvider struct{}

func (EnvProvider) Enabled(_ context.Context, flag string) bool {
	return util.ParseBoolEnv(EnvKey(flag), false)
}

// EnvKey returns the environment variable that backs flag.
func EnvKey(flag string) string {
	return strings.ToUpper(flag)
}

// Static is a fixed flag set.
type Static map[string]bool

func (s Static) Enabled(_ context.Context, flag string) bool {
	return s[flag]
}

// LDProvider evaluates flags with LaunchDarkly, falling back to another provider for the
// default value and when evaluation fails.
type LDProvider struct {
	client   *ld.LDClient
	ldCtx    ldcontext.Context
	fallback Provider
}

// NewLDProvider connects to LaunchDarkly. The client must initialize within timeout.
func NewLDProvider(sdkKey string, timeout time.Duration, fallback Provider) (*LDProvider, error) {
	if sdkKey == "" {
		return nil, fmt.Errorf("launchdarkly sdk key must be provided")
	}
	if timeout <= 0 {
		timeout = DefaultLDConnectionTimeout
	}
	if fallback == nil {
		fallback = EnvProvider{}
	}
	client, err := ld.MakeClient(sdkKey, timeout)
	if err != nil {
		return nil, fmt.Errorf("create launchdarkly client: %w", err)
	}
	if !client.Initialized() {
		client.Close()
		return nil, fmt.Errorf("launchdarkly client failed to initialize")
	}
	slog.Info("LDProvider.NewLDProvider: LaunchDarkly client initialized")
	return &LDProvider{
		client:   client,
		ldCtx:    ldcontext.NewWithKind(ldcontext.Kind(ldServerContextKind), ldServerContextKey),
		fallback: fallback,
	}, nil
}

func (p *LDProvider) Enabled(ctx context.Context, flag string) bool {
	def := p.fallback.Enabled(ctx, flag)
	v, err := p.client.BoolVariation(flag, p.ldCtx, def)
	if err != nil {
		slog.Warn("LDProvider.Enabled: evaluation failed, using fallback", "flag", flag, "error", err)
		return def
	}
	return v
}

// Close shuts down the LaunchDarkly client.
func (p *LDProvider) Close() error {
	return p.client.Close()
}
