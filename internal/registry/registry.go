package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/logging"
	"github.com/roach88/ddnsquorum/internal/store"
)

// Registry is the canonical registry service.
// Safe for concurrent use; all mutual exclusion comes from the store.
type Registry struct {
	configs *store.Table[ir.RegistryConfig]
	routes  *store.Table[ir.CanonicalRoute]
	clock   epoch.Clock
	tokens  *capability.Verifier
	log     *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// New creates a registry over backend. tokens verifies finalize
// capabilities; its replay window is shared by every FinalizeRoute call.
func New(backend store.Backend, clock epoch.Clock, tokens *capability.Verifier, opts ...Option) *Registry {
	r := &Registry{
		configs: store.NewTable[ir.RegistryConfig](backend, ir.KindRegistryConfig),
		routes:  store.NewTable[ir.CanonicalRoute](backend, ir.KindCanonicalRoute),
		clock:   clock,
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.OrNop(r.log).Named("registry")
	return r
}

// Config returns the registry config, or NOT_FOUND before InitConfig.
func (r *Registry) Config(ctx context.Context) (ir.RegistryConfig, error) {
	cfg, err := r.configs.Get(ctx, ir.RegistryConfigKey())
	if err != nil {
		return cfg, store.Translate(err, "registry config")
	}
	return cfg, nil
}

// InitConfig creates the registry config. The caller becomes its authority.
func (r *Registry) InitConfig(ctx context.Context, caller ir.Identity, p ConfigParams) (ir.RegistryConfig, error) {
	if err := checkCaller(caller); err != nil {
		return ir.RegistryConfig{}, err
	}
	if err := p.Validate(); err != nil {
		return ir.RegistryConfig{}, err
	}
	cfg := p.config(caller)
	if err := r.configs.Create(ctx, ir.RegistryConfigKey(), cfg); err != nil {
		return ir.RegistryConfig{}, store.Translate(err, "registry config")
	}
	r.log.Info("registry config initialized",
		zap.String("authority", caller.Short()),
		zap.Uint64("epoch_len", cfg.EpochLen),
		zap.String("finalize_authority", cfg.FinalizeAuthority.Short()))
	return cfg, nil
}

// UpdateConfig replaces the policy fields of the config. Only the authority
// may call it; the authority itself never changes.
func (r *Registry) UpdateConfig(ctx context.Context, caller ir.Identity, p ConfigParams) (ir.RegistryConfig, error) {
	if err := checkCaller(caller); err != nil {
		return ir.RegistryConfig{}, err
	}
	if err := p.Validate(); err != nil {
		return ir.RegistryConfig{}, err
	}
	cfg, err := r.configs.Update(ctx, ir.RegistryConfigKey(), func(cur *ir.RegistryConfig) error {
		if cur.Authority != caller {
			return ir.NewError(ir.ErrCodeUnauthorized, "caller %s is not the registry authority", caller.Short())
		}
		*cur = p.config(cur.Authority)
		return nil
	})
	if err != nil {
		r.log.Debug("config update rejected", zap.String("caller", caller.Short()), zap.Error(err))
		return ir.RegistryConfig{}, store.Translate(err, "registry config")
	}
	r.log.Info("registry config updated",
		zap.Uint64("epoch_len", cfg.EpochLen),
		zap.String("finalize_authority", cfg.FinalizeAuthority.Short()))
	return cfg, nil
}

func checkCaller(caller ir.Identity) error {
	if err := caller.Validate(); err != nil {
		return ir.NewInvalidArgument("caller: %v", err)
	}
	return nil
}
