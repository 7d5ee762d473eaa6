package registry

import "github.com/roach88/ddnsquorum/internal/ir"

// ConfigParams are the admin-settable fields of the registry config.
type ConfigParams struct {
	EpochLen          uint64      `json:"epoch_len" yaml:"epoch_len"`
	MinReceipts       uint32      `json:"min_receipts" yaml:"min_receipts"`
	MinStakeWeight    uint64      `json:"min_stake_weight" yaml:"min_stake_weight"`
	TTLMinSeconds     uint32      `json:"ttl_min_s" yaml:"ttl_min_s"`
	TTLMaxSeconds     uint32      `json:"ttl_max_s" yaml:"ttl_max_s"`
	FinalizeAuthority ir.Identity `json:"finalize_authority" yaml:"finalize_authority"`
}

// Validate checks the policy invariants. An empty finalize authority is
// allowed: until one is set, every finalize is rejected.
func (p ConfigParams) Validate() error {
	if p.EpochLen == 0 {
		return ir.NewError(ir.ErrCodeBadEpochLen, "epoch_len must be positive")
	}
	if p.TTLMinSeconds > p.TTLMaxSeconds {
		return ir.NewError(ir.ErrCodeBadTTLCaps, "ttl_min_s %d exceeds ttl_max_s %d", p.TTLMinSeconds, p.TTLMaxSeconds)
	}
	if p.FinalizeAuthority != "" {
		if err := p.FinalizeAuthority.Validate(); err != nil {
			return ir.NewInvalidArgument("finalize_authority: %v", err)
		}
	}
	return nil
}

// ParamsOf returns the settable fields of cfg.
func ParamsOf(cfg ir.RegistryConfig) ConfigParams {
	return ConfigParams{
		EpochLen:          cfg.EpochLen,
		MinReceipts:       cfg.MinReceipts,
		MinStakeWeight:    cfg.MinStakeWeight,
		TTLMinSeconds:     cfg.TTLMinSeconds,
		TTLMaxSeconds:     cfg.TTLMaxSeconds,
		FinalizeAuthority: cfg.FinalizeAuthority,
	}
}

func (p ConfigParams) config(authority ir.Identity) ir.RegistryConfig {
	return ir.RegistryConfig{
		Authority:         authority,
		EpochLen:          p.EpochLen,
		MinReceipts:       p.MinReceipts,
		MinStakeWeight:    p.MinStakeWeight,
		TTLMinSeconds:     p.TTLMinSeconds,
		TTLMaxSeconds:     p.TTLMaxSeconds,
		FinalizeAuthority: p.FinalizeAuthority,
	}
}
