package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/keyring"
	"github.com/roach88/ddnsquorum/internal/store"
)

func TestConfigParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *ConfigParams)
		code   ir.ErrorCode
	}{
		{"valid", func(p *ConfigParams) {}, ""},
		{"equal caps", func(p *ConfigParams) { p.TTLMinSeconds, p.TTLMaxSeconds = 300, 300 }, ""},
		{"no finalize authority", func(p *ConfigParams) { p.FinalizeAuthority = "" }, ""},
		{"zero epoch len", func(p *ConfigParams) { p.EpochLen = 0 }, ir.ErrCodeBadEpochLen},
		{"inverted caps", func(p *ConfigParams) { p.TTLMinSeconds, p.TTLMaxSeconds = 61, 60 }, ir.ErrCodeBadTTLCaps},
		{"malformed authority", func(p *ConfigParams) { p.FinalizeAuthority = "gate" }, ir.ErrCodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := defaultParams(keyring.IdentityFor("gate"))
			tt.mutate(&p)
			err := p.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, ir.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestInitConfig(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		f := newFixture(t, b)

		cfg, err := f.reg.Config(ctx)
		require.NoError(t, err)
		assert.Equal(t, f.admin, cfg.Authority)
		assert.Equal(t, uint64(100), cfg.EpochLen)
		assert.Equal(t, f.gate.Identity(), cfg.FinalizeAuthority)
		assert.Equal(t, defaultParams(f.gate.Identity()), ParamsOf(cfg))

		_, err = f.reg.InitConfig(ctx, f.keys.Identity("other"), defaultParams(""))
		assert.True(t, ir.IsCode(err, ir.ErrCodeAlreadyExists), "got %v", err)
	})
}

func TestInitConfig_RejectsBadParams(t *testing.T) {
	ctx := context.Background()
	tokens, err := capability.NewVerifier(0)
	require.NoError(t, err)
	reg := New(store.NewMemory(), epoch.NewManualClock(0), tokens)
	admin := keyring.IdentityFor("admin")

	p := defaultParams("")
	p.EpochLen = 0
	_, err = reg.InitConfig(ctx, admin, p)
	assert.True(t, ir.IsCode(err, ir.ErrCodeBadEpochLen))

	p = defaultParams("")
	p.TTLMinSeconds = 100000
	_, err = reg.InitConfig(ctx, admin, p)
	assert.True(t, ir.IsCode(err, ir.ErrCodeBadTTLCaps))

	_, err = reg.InitConfig(ctx, "not-an-identity", defaultParams(""))
	assert.True(t, ir.IsCode(err, ir.ErrCodeInvalidArgument))

	// Nothing was written by the rejected calls.
	_, err = reg.Config(ctx)
	assert.True(t, ir.IsCode(err, ir.ErrCodeNotFound))
}

func TestUpdateConfig(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b store.Backend) {
		ctx := context.Background()
		f := newFixture(t, b)

		p := defaultParams(f.keys.Identity("gate2"))
		p.MinReceipts = 3

		_, err := f.reg.UpdateConfig(ctx, f.keys.Identity("mallory"), p)
		assert.True(t, ir.IsCode(err, ir.ErrCodeUnauthorized), "got %v", err)

		cfg, err := f.reg.UpdateConfig(ctx, f.admin, p)
		require.NoError(t, err)
		assert.Equal(t, f.admin, cfg.Authority)
		assert.Equal(t, uint32(3), cfg.MinReceipts)
		assert.Equal(t, f.keys.Identity("gate2"), cfg.FinalizeAuthority)

		bad := p
		bad.TTLMinSeconds, bad.TTLMaxSeconds = 10, 5
		_, err = f.reg.UpdateConfig(ctx, f.admin, bad)
		assert.True(t, ir.IsCode(err, ir.ErrCodeBadTTLCaps))

		got, err := f.reg.Config(ctx)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)
	})
}

func TestUpdateConfig_NotFound(t *testing.T) {
	tokens, err := capability.NewVerifier(0)
	require.NoError(t, err)
	reg := New(store.NewMemory(), epoch.NewManualClock(0), tokens)

	_, err = reg.UpdateConfig(context.Background(), keyring.IdentityFor("admin"), defaultParams(""))
	assert.True(t, ir.IsCode(err, ir.ErrCodeNotFound), "got %v", err)
}
