package registry

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/store"
)

// FinalizeRoute makes req the canonical route for its name.
//
// token must be a capability for the finalize audience whose subject is the
// configured finalize authority. The TTL must lie within the configured
// caps. The route's version is bumped only when (dest_hash, ttl_s) changes.
func (r *Registry) FinalizeRoute(ctx context.Context, token string, req ir.FinalizeRequest) (ir.CanonicalRoute, error) {
	if req.NameHash.IsZero() {
		return ir.CanonicalRoute{}, ir.NewInvalidArgument("name_hash is required")
	}
	cfg, err := r.Config(ctx)
	if err != nil {
		return ir.CanonicalRoute{}, err
	}

	caller, err := r.tokens.Verify(token, capability.AudienceFinalize)
	if err != nil {
		r.log.Info("finalize rejected", zap.String("name", req.NameHash.String()), zap.Error(err))
		return ir.CanonicalRoute{}, ir.NewError(ir.ErrCodeUnauthorizedFinalize, "finalize capability: %v", err)
	}
	if cfg.FinalizeAuthority == "" || caller != cfg.FinalizeAuthority {
		r.log.Info("finalize rejected",
			zap.String("name", req.NameHash.String()),
			zap.String("caller", caller.Short()))
		return ir.CanonicalRoute{}, ir.NewError(ir.ErrCodeUnauthorizedFinalize,
			"caller %s is not the finalize authority", caller.Short())
	}

	if req.TTLSeconds < cfg.TTLMinSeconds || req.TTLSeconds > cfg.TTLMaxSeconds {
		return ir.CanonicalRoute{}, ir.NewError(ir.ErrCodeTTLOutOfRange,
			"ttl_s %d outside [%d, %d]", req.TTLSeconds, cfg.TTLMinSeconds, cfg.TTLMaxSeconds).
			WithDetail("ttl_min_s", strconv.FormatUint(uint64(cfg.TTLMinSeconds), 10)).
			WithDetail("ttl_max_s", strconv.FormatUint(uint64(cfg.TTLMaxSeconds), 10))
	}

	now := r.clock.Tick()
	route, err := r.routes.Upsert(ctx, ir.CanonicalRouteKey(req.NameHash), func(cur *ir.CanonicalRoute, found bool) error {
		return applyFinalize(cur, found, req, now)
	})
	if err != nil {
		return ir.CanonicalRoute{}, store.Translate(err, "canonical route")
	}
	r.log.Info("route finalized",
		zap.String("name", route.NameHash.String()),
		zap.String("dest", route.DestHash.String()),
		zap.Uint32("ttl_s", route.TTLSeconds),
		zap.Uint64("version", route.Version),
		zap.Uint64("tick", now))
	return route, nil
}

// applyFinalize is the read-compare-write step run under the route's lock.
func applyFinalize(cur *ir.CanonicalRoute, found bool, req ir.FinalizeRequest, now uint64) error {
	switch {
	case !found:
		*cur = ir.CanonicalRoute{
			NameHash:   req.NameHash,
			DestHash:   req.DestHash,
			TTLSeconds: req.TTLSeconds,
			Version:    1,
		}
	case cur.DestHash != req.DestHash || cur.TTLSeconds != req.TTLSeconds:
		next, err := ir.CheckedAdd(cur.Version, 1)
		if err != nil {
			return err
		}
		cur.DestHash = req.DestHash
		cur.TTLSeconds = req.TTLSeconds
		cur.Version = next
	}
	cur.UpdatedAtTick = now
	cur.LastAggregate = req.AggregateRef
	return nil
}

// Route returns the canonical route for nameHash.
func (r *Registry) Route(ctx context.Context, nameHash ir.Hash) (ir.CanonicalRoute, error) {
	route, err := r.routes.Get(ctx, ir.CanonicalRouteKey(nameHash))
	if err != nil {
		return route, store.Translate(err, "canonical route for "+nameHash.String())
	}
	return route, nil
}

// Routes lists every canonical route in first-finalized order.
func (r *Registry) Routes(ctx context.Context) ([]ir.CanonicalRoute, error) {
	return r.routes.List(ctx)
}
