package harness

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/keyring"
	"github.com/roach88/ddnsquorum/internal/quorum"
	"github.com/roach88/ddnsquorum/internal/registry"
)

// opFunc invokes one operation on behalf of caller and renders its result.
type opFunc func(ctx context.Context, h *Harness, caller string, args map[string]any) (map[string]any, error)

var operations = map[string]opFunc{
	"init_config":           opInitConfig,
	"update_config":         opUpdateConfig,
	"init_quorum_authority": opInitQuorumAuthority,
	"init_verifier_set":     opInitVerifierSet,
	"update_verifier_set":   opUpdateVerifierSet,
	"submit_stake_snapshot": opSubmitStakeSnapshot,
	"submit_aggregate":      opSubmitAggregate,
	"finalize_if_quorum":    opFinalizeIfQuorum,
	"finalize_route":        opFinalizeRoute,
}

func opInitConfig(ctx context.Context, h *Harness, caller string, args map[string]any) (map[string]any, error) {
	p, err := h.configParams(args)
	if err != nil {
		return nil, err
	}
	cfg, err := h.registry.InitConfig(ctx, h.keys.Identity(caller), p)
	if err != nil {
		return nil, err
	}
	return h.renderConfig(cfg), nil
}

func opUpdateConfig(ctx context.Context, h *Harness, caller string, args map[string]any) (map[string]any, error) {
	p, err := h.configParams(args)
	if err != nil {
		return nil, err
	}
	cfg, err := h.registry.UpdateConfig(ctx, h.keys.Identity(caller), p)
	if err != nil {
		return nil, err
	}
	return h.renderConfig(cfg), nil
}

func opInitQuorumAuthority(ctx context.Context, h *Harness, caller string, _ map[string]any) (map[string]any, error) {
	qa, err := h.quorum.InitQuorumAuthority(ctx, h.keys.Identity(caller))
	if err != nil {
		return nil, err
	}
	return h.renderQuorumAuthority(qa), nil
}

func opInitVerifierSet(ctx context.Context, h *Harness, caller string, args map[string]any) (map[string]any, error) {
	epochID, threshold, members, err := h.setArgs(args)
	if err != nil {
		return nil, err
	}
	vs, err := h.quorum.InitVerifierSet(ctx, h.keys.Identity(caller), epochID, threshold, members)
	if err != nil {
		return nil, err
	}
	return h.renderVerifierSet(vs), nil
}

func opUpdateVerifierSet(ctx context.Context, h *Harness, caller string, args map[string]any) (map[string]any, error) {
	epochID, threshold, members, err := h.setArgs(args)
	if err != nil {
		return nil, err
	}
	vs, err := h.quorum.UpdateVerifierSet(ctx, h.keys.Identity(caller), epochID, threshold, members)
	if err != nil {
		return nil, err
	}
	return h.renderVerifierSet(vs), nil
}

func opSubmitStakeSnapshot(ctx context.Context, h *Harness, caller string, args map[string]any) (map[string]any, error) {
	epochID, err := uintArg(args, "epoch_id")
	if err != nil {
		return nil, err
	}
	total, err := uintArg(args, "total_stake")
	if err != nil {
		return nil, err
	}
	root, err := h.rootArg(args, "user_stake_root")
	if err != nil {
		return nil, err
	}
	snap, err := h.quorum.SubmitStakeSnapshot(ctx, h.keys.Identity(caller), epochID, root, total)
	if err != nil {
		return nil, err
	}
	return h.renderSnapshot(snap), nil
}

func opSubmitAggregate(ctx context.Context, h *Harness, caller string, args map[string]any) (map[string]any, error) {
	var p quorum.AggregateParams
	var err error
	if p.EpochID, err = uintArg(args, "epoch_id"); err != nil {
		return nil, err
	}
	if p.NameHash, err = h.nameArg(args, "name"); err != nil {
		return nil, err
	}
	if p.DestHash, err = h.destArg(args, "dest"); err != nil {
		return nil, err
	}
	if p.TTLSeconds, err = uint32Arg(args, "ttl_s"); err != nil {
		return nil, err
	}
	if p.ReceiptCount, err = uint32Arg(args, "receipt_count"); err != nil {
		return nil, err
	}
	if p.StakeWeight, err = uintArg(args, "stake_weight"); err != nil {
		return nil, err
	}
	if p.ReceiptsRoot, err = h.rootArg(args, "receipts_root"); err != nil {
		return nil, err
	}

	agg, err := h.quorum.SubmitAggregate(ctx, h.keys.Identity(caller), p)
	if err != nil {
		return nil, err
	}
	addr, err := agg.Key().Address()
	if err != nil {
		return nil, err
	}
	h.labels[string(addr)] = fmt.Sprintf("%d/%s/%s", agg.EpochID, h.label(agg.NameHash), caller)
	return h.renderAggregate(agg), nil
}

func opFinalizeIfQuorum(ctx context.Context, h *Harness, _ string, args map[string]any) (map[string]any, error) {
	epochID, err := uintArg(args, "epoch_id")
	if err != nil {
		return nil, err
	}
	name, err := h.nameArg(args, "name")
	if err != nil {
		return nil, err
	}
	submitter, err := stringArg(args, "submitter")
	if err != nil {
		return nil, err
	}
	dest, err := h.destArg(args, "dest")
	if err != nil {
		return nil, err
	}
	ttl, err := uint32Arg(args, "ttl_s")
	if err != nil {
		return nil, err
	}
	route, err := h.quorum.FinalizeIfQuorum(ctx, epochID, name, h.keys.Identity(submitter), dest, ttl)
	if err != nil {
		return nil, err
	}
	return h.renderRoute(route), nil
}

// opFinalizeRoute calls the registry directly, as a holder of caller's key
// would. The audience defaults to the finalize audience.
func opFinalizeRoute(ctx context.Context, h *Harness, caller string, args map[string]any) (map[string]any, error) {
	var req ir.FinalizeRequest
	var err error
	if req.NameHash, err = h.nameArg(args, "name"); err != nil {
		return nil, err
	}
	if req.DestHash, err = h.destArg(args, "dest"); err != nil {
		return nil, err
	}
	if req.TTLSeconds, err = uint32Arg(args, "ttl_s"); err != nil {
		return nil, err
	}
	if label := optStringArg(args, "aggregate"); label != "" {
		req.AggregateRef = ir.Address(keyring.HashOf(label).String())
		h.labels[string(req.AggregateRef)] = label
	}

	audience := capability.AudienceFinalize
	if optStringArg(args, "audience") == "api" {
		audience = capability.AudienceAPI
	}
	token, err := h.keys.Signer(caller).Mint(audience)
	if err != nil {
		return nil, err
	}
	route, err := h.registry.FinalizeRoute(ctx, token, req)
	if err != nil {
		return nil, err
	}
	return h.renderRoute(route), nil
}

func (h *Harness) configParams(args map[string]any) (registry.ConfigParams, error) {
	var p registry.ConfigParams
	var err error
	if p.EpochLen, err = uintArg(args, "epoch_len"); err != nil {
		return p, err
	}
	if p.MinReceipts, err = uint32Arg(args, "min_receipts"); err != nil {
		return p, err
	}
	if p.MinStakeWeight, err = uintArg(args, "min_stake_weight"); err != nil {
		return p, err
	}
	if p.TTLMinSeconds, err = uint32Arg(args, "ttl_min_s"); err != nil {
		return p, err
	}
	if p.TTLMaxSeconds, err = uint32Arg(args, "ttl_max_s"); err != nil {
		return p, err
	}
	if alias := optStringArg(args, "finalize_authority"); alias != "" {
		p.FinalizeAuthority = h.keys.Identity(alias)
	}
	return p, nil
}

func (h *Harness) setArgs(args map[string]any) (epochID, threshold uint64, members []ir.Identity, err error) {
	if epochID, err = uintArg(args, "epoch_id"); err != nil {
		return
	}
	if threshold, err = uintArg(args, "threshold"); err != nil {
		return
	}
	aliases, err := listArg(args, "members")
	if err != nil {
		return
	}
	members = make([]ir.Identity, len(aliases))
	for i, alias := range aliases {
		members[i] = h.keys.Identity(alias)
	}
	return
}

func (h *Harness) nameArg(args map[string]any, key string) (ir.Hash, error) {
	s, err := stringArg(args, key)
	if err != nil {
		return ir.Hash{}, err
	}
	hash, err := ir.NameHash(s)
	if err != nil {
		return ir.Hash{}, err
	}
	h.labels[hash.String()] = ir.NormalizeName(s)
	return hash, nil
}

func (h *Harness) destArg(args map[string]any, key string) (ir.Hash, error) {
	s, err := stringArg(args, key)
	if err != nil {
		return ir.Hash{}, err
	}
	hash, err := ir.DestHash(s)
	if err != nil {
		return ir.Hash{}, err
	}
	h.labels[hash.String()] = s
	return hash, nil
}

func (h *Harness) rootArg(args map[string]any, key string) (ir.Hash, error) {
	label, err := stringArg(args, key)
	if err != nil {
		return ir.Hash{}, err
	}
	hash := keyring.HashOf(label)
	h.labels[hash.String()] = label
	return hash, nil
}

// label renders a hash as the string it was derived from.
func (h *Harness) label(hash ir.Hash) string {
	if l, ok := h.labels[hash.String()]; ok {
		return l
	}
	return hash.String()
}

func (h *Harness) alias(id ir.Identity) string {
	if id == "" {
		return ""
	}
	return h.keys.Alias(id)
}

func (h *Harness) renderConfig(cfg ir.RegistryConfig) map[string]any {
	return map[string]any{
		"authority":          h.alias(cfg.Authority),
		"epoch_len":          cfg.EpochLen,
		"min_receipts":       cfg.MinReceipts,
		"min_stake_weight":   cfg.MinStakeWeight,
		"ttl_min_s":          cfg.TTLMinSeconds,
		"ttl_max_s":          cfg.TTLMaxSeconds,
		"finalize_authority": h.alias(cfg.FinalizeAuthority),
	}
}

func (h *Harness) renderQuorumAuthority(qa ir.QuorumAuthority) map[string]any {
	return map[string]any{
		"identity":       h.alias(qa.Identity),
		"linked_at_tick": qa.LinkedAtTick,
	}
}

func (h *Harness) renderVerifierSet(vs ir.VerifierSet) map[string]any {
	members := make([]any, len(vs.Members))
	for i, m := range vs.Members {
		members[i] = h.alias(m)
	}
	return map[string]any{
		"epoch_id":               vs.EpochID,
		"admin":                  h.alias(vs.Admin),
		"threshold_stake_weight": vs.ThresholdStakeWeight,
		"members":                members,
	}
}

func (h *Harness) renderSnapshot(s ir.StakeSnapshot) map[string]any {
	return map[string]any{
		"epoch_id":        s.EpochID,
		"total_stake":     s.TotalStake,
		"user_stake_root": h.label(s.UserStakeRoot),
		"submitter":       h.alias(s.Submitter),
		"created_at_tick": s.CreatedAtTick,
	}
}

func (h *Harness) renderAggregate(a ir.AggregateSubmission) map[string]any {
	return map[string]any{
		"epoch_id":          a.EpochID,
		"name":              h.label(a.NameHash),
		"dest":              h.label(a.DestHash),
		"ttl_s":             a.TTLSeconds,
		"receipt_count":     a.ReceiptCount,
		"stake_weight":      a.StakeWeight,
		"receipts_root":     h.label(a.ReceiptsRoot),
		"submitter":         h.alias(a.Submitter),
		"submitted_at_tick": a.SubmittedAtTick,
	}
}

func (h *Harness) renderRoute(r ir.CanonicalRoute) map[string]any {
	ref := string(r.LastAggregate)
	if l, ok := h.labels[ref]; ok {
		ref = l
	}
	return map[string]any{
		"name":            h.label(r.NameHash),
		"dest":            h.label(r.DestHash),
		"ttl_s":           r.TTLSeconds,
		"version":         r.Version,
		"updated_at_tick": r.UpdatedAtTick,
		"last_aggregate":  ref,
	}
}

// normalizeArgs copies YAML-decoded args, rejecting values canonical JSON
// cannot carry.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		nv, err := normalizeArg(v)
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeArg(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null values are not allowed")
	case string, bool, int, int64, uint64:
		return val, nil
	case float64:
		return nil, fmt.Errorf("floats are not allowed: %v", val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			ne, err := normalizeArg(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ne
		}
		return out, nil
	case map[string]any:
		return normalizeArgs(val)
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

func uintArg(args map[string]any, key string) (uint64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("arg %q is required", key)
	}
	switch n := v.(type) {
	case int:
		if n >= 0 {
			return uint64(n), nil
		}
	case int64:
		if n >= 0 {
			return uint64(n), nil
		}
	case uint64:
		return n, nil
	case string:
		if u, err := strconv.ParseUint(n, 10, 64); err == nil {
			return u, nil
		}
	}
	return 0, fmt.Errorf("arg %q must be a non-negative integer, got %v", key, v)
}

func uint32Arg(args map[string]any, key string) (uint32, error) {
	n, err := uintArg(args, key)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("arg %q exceeds uint32: %d", key, n)
	}
	return uint32(n), nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("arg %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("arg %q must be a string, got %T", key, v)
	}
	return s, nil
}

func optStringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func listArg(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("arg %q is required", key)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("arg %q must be a list, got %T", key, v)
	}
	out := make([]string, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("arg %q[%d] must be a string, got %T", key, i, elem)
		}
		out[i] = s
	}
	return out, nil
}
