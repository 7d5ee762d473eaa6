package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/quorum"
	"github.com/roach88/ddnsquorum/internal/registry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConfig(r *http.Request) (int, any, error) {
	cfg, err := s.registry.Config(r.Context())
	return http.StatusOK, cfg, err
}

func (s *Server) handleInitConfig(r *http.Request) (int, any, error) {
	var p registry.ConfigParams
	if err := decode(r, &p); err != nil {
		return 0, nil, err
	}
	cfg, err := s.registry.InitConfig(r.Context(), caller(r), p)
	return http.StatusCreated, cfg, err
}

func (s *Server) handleUpdateConfig(r *http.Request) (int, any, error) {
	var p registry.ConfigParams
	if err := decode(r, &p); err != nil {
		return 0, nil, err
	}
	cfg, err := s.registry.UpdateConfig(r.Context(), caller(r), p)
	return http.StatusOK, cfg, err
}

func (s *Server) handleGetQuorumAuthority(r *http.Request) (int, any, error) {
	qa, err := s.quorum.QuorumAuthority(r.Context())
	return http.StatusOK, qa, err
}

func (s *Server) handleInitQuorumAuthority(r *http.Request) (int, any, error) {
	qa, err := s.quorum.InitQuorumAuthority(r.Context(), caller(r))
	return http.StatusCreated, qa, err
}

type verifierSetRequest struct {
	EpochID              uint64        `json:"epoch_id"`
	ThresholdStakeWeight uint64        `json:"threshold_stake_weight"`
	Members              []ir.Identity `json:"members"`
}

func (s *Server) handleInitVerifierSet(r *http.Request) (int, any, error) {
	var req verifierSetRequest
	if err := decode(r, &req); err != nil {
		return 0, nil, err
	}
	set, err := s.quorum.InitVerifierSet(r.Context(), caller(r), req.EpochID, req.ThresholdStakeWeight, req.Members)
	return http.StatusCreated, set, err
}

func (s *Server) handleUpdateVerifierSet(r *http.Request) (int, any, error) {
	epochID, err := epochVar(r)
	if err != nil {
		return 0, nil, err
	}
	var req verifierSetRequest
	if err := decode(r, &req); err != nil {
		return 0, nil, err
	}
	if req.EpochID != 0 && req.EpochID != epochID {
		return 0, nil, ir.NewInvalidArgument("body epoch_id %d does not match path epoch %d", req.EpochID, epochID)
	}
	set, err := s.quorum.UpdateVerifierSet(r.Context(), caller(r), epochID, req.ThresholdStakeWeight, req.Members)
	return http.StatusOK, set, err
}

func (s *Server) handleGetVerifierSet(r *http.Request) (int, any, error) {
	epochID, err := epochVar(r)
	if err != nil {
		return 0, nil, err
	}
	set, err := s.quorum.VerifierSet(r.Context(), epochID)
	return http.StatusOK, set, err
}

type stakeSnapshotRequest struct {
	EpochID       uint64  `json:"epoch_id"`
	UserStakeRoot ir.Hash `json:"user_stake_root"`
	TotalStake    uint64  `json:"total_stake"`
}

func (s *Server) handleSubmitStakeSnapshot(r *http.Request) (int, any, error) {
	var req stakeSnapshotRequest
	if err := decode(r, &req); err != nil {
		return 0, nil, err
	}
	snap, err := s.quorum.SubmitStakeSnapshot(r.Context(), caller(r), req.EpochID, req.UserStakeRoot, req.TotalStake)
	return http.StatusCreated, snap, err
}

func (s *Server) handleGetStakeSnapshot(r *http.Request) (int, any, error) {
	epochID, err := epochVar(r)
	if err != nil {
		return 0, nil, err
	}
	snap, err := s.quorum.StakeSnapshot(r.Context(), epochID)
	return http.StatusOK, snap, err
}

func (s *Server) handleSubmitAggregate(r *http.Request) (int, any, error) {
	var p quorum.AggregateParams
	if err := decode(r, &p); err != nil {
		return 0, nil, err
	}
	agg, err := s.quorum.SubmitAggregate(r.Context(), caller(r), p)
	return http.StatusCreated, agg, err
}

func (s *Server) handleGetAggregate(r *http.Request) (int, any, error) {
	epochID, err := epochVar(r)
	if err != nil {
		return 0, nil, err
	}
	name, err := nameVar(r)
	if err != nil {
		return 0, nil, err
	}
	submitter, err := ir.ParseIdentity(mux.Vars(r)["submitter"])
	if err != nil {
		return 0, nil, ir.NewInvalidArgument("submitter: %v", err)
	}
	agg, err := s.quorum.Aggregate(r.Context(), epochID, name, submitter)
	return http.StatusOK, agg, err
}

func (s *Server) handleListAggregates(r *http.Request) (int, any, error) {
	var filter quorum.AggregateFilter
	q := r.URL.Query()
	if v := q.Get("epoch"); v != "" {
		e, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, nil, ir.NewInvalidArgument("epoch: %v", err)
		}
		filter.EpochID = &e
	}
	if v := q.Get("name"); v != "" {
		h, err := ir.ParseName(v)
		if err != nil {
			return 0, nil, err
		}
		filter.NameHash = &h
	}
	aggs, err := s.quorum.Aggregates(r.Context(), filter)
	return http.StatusOK, aggs, err
}

type finalizeRequest struct {
	EpochID    uint64      `json:"epoch_id"`
	NameHash   ir.Hash     `json:"name_hash"`
	Submitter  ir.Identity `json:"submitter"`
	DestHash   ir.Hash     `json:"dest_hash"`
	TTLSeconds uint32      `json:"ttl_s"`
}

func (s *Server) handleFinalize(r *http.Request) (int, any, error) {
	var req finalizeRequest
	if err := decode(r, &req); err != nil {
		return 0, nil, err
	}
	route, err := s.quorum.FinalizeIfQuorum(r.Context(), req.EpochID, req.NameHash, req.Submitter, req.DestHash, req.TTLSeconds)
	return http.StatusOK, route, err
}

func (s *Server) handleGetRoute(r *http.Request) (int, any, error) {
	name, err := nameVar(r)
	if err != nil {
		return 0, nil, err
	}
	route, err := s.registry.Route(r.Context(), name)
	return http.StatusOK, route, err
}

func (s *Server) handleListRoutes(r *http.Request) (int, any, error) {
	routes, err := s.registry.Routes(r.Context())
	return http.StatusOK, routes, err
}

type epochResponse struct {
	Tick     uint64  `json:"tick"`
	EpochLen uint64  `json:"epoch_len,omitempty"`
	EpochID  *uint64 `json:"epoch_id,omitempty"`
}

func (s *Server) handleEpoch(r *http.Request) (int, any, error) {
	resp := epochResponse{Tick: s.clock.Tick()}
	cfg, err := s.registry.Config(r.Context())
	if ir.IsCode(err, ir.ErrCodeNotFound) {
		return http.StatusOK, resp, nil
	}
	if err != nil {
		return 0, nil, err
	}
	e, err := epoch.Of(resp.Tick, cfg.EpochLen)
	if err != nil {
		return 0, nil, err
	}
	resp.EpochLen = cfg.EpochLen
	resp.EpochID = &e
	return http.StatusOK, resp, nil
}

// currentEpoch backs the epoch gauge.
func (s *Server) currentEpoch() (uint64, bool) {
	cfg, err := s.registry.Config(context.Background())
	if err != nil {
		return 0, false
	}
	e, err := epoch.Current(s.clock, cfg.EpochLen)
	if err != nil {
		return 0, false
	}
	return e, true
}

func caller(r *http.Request) ir.Identity {
	id, _ := CallerFrom(r.Context())
	return id
}

func epochVar(r *http.Request) (uint64, error) {
	e, err := strconv.ParseUint(mux.Vars(r)["epoch"], 10, 64)
	if err != nil {
		return 0, ir.NewInvalidArgument("epoch: %v", err)
	}
	return e, nil
}

func nameVar(r *http.Request) (ir.Hash, error) {
	return ir.ParseName(mux.Vars(r)["name"])
}
