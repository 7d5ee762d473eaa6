// Package api serves the registry and quorum operations over HTTP.
//
// Every mutating route requires an Authorization: Bearer capability token
// for the API audience; its subject is the caller identity passed to the
// underlying operation. Read routes are public.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/logging"
	"github.com/roach88/ddnsquorum/internal/quorum"
	"github.com/roach88/ddnsquorum/internal/registry"
)

// Server holds the services behind the HTTP routes.
type Server struct {
	registry *registry.Registry
	quorum   *quorum.Service
	tokens   *capability.Verifier
	clock    epoch.Clock
	metrics  *metrics
	log      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// New creates a server. tokens verifies caller capabilities and should not
// be shared with the registry, so API and finalize tokens have separate
// replay windows.
func New(reg *registry.Registry, q *quorum.Service, tokens *capability.Verifier, clock epoch.Clock, opts ...Option) *Server {
	s := &Server{
		registry: reg,
		quorum:   q,
		tokens:   tokens,
		clock:    clock,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNop(s.log).Named("api")
	s.metrics = newMetrics(s.currentEpoch)
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metrics.middleware)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.Handle("/api/config", s.op("get_config", s.handleGetConfig)).Methods(http.MethodGet)
	r.Handle("/api/config", s.requireCaller(s.op("init_config", s.handleInitConfig))).Methods(http.MethodPost)
	r.Handle("/api/config", s.requireCaller(s.op("update_config", s.handleUpdateConfig))).Methods(http.MethodPut)

	r.Handle("/api/quorum-authority", s.op("get_quorum_authority", s.handleGetQuorumAuthority)).Methods(http.MethodGet)
	r.Handle("/api/quorum-authority", s.requireCaller(s.op("init_quorum_authority", s.handleInitQuorumAuthority))).Methods(http.MethodPost)

	r.Handle("/api/verifier-sets", s.requireCaller(s.op("init_verifier_set", s.handleInitVerifierSet))).Methods(http.MethodPost)
	r.Handle("/api/verifier-sets/{epoch}", s.requireCaller(s.op("update_verifier_set", s.handleUpdateVerifierSet))).Methods(http.MethodPut)
	r.Handle("/api/verifier-sets/{epoch}", s.op("get_verifier_set", s.handleGetVerifierSet)).Methods(http.MethodGet)

	r.Handle("/api/stake-snapshots", s.requireCaller(s.op("submit_stake_snapshot", s.handleSubmitStakeSnapshot))).Methods(http.MethodPost)
	r.Handle("/api/stake-snapshots/{epoch}", s.op("get_stake_snapshot", s.handleGetStakeSnapshot)).Methods(http.MethodGet)

	r.Handle("/api/aggregates", s.requireCaller(s.op("submit_aggregate", s.handleSubmitAggregate))).Methods(http.MethodPost)
	r.Handle("/api/aggregates", s.op("list_aggregates", s.handleListAggregates)).Methods(http.MethodGet)
	r.Handle("/api/aggregates/{epoch}/{name}/{submitter}", s.op("get_aggregate", s.handleGetAggregate)).Methods(http.MethodGet)

	r.Handle("/api/finalize", s.requireCaller(s.op("finalize_if_quorum", s.handleFinalize))).Methods(http.MethodPost)

	r.Handle("/api/routes", s.op("list_routes", s.handleListRoutes)).Methods(http.MethodGet)
	r.Handle("/api/routes/{name}", s.op("get_route", s.handleGetRoute)).Methods(http.MethodGet)

	r.Handle("/api/epoch", s.op("get_epoch", s.handleEpoch)).Methods(http.MethodGet)
	return r
}
