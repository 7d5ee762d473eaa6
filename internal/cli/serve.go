package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ddnsquorum/internal/api"
	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/config"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/logging"
	"github.com/roach88/ddnsquorum/internal/quorum"
	"github.com/roach88/ddnsquorum/internal/registry"
	"github.com/roach88/ddnsquorum/internal/store"
)

// shutdownTimeout bounds how long serve waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string // overrides server.addr

	// ready, when set, receives the bound address once the listener is open.
	ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry and quorum API over HTTP",
		Long: `Start the HTTP API.

The store, listen address, clock, gate key and logging come from the
deployment config (--config, default ddnsq.yaml). The server stops on
SIGINT or SIGTERM after draining in-flight requests.

Example:
  ddnsq serve --config ddnsq.yaml
  DDNSQ_ADDR=0.0.0.0:8053 ddnsq serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	log, err := logging.New(level, cfg.Log.Encoding)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	defer func() { _ = log.Sync() }()

	backend, err := openBackend(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Error("error closing store", zap.Error(err))
		}
	}()

	genesis, created, err := epoch.AnchorGenesis(cmd.Context(), backend, cfg.Genesis(), time.Now())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to anchor clock genesis", err)
	}
	if created && cfg.Genesis().IsZero() {
		log.Warn("clock.genesis not set; anchored ticks at first start", zap.Time("genesis", genesis))
	}
	clock := epoch.NewSlotClock(genesis, cfg.SlotDuration())

	quorumOpts := []quorum.Option{quorum.WithLogger(log)}
	if cfg.Keys.GateKey != "" {
		gate, err := capability.LoadSigner(cfg.Keys.GateKey)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load gate key", err)
		}
		quorumOpts = append(quorumOpts, quorum.WithGate(gate.WithTTL(cfg.TokenTTL())))
		log.Info("quorum gate key loaded", zap.String("identity", string(gate.Identity())))
	} else {
		log.Warn("keys.gate_key not set; finalize_if_quorum will be rejected")
	}

	finalizeTokens, err := capability.NewVerifier(cfg.Auth.ReplayWindow)
	if err != nil {
		return err
	}
	apiTokens, err := capability.NewVerifier(cfg.Auth.ReplayWindow)
	if err != nil {
		return err
	}
	reg := registry.New(backend, clock, finalizeTokens, registry.WithLogger(log))
	svc := quorum.New(backend, clock, reg, quorumOpts...)
	server := api.New(reg, svc, apiTokens, clock, api.WithLogger(log))

	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpServer := &http.Server{
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	g, ctx := errgroup.WithContext(parent)

	g.Go(func() error {
		log.Info("api listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("store", cfg.Store.Backend),
			zap.Duration("slot", cfg.SlotDuration()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if opts.ready != nil {
		opts.ready(ln.Addr().String())
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	log.Info("server stopped")
	return nil
}

// openBackend opens the store backend named by the config.
func openBackend(cfg *config.Config) (store.Backend, error) {
	if cfg.Store.Backend == "memory" {
		return store.NewMemory(), nil
	}
	return store.Open(cfg.Store.Path)
}
