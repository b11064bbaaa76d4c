package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"matchpool/config"
	coreerrors "matchpool/core/errors"
	"matchpool/core/events"
	"matchpool/core/router"
	"matchpool/indexer"
	"matchpool/native/admin"
	"matchpool/native/escrow"
	"matchpool/rpc"
	"matchpool/storage"
)

const indexerBuffer = 1024

// node owns every long-lived component of the daemon.
type node struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      storage.Database
	router  *router.Router
	log     *events.Log
	indexer *indexer.Indexer
	server  *rpc.Server
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if cfg.Storage == config.StorageMemory {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if cfg.Storage == config.StorageBolt {
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.bolt"), nil)
	}
	return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
}

func newNode(cfg *config.Config, logger *slog.Logger) (*node, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	n := &node{cfg: cfg, logger: logger, db: db, log: events.NewLog(cfg.EventLogCapacity)}
	n.router = router.New(db)
	n.router.SetLogger(logger)
	n.router.SetEmitter(n.log)

	if err := n.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}

	if path := strings.TrimSpace(cfg.Indexer.Path); path != "" {
		if n.indexer, err = indexer.Open(cfg.Indexer.Driver, path, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	n.server = rpc.NewServer(n.router, n.log, rpc.Config{
		Auth: rpc.AuthConfig{
			HMACSecret: strings.TrimSpace(os.Getenv(cfg.RPC.JWTSecretEnv)),
			Issuer:     cfg.RPC.JWTIssuer,
		},
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		Burst:              cfg.RPC.Burst,
		Logger:             logger,
	})
	return n, nil
}

// bootstrap initialises a fresh store, credits the genesis allocations and
// installs the handler modules. A store that is already initialised keeps its
// balances.
func (n *node) bootstrap() error {
	administrator, err := n.cfg.AdministratorIdentity()
	if err != nil {
		return err
	}
	fresh := true
	if err := n.router.Bootstrap(administrator, n.cfg.PlatformFeePercent); err != nil {
		if !errors.Is(err, coreerrors.ErrAlreadyInitialized) {
			return fmt.Errorf("bootstrap: %w", err)
		}
		fresh = false
	}
	if fresh {
		for _, alloc := range n.cfg.Genesis {
			id, amount, err := alloc.Parse()
			if err != nil {
				return err
			}
			if err := n.router.Fund(id, amount); err != nil {
				return fmt.Errorf("genesis allocation %s: %w", alloc.Identity, err)
			}
		}
	}
	if _, err := n.router.Install(administrator, admin.NewModule("")); err != nil {
		return fmt.Errorf("install admin module: %w", err)
	}
	if _, err := n.router.Install(administrator, escrow.NewModule("")); err != nil {
		return fmt.Errorf("install escrow module: %w", err)
	}
	ops, err := n.router.Operations()
	if err != nil {
		return err
	}
	n.logger.Info("router ready", slog.Bool("fresh", fresh), slog.Int("operations", len(ops)))
	return nil
}

// Run serves RPC and feeds the indexer until ctx is cancelled.
func (n *node) Run(ctx context.Context) error {
	if n.indexer != nil {
		feed, cancel := n.log.Subscribe(indexerBuffer)
		defer cancel()
		if err := n.indexer.Backfill(n.log); err != nil {
			return fmt.Errorf("indexer backfill: %w", err)
		}
		go func() {
			if err := n.indexer.Run(ctx, n.log, feed); err != nil && !errors.Is(err, context.Canceled) {
				n.logger.Error("indexer stopped", slog.Any("error", err))
			}
		}()
	}
	timeout := time.Duration(n.cfg.RPC.ReadHeaderTimeoutSeconds) * time.Second
	return n.server.Serve(ctx, n.cfg.RPC.Address, timeout)
}

func (n *node) Close() {
	if n.db != nil {
		n.db.Close()
	}
}
