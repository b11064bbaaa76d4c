package main

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"matchpool/config"
	"matchpool/core/types"
	"matchpool/native/escrow"
)

func testConfig(t *testing.T, storageKind string) (*config.Config, types.Identity) {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Storage = storageKind
	player := types.Identity{0x01}
	cfg.Genesis = []config.Allocation{{Identity: player.String(), Amount: "500"}}
	return cfg, player
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestNewNodeInstallsModulesAndGenesis(t *testing.T) {
	cfg, player := testConfig(t, config.StorageMemory)
	n, err := newNode(cfg, quietLogger())
	require.NoError(t, err)
	defer n.Close()

	ops, err := n.router.Operations()
	require.NoError(t, err)
	require.Contains(t, ops, escrow.OpCreateMatch)

	bal, err := n.router.Balance(player)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500), bal)
}

func TestNodeRestartKeepsBalances(t *testing.T) {
	cfg, player := testConfig(t, config.StorageLevelDB)
	n, err := newNode(cfg, quietLogger())
	require.NoError(t, err)

	client := escrow.NewClient(n.router)
	_, err = client.CreateMatch(context.Background(), player, big.NewInt(100),
		escrow.CreateMatchArgs{Controller: types.Identity{0xC0}, StakeAmount: big.NewInt(100)})
	require.NoError(t, err)
	n.Close()

	n, err = newNode(cfg, quietLogger())
	require.NoError(t, err)
	defer n.Close()
	bal, err := n.router.Balance(player)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(400), bal)
}

func TestNodeRunIndexesNotifications(t *testing.T) {
	cfg, player := testConfig(t, config.StorageMemory)
	rival := types.Identity{0x02}
	controller := types.Identity{0xC0}
	cfg.Genesis = append(cfg.Genesis, config.Allocation{Identity: rival.String(), Amount: "500"})
	cfg.Indexer.Path = filepath.Join(t.TempDir(), "index.db")
	cfg.RPC.Address = "127.0.0.1:0"
	n, err := newNode(cfg, quietLogger())
	require.NoError(t, err)
	defer n.Close()

	client := escrow.NewClient(n.router)
	id, err := client.CreateMatch(context.Background(), player, big.NewInt(100),
		escrow.CreateMatchArgs{Controller: controller, StakeAmount: big.NewInt(100)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool {
		row, err := n.indexer.Match(id)
		return err == nil && row.Phase == "not_started"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, client.JoinMatch(context.Background(), rival, big.NewInt(100), id))
	require.NoError(t, client.SetMatchReady(context.Background(), controller, id))
	_, err = client.ResolveMatch(context.Background(), controller, id, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		row, err := n.indexer.Match(id)
		return err == nil && row.Phase == "ended"
	}, 5*time.Second, 20*time.Millisecond)
	row, err := n.indexer.Match(id)
	require.NoError(t, err)
	require.Equal(t, player.String()+","+rival.String(), row.Participants)
	require.Equal(t, "200", row.TotalStake)

	cancel()
	require.NoError(t, <-done)
}
