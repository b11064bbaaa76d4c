package config

import (
	"fmt"
	"math/big"
	"strings"

	"matchpool/core/types"
)

// MaxPlatformFeePercent mirrors the cap enforced by the administration
// handler.
const MaxPlatformFeePercent = 100

// Validate checks the configuration for values the daemon cannot start with.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	switch cfg.Storage {
	case StorageLevelDB, StorageBolt, StorageMemory:
	default:
		return fmt.Errorf("storage: unsupported backend %q", cfg.Storage)
	}
	switch cfg.Indexer.Driver {
	case IndexerSQLite, IndexerPostgres:
	default:
		return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
	}
	if strings.TrimSpace(cfg.Administrator) == "" {
		return fmt.Errorf("administrator: identity required")
	}
	if _, err := types.ParseIdentity(cfg.Administrator); err != nil {
		return fmt.Errorf("administrator: %w", err)
	}
	if cfg.PlatformFeePercent > MaxPlatformFeePercent {
		return fmt.Errorf("platform_fee_percent: %d exceeds %d", cfg.PlatformFeePercent, MaxPlatformFeePercent)
	}
	if cfg.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("rpc: rate_limit_per_second must not be negative")
	}
	for i, alloc := range cfg.Genesis {
		if _, _, err := alloc.Parse(); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
	}
	return nil
}

// AdministratorIdentity returns the parsed administrator identity.
func (cfg *Config) AdministratorIdentity() (types.Identity, error) {
	return types.ParseIdentity(cfg.Administrator)
}

// Parse returns the allocation's identity and amount.
func (a Allocation) Parse() (types.Identity, *big.Int, error) {
	id, err := types.ParseIdentity(a.Identity)
	if err != nil {
		return types.Identity{}, nil, err
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(a.Amount), 10)
	if !ok || amount.Sign() < 0 {
		return types.Identity{}, nil, fmt.Errorf("invalid amount %q", a.Amount)
	}
	return id, amount, nil
}
