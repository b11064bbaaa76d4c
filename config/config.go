package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"matchpool/crypto"
)

const (
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"
	StorageMemory  = "memory"

	IndexerSQLite   = "sqlite"
	IndexerPostgres = "postgres"
)

type Config struct {
	DataDir            string       `toml:"DataDir" yaml:"data_dir"`
	Storage            string       `toml:"Storage" yaml:"storage"`
	Environment        string       `toml:"Environment" yaml:"environment"`
	Administrator      string       `toml:"Administrator" yaml:"administrator"`
	PlatformFeePercent uint64       `toml:"PlatformFeePercent" yaml:"platform_fee_percent"`
	EventLogCapacity   int          `toml:"EventLogCapacity" yaml:"event_log_capacity"`
	RPC                RPC          `toml:"rpc" yaml:"rpc"`
	Telemetry          Telemetry    `toml:"telemetry" yaml:"telemetry"`
	Logging            Logging      `toml:"logging" yaml:"logging"`
	Indexer            Indexer      `toml:"indexer" yaml:"indexer"`
	Genesis            []Allocation `toml:"genesis" yaml:"genesis"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults and a freshly generated administrator key.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "./matchpool-data"
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	if cfg.Storage == "" {
		cfg.Storage = StorageLevelDB
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.EventLogCapacity <= 0 {
		cfg.EventLogCapacity = 10_000
	}
	cfg.RPC.Address = strings.TrimSpace(cfg.RPC.Address)
	if cfg.RPC.Address == "" {
		cfg.RPC.Address = ":8080"
	}
	if cfg.RPC.ReadHeaderTimeoutSeconds <= 0 {
		cfg.RPC.ReadHeaderTimeoutSeconds = 5
	}
	if cfg.RPC.RateLimitPerSecond > 0 && cfg.RPC.Burst <= 0 {
		cfg.RPC.Burst = int(cfg.RPC.RateLimitPerSecond)
		if cfg.RPC.Burst < 1 {
			cfg.RPC.Burst = 1
		}
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Indexer.Driver = strings.ToLower(strings.TrimSpace(cfg.Indexer.Driver))
	if cfg.Indexer.Driver == "" {
		cfg.Indexer.Driver = IndexerSQLite
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []Allocation{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keyPath := DefaultKeyPath(path)
	if err := writeKey(keyPath, key); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:            "./matchpool-data",
		Storage:            StorageLevelDB,
		Environment:        "local",
		Administrator:      key.PubKey().Address().String(),
		PlatformFeePercent: 0,
		EventLogCapacity:   10_000,
		RPC: RPC{
			Address:            ":8080",
			RateLimitPerSecond: 20,
			Burst:              40,
		},
		Logging: Logging{Level: "info"},
		Genesis: []Allocation{},
	}
	cfg.normalize()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

// DefaultKeyPath returns where the administrator key generated alongside a
// default configuration is stored.
func DefaultKeyPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "admin.key")
}

func writeKey(path string, key *crypto.PrivateKey) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key.Bytes())+"\n"), 0o600)
}

// ReadKey loads a hex-encoded private key written by Load.
func ReadKey(path string) (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(raw)), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode key %s: %w", path, err)
	}
	return crypto.PrivateKeyFromBytes(b)
}
