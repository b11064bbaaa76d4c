package config

// RPC controls the HTTP surface exposed by matchpoold.
type RPC struct {
	Address string `toml:"Address" yaml:"address"`
	// RateLimitPerSecond caps requests per client address. Zero disables
	// throttling.
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond" yaml:"rate_limit_per_second"`
	Burst              int     `toml:"Burst" yaml:"burst"`
	// JWTSecretEnv names the environment variable holding the HMAC secret used
	// to verify bearer tokens. When unset callers identify themselves with the
	// X-Caller header.
	JWTSecretEnv             string `toml:"JWTSecretEnv" yaml:"jwt_secret_env"`
	JWTIssuer                string `toml:"JWTIssuer" yaml:"jwt_issuer"`
	ReadHeaderTimeoutSeconds int    `toml:"ReadHeaderTimeoutSeconds" yaml:"read_header_timeout_seconds"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
}

// Logging configures structured log output. An empty File logs to stdout.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Indexer configures the SQL projection of published notifications. An empty
// Path disables the indexer. For the postgres driver Path is the DSN.
type Indexer struct {
	Driver string `toml:"Driver" yaml:"driver"`
	Path   string `toml:"Path" yaml:"path"`
}

// Allocation credits an identity at bootstrap.
type Allocation struct {
	Identity string `toml:"Identity" yaml:"identity"`
	Amount   string `toml:"Amount" yaml:"amount"`
}
