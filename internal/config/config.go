// Package config loads cmd/validatord's operating parameters from
// the environment, in the shape of pkg/config.Load from the teacher:
// a flat Config struct, a set of getEnv*/defaulted helpers, and a
// Validate method run immediately after Load.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/certen/kernel/internal/types"
)

// Config is every parameter a validatord node needs to come up: chain
// identity, credential policy, consensus timing, retention, mempool
// batching, and the listen/metrics surface.
type Config struct {
	// Chain identity
	ChainID        string
	ChainIDNumeric uint64

	// Storage
	DataDir   string
	EpochSize uint64

	// Consensus / orchestration
	GasTarget     uint64
	SelectionSize int
	TargetBlockTime time.Duration
	MaxBlockTime    time.Duration

	// Credential rotation
	AllowedTargetSuites []types.SignatureSuite
	AllowDowngrade      bool
	GracePeriodBlocks   uint64

	// Retention / GC
	KeepRecentHeights uint64
	MinFinalityDepth  uint64
	GCIntervalSecs    uint64

	// Mempool / ingestion
	BatchSize      int
	BatchTimeoutMs int

	// Governance
	GovernanceAccountHex    string
	AcceptStagedDuringGrace bool

	// Network surface
	ListenAddress  string
	RPCAddress     string
	MetricsAddress string
	LogLevel       string
}

// Load builds a Config from the environment, applying the same
// defaults-with-override shape as the teacher's configuration loader.
func Load() (*Config, error) {
	cfg := &Config{
		ChainID:        getEnv("KERNEL_CHAIN_ID", "certen-validator"),
		ChainIDNumeric: getEnvUint64("KERNEL_CHAIN_ID_NUMERIC", 1),

		DataDir:   getEnv("KERNEL_DATA_DIR", "./data"),
		EpochSize: getEnvUint64("KERNEL_EPOCH_SIZE", 50_000),

		GasTarget:       getEnvUint64("KERNEL_GAS_TARGET", 5_000_000),
		SelectionSize:   getEnvInt("KERNEL_MEMPOOL_SELECTION_SIZE", 20_000),
		TargetBlockTime: getEnvDuration("KERNEL_TARGET_BLOCK_TIME", 2*time.Second),
		MaxBlockTime:    getEnvDuration("KERNEL_MAX_BLOCK_TIME", 10*time.Second),

		AllowedTargetSuites: parseSuites(getEnv("KERNEL_ALLOWED_TARGET_SUITES", "ed25519,ml-dsa-44")),
		AllowDowngrade:      getEnvBool("KERNEL_ALLOW_SUITE_DOWNGRADE", false),
		GracePeriodBlocks:   getEnvUint64("KERNEL_ROTATION_GRACE_PERIOD_BLOCKS", 100),

		KeepRecentHeights: getEnvUint64("KERNEL_KEEP_RECENT_HEIGHTS", 1000),
		MinFinalityDepth:  getEnvUint64("KERNEL_MIN_FINALITY_DEPTH", 10),
		GCIntervalSecs:    getEnvUint64("KERNEL_GC_INTERVAL_SECS", 60),

		BatchSize:      getEnvInt("KERNEL_MEMPOOL_BATCH_SIZE", 256),
		BatchTimeoutMs: getEnvInt("KERNEL_MEMPOOL_BATCH_TIMEOUT_MS", 10),

		GovernanceAccountHex:    getEnv("KERNEL_GOVERNANCE_ACCOUNT", strings.Repeat("00", 32)),
		AcceptStagedDuringGrace: getEnvBool("KERNEL_ACCEPT_STAGED_DURING_GRACE", true),

		ListenAddress:  getEnv("KERNEL_P2P_LISTEN_ADDRESS", "tcp://0.0.0.0:26656"),
		RPCAddress:     getEnv("KERNEL_RPC_LISTEN_ADDRESS", "tcp://127.0.0.1:26657"),
		MetricsAddress: getEnv("KERNEL_METRICS_LISTEN_ADDRESS", ":9090"),
		LogLevel:       getEnv("KERNEL_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a Config with inconsistent or missing required
// values, aggregating every problem into one error the way the
// teacher's Validate does.
func (c *Config) Validate() error {
	var errs []string

	if c.ChainID == "" {
		errs = append(errs, "chain id must not be empty")
	}
	if c.DataDir == "" {
		errs = append(errs, "data dir must not be empty")
	}
	if c.EpochSize == 0 {
		errs = append(errs, "epoch size must be positive")
	}
	if c.GasTarget == 0 {
		errs = append(errs, "gas target must be positive")
	}
	if c.TargetBlockTime <= 0 || c.MaxBlockTime <= 0 {
		errs = append(errs, "target/max block time must be positive")
	}
	if c.MaxBlockTime < c.TargetBlockTime {
		errs = append(errs, "max block time must be at least target block time")
	}
	if len(c.AllowedTargetSuites) == 0 {
		errs = append(errs, "at least one allowed target suite is required")
	}
	if c.MinFinalityDepth > c.KeepRecentHeights {
		errs = append(errs, "min finality depth should not exceed keep-recent-heights")
	}
	if c.BatchSize <= 0 {
		errs = append(errs, "mempool batch size must be positive")
	}
	if len(c.GovernanceAccountHex) != 64 {
		errs = append(errs, "governance account must be a 32-byte hex string")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// BlockTiming returns the genesis block timing parameters implied by
// this Config.
func (c *Config) BlockTiming() types.BlockTimingParams {
	return types.BlockTimingParams{TargetBlockTime: c.TargetBlockTime, MaxBlockTime: c.MaxBlockTime}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseSuites maps a comma-separated list of suite names to
// SignatureSuite values, silently skipping names it does not
// recognize so a typo degrades to "fewer suites allowed" rather than
// a hard failure; Validate still catches the empty-list case.
func parseSuites(csv string) []types.SignatureSuite {
	var out []types.SignatureSuite
	for _, name := range strings.Split(csv, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "ed25519":
			out = append(out, types.SuiteEd25519)
		case "ml-dsa-44", "mldsa44":
			out = append(out, types.SuiteMLDSA44)
		case "falcon-512", "falcon512":
			out = append(out, types.SuiteFalcon512)
		case "hybrid-ed25519-mldsa44", "hybrid":
			out = append(out, types.SuiteHybridEd25519MLDSA44)
		}
	}
	return out
}

// GovernanceAccount decodes GovernanceAccountHex into an AccountId.
func (c *Config) GovernanceAccount() (types.AccountId, error) {
	var id types.AccountId
	raw, err := hex.DecodeString(c.GovernanceAccountHex)
	if err != nil {
		return id, fmt.Errorf("invalid governance account: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("governance account must decode to %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
