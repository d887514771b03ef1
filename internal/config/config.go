// Package config loads the gatekeeper server configuration: a KDL file
// merged with environment-variable overrides, validated and defaulted
// before the pipeline, job registry, and store are constructed.
package config

import (
	"fmt"
	"os"
)

// Storage backend selectors accepted by GATEKEEPER_STORAGE_BACKEND and the
// "storage" KDL node.
const (
	BackendKV       = "kv"
	BackendSQL      = "sql"
	BackendFileTree = "file"
	BackendMemory   = "memory"
)

// ServerConfig is the runtime configuration for the gatekeeper server and
// CLI: listen address, concurrency limits, timeouts, and storage selection.
type ServerConfig struct {
	Host string
	Port int

	MaxConcurrentScans int // global semaphore admitting new jobs (default 4)
	MaxParallelFiles   int // per-scan worker pool size (default 4, capped at NumCPU)

	ScanTimeoutSec int // hard per-scan deadline (default 900 = 15min)
	FileTimeoutSec int // per-file soft deadline within the Validate stage (default 30)

	MaxFileSizeMB   int64 // files above this are skipped, not scanned (default 20)
	MaxFilesPerScan int   // inventory cap (default 50000)
	MaxRepoSizeMB   int64 // fetch-stage cap before RepoTooLarge (default 2048)

	StorageBackend string // kv|sql|file|memory
	StorageDSN     string // connection string or base directory, backend-dependent

	RetentionDays int // job registry + store cleanup horizon (default 1, i.e. 24h)
	LogLevel      string

	WorkDir string // scratch root for cloned working trees, one subdir per scan ID

	CatalogPath string // path to the gate pattern catalog YAML (default gates.yaml)
}

// Default returns a ServerConfig populated with the documented defaults.
func Default() *ServerConfig {
	return &ServerConfig{
		Host:                "0.0.0.0",
		Port:                8080,
		MaxConcurrentScans:  4,
		MaxParallelFiles:    4,
		ScanTimeoutSec:      900,
		FileTimeoutSec:      30,
		MaxFileSizeMB:       20,
		MaxFilesPerScan:     50000,
		MaxRepoSizeMB:       2048,
		StorageBackend:      BackendKV,
		StorageDSN:          "gatekeeper.db",
		RetentionDays:       1,
		LogLevel:            "info",
		WorkDir:             os.TempDir(),
		CatalogPath:         "gates.yaml",
	}
}

// Load reads the KDL config file at path (if it exists), applies
// environment-variable overrides, validates the result, and fills in
// smart defaults for anything left unset. Precedence, low to high:
// built-in default < file < environment.
func Load(path string) (*ServerConfig, error) {
	cfg := Default()

	fileCfg, err := LoadKDL(path)
	if err != nil {
		return nil, err
	}
	if fileCfg != nil {
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)

	if err := ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *ServerConfig) {
	if v := os.Getenv("GATEKEEPER_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("GATEKEEPER_PORT"); v != 0 {
		cfg.Port = v
	}
	if v := envInt("GATEKEEPER_MAX_CONCURRENT_SCANS"); v != 0 {
		cfg.MaxConcurrentScans = v
	}
	if v := envInt("GATEKEEPER_MAX_PARALLEL_FILES"); v != 0 {
		cfg.MaxParallelFiles = v
	}
	if v := envInt("GATEKEEPER_SCAN_TIMEOUT_SEC"); v != 0 {
		cfg.ScanTimeoutSec = v
	}
	if v := envInt("GATEKEEPER_FILE_TIMEOUT_SEC"); v != 0 {
		cfg.FileTimeoutSec = v
	}
	if v := envInt64("GATEKEEPER_MAX_FILE_SIZE_MB"); v != 0 {
		cfg.MaxFileSizeMB = v
	}
	if v := envInt("GATEKEEPER_MAX_FILES_PER_SCAN"); v != 0 {
		cfg.MaxFilesPerScan = v
	}
	if v := envInt64("GATEKEEPER_MAX_REPO_SIZE_MB"); v != 0 {
		cfg.MaxRepoSizeMB = v
	}
	if v := os.Getenv("GATEKEEPER_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = v
	}
	if v := os.Getenv("GATEKEEPER_STORAGE_DSN"); v != "" {
		cfg.StorageDSN = v
	}
	if v := envInt("GATEKEEPER_RETENTION_DAYS"); v != 0 {
		cfg.RetentionDays = v
	}
	if v := os.Getenv("GATEKEEPER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GATEKEEPER_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("GATEKEEPER_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0
	}
	return n
}

func envInt64(name string) int64 {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0
	}
	return n
}
