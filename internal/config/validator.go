package config

import (
	"fmt"
	"runtime"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
)

// ValidateAndSetDefaults validates a ServerConfig and fills in any
// zero-valued field with a computed smart default (worker counts based on
// NumCPU, conservative timeouts). Returns an InvalidRequest GateError on
// the first out-of-range field.
func ValidateAndSetDefaults(cfg *ServerConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return apperrors.New(apperrors.KindInvalidRequest, "validate_config",
			fmt.Errorf("port must be in 1..65535, got %d", cfg.Port))
	}
	if cfg.MaxConcurrentScans < 0 {
		return apperrors.New(apperrors.KindInvalidRequest, "validate_config",
			fmt.Errorf("max_concurrent_scans cannot be negative, got %d", cfg.MaxConcurrentScans))
	}
	if cfg.MaxParallelFiles < 0 {
		return apperrors.New(apperrors.KindInvalidRequest, "validate_config",
			fmt.Errorf("max_parallel_files cannot be negative, got %d", cfg.MaxParallelFiles))
	}
	if cfg.ScanTimeoutSec <= 0 {
		return apperrors.New(apperrors.KindInvalidRequest, "validate_config",
			fmt.Errorf("scan_timeout_sec must be positive, got %d", cfg.ScanTimeoutSec))
	}
	if cfg.MaxFileSizeMB <= 0 {
		return apperrors.New(apperrors.KindInvalidRequest, "validate_config",
			fmt.Errorf("max_file_size_mb must be positive, got %d", cfg.MaxFileSizeMB))
	}
	switch cfg.StorageBackend {
	case BackendKV, BackendSQL, BackendFileTree, BackendMemory:
	default:
		return apperrors.New(apperrors.KindInvalidRequest, "validate_config",
			fmt.Errorf("storage backend must be one of kv|sql|file|memory, got %q", cfg.StorageBackend))
	}

	setSmartDefaults(cfg)
	return nil
}

// setSmartDefaults fills in zero-valued concurrency knobs from the host's
// CPU count, leaving one core free for the OS (floor of one).
func setSmartDefaults(cfg *ServerConfig) {
	if cfg.MaxConcurrentScans == 0 {
		cfg.MaxConcurrentScans = max(1, runtime.NumCPU()-1)
	}
	if cfg.MaxParallelFiles == 0 {
		cfg.MaxParallelFiles = max(1, runtime.NumCPU()-1)
	}
	if cfg.FileTimeoutSec == 0 {
		cfg.FileTimeoutSec = 30
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 1
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "gates.yaml"
	}
}
