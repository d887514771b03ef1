package store

import (
	"fmt"

	"github.com/standardbeagle/gatekeeper/internal/config"
)

// New builds the Store backend selected by cfg.StorageBackend, with
// cfg.StorageDSN interpreted per backend (a file path for kv/filetree, a
// Postgres DSN for sql, ignored for memory).
func New(cfg *config.ServerConfig) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendKV:
		return NewSQLiteKV(cfg.StorageDSN)
	case config.BackendSQL:
		return NewRelational(cfg.StorageDSN)
	case config.BackendFileTree:
		return NewFileTree(cfg.StorageDSN)
	case config.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.StorageBackend)
	}
}
