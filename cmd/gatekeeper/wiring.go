package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/gatekeeper/internal/api"
	"github.com/standardbeagle/gatekeeper/internal/config"
	"github.com/standardbeagle/gatekeeper/internal/gateengine"
	"github.com/standardbeagle/gatekeeper/internal/jobregistry"
	"github.com/standardbeagle/gatekeeper/internal/patterncache"
	"github.com/standardbeagle/gatekeeper/internal/patternlib"
	"github.com/standardbeagle/gatekeeper/internal/pipeline"
	"github.com/standardbeagle/gatekeeper/internal/scanner"
	"github.com/standardbeagle/gatekeeper/internal/store"
)

// maxMatchesPerGateFile caps how many matches one gate records for a
// single file before reporting "capped".
const maxMatchesPerGateFile = 100

// patternCacheEntries and patternCacheBytes size the shared compiled-regex
// cache every scan reuses -- one compile per (pattern, flags) key for the
// lifetime of the process, not per scan.
const (
	patternCacheEntries = 4096
	patternCacheBytes   = 64 << 20
)

// components bundles everything a scan needs, built once per process
// invocation and shared by scan/serve/gates.
type components struct {
	cfg      *config.ServerConfig
	library  *patternlib.Library
	registry *jobregistry.Registry
	results  store.Store
	pipeline *pipeline.Pipeline
}

func loadConfigWithOverrides(c *cli.Context) (*config.ServerConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := c.String("catalog"); v != "" {
		cfg.CatalogPath = v
	}
	if v := c.String("storage-backend"); v != "" {
		cfg.StorageBackend = v
	}
	if v := c.String("storage-dsn"); v != "" {
		cfg.StorageDSN = v
	}
	if v := c.String("work-dir"); v != "" {
		cfg.WorkDir = v
	}
	return cfg, nil
}

func buildComponents(cfg *config.ServerConfig) (*components, error) {
	library, err := patternlib.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load pattern catalog %s: %w", cfg.CatalogPath, err)
	}

	cache := patterncache.New(patternCacheEntries, patternCacheBytes)
	scan := scanner.New(library, cache, cfg.MaxParallelFiles)
	engine := gateengine.New(library, scan, maxMatchesPerGateFile)

	resultStore, err := store.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}

	registry := jobregistry.New(retentionDuration(cfg))
	p := pipeline.New(cfg, engine, registry, resultStore)

	return &components{
		cfg:      cfg,
		library:  library,
		registry: registry,
		results:  resultStore,
		pipeline: p,
	}, nil
}

// newAPIServer wires an api.Server from a built components bundle, shared
// by the serve command (and by tests that want a full in-process server).
func newAPIServer(c *components) *api.Server {
	return api.New(c.pipeline, c.registry, c.results, c.library)
}
