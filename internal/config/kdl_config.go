package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL reads a ServerConfig from a KDL document at path. A missing file
// is not an error: it returns (nil, nil) so the caller falls back to
// defaults. Only parse/type errors are surfaced.
func LoadKDL(path string) (*ServerConfig, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("parse KDL config %s: %w", path, err)
	}

	cfg := Default()
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "server":
			for _, cn := range n.Children {
				assignString(cn, "host", func(v string) { cfg.Host = v })
				assignInt(cn, "port", func(v int) { cfg.Port = v })
			}
		case "concurrency":
			for _, cn := range n.Children {
				assignInt(cn, "max_concurrent_scans", func(v int) { cfg.MaxConcurrentScans = v })
				assignInt(cn, "max_parallel_files", func(v int) { cfg.MaxParallelFiles = v })
			}
		case "timeouts":
			for _, cn := range n.Children {
				assignInt(cn, "scan_timeout_sec", func(v int) { cfg.ScanTimeoutSec = v })
				assignInt(cn, "file_timeout_sec", func(v int) { cfg.FileTimeoutSec = v })
			}
		case "limits":
			for _, cn := range n.Children {
				assignInt64(cn, "max_file_size_mb", func(v int64) { cfg.MaxFileSizeMB = v })
				assignInt(cn, "max_files_per_scan", func(v int) { cfg.MaxFilesPerScan = v })
				assignInt64(cn, "max_repo_size_mb", func(v int64) { cfg.MaxRepoSizeMB = v })
			}
		case "storage":
			for _, cn := range n.Children {
				assignString(cn, "backend", func(v string) { cfg.StorageBackend = v })
				assignString(cn, "dsn", func(v string) { cfg.StorageDSN = v })
				assignInt(cn, "retention_days", func(v int) { cfg.RetentionDays = v })
			}
		case "log":
			for _, cn := range n.Children {
				assignString(cn, "level", func(v string) { cfg.LogLevel = v })
			}
		case "work_dir":
			if s, ok := firstStringArg(n); ok {
				cfg.WorkDir = s
			}
		case "catalog_path":
			if s, ok := firstStringArg(n); ok {
				cfg.CatalogPath = s
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil {
		return ""
	}
	return n.Name.ValueString()
}

func firstStringArg(n *document.Node) (string, bool) {
	for _, arg := range n.Arguments {
		if arg.Value != nil {
			return arg.ValueString(), true
		}
	}
	return "", false
}

func firstIntArg(n *document.Node) (int, bool) {
	s, ok := firstStringArg(n)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return v, true
}

func assignString(n *document.Node, name string, set func(string)) {
	if nodeName(n) != name {
		return
	}
	if v, ok := firstStringArg(n); ok {
		set(v)
	}
}

func assignInt(n *document.Node, name string, set func(int)) {
	if nodeName(n) != name {
		return
	}
	if v, ok := firstIntArg(n); ok {
		set(v)
	}
}

func assignInt64(n *document.Node, name string, set func(int64)) {
	if nodeName(n) != name {
		return
	}
	if v, ok := firstIntArg(n); ok {
		set(int64(v))
	}
}
