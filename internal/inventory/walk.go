package inventory

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// Options configures a Walk call. Size/count limits come from
// internal/config.ServerConfig so callers don't have to know the field
// names on the broader config struct.
type Options struct {
	MaxFileSizeMB    int64
	MaxFiles         int
	MaxTotalSizeMB   int64
	RespectGitignore bool
}

// Result is the inventory produced by walking a repository: the ordered
// file list plus the aggregate metadata the pipeline stamps onto
// gatetypes.ScanResult.
type Result struct {
	Files    []gatetypes.FileEntry
	Metadata gatetypes.RepoMetadata
	// Truncated is true when MaxFiles or MaxTotalSizeMB stopped the walk
	// before every eligible file was visited.
	Truncated bool
}

// Walk traverses root depth-first, pruning denied directories without
// descent and classifying every remaining file: symlink-cycle guard,
// early directory pruning, then per-file classification, all in one
// filepath.Walk callback.
func Walk(ctx context.Context, root string, opts Options) (*Result, error) {
	visitedDirs := make(map[string]bool)
	rootIgnores := newGitignoreSet()
	if opts.RespectGitignore {
		if err := rootIgnores.loadFile(root); err != nil {
			debug.LogPipeline("inventory: failed to load root .gitignore: %v", err)
		}
	}

	res := &Result{
		Metadata: gatetypes.RepoMetadata{
			WorkingTreePath: root,
			Languages:       make(map[string]gatetypes.LanguageStats),
		},
	}

	var totalSizeMB int64
	dirIgnores := map[string]*gitignoreSet{root: rootIgnores}

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			debug.LogPipeline("inventory: walk error at %s: %v", path, walkErr)
			return nil
		}

		if info.IsDir() {
			return walkDir(root, path, opts, visitedDirs, dirIgnores)
		}
		return walkFile(root, path, info, opts, dirIgnores, res, &totalSizeMB)
	})
	if err != nil {
		return res, apperrors.New(apperrors.KindFileReadError, "inventory_walk", err)
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	res.Metadata.FileCount = len(res.Files)
	return res, nil
}

func walkDir(root, path string, opts Options, visitedDirs map[string]bool, dirIgnores map[string]*gitignoreSet) error {
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil
	}
	if visitedDirs[realPath] {
		return filepath.SkipDir
	}
	visitedDirs[realPath] = true

	if path == root {
		return nil
	}

	if deniedDirs[filepath.Base(path)] {
		return filepath.SkipDir
	}

	parent := filepath.Dir(path)
	set := dirIgnores[parent]
	if set == nil {
		set = newGitignoreSet()
	}
	child := *set // inherit parent patterns by value, then extend locally
	childSet := &child
	if opts.RespectGitignore {
		if err := childSet.loadFile(path); err != nil {
			debug.LogPipeline("inventory: failed to load .gitignore at %s: %v", path, err)
		}
	}
	dirIgnores[path] = childSet

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)
	if opts.RespectGitignore && set.Match(relPath, true) {
		return filepath.SkipDir
	}
	return nil
}

func walkFile(root, path string, info os.FileInfo, opts Options, dirIgnores map[string]*gitignoreSet, res *Result, totalSizeMB *int64) error {
	relPath, err := filepath.Rel(root, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)

	parent := filepath.Dir(path)
	if set := dirIgnores[parent]; set != nil && opts.RespectGitignore && set.Match(relPath, false) {
		return nil
	}

	if opts.MaxFiles > 0 && len(res.Files) >= opts.MaxFiles {
		res.Truncated = true
		return nil
	}
	sizeMB := info.Size() / (1024 * 1024)
	if opts.MaxFileSizeMB > 0 && sizeMB > opts.MaxFileSizeMB {
		return nil
	}
	if opts.MaxTotalSizeMB > 0 {
		if *totalSizeMB+sizeMB > opts.MaxTotalSizeMB {
			res.Truncated = true
			return nil
		}
		*totalSizeMB += sizeMB
	}

	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	entry := gatetypes.FileEntry{
		Path: relPath,
		Size: info.Size(),
		Role: classifyRole(relPath, base, ext),
	}

	if lang, ok := languageByExtension[ext]; ok {
		entry.Language = lang
	}

	lines, binary, err := countLinesAndSniff(path, info.Size())
	if err != nil {
		debug.LogPipeline("inventory: failed to read %s: %v", path, err)
		return nil
	}
	entry.Binary = binary
	entry.Lines = lines

	if buildFileNames[base] {
		res.Metadata.BuildTools = append(res.Metadata.BuildTools, base)
	}

	if !binary {
		if entry.Language != "" {
			stats := res.Metadata.Languages[entry.Language]
			stats.Files++
			stats.Lines += lines
			res.Metadata.Languages[entry.Language] = stats
		}
		res.Metadata.TotalLines += lines
	}

	res.Files = append(res.Files, entry)
	return nil
}
