// Package scanner applies a gate catalog's regex patterns to a repository's
// files, producing the raw Match evidence the scorer later turns into
// GateResult entries.
package scanner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/standardbeagle/gatekeeper/internal/patterncache"
	"github.com/standardbeagle/gatekeeper/internal/patternlib"
	"golang.org/x/sync/errgroup"
)

// SizeTiers controls the read strategy chosen per file: small files are
// read whole, mid-sized files get one big
// buffered read, and large files are streamed in overlapping windows so
// memory use stays bounded regardless of repository size.
type SizeTiers struct {
	FullReadMaxBytes     int64
	BufferedReadMaxBytes int64
	StreamMaxBytes       int64
}

// DefaultSizeTiers: 64KiB full read, 4MiB single buffered read, 20MiB
// streaming hard cap.
func DefaultSizeTiers() SizeTiers {
	return SizeTiers{
		FullReadMaxBytes:     64 * 1024,
		BufferedReadMaxBytes: 4 * 1024 * 1024,
		StreamMaxBytes:       20 * 1024 * 1024,
	}
}

// Scanner resolves a gate catalog's patterns against the file system.
// The middle size tier is a single large buffered os.File.Read rather
// than a real mmap syscall; regexp needs the whole buffer resident
// either way, and a plain read avoids platform-specific mapping code.
type Scanner struct {
	library     *patternlib.Library
	cache       *patterncache.Cache
	tiers       SizeTiers
	maxParallel int
}

// New builds a Scanner backed by a loaded pattern library and a shared
// compiled-regex cache.
func New(library *patternlib.Library, cache *patterncache.Cache, maxParallel int) *Scanner {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	if n := runtime.NumCPU(); maxParallel > n {
		maxParallel = n
	}
	return &Scanner{library: library, cache: cache, tiers: DefaultSizeTiers(), maxParallel: maxParallel}
}

// WithSizeTiers overrides the default size-tier thresholds.
func (s *Scanner) WithSizeTiers(t SizeTiers) *Scanner {
	s.tiers = t
	return s
}


// gatePattern pairs a resolved pattern with its compiled regex.
type gatePattern struct {
	def      gatetypes.PatternDef
	compiled *regexp.Regexp
}

// ScanRepo resolves, for every applicable gate, the patterns relevant to
// technologies (the labels the caller passes; gateengine passes every
// detected language), then
// scans every file in files concurrently with an errgroup worker pool
// sized to min(maxParallel, NumCPU). Matches are
// capped at maxMatchesPerGateFile per gate per file and merged under a
// single mutex, then sorted by (file path, line) for deterministic output.
// onFileDone, when non-nil, is called after each file finishes with the
// number of files completed so far and the total; it runs on worker
// goroutines, so implementations must be concurrency-safe.
func (s *Scanner) ScanRepo(ctx context.Context, rootDir string, files []gatetypes.FileEntry, gates []gatetypes.GateDefinition, technologies []string, maxMatchesPerGateFile int, onFileDone func(done, total int)) (map[string][]gatetypes.Match, map[string]gatetypes.GateCounts, error) {
	gatePatterns, err := s.compileGatePatterns(gates, technologies)
	if err != nil {
		return nil, nil, err
	}

	var mu sync.Mutex
	matches := make(map[string][]gatetypes.Match, len(gates))
	counts := make(map[string]gatetypes.GateCounts, len(gates))
	for name, pats := range gatePatterns {
		counts[name] = gatetypes.GateCounts{PatternsUsed: len(pats)}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	scannable := 0
	for _, file := range files {
		if !file.Binary && file.Role != gatetypes.RoleOther {
			scannable++
		}
	}
	var filesDone atomic.Int64

	for _, file := range files {
		file := file
		if file.Binary || file.Role == gatetypes.RoleOther {
			continue
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			absPath := filepath.Join(rootDir, filepath.FromSlash(file.Path))
			fileMatches, err := s.scanFile(gctx, absPath, file.Path, gatePatterns, maxMatchesPerGateFile)
			if onFileDone != nil {
				onFileDone(int(filesDone.Add(1)), scannable)
			}
			if err != nil {
				debug.LogScanner("scanner: skipping %s: %v", file.Path, err)
				return nil
			}

			mu.Lock()
			for gateName := range gatePatterns {
				c := counts[gateName]
				c.RelevantFiles++
				if ms := fileMatches[gateName]; len(ms) > 0 {
					matches[gateName] = append(matches[gateName], ms...)
					c.MatchesFound += len(ms)
					c.FilesWithMatches++
					if len(ms) >= maxMatchesPerGateFile {
						c.Capped = true
					}
				}
				counts[gateName] = c
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return matches, counts, apperrors.New(apperrors.KindDeadlineExceeded, "scan_repo", err)
	}

	for name := range matches {
		ms := matches[name]
		sort.Slice(ms, func(i, j int) bool {
			if ms[i].FilePath != ms[j].FilePath {
				return ms[i].FilePath < ms[j].FilePath
			}
			return ms[i].Line < ms[j].Line
		})
		matches[name] = ms
	}

	return matches, counts, nil
}

func (s *Scanner) compileGatePatterns(gates []gatetypes.GateDefinition, technologies []string) (map[string][]gatePattern, error) {
	out := make(map[string][]gatePattern, len(gates))
	for _, gate := range gates {
		defs := s.library.PatternsFor(gate.Name, technologies)
		compiled := make([]gatePattern, 0, len(defs))
		for _, def := range defs {
			re, err := s.cache.Get(def.Pattern, patterncache.FlagCaseInsensitive)
			if err != nil {
				debug.LogScanner("scanner: dropping invalid pattern %q for gate %s: %v", def.Pattern, gate.Name, err)
				continue
			}
			compiled = append(compiled, gatePattern{def: def, compiled: re})
		}
		out[gate.Name] = compiled
	}
	return out, nil
}

// scanFile reads file according to its size tier and matches every gate's
// compiled patterns against the content, returning matches grouped by
// gate name.
func (s *Scanner) scanFile(ctx context.Context, absPath, relPath string, gatePatterns map[string][]gatePattern, maxMatchesPerGateFile int) (map[string][]gatetypes.Match, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, apperrors.New(apperrors.KindFileReadError, "stat_file", err).WithFile(relPath)
	}

	switch {
	case info.Size() <= s.tiers.FullReadMaxBytes:
		content, err := os.ReadFile(absPath)
		if err != nil {
			return nil, apperrors.New(apperrors.KindFileReadError, "read_file", err).WithFile(relPath)
		}
		return matchContent(relPath, content, 1, gatePatterns, maxMatchesPerGateFile), nil

	case info.Size() <= s.tiers.BufferedReadMaxBytes:
		f, err := os.Open(absPath)
		if err != nil {
			return nil, apperrors.New(apperrors.KindFileReadError, "open_file", err).WithFile(relPath)
		}
		defer f.Close()
		content := make([]byte, info.Size())
		if _, err := readFull(f, content); err != nil {
			return nil, apperrors.New(apperrors.KindFileReadError, "read_file", err).WithFile(relPath)
		}
		return matchContent(relPath, content, 1, gatePatterns, maxMatchesPerGateFile), nil

	case info.Size() <= s.tiers.StreamMaxBytes:
		return s.scanStreaming(ctx, absPath, relPath, info.Size(), gatePatterns, maxMatchesPerGateFile)

	default:
		return nil, apperrors.New(apperrors.KindFileTooLarge, "scan_file", nil).WithFile(relPath)
	}
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// matchContent runs every gate's compiled patterns against an in-memory
// buffer already known to start at file line startLine.
func matchContent(relPath string, content []byte, startLine int, gatePatterns map[string][]gatePattern, maxMatchesPerGateFile int) map[string][]gatetypes.Match {
	out := make(map[string][]gatetypes.Match, len(gatePatterns))
	for gateName, pats := range gatePatterns {
		var gateMatches []gatetypes.Match
		for _, gp := range pats {
			if len(gateMatches) >= maxMatchesPerGateFile {
				break
			}
			locs := gp.compiled.FindAllIndex(content, maxMatchesPerGateFile-len(gateMatches))
			for _, loc := range locs {
				line := startLine + bytes.Count(content[:loc[0]], []byte{'\n'})
				gateMatches = append(gateMatches, gatetypes.Match{
					FilePath: relPath,
					Line:     line,
					Pattern:  gp.def.Pattern,
					Matched:  string(content[loc[0]:loc[1]]),
					Source:   "static",
					Context:  lineContext(content, loc[0], loc[1]),
				})
				if len(gateMatches) >= maxMatchesPerGateFile {
					break
				}
			}
		}
		if len(gateMatches) > 0 {
			out[gateName] = gateMatches
		}
	}
	return out
}

// lineContext extracts the full line containing [start:end) for the
// report/recommendation stage to quote back at the user.
func lineContext(content []byte, start, end int) string {
	lineStart := bytes.LastIndexByte(content[:start], '\n')
	if lineStart == -1 {
		lineStart = 0
	} else {
		lineStart++
	}
	lineEnd := bytes.IndexByte(content[end:], '\n')
	if lineEnd == -1 {
		lineEnd = len(content)
	} else {
		lineEnd += end
	}
	return string(bytes.TrimSpace(content[lineStart:lineEnd]))
}
