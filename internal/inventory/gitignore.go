// Package inventory walks a repository working tree and produces the
// file list and metadata that later pipeline stages (scanner, scorer,
// report) consume.
package inventory

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// gitignorePattern is a single parsed line from a .gitignore file.
// Matching is delegated entirely to doublestar.Match, which speaks the
// full gitignore-style glob dialect (**, ?, [...]).
type gitignorePattern struct {
	glob      string
	negate    bool
	directory bool
	anchored  bool
}

// gitignoreSet holds the patterns loaded from one or more .gitignore files
// encountered during the walk, applied in declaration order so later
// negations can re-include earlier exclusions.
type gitignoreSet struct {
	patterns []gitignorePattern
}

func newGitignoreSet() *gitignoreSet {
	return &gitignoreSet{}
}

// loadFile merges patterns from the .gitignore at dir/.gitignore, if any.
// A missing file is not an error -- most directories don't have one.
func (g *gitignoreSet) loadFile(dir string) error {
	f, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		g.patterns = append(g.patterns, parseGitignoreLine(trimmed))
	}
	return scanner.Err()
}

func parseGitignoreLine(line string) gitignorePattern {
	var p gitignorePattern
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.directory = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	if !strings.Contains(line, "/") {
		// Unanchored single-segment patterns match at any depth, the
		// gitignore convention doublestar expresses as a "**/" prefix.
		line = "**/" + line
	}
	p.glob = line
	return p
}

// Match reports whether relPath (slash-separated, relative to the walk
// root) is ignored. isDir lets directory-only patterns (trailing "/")
// apply only to directories.
func (g *gitignoreSet) Match(relPath string, isDir bool) bool {
	ignored := false
	for _, p := range g.patterns {
		if p.directory && !isDir {
			continue
		}
		glob := p.glob
		if p.anchored {
			glob = strings.TrimPrefix(glob, "**/")
		}
		ok, _ := doublestar.Match(glob, relPath)
		if !ok {
			// Directory patterns also exclude everything beneath them.
			if p.directory {
				ok, _ = doublestar.Match(glob+"/**", relPath)
			}
		}
		if ok {
			ignored = !p.negate
		}
	}
	return ignored
}
