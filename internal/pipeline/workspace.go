package pipeline

import (
	"time"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// workspace carries one scan's accumulated state across stages. Only the
// goroutine running that scan ever touches it, so no locking is needed.
type workspace struct {
	dir string

	commitHash string
	commitDate time.Time

	files       []gatetypes.FileEntry
	metadata    gatetypes.RepoMetadata
	truncated   bool
	configNames []string

	result      *gatetypes.ScanResult
	reportPaths map[string]string
}
