package scanner

import (
	"bytes"
	"context"
	"os"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// streamChunkSize and streamOverlap bound memory use for the 4MiB-20MiB
// streaming tier: each read is at most 1MiB, and the overlap window is
// wide enough that no realistic gate pattern (none in the catalog exceed
// a few hundred bytes) can straddle a chunk boundary undetected.
const (
	streamChunkSize = 1 << 20
	streamOverlap   = 4096
)

// scanStreaming reads absPath in overlapping 1MiB windows instead of
// loading the whole file, for the 4MiB-20MiB tier. A match is a
// duplicate of one already counted in the previous window only if its
// *entire extent* fell within that previous window (absEnd <=
// watermark); a match that starts inside the overlap region but whose
// end lies past the previous window's boundary could not have been
// found last time (the pattern wasn't fully present in that buffer yet)
// and must be kept -- that's exactly the straddling-match case the
// overlap window exists to rescue.
func (s *Scanner) scanStreaming(ctx context.Context, absPath, relPath string, size int64, gatePatterns map[string][]gatePattern, maxMatchesPerGateFile int) (map[string][]gatetypes.Match, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, apperrors.New(apperrors.KindFileReadError, "open_file", err).WithFile(relPath)
	}
	defer f.Close()

	out := make(map[string][]gatetypes.Match, len(gatePatterns))
	buf := make([]byte, streamChunkSize)
	var carry []byte

	var chunkStart int64
	var lineAtChunkStart = 1
	var watermark int64

	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			prevWatermark := watermark

			for gateName, pats := range gatePatterns {
				existing := len(out[gateName])
				if existing >= maxMatchesPerGateFile {
					continue
				}
				var gateMatches []gatetypes.Match
				for _, gp := range pats {
					if existing+len(gateMatches) >= maxMatchesPerGateFile {
						break
					}
					for _, loc := range gp.compiled.FindAllIndex(data, -1) {
						absEnd := chunkStart + int64(loc[1])
						if absEnd <= prevWatermark {
							continue
						}
						line := lineAtChunkStart + bytes.Count(data[:loc[0]], []byte{'\n'})
						gateMatches = append(gateMatches, gatetypes.Match{
							FilePath: relPath,
							Line:     line,
							Pattern:  gp.def.Pattern,
							Matched:  string(data[loc[0]:loc[1]]),
							Source:   "static",
							Context:  lineContext(data, loc[0], loc[1]),
						})
						if existing+len(gateMatches) >= maxMatchesPerGateFile {
							break
						}
					}
				}
				if len(gateMatches) > 0 {
					out[gateName] = append(out[gateName], gateMatches...)
				}
			}

			// The watermark advances to this window's full extent, not
			// just its non-overlap prefix, so the next window's dedup
			// check can tell "already fully counted" apart from
			// "straddles the boundary, keep it" using absEnd alone.
			keep := streamOverlap
			if len(data) < keep {
				keep = len(data)
			}
			lineAtChunkStart += bytes.Count(data[:len(data)-keep], []byte{'\n'})
			watermark = chunkStart + int64(len(data))
			carry = append([]byte(nil), data[len(data)-keep:]...)
			chunkStart = watermark - int64(keep)
		}
		if readErr != nil {
			break
		}
	}

	return out, nil
}
