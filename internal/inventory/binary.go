package inventory

import (
	"os"
	"path/filepath"
	"strings"
)

// isBinaryExtension is the fast, no-I/O check.
func isBinaryExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	if strings.HasSuffix(path, ".min.js") || strings.HasSuffix(path, ".min.css") {
		return false
	}
	return binaryExtensions[ext]
}

// countLinesAndSniff scans the file once, counting newline bytes and
// reusing the same read to run the binary heuristic on the leading
// window, avoiding two separate passes over small files.
func countLinesAndSniff(path string, size int64) (lines int, binary bool, err error) {
	if isBinaryExtension(path) {
		return 0, true, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	var total int64
	var last byte
	firstChunk := true
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if firstChunk {
				if looksBinary(chunk) {
					return 0, true, nil
				}
				firstChunk = false
			}
			for _, b := range chunk {
				if b == '\n' {
					lines++
				}
			}
			total += int64(n)
			last = chunk[n-1]
		}
		if rerr != nil {
			break
		}
	}
	// A final line without a trailing newline still counts as a line.
	if total > 0 && last != '\n' {
		lines++
	}
	return lines, false, nil
}

func looksBinary(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	nullBytes := 0
	nonPrintable := 0
	for _, b := range sample {
		if b == 0 {
			nullBytes++
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}
	if nullBytes > len(sample)/100 {
		return true
	}
	return nonPrintable*100/len(sample) > 30
}
