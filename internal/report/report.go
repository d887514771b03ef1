// Package report renders a completed scan's gatetypes.ScanResult into the
// JSON and HTML report artifacts, kept as a standalone package so a
// renderer can be swapped or added without touching internal/gateengine.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// FormatJSON and FormatHTML are the only report formats recognized by
// Write and by the "--format" CLI flag / "report_format" API field.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

// Write renders result in every requested format into dir (one file per
// format, named scan-<id>.<ext>) and returns a format -> path map, the
// same shape gatetypes.ScanJob.ReportPaths stores.
func Write(result gatetypes.ScanResult, dir string, formats []string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "report_mkdir", err)
	}

	paths := make(map[string]string, len(formats))
	for _, format := range formats {
		switch format {
		case FormatJSON:
			path := filepath.Join(dir, fmt.Sprintf("scan-%s.json", result.ScanID))
			if err := WriteJSON(result, path); err != nil {
				return paths, err
			}
			paths[FormatJSON] = path
		case FormatHTML:
			path := filepath.Join(dir, fmt.Sprintf("scan-%s.html", result.ScanID))
			if err := WriteHTML(result, path); err != nil {
				return paths, err
			}
			paths[FormatHTML] = path
		default:
			return paths, apperrors.New(apperrors.KindInvalidRequest, "report_format", fmt.Errorf("unsupported report format %q", format))
		}
	}
	return paths, nil
}

// WriteJSON serializes result verbatim -- the API's GET
// /api/v1/scan/{id}/report/json endpoint streams this same encoding.
func WriteJSON(result gatetypes.ScanResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "report_json_create", err)
	}
	defer f.Close()

	if err := RenderJSON(f, result); err != nil {
		return err
	}
	return nil
}

// WriteHTML renders a self-contained HTML document (inline CSS, no
// external assets) summarizing result: a badge/score header, then a
// section per gate with a match table colored by status.
func WriteHTML(result gatetypes.ScanResult, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "report_html_create", err)
	}
	defer f.Close()

	if err := RenderHTML(f, result); err != nil {
		return err
	}
	return nil
}

// RenderJSON and RenderHTML write directly to w without touching disk --
// used both by WriteJSON/WriteHTML above and by internal/api to serve a
// report for a scan whose on-disk artifact already expired or was never
// generated for the requested format.
func RenderJSON(w io.Writer, result gatetypes.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return apperrors.New(apperrors.KindInternal, "report_json_encode", err)
	}
	return nil
}

func RenderHTML(w io.Writer, result gatetypes.ScanResult) error {
	if err := renderHTML(w, buildViewModel(result)); err != nil {
		return apperrors.New(apperrors.KindInternal, "report_html_render", err)
	}
	return nil
}
