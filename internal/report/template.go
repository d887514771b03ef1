package report

import (
	"fmt"
	"html/template"
	"io"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/standardbeagle/gatekeeper/pkg/pathutil"
)

// statusColor is the fixed status palette (green/red/orange/gray) for
// PASS/FAIL/WARNING/NOT_APPLICABLE gate sections.
var statusColor = map[gatetypes.GateStatus]string{
	gatetypes.GatePass:          "#059669",
	gatetypes.GateFail:          "#dc2626",
	gatetypes.GateWarning:       "#d97706",
	gatetypes.GateNotApplicable: "#6b7280",
}

type matchView struct {
	File    string
	Line    int
	Snippet string
}

type gateView struct {
	Name           string
	Status         gatetypes.GateStatus
	Color          string
	Score          float64
	Recommendation string
	Reason         string
	MatchCount     int
	Capped         bool
	Matches        []matchView
}

type viewModel struct {
	ScanID        string
	OverallScore  float64
	Incomplete    bool
	Applicable    []gateView
	NotApplicable []gateView
	Languages     map[string]gatetypes.LanguageStats
	GeneratedAt   string
}

func buildViewModel(result gatetypes.ScanResult) viewModel {
	vm := viewModel{
		ScanID:       result.ScanID,
		OverallScore: result.OverallScore,
		Incomplete:   result.Incomplete,
		Languages:    result.Metadata.Languages,
		GeneratedAt:  result.CompletedAt.Format("2006-01-02 15:04:05 MST"),
	}
	for _, g := range result.Applicable {
		vm.Applicable = append(vm.Applicable, toGateView(g, result.Metadata.WorkingTreePath))
	}
	for _, g := range result.NotApplicable {
		vm.NotApplicable = append(vm.NotApplicable, toGateView(g, result.Metadata.WorkingTreePath))
	}
	return vm
}

func toGateView(g gatetypes.GateResult, workingTree string) gateView {
	gv := gateView{
		Name:           g.GateName,
		Status:         g.Status,
		Color:          statusColor[g.Status],
		Score:          g.Score,
		Recommendation: g.Recommendation,
		Reason:         g.Reason,
		MatchCount:     g.Counts.MatchesFound,
		Capped:         g.Counts.Capped,
	}
	for _, m := range g.Matches {
		// Static-scanner matches already carry relative paths; an
		// external collector may record absolute ones.
		gv.Matches = append(gv.Matches, matchView{
			File:    pathutil.ToRelative(m.FilePath, workingTree),
			Line:    m.Line,
			Snippet: m.Context,
		})
	}
	return gv
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.1f", f) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Gatekeeper report -- {{.ScanID}}</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; margin: 2rem; color: #1f2937; }
h1 { font-size: 2rem; margin-bottom: 0.25rem; }
.badge { display: inline-block; padding: 0.25rem 0.6rem; border-radius: 4px; color: #fff; font-weight: 600; font-size: 0.85rem; }
.score { font-size: 2.5rem; font-weight: 700; }
table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid #e5e7eb; }
.status { color: #fff; padding: 0.15rem 0.5rem; border-radius: 4px; font-size: 0.8rem; font-weight: 600; }
.incomplete { color: #d97706; font-weight: 600; }
</style>
</head>
<body>
<h1>Gatekeeper report</h1>
<p>Scan <code>{{.ScanID}}</code> &middot; generated {{.GeneratedAt}}</p>
<div class="score">{{pct .OverallScore}}<span style="font-size:1.2rem;">/100</span></div>
{{if .Incomplete}}<p class="incomplete">Scan deadline expired before every gate finished; this result is partial.</p>{{end}}

<h2>Gates</h2>
<table>
<tr><th>Gate</th><th>Status</th><th>Score</th><th>Matches</th><th>Recommendation</th></tr>
{{range .Applicable}}
<tr>
<td>{{.Name}}</td>
<td><span class="status" style="background:{{.Color}}">{{.Status}}</span></td>
<td>{{pct .Score}}</td>
<td>{{.MatchCount}}{{if .Capped}} (capped){{end}}</td>
<td>{{.Recommendation}}</td>
</tr>
{{end}}
</table>

{{range .Applicable}}{{if .Matches}}
<h3>{{.Name}} evidence</h3>
<table>
<tr><th>File</th><th>Line</th><th>Snippet</th></tr>
{{range .Matches}}
<tr><td><code>{{.File}}</code></td><td>{{.Line}}</td><td><code>{{.Snippet}}</code></td></tr>
{{end}}
</table>
{{end}}{{end}}

<h2>Not applicable</h2>
<table>
<tr><th>Gate</th><th>Reason</th></tr>
{{range .NotApplicable}}
<tr><td>{{.Name}}</td><td>{{.Reason}}</td></tr>
{{end}}
</table>

<h2>Languages</h2>
<table>
<tr><th>Language</th><th>Files</th><th>Lines</th></tr>
{{range $lang, $stats := .Languages}}
<tr><td>{{$lang}}</td><td>{{$stats.Files}}</td><td>{{$stats.Lines}}</td></tr>
{{end}}
</table>
</body>
</html>
`))

func renderHTML(w io.Writer, vm viewModel) error {
	return reportTemplate.Execute(w, vm)
}
