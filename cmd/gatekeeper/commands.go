package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/standardbeagle/gatekeeper/internal/jobregistry"
	"github.com/standardbeagle/gatekeeper/internal/patternlib"
	"github.com/standardbeagle/gatekeeper/internal/report"
)

// pollInterval is how often the scan command polls job status while
// waiting for a synchronous scan to finish.
const pollInterval = 500 * time.Millisecond

// scanCommand runs a single scan to completion and prints its outcome,
// exiting 0 if the overall score clears the threshold, 1 if it doesn't,
// and 2 on any scanner error.
func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan a repository against the gate catalog",
		ArgsUsage: "<repo_url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "branch", Usage: "Branch to check out"},
			&cli.StringFlag{Name: "token", Usage: "Credential for a private repository"},
			&cli.Float64Flag{Name: "threshold", Value: 70, Usage: "Minimum overall score to pass"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Directory to write reports into", Value: "."},
			&cli.StringFlag{Name: "format", Value: "html", Usage: "Report format: html|json|both"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Print per-gate detail"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("scan: a repository URL is required", 2)
			}
			repoURL := c.Args().First()

			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return cli.Exit(err, 2)
			}
			comps, err := buildComponents(cfg)
			if err != nil {
				return cli.Exit(err, 2)
			}
			defer comps.results.Close()

			req := gatetypes.ScanRequest{
				RepositoryURL: repoURL,
				Branch:        c.String("branch"),
				Credential:    c.String("token"),
				Threshold:     c.Float64("threshold"),
				ReportFormat:  c.String("format"),
			}
			scanID, err := comps.pipeline.Submit(req)
			if err != nil {
				return cli.Exit(fmt.Errorf("submit scan: %w", err), 2)
			}
			fmt.Printf("gatekeeper: scan %s started for %s\n", scanID, repoURL)

			job, err := waitForTerminal(c.Context, comps.registry, scanID)
			if err != nil {
				return cli.Exit(err, 2)
			}

			if job.Status == gatetypes.StatusFailed {
				for _, e := range job.Errors {
					fmt.Fprintf(os.Stderr, "gatekeeper: %s: %s\n", e.Kind, e.Message)
				}
				return cli.Exit("scan failed", 2)
			}

			if job.Incomplete {
				fmt.Fprintln(os.Stderr, "gatekeeper: warning: scan did not finish within its deadline; results are partial")
			}

			if job.Result == nil {
				return cli.Exit("scan completed with no result", 2)
			}

			paths, err := report.Write(*job.Result, c.String("output"), reportFormats(c.String("format")))
			if err != nil {
				return cli.Exit(fmt.Errorf("write report: %w", err), 2)
			}
			for format, path := range paths {
				fmt.Printf("gatekeeper: %s report written to %s\n", format, path)
			}

			printSummary(*job.Result, c.Bool("verbose"))

			if job.Result.OverallScore >= req.Threshold {
				return nil
			}
			return cli.Exit(fmt.Sprintf("score %.1f below threshold %.1f", job.Result.OverallScore, req.Threshold), 1)
		},
	}
}

func reportFormats(format string) []string {
	switch format {
	case report.FormatJSON:
		return []string{report.FormatJSON}
	case "both":
		return []string{report.FormatJSON, report.FormatHTML}
	default:
		return []string{report.FormatHTML}
	}
}

func waitForTerminal(ctx context.Context, registry *jobregistry.Registry, scanID string) (gatetypes.ScanJob, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		job, ok := registry.Get(scanID)
		if !ok {
			return gatetypes.ScanJob{}, fmt.Errorf("scan %s vanished from the registry", scanID)
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return gatetypes.ScanJob{}, ctx.Err()
		case <-ticker.C:
			if job.CurrentStep != "" {
				debug.LogPipeline("scan %s: %s (%d%%)", scanID, job.CurrentStep, job.Progress)
			}
		}
	}
}

func printSummary(result gatetypes.ScanResult, verbose bool) {
	fmt.Printf("\noverall score: %.1f\n", result.OverallScore)
	for _, g := range result.Applicable {
		fmt.Printf("  %-28s %-7s %6.1f\n", g.GateName, g.Status, g.Score)
		if verbose {
			for _, m := range g.Matches {
				fmt.Printf("      %s:%d  %s\n", m.FilePath, m.Line, strings.TrimSpace(m.Matched))
			}
			if g.Recommendation != "" {
				fmt.Printf("      -> %s\n", g.Recommendation)
			}
		}
	}
	for _, g := range result.NotApplicable {
		fmt.Printf("  %-28s %-7s %s\n", g.GateName, g.Status, g.Reason)
	}
}

// viewCommand prints the text summary table of a JSON report when the
// path ends in ".json", and otherwise opens the path in the default
// browser. The choice depends on the suffix alone; whether stdout is a
// terminal is not checked.
func viewCommand() *cli.Command {
	return &cli.Command{
		Name:      "view",
		Usage:     "Open or summarize a generated report",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("view: a report path is required", 2)
			}
			path := c.Args().First()

			if strings.HasSuffix(path, ".json") {
				return printJSONSummary(path)
			}
			if err := openInBrowser(path); err != nil {
				fmt.Fprintf(os.Stderr, "gatekeeper: could not open a browser (%v); report is at %s\n", err, path)
			}
			return nil
		},
	}
}

func printJSONSummary(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(err, 2)
	}
	defer f.Close()

	var result gatetypes.ScanResult
	if err := json.NewDecoder(f).Decode(&result); err != nil {
		return cli.Exit(fmt.Errorf("decode report: %w", err), 2)
	}
	printSummary(result, false)
	return nil
}

func openInBrowser(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

// gatesCommand lists the pattern catalog's gates without running a scan.
// A bare gate name argument looks up that one gate and, on a miss,
// suggests the closest catalog name via fuzzy string matching rather
// than just failing. --watch keeps the catalog file open under a
// filesystem watch and reprints the listing on every edit, for
// iterating on gates.yaml without restarting.
func gatesCommand() *cli.Command {
	return &cli.Command{
		Name:      "gates",
		Usage:     "List the gate catalog",
		ArgsUsage: "[gate_name]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
			&cli.BoolFlag{Name: "watch", Usage: "Reprint the catalog whenever the catalog file changes"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return cli.Exit(err, 2)
			}
			library, err := patternlib.Load(cfg.CatalogPath)
			if err != nil {
				return cli.Exit(fmt.Errorf("load pattern catalog %s: %w", cfg.CatalogPath, err), 2)
			}

			if name := c.Args().First(); name != "" {
				return printGate(library, name, c.Bool("json"))
			}

			printGates(library, c.Bool("json"))
			if !c.Bool("watch") {
				return nil
			}
			return watchGates(c.Context, cfg.CatalogPath, c.Bool("json"))
		},
	}
}

func printGates(library *patternlib.Library, asJSON bool) {
	gates := library.Gates()
	if asJSON {
		_ = json.NewEncoder(os.Stdout).Encode(gates)
		return
	}
	for _, g := range gates {
		kind := "coverage"
		if g.IsSecurity {
			kind = "security"
		}
		fmt.Printf("%-28s %-8s %-8s weight=%.2f  %s\n", g.Name, g.Priority, kind, g.Weight, g.DisplayName)
	}
}

func printGate(library *patternlib.Library, name string, asJSON bool) error {
	gate, ok := library.Gate(name)
	if !ok {
		suggestion, score := library.Suggest(name)
		if suggestion != "" && score > 0.75 {
			return cli.Exit(fmt.Sprintf("gate %q not found, did you mean %q?", name, suggestion), 1)
		}
		return cli.Exit(fmt.Sprintf("gate %q not found", name), 1)
	}
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(gate)
	}
	fmt.Printf("%s (%s)\n  category: %s  priority: %s  weight: %.2f\n  %s\n",
		gate.Name, gate.DisplayName, gate.Category, gate.Priority, gate.Weight, gate.Description)
	return nil
}

func watchGates(ctx context.Context, catalogPath string, asJSON bool) error {
	watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := patternlib.NewWatcher(catalogPath, func(lib *patternlib.Library, loadErr error) {
		if loadErr != nil {
			fmt.Fprintf(os.Stderr, "gatekeeper: catalog reload failed: %v\n", loadErr)
			return
		}
		fmt.Println("--- catalog changed, reloading ---")
		printGates(lib, asJSON)
	})
	if err != nil {
		return cli.Exit(fmt.Errorf("watch catalog: %w", err), 2)
	}
	defer w.Close()

	fmt.Println("gatekeeper: watching", catalogPath, "for changes (ctrl-c to stop)")
	<-watchCtx.Done()
	return nil
}

// serveCommand runs the HTTP API and job registry sweeper until an
// interrupt or terminate signal arrives.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the scan API server",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigWithOverrides(c)
			if err != nil {
				return cli.Exit(err, 2)
			}
			comps, err := buildComponents(cfg)
			if err != nil {
				return cli.Exit(err, 2)
			}
			defer comps.results.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			comps.registry.RunSweeper(ctx, time.Hour)

			server := newAPIServer(comps)
			addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
			httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

			errCh := make(chan error, 1)
			go func() {
				fmt.Printf("gatekeeper: listening on %s\n", addr)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return cli.Exit(err, 2)
				}
				return nil
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return cli.Exit(err, 2)
				}
				return nil
			}
		},
	}
}
