package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/applicability"
	"github.com/standardbeagle/gatekeeper/internal/gateengine"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/standardbeagle/gatekeeper/internal/inventory"
	"github.com/standardbeagle/gatekeeper/internal/report"
	"github.com/standardbeagle/gatekeeper/internal/scorer"
)

// fetchRepository clones req.RepositoryURL into ws.dir with a shallow,
// single-branch checkout into a working tree owned exclusively by this
// scan (the path includes the scan ID). The repository size cap is
// checked after clone, since go-git has no pre-clone size probe.
func fetchRepository(ctx context.Context, p *Pipeline, scanID string, ws *workspace, req gatetypes.ScanRequest) error {
	cloneOpts := &git.CloneOptions{
		URL:          req.RepositoryURL,
		SingleBranch: true,
		Depth:        1,
	}
	if req.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
	}
	if req.Credential != "" {
		cloneOpts.Auth = &githttp.BasicAuth{Username: "gatekeeper-scan", Password: req.Credential}
	}

	repo, err := git.PlainCloneContext(ctx, ws.dir, false, cloneOpts)
	if err != nil {
		return apperrors.New(apperrors.KindRepoFetchFailed, "clone", err)
	}

	if head, err := repo.Head(); err == nil {
		ws.commitHash = head.Hash().String()
		if commit, err := repo.CommitObject(head.Hash()); err == nil {
			ws.commitDate = commit.Committer.When
		}
	}

	if p.cfg.MaxRepoSizeMB > 0 {
		sizeMB, err := dirSizeMB(ws.dir)
		if err == nil && sizeMB > p.cfg.MaxRepoSizeMB {
			return apperrors.New(apperrors.KindRepoTooLarge, "clone_size_check",
				fmt.Errorf("working tree is %dMB, limit is %dMB", sizeMB, p.cfg.MaxRepoSizeMB))
		}
	}
	return nil
}

func dirSizeMB(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total / (1024 * 1024), err
}

// inventoryRepository walks the cloned tree once, classifying every file
// and aggregating per-language line counts.
func inventoryRepository(ctx context.Context, p *Pipeline, scanID string, ws *workspace, req gatetypes.ScanRequest) error {
	res, err := inventory.Walk(ctx, ws.dir, inventory.Options{
		MaxFileSizeMB:    p.cfg.MaxFileSizeMB,
		MaxFiles:         p.cfg.MaxFilesPerScan,
		MaxTotalSizeMB:   p.cfg.MaxRepoSizeMB,
		RespectGitignore: true,
	})
	if err != nil {
		return err
	}

	ws.files = res.Files
	ws.metadata = res.Metadata
	ws.metadata.CommitHash = ws.commitHash
	ws.metadata.LastCommitDate = ws.commitDate
	ws.truncated = res.Truncated

	for _, f := range ws.files {
		if f.Role == gatetypes.RoleConfig || f.Role == gatetypes.RoleBuild {
			ws.configNames = append(ws.configNames, filepath.Base(f.Path))
		}
	}
	return nil
}

// buildToolLabels maps the raw build-marker file names inventory already
// collected into human-readable tool names. Parsing every manifest's
// full dependency graph is deliberately out of scope; a name lookup is
// enough for applicability decisions.
var buildToolLabels = map[string]string{
	"go.mod": "go modules", "package.json": "npm", "yarn.lock": "yarn",
	"pnpm-lock.yaml": "pnpm", "Cargo.toml": "cargo", "pom.xml": "maven",
	"build.gradle": "gradle", "build.gradle.kts": "gradle", "requirements.txt": "pip",
	"pyproject.toml": "poetry/pip", "setup.py": "setuptools", "composer.json": "composer",
	"Gemfile": "bundler", "Makefile": "make", "CMakeLists.txt": "cmake",
}

var deployMarkers = map[string]string{
	"Dockerfile": "docker", "docker-compose.yml": "docker-compose",
	"Procfile": "heroku", "serverless.yml": "serverless",
}

// frameworkSignatures is matched against dependency names parsed out of
// each ecosystem's manifest (package.json's dependencies/devDependencies,
// pyproject.toml's PEP 621 / Poetry dependency tables, Cargo.toml's
// [dependencies]/[dev-dependencies]) -- a shallow "known name" lookup,
// not a full dependency-graph resolver.
var frameworkSignatures = []string{
	"react", "vue", "angular", "express", "next", "django", "flask", "spring",
	"gin", "fiber", "rails", "actix", "rocket", "axum", "tokio",
}

// extractBuildMetadata turns the raw build-marker file names inventory
// collected into BuildTools/DeployPlatforms labels and does a shallow
// text scan of manifest files for known framework names.
func extractBuildMetadata(ctx context.Context, p *Pipeline, scanID string, ws *workspace, req gatetypes.ScanRequest) error {
	seen := make(map[string]bool)
	var tools, platforms []string
	for _, base := range ws.metadata.BuildTools {
		if label, ok := buildToolLabels[base]; ok && !seen["tool:"+label] {
			tools = append(tools, label)
			seen["tool:"+label] = true
		}
		if label, ok := deployMarkers[base]; ok && !seen["platform:"+label] {
			platforms = append(platforms, label)
			seen["platform:"+label] = true
		}
	}

	frameworks := detectFrameworks(ws.dir, ws.files)

	ws.metadata.BuildTools = tools
	ws.metadata.DeployPlatforms = platforms
	ws.metadata.Frameworks = frameworks
	return nil
}

// pyprojectManifest mirrors the handful of PEP 621 / Poetry fields this
// stage cares about -- dependency names, not full project metadata.
type pyprojectManifest struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]interface{} `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// cargoManifest mirrors Cargo.toml's dependency tables.
type cargoManifest struct {
	Dependencies    map[string]interface{} `toml:"dependencies"`
	DevDependencies map[string]interface{} `toml:"dev-dependencies"`
}

func detectFrameworks(root string, files []gatetypes.FileEntry) []string {
	var found []string
	seen := make(map[string]bool)
	record := func(name string) {
		name = strings.ToLower(name)
		for _, sig := range frameworkSignatures {
			if strings.Contains(name, sig) && !seen[sig] {
				found = append(found, sig)
				seen[sig] = true
			}
		}
	}

	for _, f := range files {
		base := filepath.Base(f.Path)
		path := filepath.Join(root, f.Path)
		switch base {
		case "package.json":
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var pkg struct {
				Dependencies    map[string]string `json:"dependencies"`
				DevDependencies map[string]string `json:"devDependencies"`
			}
			if json.Unmarshal(data, &pkg) != nil {
				continue
			}
			for name := range pkg.Dependencies {
				record(name)
			}
			for name := range pkg.DevDependencies {
				record(name)
			}
		case "requirements.txt":
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			for _, line := range strings.Split(string(data), "\n") {
				record(line)
			}
		case "pyproject.toml":
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var doc pyprojectManifest
			if toml.Unmarshal(data, &doc) != nil {
				continue
			}
			for _, dep := range doc.Project.Dependencies {
				record(dep)
			}
			for name := range doc.Tool.Poetry.Dependencies {
				record(name)
			}
		case "Cargo.toml":
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			var doc cargoManifest
			if toml.Unmarshal(data, &doc) != nil {
				continue
			}
			for name := range doc.Dependencies {
				record(name)
			}
			for name := range doc.DevDependencies {
				record(name)
			}
		}
	}
	return found
}

// validateGates runs the gate engine across every applicable gate and
// computes the overall weighted score -- the dominant-cost stage, which
// is why it carries more than half of the scan's progress weight.
func validateGates(ctx context.Context, p *Pipeline, scanID string, ws *workspace, req gatetypes.ScanRequest) error {
	job, _ := p.registry.Get(scanID)

	characteristics := applicability.Analyze(ws.metadata, ws.configNames)

	base := weightFetch + weightInventory + weightMetadata
	applicableResults, notApplicableResults, err := p.engine.Evaluate(ctx, gateengine.RepoContext{
		RootDir: ws.dir,
		Files:   ws.files,
		Progress: func(done, total int) {
			if total == 0 {
				return
			}
			p.registry.Update(scanID, func(j *gatetypes.ScanJob) {
				// Ticks arrive from concurrent workers out of order;
				// progress must never move backwards.
				if pct := base + weightValidate*done/total; pct > j.Progress {
					j.Progress = pct
					j.StepDetail = fmt.Sprintf("%d/%d files scanned", done, total)
				}
			})
		},
	}, characteristics)
	if err != nil {
		return err
	}

	overall := scorer.Overall(applicableResults)

	ws.result = &gatetypes.ScanResult{
		ScanID:        scanID,
		OverallScore:  overall,
		Applicable:    applicableResults,
		NotApplicable: notApplicableResults,
		Metadata:      ws.metadata,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     time.Now(),
	}
	return nil
}

// generateReport renders the requested formats to disk, outside the
// working tree so Cleanup never touches the artifacts a caller still
// needs to download.
func generateReport(ctx context.Context, p *Pipeline, scanID string, ws *workspace, req gatetypes.ScanRequest) error {
	if ws.result == nil {
		return apperrors.New(apperrors.KindInternal, "generate_report", fmt.Errorf("no scan result to render"))
	}
	ws.result.CompletedAt = time.Now()

	formats := reportFormats(req.ReportFormat)
	reportDir := filepath.Join(p.cfg.WorkDir, "gatekeeper-reports", scanID)

	paths, err := report.Write(*ws.result, reportDir, formats)
	if err != nil {
		return err
	}
	ws.reportPaths = paths
	return nil
}

func reportFormats(requested string) []string {
	switch requested {
	case report.FormatHTML:
		return []string{report.FormatHTML}
	case "both":
		return []string{report.FormatJSON, report.FormatHTML}
	default:
		return []string{report.FormatJSON}
	}
}
