// Package gatetypes holds the shared data model for a gate scan: the
// request/job lifecycle, the repository inventory, the pattern-catalog
// shape, and the scored result. Every other package in this module
// imports gatetypes; it imports nothing domain-specific in return.
package gatetypes

import "time"

// JobStatus is a ScanJob's lifecycle state. Transitions form a DAG:
// Pending -> Running -> {Completed, Failed, Cancelled}. Terminal states
// are immutable.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is one a job never leaves.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// GateStatus is the outcome classification for a single gate.
type GateStatus string

const (
	GatePass          GateStatus = "PASS"
	GateFail          GateStatus = "FAIL"
	GateWarning       GateStatus = "WARNING"
	GateNotApplicable GateStatus = "NOT_APPLICABLE"
)

// FileRole classifies a FileEntry's purpose within the repository.
type FileRole string

const (
	RoleSourceCode FileRole = "source"
	RoleTestCode   FileRole = "test"
	RoleConfig     FileRole = "config"
	RoleDoc        FileRole = "doc"
	RoleBuild      FileRole = "build"
	RoleOther      FileRole = "other"
)

// Priority is a gate's declared importance, used only for display/sort;
// it does not feed the score.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Category is a technology-stack bucket used by the applicability
// analyzer's required/excluded rules.
type Category string

const (
	CategoryFrontend Category = "frontend"
	CategoryBackend  Category = "backend"
	CategoryAPI      Category = "api"
	CategoryMobile   Category = "mobile"
)

// ScanRequest is the inbound request to start a scan.
type ScanRequest struct {
	RepositoryURL string
	Branch        string
	Credential    string // e.g. a token; never logged or persisted verbatim
	Threshold     float64
	ReportFormat  string // "html" | "json" | "both"
	ScanTimeout   time.Duration
}

// ScanJob is the mutable record a pipeline owns for the lifetime of a scan.
// Only the owning pipeline goroutine mutates it; readers (the job
// registry, the HTTP API) see immutable snapshots.
type ScanJob struct {
	ScanID      string
	Status      JobStatus
	Progress    int // 0..100
	CurrentStep string
	StepDetail  string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time

	Errors []JobError

	Request ScanRequest
	Result  *ScanResult

	ReportPaths map[string]string // format -> artifact path/URL, once generated

	Incomplete bool // true if a deadline truncated a stage
}

// JobError is the plain-data form of an apperrors.GateError recorded on a
// job; kept independent of the apperrors package so gatetypes has no
// upward dependency.
type JobError struct {
	Kind      string
	Operation string
	FilePath  string
	Message   string
	Timestamp time.Time
}

// LanguageStats aggregates file/line counts for one detected language.
type LanguageStats struct {
	Files int
	Lines int
}

// RepoMetadata is built once during inventory and never mutated after.
type RepoMetadata struct {
	WorkingTreePath string
	FileCount       int
	TotalLines      int
	Languages       map[string]LanguageStats
	BuildTools      []string
	Frameworks      []string
	DeployPlatforms []string
	CommitHash      string
	LastCommitDate  time.Time
}

// FileEntry is one inventoried file.
type FileEntry struct {
	Path     string // relative to working tree, slash-separated
	Language string
	Role     FileRole
	Size     int64
	Lines    int
	Binary   bool
}

// PatternDef is one catalog-declared pattern for a gate/language bucket.
type PatternDef struct {
	Pattern   string
	Weight    float64
	Rationale string
}

// ScoringKnobs carries the tunable thresholds and multipliers consumed by
// the scorer. Zero-valued fields are filled from the catalog's global
// defaults by the pattern library.
type ScoringKnobs struct {
	// Security-gate knobs.
	BaseScore       float64
	ViolationPenalty float64
	MaxPenalty      float64
	BonusForClean   float64

	// Coverage-gate knobs.
	BonusThreshold    float64
	BonusMultiplier   float64
	PenaltyThreshold  float64
	PenaltyMultiplier float64

	// Shared status-classification thresholds.
	PassThreshold         float64
	WarningThreshold      float64
	SecurityPassThreshold float64
}

// ExpectedCoverage is a coverage gate's declared target.
type ExpectedCoverage struct {
	Percent    float64
	Reasoning  string
	Confidence string
}

// ApplicabilityRule lists the technology categories a gate requires or
// excludes.
type ApplicabilityRule struct {
	Required []Category
	Excluded []Category
}

// GateDefinition is one catalog-declared gate.
type GateDefinition struct {
	Name        string
	DisplayName string
	Description string
	Category    string
	Priority    Priority
	Weight      float64
	IsSecurity  bool

	PatternsByLanguage map[string][]PatternDef

	Scoring          ScoringKnobs
	ExpectedCoverage ExpectedCoverage
	Applicability    ApplicabilityRule

	MandatoryCollectors []string
}

// Match is one pattern hit in one file.
type Match struct {
	FilePath    string
	Line        int // 1-based
	Pattern     string
	Matched     string
	Source      string // which collector produced it: "static", "external", "llm-pattern"
	Context     string // bounded surrounding line
}

// GateCounts summarizes a gate's matching activity.
type GateCounts struct {
	PatternsUsed    int
	MatchesFound    int
	RelevantFiles   int
	FilesWithMatches int
	Capped          bool
}

// ScoringDetails records the inputs that produced a gate's score, for
// report transparency.
type ScoringDetails struct {
	Weight          float64
	CoverageActual  float64
	CoverageExpected float64
	Violations      int
}

// CollectorReport records one collector's contribution to a gate.
type CollectorReport struct {
	Name       string
	Enabled    bool
	Succeeded  bool
	Cause      string
	Confidence string // "high" | "medium" | "low"
}

// GateResult is one gate's outcome for a scan.
type GateResult struct {
	GateName   string
	Status     GateStatus
	Score      float64
	Matches    []Match
	Counts     GateCounts
	Scoring    ScoringDetails
	Sources    []CollectorReport
	Reason     string // populated for NOT_APPLICABLE
	Recommendation string
}

// ScanResult is the final, persisted outcome of a scan.
type ScanResult struct {
	ScanID       string
	OverallScore float64
	Applicable   []GateResult
	NotApplicable []GateResult
	Metadata     RepoMetadata
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  time.Time
	Errors       []JobError
	Incomplete   bool
}
