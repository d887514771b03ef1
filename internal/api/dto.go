package api

import (
	"encoding/json"
	"time"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// scanRequestDTO is the POST /api/v1/scan request body.
type scanRequestDTO struct {
	RepositoryURL string  `json:"repository_url"`
	Branch        string  `json:"branch,omitempty"`
	Credential    string  `json:"credential,omitempty"`
	Threshold     float64 `json:"threshold,omitempty"`
	ReportFormat  string  `json:"report_format,omitempty"`
}

func (r scanRequestDTO) toRequest() gatetypes.ScanRequest {
	return gatetypes.ScanRequest{
		RepositoryURL: r.RepositoryURL,
		Branch:        r.Branch,
		Credential:    r.Credential,
		Threshold:     r.Threshold,
		ReportFormat:  r.ReportFormat,
	}
}

type scanAcceptedDTO struct {
	ScanID    string    `json:"scan_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type errorDTO struct {
	Kind      string    `json:"kind"`
	Operation string    `json:"operation,omitempty"`
	FilePath  string    `json:"file_path,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type gateResultDTO struct {
	GateName       string           `json:"gate_name"`
	Status         string           `json:"status"`
	Score          float64          `json:"score"`
	Reason         string           `json:"reason,omitempty"`
	Recommendation string           `json:"recommendation,omitempty"`
	MatchCount     int              `json:"match_count"`
	Matches        []gatetypes.Match `json:"matches,omitempty"`
}

func toGateResultDTO(g gatetypes.GateResult) gateResultDTO {
	return gateResultDTO{
		GateName:       g.GateName,
		Status:         string(g.Status),
		Score:          g.Score,
		Reason:         g.Reason,
		Recommendation: g.Recommendation,
		MatchCount:     g.Counts.MatchesFound,
		Matches:        g.Matches,
	}
}

// jobDTO is the canonical GET /api/v1/scan/{id} response shape. Its
// MarshalJSON additionally emits the older field names
// (score/progress/gates) the API has to keep answering for existing
// integrations; the DTO stays distinct from the internal domain struct
// it's built from so the wire shape can evolve independently.
type jobDTO struct {
	ScanID          string          `json:"scan_id"`
	Status          string          `json:"status"`
	ProgressPercent int             `json:"progress_percent"`
	CurrentStep     string          `json:"current_step,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Incomplete      bool            `json:"incomplete,omitempty"`
	Errors          []errorDTO      `json:"errors,omitempty"`
	OverallScore    *float64        `json:"overall_score,omitempty"`
	GateResults     []gateResultDTO `json:"gate_results,omitempty"`
	NotApplicable   []gateResultDTO `json:"not_applicable,omitempty"`
}

func toJobDTO(job gatetypes.ScanJob) jobDTO {
	dto := jobDTO{
		ScanID:          job.ScanID,
		Status:          string(job.Status),
		ProgressPercent: job.Progress,
		CurrentStep:     job.CurrentStep,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		Incomplete:      job.Incomplete,
	}
	if !job.CompletedAt.IsZero() {
		t := job.CompletedAt
		dto.CompletedAt = &t
	}
	for _, e := range job.Errors {
		dto.Errors = append(dto.Errors, errorDTO{
			Kind: e.Kind, Operation: e.Operation, FilePath: e.FilePath,
			Message: e.Message, Timestamp: e.Timestamp,
		})
	}
	if job.Result != nil {
		score := job.Result.OverallScore
		dto.OverallScore = &score
		for _, g := range job.Result.Applicable {
			dto.GateResults = append(dto.GateResults, toGateResultDTO(g))
		}
		for _, g := range job.Result.NotApplicable {
			dto.NotApplicable = append(dto.NotApplicable, toGateResultDTO(g))
		}
	}
	return dto
}

func (j jobDTO) MarshalJSON() ([]byte, error) {
	type alias jobDTO
	return json.Marshal(struct {
		alias
		Score    *float64        `json:"score,omitempty"`
		Progress int             `json:"progress"`
		Gates    []gateResultDTO `json:"gates,omitempty"`
	}{
		alias:    alias(j),
		Score:    j.OverallScore,
		Progress: j.ProgressPercent,
		Gates:    j.GateResults,
	})
}

type gateSummaryDTO struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Category    string  `json:"category"`
	Priority    string  `json:"priority"`
	Weight      float64 `json:"weight"`
	IsSecurity  bool    `json:"is_security"`
}

func toGateSummaryDTO(g gatetypes.GateDefinition) gateSummaryDTO {
	return gateSummaryDTO{
		Name: g.Name, DisplayName: g.DisplayName, Category: g.Category,
		Priority: string(g.Priority), Weight: g.Weight, IsSecurity: g.IsSecurity,
	}
}
