package api

import (
	"encoding/json"
	"net/http"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/standardbeagle/gatekeeper/internal/report"
	"github.com/standardbeagle/gatekeeper/internal/store"
)

func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	scanID, err := s.pipeline.Submit(req.toRequest())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted := scanAcceptedDTO{ScanID: scanID, Status: string(gatetypes.StatusPending)}
	if job, ok := s.registry.Get(scanID); ok {
		accepted.CreatedAt = job.CreatedAt
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if job, ok := s.registry.Get(id); ok {
		writeJSON(w, http.StatusOK, toJobDTO(job))
		return
	}

	rec, found, err := s.results.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobDTO(jobFromRecord(rec)))
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.pipeline.Cancel(id) {
		writeError(w, http.StatusNotFound, "scan not found or already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel_requested"})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format := r.PathValue("format")
	if format != report.FormatJSON && format != report.FormatHTML {
		writeError(w, http.StatusBadRequest, "format must be json or html")
		return
	}

	var result gatetypes.ScanResult
	if job, ok := s.registry.Get(id); ok {
		if job.Result == nil {
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":  string(job.Status),
				"message": "report not ready",
			})
			return
		}
		result = *job.Result
	} else {
		rec, found, err := s.results.Get(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		result = rec.Result
	}

	switch format {
	case report.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
		if err := report.RenderJSON(w, result); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	case report.FormatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := report.RenderHTML(w, result); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
	}
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	jobs := s.registry.List()
	dtos := make([]jobDTO, 0, len(jobs))
	for _, j := range jobs {
		dtos = append(dtos, toJobDTO(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": dtos})
}

func (s *Server) handleListGates(w http.ResponseWriter, r *http.Request) {
	gates := s.library.Gates()
	dtos := make([]gateSummaryDTO, 0, len(gates))
	for _, g := range gates {
		dtos = append(dtos, toGateSummaryDTO(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"gates": dtos})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.results.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jobFromRecord rebuilds a terminal ScanJob view from a persisted store
// record, for scans that have already been swept out of the in-memory
// registry by the retention sweeper but are still in durable storage.
func jobFromRecord(rec store.Record) gatetypes.ScanJob {
	job := gatetypes.ScanJob{
		ScanID: rec.ScanID,
		Status: rec.Status,
		Request: gatetypes.ScanRequest{
			RepositoryURL: rec.RepositoryURL,
			Branch:        rec.Branch,
			Threshold:     rec.RequestedThreshold,
		},
		CreatedAt:   rec.Result.CreatedAt,
		UpdatedAt:   rec.Result.UpdatedAt,
		CompletedAt: rec.Result.CompletedAt,
		Errors:      rec.Result.Errors,
		Incomplete:  rec.Result.Incomplete,
	}
	if rec.Result.ScanID != "" {
		result := rec.Result
		job.Result = &result
	}
	if job.Status.Terminal() {
		job.Progress = 100
	}
	return job
}
