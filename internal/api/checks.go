package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// PassResponse is the JSON body returned for a check pass.
type PassResponse struct {
	Success          bool             `json:"success"`
	CheckedCount     int              `json:"checkedCount"`
	TotalActiveCount int              `json:"totalActiveCount"`
	Results          []ResultResponse `json:"results"`
	Error            string           `json:"error,omitempty"`
}

// ResultResponse is the JSON body for one target's check.
type ResultResponse struct {
	TargetID       string `json:"targetId"`
	Success        bool   `json:"success"`
	ChangeDetected *bool  `json:"changeDetected,omitempty"`
	Fingerprint    string `json:"fingerprint,omitempty"`
	CheckID        string `json:"checkId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// NewPassResponse converts a pass summary into its JSON form.
func NewPassResponse(summary monitor.PassSummary) PassResponse {
	resp := PassResponse{
		Success:          true,
		CheckedCount:     summary.CheckedCount(),
		TotalActiveCount: summary.TotalActiveCount,
		Results:          make([]ResultResponse, 0, len(summary.Results)),
	}
	for _, res := range summary.Results {
		resp.Results = append(resp.Results, NewResultResponse(res))
	}
	return resp
}

// NewResultResponse converts a single check result into its JSON form.
func NewResultResponse(res monitor.CheckResult) ResultResponse {
	out := ResultResponse{
		TargetID: res.TargetID,
		Success:  res.Success(),
		CheckID:  res.CheckID,
	}
	if res.Success() {
		changed := res.ChangeDetected()
		out.ChangeDetected = &changed
		out.Fingerprint = res.Fingerprint
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (s *Server) runDuePass(w http.ResponseWriter, r *http.Request) {
	s.runPass(w, r, monitor.PassDue)
}

func (s *Server) runAllPass(w http.ResponseWriter, r *http.Request) {
	s.runPass(w, r, monitor.PassAll)
}

func (s *Server) runPass(w http.ResponseWriter, r *http.Request, mode monitor.PassMode) {
	summary, err := s.checker.RunPass(r.Context(), mode)
	if err != nil {
		s.logger.Error("check pass failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("mode", string(mode)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, PassResponse{
			Success: false,
			Results: []ResultResponse{},
			Error:   "failed to run check pass",
		})
		return
	}
	writeJSON(w, http.StatusOK, NewPassResponse(summary))
}

func (s *Server) checkTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res := s.checker.Check(r.Context(), id)
	status := http.StatusOK
	switch {
	case errors.Is(res.Err, monitor.ErrCheckInProgress):
		status = http.StatusConflict
	case errors.Is(res.Err, monitor.ErrNotFoundOrInactive):
		status = http.StatusNotFound
	}
	writeJSON(w, status, NewResultResponse(res))
}
