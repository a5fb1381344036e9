package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 500
)

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	logs, err := s.store.ListRecentChecks(ctx, limit)
	if err != nil {
		s.storeFailure(w, r, "list checks", err)
		return
	}
	if logs == nil {
		logs = []monitor.CheckLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "limit": limit})
}

func parseLimit(raw string) (int, bool) {
	if raw == "" {
		return defaultLogLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, maxLogLimit), true
}

type diffRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type diffResponse struct {
	diff.Result
	Window string `json:"window,omitempty"`
}

func (s *Server) diff(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	resp := diffResponse{Result: diff.Words(req.Old, req.New)}
	if diff.Long(req.Old, req.New) {
		resp.Window = diff.Window(req.Old, req.New)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) testNotification(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "no notifier configured"})
		return
	}
	now := s.clock.Now()
	previous := "pagewatch test notification: previous content"
	current := "pagewatch test notification: current content"
	result := diff.Words(previous, current)
	n := monitor.Notification{
		Target: monitor.Target{
			ID:                   "test",
			URL:                  "https://example.com",
			Name:                 "Test Notification",
			CheckIntervalMinutes: 60,
			IsActive:             true,
		},
		Check: monitor.CheckRecord{
			ID:             "test",
			TargetID:       "test",
			ContentPreview: monitor.Preview(current),
			ChangeDetected: true,
			CheckedAt:      now,
		},
		PreviousContent: previous,
		CurrentContent:  current,
		Summary:         result.Summary,
		RenderedDiff:    result.Rendered,
	}
	if err := s.notifier.Notify(r.Context(), n); err != nil {
		s.logger.Warn("test notification failed",
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
