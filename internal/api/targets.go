package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const storeTimeout = 5 * time.Second

type targetRequest struct {
	URL                  string `json:"url" validate:"required,http_url"`
	Name                 string `json:"name" validate:"required,max=200"`
	CheckIntervalMinutes int    `json:"check_interval_minutes" validate:"required,min=1"`
	IsActive             *bool  `json:"is_active"`
}

func (s *Server) decodeTarget(w http.ResponseWriter, r *http.Request) (targetRequest, bool) {
	var req targetRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	req.URL = strings.TrimSpace(req.URL)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return req, false
	}
	return req, true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return "invalid request: " + strings.Join(fields, ", ")
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	targets, err := s.store.ListTargets(ctx)
	if err != nil {
		s.storeFailure(w, r, "list targets", err)
		return
	}
	if targets == nil {
		targets = []monitor.Target{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
}

func (s *Server) getTarget(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	target, err := s.store.GetTarget(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.storeFailure(w, r, "get target", err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func (s *Server) createTarget(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	target, err := s.store.CreateTarget(ctx, monitor.Target{
		URL:                  req.URL,
		Name:                 req.Name,
		CheckIntervalMinutes: req.CheckIntervalMinutes,
		IsActive:             active,
	})
	if err != nil {
		s.storeFailure(w, r, "create target", err)
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

func (s *Server) updateTarget(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	existing, err := s.store.GetTarget(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.storeFailure(w, r, "get target", err)
		return
	}
	existing.URL = req.URL
	existing.Name = req.Name
	existing.CheckIntervalMinutes = req.CheckIntervalMinutes
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	updated, err := s.store.UpdateTarget(ctx, existing)
	if err != nil {
		s.storeFailure(w, r, "update target", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteTarget(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.store.DeleteTarget(ctx, chi.URLParam(r, "id")); err != nil {
		s.storeFailure(w, r, "delete target", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, monitor.ErrNotFound) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	s.logger.Error(op+" failed",
		zap.String("request_id", requestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
