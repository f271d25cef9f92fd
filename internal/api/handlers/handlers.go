package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/api/middleware"
	"github.com/dvloznov/fidoo-extractor/internal/catalog"
	"github.com/dvloznov/fidoo-extractor/internal/domain"
	"github.com/dvloznov/fidoo-extractor/internal/jobs"
	"github.com/dvloznov/fidoo-extractor/internal/logger"
	"github.com/dvloznov/fidoo-extractor/internal/state"
)

// RunDefaults are applied to run requests that leave a field out.
type RunDefaults struct {
	Objects     []string
	Incremental bool
	Dependents  bool
}

// RunsHandler handles extraction run endpoints.
type RunsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	catalog   *catalog.Catalog
	defaults  RunDefaults
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(publisher jobs.Publisher, store jobs.JobStore, cat *catalog.Catalog, defaults RunDefaults) *RunsHandler {
	return &RunsHandler{
		publisher: publisher,
		store:     store,
		catalog:   cat,
		defaults:  defaults,
	}
}

type createRunRequest struct {
	Objects     []string `json:"objects"`
	Incremental *bool    `json:"incremental"`
	Dependents  *bool    `json:"dependents"`
}

// CreateRun handles POST /api/runs
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	objects := req.Objects
	if len(objects) == 0 {
		objects = h.defaults.Objects
	}
	defs, err := h.catalog.Resolve(objects)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &jobs.ExtractionJob{
		Objects:     names(defs),
		Incremental: h.defaults.Incremental,
		Dependents:  h.defaults.Dependents,
	}
	if req.Incremental != nil {
		job.Incremental = *req.Incremental
	}
	if req.Dependents != nil {
		job.Dependents = *req.Dependents
	}

	if err := h.publisher.PublishExtraction(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue extraction run")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue extraction run")
		return
	}

	log.Info().Str("job_id", job.JobID).Strs("objects", job.Objects).Msg("Extraction run enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.JobID,
		"objects": job.Objects,
		"status":  job.Status,
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request, jobID string) {
	log := logger.FromContext(r.Context())

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Object: query.Get("object"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	runs, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ObjectsHandler serves the object catalog.
type ObjectsHandler struct {
	catalog *catalog.Catalog
}

// NewObjectsHandler creates a new objects handler.
func NewObjectsHandler(cat *catalog.Catalog) *ObjectsHandler {
	return &ObjectsHandler{catalog: cat}
}

type objectView struct {
	Name        string   `json:"name"`
	Endpoint    string   `json:"endpoint"`
	PrimaryKey  []string `json:"primary_key,omitempty"`
	Incremental bool     `json:"incremental"`
	Dependents  []string `json:"dependents,omitempty"`
}

// ListObjects handles GET /api/objects
func (h *ObjectsHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	var out []objectView
	for _, def := range h.catalog.All() {
		v := objectView{
			Name:        def.Name,
			Endpoint:    def.Endpoint,
			PrimaryKey:  def.PrimaryKey,
			Incremental: def.Incremental,
		}
		for _, dep := range def.Dependents {
			v.Dependents = append(v.Dependents, dep.Object.Name)
		}
		out = append(out, v)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"objects": out,
		"count":   len(out),
	})
}

// StateHandler exposes the incremental watermarks.
type StateHandler struct {
	store   state.Store
	catalog *catalog.Catalog
}

// NewStateHandler creates a new state handler.
func NewStateHandler(store state.Store, cat *catalog.Catalog) *StateHandler {
	return &StateHandler{store: store, catalog: cat}
}

// GetState handles GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	marks, err := h.store.Watermarks(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read state")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read state")
		return
	}
	if marks == nil {
		marks = map[string]time.Time{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"watermarks": marks,
	})
}

// ResetObject handles DELETE /api/state/{object}
func (h *StateHandler) ResetObject(w http.ResponseWriter, r *http.Request, object string) {
	log := logger.FromContext(r.Context())

	if _, ok := h.catalog.Get(object); !ok {
		middleware.WriteError(w, http.StatusNotFound, "Unknown object")
		return
	}
	if err := h.store.Delete(r.Context(), object); err != nil {
		log.Error().Err(err).Str("object", object).Msg("Failed to reset watermark")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to reset watermark")
		return
	}

	log.Info().Str("object", object).Msg("Watermark reset")
	w.WriteHeader(http.StatusNoContent)
}

func names(defs []domain.ObjectDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}
