// Package api serves the extractor control plane over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/fidoo-extractor/internal/api/handlers"
	"github.com/dvloznov/fidoo-extractor/internal/api/middleware"
	"github.com/rs/zerolog"
)

// Server bundles the handlers mounted by NewRouter.
type Server struct {
	Runs    *handlers.RunsHandler
	Objects *handlers.ObjectsHandler
	State   *handlers.StateHandler

	// Metrics serves /metrics when set.
	Metrics http.Handler

	APIToken string
	Log      zerolog.Logger
}

// NewRouter builds the routes and wraps them in the middleware chain.
func NewRouter(s Server) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.Runs.ListRuns(w, r)
		case http.MethodPost:
			s.Runs.CreateRun(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/runs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Run ID is required")
			return
		}
		s.Runs.GetRun(w, r, jobID)
	})

	mux.HandleFunc("/api/objects", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.Objects.ListObjects(w, r)
	})

	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.State.GetState(w, r)
	})

	mux.HandleFunc("/api/state/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		object := strings.TrimPrefix(r.URL.Path, "/api/state/")
		if object == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Object is required")
			return
		}
		s.State.ResetObject(w, r, object)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}

	return middleware.Recovery(s.Log)(
		middleware.RequestID(
			middleware.Logger(s.Log)(
				middleware.CORS(
					middleware.Auth(s.APIToken, "/health", "/metrics")(mux),
				),
			),
		),
	)
}
