package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/recap-api/internal/api/shared"
	apiMiddleware "github.com/phrazzld/recap-api/internal/api/middleware"
	"github.com/phrazzld/recap-api/internal/pipeline"
)

const (
	// maxRequestBytes bounds request bodies; box score sources are large.
	maxRequestBytes = 1 << 20
	requestTimeout  = 30 * time.Second
)

// NewRouter creates the application router with all routes and middleware.
func NewRouter(jobs JobService, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := NewJobHandler(jobs, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxRequestBytes))
	r.Use(middleware.Timeout(requestTimeout))

	r.Post("/recap", h.Submit(pipeline.JobTypeRecap))
	r.Post("/parse", h.Submit(pipeline.JobTypeParse))
	r.Post("/triggers", h.Submit(pipeline.JobTypeDetectTriggers))

	r.Get("/jobs/{jobId}", h.GetJob)
	r.Delete("/jobs/{jobId}", h.DeleteJob)

	r.Get("/stats", h.Stats)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("Failed to write health check response", "error", err)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithError(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
