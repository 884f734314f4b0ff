package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	base := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		Metrics(),
	)
	admin := Chain(base, Auth(h.gate, h.logger))
	hooks := Chain(base, RateLimit(h.webhookRateLimit, h.logger))

	// Service
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Scheduler
	mux.Handle("GET /api/v1/scheduler", admin(http.HandlerFunc(h.GetScheduler)))
	mux.Handle("POST /api/v1/scheduler/start", admin(http.HandlerFunc(h.StartScheduler)))
	mux.Handle("POST /api/v1/scheduler/stop", admin(http.HandlerFunc(h.StopScheduler)))
	mux.Handle("POST /api/v1/jobs/{name}/run", admin(http.HandlerFunc(h.RunJob)))

	// Runs
	mux.Handle("GET /api/v1/runs", admin(http.HandlerFunc(h.ListRuns)))

	// Webhooks
	mux.Handle("POST /api/v1/webhooks/github", hooks(http.HandlerFunc(h.GitHubWebhook)))
}

// Healthz — liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
