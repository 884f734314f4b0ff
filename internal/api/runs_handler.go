package api

import (
	"net/http"
	"strconv"
)

const defaultRunsLimit = 20

// ListRuns возвращает историю выполнений, начиная с новых.
// GET /api/v1/runs?job=wiki-sync&limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			BadRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}
	job := r.URL.Query().Get("job")

	runs, err := h.history.Query(r.Context(), limit, job)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	List(w, RunsFromDomain(runs), len(runs))
}
