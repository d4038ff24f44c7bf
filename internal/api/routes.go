package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты /api/v1.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(RequestLogger(h.logger), Recovery())

	routes := []struct {
		pattern string
		handler handlerFunc
	}{
		{"POST /api/v1/events", h.ReceiveEvent},
		{"GET /api/v1/workflow", h.GetWorkflow},
		{"GET /api/v1/runs", h.ListRuns},
		{"GET /api/v1/runs/{id}", h.GetRun},
		{"GET /api/v1/runs/{id}/jobs", h.ListRunJobs},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, chain(rt.handler))
	}
}
