package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// ListRuns возвращает последние runs.
// GET /api/v1/runs?workflow=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) error {
	if h.store == nil {
		return unavailable("run storage is not configured")
	}

	filter, err := parseRunFilter(r.URL.Query())
	if err != nil {
		return err
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		return err
	}

	out := make([]RunResponse, len(runs))
	for i, run := range runs {
		out[i] = RunFromDomain(run)
	}
	return writeList(w, out)
}

// GetRun возвращает run с итогами jobs.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) error {
	run, err := h.lookupRun(r)
	if err != nil {
		return err
	}
	return writeData(w, http.StatusOK, RunFromDomain(*run))
}

// ListRunJobs возвращает jobs run вместе с результатами шагов.
// GET /api/v1/runs/{id}/jobs
func (h *Handler) ListRunJobs(w http.ResponseWriter, r *http.Request) error {
	run, err := h.lookupRun(r)
	if err != nil {
		return err
	}

	jobs, err := h.store.ListJobs(r.Context(), run.ID)
	if err != nil {
		return err
	}

	out := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = JobFromDomain(j)
	}
	return writeList(w, out)
}

func (h *Handler) lookupRun(r *http.Request) (*domain.RunResult, error) {
	if h.store == nil {
		return nil, unavailable("run storage is not configured")
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return nil, badRequest("invalid run id")
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFound("run not found")
		}
		return nil, err
	}
	return run, nil
}

func parseRunFilter(q url.Values) (repo.RunFilter, error) {
	filter := repo.RunFilter{
		Workflow: q.Get("workflow"),
		Status:   domain.RunStatus(q.Get("status")),
		Limit:    repo.DefaultListLimit,
	}

	switch filter.Status {
	case "", domain.RunStatusPending, domain.RunStatusRunning, domain.RunStatusSuccess, domain.RunStatusFailure:
	default:
		return filter, badRequest("invalid status")
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return filter, badRequest("invalid limit")
		}
		filter.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, badRequest("invalid offset")
		}
		filter.Offset = n
	}
	return filter, nil
}
