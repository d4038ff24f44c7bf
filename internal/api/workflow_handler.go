package api

import (
	"net/http"

	"github.com/shaiso/Conveyor/internal/engine"
)

// GetWorkflow возвращает загруженный workflow и развёрнутую матрицу.
// Пустая ось матрицы — 422.
// GET /api/v1/workflow
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) error {
	if h.workflow == nil {
		return unavailable("workflow is not loaded")
	}

	jobs, err := engine.Expand(h.workflow.Matrix, h.workflow.Steps)
	if err != nil {
		return err
	}
	return writeData(w, http.StatusOK, WorkflowFromDomain(h.workflow, jobs))
}
