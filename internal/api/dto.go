package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Event DTOs

// EventRequest — входящее событие системы контроля версий.
type EventRequest struct {
	Kind       domain.EventKind `json:"kind"`
	Branch     string           `json:"branch"`
	Repository string           `json:"repository,omitempty"`
	SHA        string           `json:"sha,omitempty"`
}

// ToDomain конвертирует EventRequest в domain.Event.
func (r EventRequest) ToDomain() domain.Event {
	return domain.Event{
		Kind:       r.Kind,
		Branch:     r.Branch,
		Repository: r.Repository,
		SHA:        r.SHA,
	}
}

// EventResponse — решение по событию.
type EventResponse struct {
	Accepted bool             `json:"accepted"`
	Kind     domain.EventKind `json:"kind"`
	Branch   string           `json:"branch"`
}

// Run DTOs

// RunResponse — ответ с run.
type RunResponse struct {
	ID         uuid.UUID        `json:"id"`
	Workflow   string           `json:"workflow"`
	Event      domain.Event     `json:"event"`
	Status     domain.RunStatus `json:"status"`
	Warnings   []string         `json:"warnings,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	Jobs       []JobResponse    `json:"jobs,omitempty"`
}

// RunFromDomain конвертирует domain.RunResult в RunResponse.
// Jobs включаются без вывода шагов.
func RunFromDomain(r domain.RunResult) RunResponse {
	resp := RunResponse{
		ID:         r.ID,
		Workflow:   r.Workflow,
		Event:      r.Event,
		Status:     r.Status,
		Warnings:   r.Warnings,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
		CreatedAt:  r.CreatedAt,
	}
	for _, j := range r.Jobs {
		job := JobFromDomain(j)
		job.Steps = nil
		resp.Jobs = append(resp.Jobs, job)
	}
	return resp
}

// Job DTOs

// JobResponse — ответ с результатом job.
type JobResponse struct {
	Index              int               `json:"index"`
	Name               string            `json:"name"`
	Matrix             map[string]string `json:"matrix,omitempty"`
	Status             domain.JobStatus  `json:"status"`
	FailedStep         string            `json:"failed_step,omitempty"`
	FailedStepPosition int               `json:"failed_step_position,omitempty"`
	DurationMs         int64             `json:"duration_ms,omitempty"`
	Steps              []StepResponse    `json:"steps,omitempty"`
}

// StepResponse — результат шага.
type StepResponse struct {
	Name            string            `json:"name"`
	Status          domain.StepStatus `json:"status"`
	ExitCode        int               `json:"exit_code"`
	Error           string            `json:"error,omitempty"`
	Output          string            `json:"output,omitempty"`
	ContinueOnError bool              `json:"continue_on_error,omitempty"`
	DurationMs      int64             `json:"duration_ms,omitempty"`
}

// JobFromDomain конвертирует domain.JobResult в JobResponse.
func JobFromDomain(j domain.JobResult) JobResponse {
	resp := JobResponse{
		Index:      j.Job.Index,
		Name:       j.Job.Name,
		Matrix:     j.Job.Matrix,
		Status:     j.Status,
		DurationMs: j.Duration().Milliseconds(),
		Steps:      make([]StepResponse, len(j.Steps)),
	}
	if step, pos := j.FailedStep(); step != nil {
		resp.FailedStep = step.Name
		resp.FailedStepPosition = pos
	}
	for i, s := range j.Steps {
		resp.Steps[i] = StepResponse{
			Name:            s.Name,
			Status:          s.Status,
			ExitCode:        s.ExitCode,
			Error:           s.Error,
			Output:          s.Output,
			ContinueOnError: s.ContinueOnError,
			DurationMs:      s.Duration().Milliseconds(),
		}
	}
	return resp
}

// Workflow DTOs

// WorkflowResponse — workflow и предпросмотр развёрнутой матрицы.
type WorkflowResponse struct {
	Name            string                   `json:"name"`
	Triggers        []domain.TriggerRule     `json:"triggers"`
	Schedules       []domain.Schedule        `json:"schedules,omitempty"`
	Matrix          []domain.MatrixDimension `json:"matrix,omitempty"`
	FailFast        bool                     `json:"fail_fast"`
	MaxParallel     int                      `json:"max_parallel,omitempty"`
	ContinueOnError bool                     `json:"continue_on_error"`
	Jobs            []JobPreview             `json:"jobs"`
}

// JobPreview — job, который создаст матрица.
type JobPreview struct {
	Index  int               `json:"index"`
	Name   string            `json:"name"`
	Matrix map[string]string `json:"matrix,omitempty"`
	Steps  []string          `json:"steps"`
}

// WorkflowFromDomain конвертирует workflow и развёрнутые jobs в ответ.
func WorkflowFromDomain(wf *domain.Workflow, jobs []domain.JobConfig) WorkflowResponse {
	resp := WorkflowResponse{
		Name:            wf.Name,
		Triggers:        wf.Triggers,
		Schedules:       wf.Schedules,
		Matrix:          wf.Matrix,
		FailFast:        wf.FailFast,
		MaxParallel:     wf.MaxParallel,
		ContinueOnError: wf.ContinueOnError,
		Jobs:            make([]JobPreview, len(jobs)),
	}
	for i, j := range jobs {
		names := make([]string, len(j.Steps))
		for k, s := range j.Steps {
			names[k] = s.DisplayName()
		}
		resp.Jobs[i] = JobPreview{Index: j.Index, Name: j.Name, Matrix: j.Matrix, Steps: names}
	}
	return resp
}
