package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, клиент не импортирует internal/api) ---

// RunResponse — run из API.
type RunResponse struct {
	ID         string        `json:"id"`
	Workflow   string        `json:"workflow"`
	Event      EventRequest  `json:"event"`
	Status     string        `json:"status"`
	Warnings   []string      `json:"warnings,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  string        `json:"started_at,omitempty"`
	FinishedAt string        `json:"finished_at,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
	CreatedAt  string        `json:"created_at"`
	Jobs       []JobResponse `json:"jobs,omitempty"`
}

// JobResponse — job из API.
type JobResponse struct {
	Index              int               `json:"index"`
	Name               string            `json:"name"`
	Matrix             map[string]string `json:"matrix,omitempty"`
	Status             string            `json:"status"`
	FailedStep         string            `json:"failed_step,omitempty"`
	FailedStepPosition int               `json:"failed_step_position,omitempty"`
	DurationMs         int64             `json:"duration_ms,omitempty"`
	Steps              []StepResponse    `json:"steps,omitempty"`
}

// StepResponse — шаг из API.
type StepResponse struct {
	Name            string `json:"name"`
	Status          string `json:"status"`
	ExitCode        int    `json:"exit_code"`
	Error           string `json:"error,omitempty"`
	Output          string `json:"output,omitempty"`
	ContinueOnError bool   `json:"continue_on_error,omitempty"`
	DurationMs      int64  `json:"duration_ms,omitempty"`
}

// EventResponse — решение API по событию.
type EventResponse struct {
	Accepted bool   `json:"accepted"`
	Kind     string `json:"kind"`
	Branch   string `json:"branch"`
}

// WorkflowResponse — workflow, загруженный в API.
type WorkflowResponse struct {
	Name            string       `json:"name"`
	FailFast        bool         `json:"fail_fast"`
	MaxParallel     int          `json:"max_parallel,omitempty"`
	ContinueOnError bool         `json:"continue_on_error"`
	Jobs            []JobPreview `json:"jobs"`
}

// JobPreview — job развёрнутой матрицы.
type JobPreview struct {
	Index  int               `json:"index"`
	Name   string            `json:"name"`
	Matrix map[string]string `json:"matrix,omitempty"`
	Steps  []string          `json:"steps"`
}

// --- Request types ---

// EventRequest — событие для POST /events.
type EventRequest struct {
	Kind       string `json:"kind"`
	Branch     string `json:"branch"`
	Repository string `json:"repository,omitempty"`
	SHA        string `json:"sha,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Workflow string
	Status   string
	Limit    int
	Offset   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Events ---

// SendEvent отправляет событие в API.
func (c *Client) SendEvent(ctx context.Context, req EventRequest) (*EventResponse, error) {
	var resp EventResponse
	err := c.post(ctx, "/api/v1/events", req, &resp)
	return &resp, err
}

// --- Workflow ---

// GetWorkflow возвращает workflow, загруженный в API.
func (c *Client) GetWorkflow(ctx context.Context) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get(ctx, "/api/v1/workflow", &wf)
	return &wf, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Workflow != "" {
		params.Set("workflow", opts.Workflow)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var runs []RunResponse
	err := c.list(ctx, "/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(ctx context.Context, id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// ListJobs возвращает jobs run вместе с шагами.
func (c *Client) ListJobs(ctx context.Context, runID string) ([]JobResponse, error) {
	var jobs []JobResponse
	err := c.list(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/jobs", nil, &jobs)
	return jobs, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
