package steps

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StepTypeHTTP — HTTP запрос: health check после деплоя, webhook.
const StepTypeHTTP = "http"

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 << 20
)

// HTTPStep выполняет запрос и падает на неожиданном статусе.
//
//	with:
//	  url: https://staging.example.com/healthz
//	  method: POST                 # GET
//	  body: '{"ref": "main"}'      # Content-Type по умолчанию application/json
//	  header.Authorization: Bearer ...
//	  expect-status: 204           # по умолчанию любой < 400
//	  attempts: 10                 # 1
//	  retry-delay: 5s              # 1s
//	  timeout: 10s                 # на одну попытку
//	  follow-redirects: "false"
//	  validate-ssl: "false"
//
// Повторяется только неожиданный статус или сетевая ошибка; отмена ctx
// прерывает серию сразу. Output — тело последнего ответа.
type HTTPStep struct{}

func NewHTTPStep() *HTTPStep { return &HTTPStep{} }

func (s *HTTPStep) Type() string { return StepTypeHTTP }

type httpCall struct {
	method, url, body string
	headers           map[string]string
	expect            int
	attempts          int
	retryDelay        time.Duration
	client            *http.Client
}

func (s *HTTPStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	call, err := s.prepare(req.With)
	if err != nil {
		return nil, err
	}

	var (
		resp    *Response
		lastErr error
	)
	for attempt := 1; attempt <= call.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return resp, contextError(ctx)
			case <-time.After(call.retryDelay):
			}
		}

		resp, lastErr = call.do(ctx)
		if resp != nil {
			resp.Outputs["attempts"] = attempt
		}
		if lastErr == nil {
			return resp, nil
		}
		if ctxErr := contextError(ctx); ctxErr != nil {
			return resp, ctxErr
		}
	}
	return resp, lastErr
}

func (s *HTTPStep) prepare(with map[string]string) (*httpCall, error) {
	call := &httpCall{
		method:     strings.ToUpper(GetWith(with, "method", http.MethodGet)),
		url:        GetWith(with, "url", ""),
		body:       GetWith(with, "body", ""),
		headers:    make(map[string]string),
		retryDelay: time.Second,
	}
	if call.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, StepTypeHTTP)
	}

	var err error
	if call.expect, err = GetWithInt(with, "expect-status", 0); err != nil {
		return nil, err
	}
	if call.attempts, err = GetWithInt(with, "attempts", 1); err != nil {
		return nil, err
	}
	if call.attempts < 1 {
		return nil, fmt.Errorf("%w: %s: attempts must be positive", ErrInvalidConfig, StepTypeHTTP)
	}
	if d, err := GetWithDuration(with, "retry-delay"); err != nil {
		return nil, err
	} else if d > 0 {
		call.retryDelay = d
	}

	timeout := defaultHTTPTimeout
	if d, err := GetWithDuration(with, "timeout"); err != nil {
		return nil, err
	} else if d > 0 {
		timeout = d
	}
	follow, err := GetWithBool(with, "follow-redirects", true)
	if err != nil {
		return nil, err
	}
	verify, err := GetWithBool(with, "validate-ssl", true)
	if err != nil {
		return nil, err
	}

	for k, v := range with {
		if name, ok := strings.CutPrefix(k, "header."); ok && name != "" {
			call.headers[name] = v
		}
	}
	if call.body != "" {
		if _, ok := call.headers["Content-Type"]; !ok {
			call.headers["Content-Type"] = "application/json"
		}
	}

	call.client = &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: !verify}},
	}
	if !follow {
		call.client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return call, nil
}

// do выполняет одну попытку.
func (c *httpCall) do(ctx context.Context) (*Response, error) {
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, StepTypeHTTP, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	headers := make(map[string]string, len(httpResp.Header))
	for k := range httpResp.Header {
		headers[k] = httpResp.Header.Get(k)
	}
	resp := &Response{
		Output:  string(data),
		Outputs: map[string]any{"status_code": httpResp.StatusCode, "headers": headers},
	}

	ok := httpResp.StatusCode < http.StatusBadRequest
	if c.expect != 0 {
		ok = httpResp.StatusCode == c.expect
	}
	if !ok {
		resp.ExitCode = 1
		return resp, &HTTPError{StatusCode: httpResp.StatusCode, Status: httpResp.Status, Body: resp.Output}
	}
	return resp, nil
}

// HTTPError — ответ с неожиданным статусом.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}
