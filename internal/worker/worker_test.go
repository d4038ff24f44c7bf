package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/steps"
)

// fakeStep — шаг с заданным поведением.
type fakeStep struct {
	typ string
	fn  func(ctx context.Context, req *steps.Request) (*steps.Response, error)
}

func (s *fakeStep) Type() string { return s.typ }

func (s *fakeStep) Execute(ctx context.Context, req *steps.Request) (*steps.Response, error) {
	return s.fn(ctx, req)
}

// callLog записывает порядок вызовов шагов.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.calls, ",")
}

func succeed(log *callLog, typ string) steps.Step {
	return &fakeStep{typ: typ, fn: func(_ context.Context, req *steps.Request) (*steps.Response, error) {
		log.add(req.Name)
		return &steps.Response{Output: req.Name + " ok"}, nil
	}}
}

func exitWith(log *callLog, typ string, code int) steps.Step {
	return &fakeStep{typ: typ, fn: func(_ context.Context, req *steps.Request) (*steps.Response, error) {
		log.add(req.Name)
		return &steps.Response{ExitCode: code, Output: req.Name + " failed"}, nil
	}}
}

func newTestWorker(registered ...steps.Step) *Worker {
	r := steps.NewRegistry()
	for _, s := range registered {
		r.Register(s)
	}
	return New(Config{
		Registry: r,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func abcJob(bContinueOnError bool) domain.JobConfig {
	return domain.JobConfig{
		Index: 0,
		Name:  "default",
		Steps: []domain.StepDef{
			{Name: "A", Uses: "ok"},
			{Name: "B", Uses: "fail", ContinueOnError: bContinueOnError},
			{Name: "C", Uses: "ok"},
		},
	}
}

func statuses(r domain.JobResult) string {
	parts := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		parts[i] = s.Name + "=" + string(s.Status)
	}
	return strings.Join(parts, ",")
}

func TestRunJob_AllSucceed(t *testing.T) {
	log := &callLog{}
	w := newTestWorker(succeed(log, "ok"))

	job := domain.JobConfig{Steps: []domain.StepDef{{Name: "A", Uses: "ok"}, {Name: "B", Uses: "ok"}, {Name: "C", Uses: "ok"}}}
	result := w.RunJob(context.Background(), job, domain.Event{})

	if result.Status != domain.JobStatusSuccess {
		t.Errorf("expected success, got %s", result.Status)
	}
	if got := statuses(result); got != "A=success,B=success,C=success" {
		t.Errorf("unexpected statuses: %s", got)
	}
	if log.String() != "A,B,C" {
		t.Errorf("unexpected execution order: %s", log)
	}
	if result.StartedAt == nil || result.FinishedAt == nil {
		t.Error("timestamps should be set")
	}
	if result.Steps[0].Output != "A ok" {
		t.Errorf("output should be passed through, got %q", result.Steps[0].Output)
	}
}

func TestRunJob_StopsOnFailure(t *testing.T) {
	log := &callLog{}
	w := newTestWorker(succeed(log, "ok"), exitWith(log, "fail", 101))

	result := w.RunJob(context.Background(), abcJob(false), domain.Event{})

	if result.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	if got := statuses(result); got != "A=success,B=failure,C=not_run" {
		t.Errorf("unexpected statuses: %s", got)
	}
	if log.String() != "A,B" {
		t.Errorf("C must not run, calls: %s", log)
	}
	if result.Steps[1].ExitCode != 101 {
		t.Errorf("expected exit code 101, got %d", result.Steps[1].ExitCode)
	}
	if !strings.Contains(result.Steps[1].Error, "exit code 101") {
		t.Errorf("unexpected error text %q", result.Steps[1].Error)
	}
	if result.OnlySoftFailures() {
		t.Error("failure of B is not soft")
	}
	if step, pos := result.FailedStep(); step == nil || pos != 2 {
		t.Errorf("expected failed step at position 2, got %v", pos)
	}
}

func TestRunJob_ContinueOnError(t *testing.T) {
	log := &callLog{}
	w := newTestWorker(succeed(log, "ok"), exitWith(log, "fail", 1))

	result := w.RunJob(context.Background(), abcJob(true), domain.Event{})

	if result.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	if got := statuses(result); got != "A=success,B=failure,C=success" {
		t.Errorf("unexpected statuses: %s", got)
	}
	if log.String() != "A,B,C" {
		t.Errorf("C must be attempted, calls: %s", log)
	}
	if !result.OnlySoftFailures() {
		t.Error("only continue-on-error steps failed")
	}
	if !result.Steps[1].ContinueOnError {
		t.Error("step result should carry continue-on-error")
	}
}

func TestRunJob_CancelledBeforeStart(t *testing.T) {
	log := &callLog{}
	w := newTestWorker(succeed(log, "ok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := domain.JobConfig{Steps: []domain.StepDef{{Name: "A", Uses: "ok"}, {Name: "B", Uses: "ok"}}}
	result := w.RunJob(ctx, job, domain.Event{})

	if result.Status != domain.JobStatusAborted {
		t.Errorf("expected aborted, got %s", result.Status)
	}
	if got := statuses(result); got != "A=not_run,B=not_run" {
		t.Errorf("unexpected statuses: %s", got)
	}
	if log.String() != "" {
		t.Errorf("no steps should run, calls: %s", log)
	}
}

func TestRunJob_CancelObservedAtStepBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stepCtxErr error
	cancelling := &fakeStep{typ: "cancel", fn: func(stepCtx context.Context, _ *steps.Request) (*steps.Response, error) {
		cancel()
		stepCtxErr = stepCtx.Err()
		return &steps.Response{}, nil
	}}
	log := &callLog{}
	w := newTestWorker(cancelling, succeed(log, "ok"))

	job := domain.JobConfig{Steps: []domain.StepDef{{Name: "A", Uses: "cancel"}, {Name: "B", Uses: "ok"}}}
	result := w.RunJob(ctx, job, domain.Event{})

	if stepCtxErr != nil {
		t.Errorf("running step must not observe run cancellation, got %v", stepCtxErr)
	}
	if result.Status != domain.JobStatusAborted {
		t.Errorf("expected aborted, got %s", result.Status)
	}
	if got := statuses(result); got != "A=success,B=not_run" {
		t.Errorf("unexpected statuses: %s", got)
	}
}

func TestRunJob_HardFailureWinsOverAbort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := &fakeStep{typ: "fail", fn: func(context.Context, *steps.Request) (*steps.Response, error) {
		cancel()
		return &steps.Response{ExitCode: 1}, nil
	}}
	w := newTestWorker(failing, succeed(&callLog{}, "ok"))

	job := domain.JobConfig{Steps: []domain.StepDef{{Name: "A", Uses: "fail"}, {Name: "B", Uses: "ok"}}}
	result := w.RunJob(ctx, job, domain.Event{})

	if result.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestRunJob_UnknownAction(t *testing.T) {
	log := &callLog{}
	w := newTestWorker(succeed(log, "ok"))

	job := domain.JobConfig{Steps: []domain.StepDef{{Name: "A", Uses: "docker/build"}, {Name: "B", Uses: "ok"}}}
	result := w.RunJob(context.Background(), job, domain.Event{})

	if got := statuses(result); got != "A=failure,B=not_run" {
		t.Errorf("unexpected statuses: %s", got)
	}
	if !strings.Contains(result.Steps[0].Error, steps.ErrStepNotFound.Error()) {
		t.Errorf("expected step not found error, got %q", result.Steps[0].Error)
	}
}

func TestRunJob_StepErrorAndPanic(t *testing.T) {
	erroring := &fakeStep{typ: "err", fn: func(context.Context, *steps.Request) (*steps.Response, error) {
		return nil, errors.New("connection refused")
	}}
	panicking := &fakeStep{typ: "panic", fn: func(context.Context, *steps.Request) (*steps.Response, error) {
		panic("boom")
	}}
	w := newTestWorker(erroring, panicking)

	job := domain.JobConfig{Steps: []domain.StepDef{
		{Name: "E", Uses: "err", ContinueOnError: true},
		{Name: "P", Uses: "panic"},
	}}
	result := w.RunJob(context.Background(), job, domain.Event{})

	if got := statuses(result); got != "E=failure,P=failure" {
		t.Fatalf("unexpected statuses: %s", got)
	}
	if result.Steps[0].ExitCode != -1 || result.Steps[0].Error != "connection refused" {
		t.Errorf("unexpected error result: %+v", result.Steps[0])
	}
	if !strings.Contains(result.Steps[1].Error, "boom") {
		t.Errorf("panic should be reported, got %q", result.Steps[1].Error)
	}
	if result.Status != domain.JobStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestRunJob_StepTimeoutApplied(t *testing.T) {
	var hasDeadline bool
	checking := &fakeStep{typ: "check", fn: func(ctx context.Context, _ *steps.Request) (*steps.Response, error) {
		_, hasDeadline = ctx.Deadline()
		return &steps.Response{}, nil
	}}
	w := newTestWorker(checking)

	job := domain.JobConfig{Steps: []domain.StepDef{{Uses: "check", TimeoutMinutes: 1}}}
	w.RunJob(context.Background(), job, domain.Event{})

	if !hasDeadline {
		t.Error("step context should have a deadline")
	}
}

func TestRunJob_RequestCarriesJobContext(t *testing.T) {
	var got *steps.Request
	capturing := &fakeStep{typ: "capture", fn: func(_ context.Context, req *steps.Request) (*steps.Response, error) {
		got = req
		return &steps.Response{}, nil
	}}

	root := t.TempDir()
	r := steps.NewRegistry()
	r.Register(capturing)
	w := New(Config{Registry: r, Workspace: root, Env: []string{"TOKEN=x"}})

	job := domain.JobConfig{
		Index:  2,
		Name:   "beta",
		Matrix: map[string]string{"toolchain": "beta"},
		Steps:  []domain.StepDef{{Uses: "capture", With: map[string]string{"version": "beta"}}},
	}
	event := domain.Event{Kind: domain.EventPush, Branch: "main", SHA: "abc"}
	w.RunJob(context.Background(), job, event)

	if got == nil {
		t.Fatal("step was not called")
	}
	if got.WorkDir != filepath.Join(root, "job-2") {
		t.Errorf("unexpected work dir %q", got.WorkDir)
	}
	if _, err := os.Stat(got.WorkDir); err != nil {
		t.Errorf("workspace should exist: %v", err)
	}
	if got.With["version"] != "beta" || got.Event.SHA != "abc" || got.Matrix["toolchain"] != "beta" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Env[0] != "TOKEN=x" {
		t.Errorf("base env should come first, got %v", got.Env)
	}
}

func TestRunJob_ShellStream(t *testing.T) {
	var buf bytes.Buffer
	w := New(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stream: func(domain.JobConfig) io.Writer { return &buf },
	})

	job := domain.JobConfig{Steps: []domain.StepDef{{Run: "echo streamed"}}}
	result := w.RunJob(context.Background(), job, domain.Event{})

	if result.Status != domain.JobStatusSuccess {
		t.Fatalf("expected success, got %s: %+v", result.Status, result.Steps)
	}
	if !strings.Contains(buf.String(), "streamed") {
		t.Errorf("expected streamed output, got %q", buf.String())
	}
	if !strings.Contains(result.Steps[0].Output, "streamed") {
		t.Errorf("expected captured output, got %q", result.Steps[0].Output)
	}
}
