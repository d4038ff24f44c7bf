package steps

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// fakeRunner записывает команды и отдаёт заранее заданные результаты.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []Command
	results []Result
}

func (f *fakeRunner) run(_ context.Context, cmd Command) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if len(f.results) == 0 {
		return Result{Output: "ok\n"}
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func (f *fakeRunner) commandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.calls))
	for i, c := range f.calls {
		lines[i] = strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
	}
	return lines
}

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if len(r.Types()) != 0 {
		t.Errorf("expected empty registry, got %v", r.Types())
	}

	r.Register(DelayStep(), "sleep")

	for _, name := range []string{"delay", "sleep", "delay@v2"} {
		step, err := r.Get(name)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
			continue
		}
		if step.Type() != StepTypeDelay {
			t.Errorf("%s: expected delay, got %s", name, step.Type())
		}
	}

	if _, err := r.Get("unknown"); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	want := []string{"checkout", "delay", "http", "run", "toolchain"}
	got := r.Types()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("type %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name    string
		def     domain.StepDef
		want    string
		wantErr error
	}{
		{"run", domain.StepDef{Run: "make"}, "run", nil},
		{"uses", domain.StepDef{Uses: "checkout"}, "checkout", nil},
		{"versioned uses", domain.StepDef{Uses: "toolchain@v1"}, "toolchain", nil},
		{"unknown", domain.StepDef{Uses: "docker/build"}, "", ErrStepNotFound},
		{"empty", domain.StepDef{Name: "nothing"}, "", ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := r.Resolve(tt.def)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if step.Type() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, step.Type())
			}
		})
	}

	err := r.CheckActions([]domain.StepDef{{Run: "make"}, {Uses: "nope"}})
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("CheckActions: expected ErrStepNotFound, got %v", err)
	}
}

// Request Tests

func TestNewRequest(t *testing.T) {
	step := domain.StepDef{
		Name:       "Build",
		Run:        "make",
		Env:        map[string]string{"B": "2", "A": "1"},
		WorkingDir: "sub",
	}
	job := domain.JobConfig{Name: "stable", Matrix: map[string]string{"toolchain": "stable"}}
	event := domain.Event{Kind: domain.EventPush, Branch: "refs/heads/main"}

	req := NewRequest(step, job, event, "/work", []string{"PATH=/bin"})

	if req.Name != "Build" || req.Run != "make" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.WorkDir != filepath.Join("/work", "sub") {
		t.Errorf("unexpected work dir %q", req.WorkDir)
	}

	want := []string{
		"PATH=/bin",
		"CI=true",
		"CONVEYOR_JOB=stable",
		"CONVEYOR_BRANCH=main",
		"CONVEYOR_MATRIX_toolchain=stable",
		"A=1",
		"B=2",
	}
	if strings.Join(req.Env, ";") != strings.Join(want, ";") {
		t.Errorf("env:\n got  %v\n want %v", req.Env, want)
	}
}

func TestGetWithHelpers(t *testing.T) {
	with := map[string]string{"n": "3", "b": "true", "d": "1m", "s": "5", "bad": "x"}

	if GetWith(with, "missing", "def") != "def" {
		t.Error("GetWith default")
	}
	if n, err := GetWithInt(with, "n", 0); err != nil || n != 3 {
		t.Errorf("GetWithInt = %d, %v", n, err)
	}
	if _, err := GetWithInt(with, "bad", 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if b, err := GetWithBool(with, "b", false); err != nil || !b {
		t.Errorf("GetWithBool = %v, %v", b, err)
	}
	if d, err := GetWithDuration(with, "d"); err != nil || d != time.Minute {
		t.Errorf("GetWithDuration = %v, %v", d, err)
	}
	if d, err := GetWithDuration(with, "s"); err != nil || d != 5*time.Second {
		t.Errorf("GetWithDuration seconds = %v, %v", d, err)
	}
	if _, err := GetWithDuration(with, "bad"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// Shell Tests

func TestShellStep_Execute(t *testing.T) {
	step := NewShellStep()
	req := &Request{
		Run:     `echo "out $GREETING" && echo err >&2`,
		Env:     []string{"GREETING=hello"},
		WorkDir: t.TempDir(),
	}

	resp, err := step.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ExitCode != 0 || !resp.Succeeded() {
		t.Errorf("expected exit 0, got %d", resp.ExitCode)
	}
	if !strings.Contains(resp.Output, "out hello") || !strings.Contains(resp.Output, "err") {
		t.Errorf("expected combined output, got %q", resp.Output)
	}
}

func TestShellStep_NonZeroExit(t *testing.T) {
	resp, err := NewShellStep().Execute(context.Background(), &Request{Run: "echo failing; exit 3"})
	if err != nil {
		t.Fatalf("non-zero exit is not an execution error: %v", err)
	}
	if resp.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", resp.ExitCode)
	}
	if resp.Succeeded() {
		t.Error("response should not be successful")
	}
	if !strings.Contains(resp.Output, "failing") {
		t.Errorf("output should be passed through, got %q", resp.Output)
	}
}

func TestShellStep_WorkDirAndStream(t *testing.T) {
	dir := t.TempDir()
	var stream bytes.Buffer

	resp, err := NewShellStep().Execute(context.Background(), &Request{
		Run:     "pwd",
		WorkDir: dir,
		Stream:  &stream,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resp.Output, filepath.Base(dir)) {
		t.Errorf("expected %s in output, got %q", dir, resp.Output)
	}
	if stream.String() != resp.Output {
		t.Errorf("stream %q != output %q", stream.String(), resp.Output)
	}
}

func TestShellStep_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewShellStep().Execute(ctx, &Request{Run: "exec sleep 5"})
	if !errors.Is(err, ErrStepTimeout) {
		t.Errorf("expected ErrStepTimeout, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestShellStep_InvalidConfig(t *testing.T) {
	_, err := NewShellStep().Execute(context.Background(), &Request{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestShellStep_CustomShell(t *testing.T) {
	fake := &fakeRunner{}
	step := NewShellStepWithRunner(fake.run)

	_, err := step.Execute(context.Background(), &Request{Run: "echo hi", With: map[string]string{"shell": "bash"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.commandLines(); len(got) != 1 || got[0] != "bash -c echo hi" {
		t.Errorf("unexpected commands: %v", got)
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{limit: 4}
	n, err := io.WriteString(b, "abcdef")
	if err != nil || n != 6 {
		t.Fatalf("write = %d, %v", n, err)
	}
	if !strings.HasPrefix(b.String(), "abcd") || !strings.Contains(b.String(), "truncated") {
		t.Errorf("unexpected buffer %q", b.String())
	}
}

// Checkout Tests

func TestCheckoutStep_Clone(t *testing.T) {
	fake := &fakeRunner{}
	step := NewCheckoutStepWithRunner(fake.run)
	dir := t.TempDir()

	resp, err := step.Execute(context.Background(), &Request{
		WorkDir: dir,
		With:    map[string]string{"path": "src"},
		Event:   domain.Event{Kind: domain.EventPush, Branch: "main", Repository: "https://example.com/repo.git", SHA: "abc123"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"git clone --no-checkout --depth 1 https://example.com/repo.git " + filepath.Join(dir, "src"),
		"git fetch --depth 1 origin abc123",
		"git checkout --force FETCH_HEAD",
	}
	got := fake.commandLines()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("commands:\n got  %v\n want %v", got, want)
	}
	if resp.Outputs["ref"] != "abc123" {
		t.Errorf("unexpected outputs: %v", resp.Outputs)
	}
	if !strings.Contains(resp.Output, "$ git fetch") {
		t.Errorf("output should log commands, got %q", resp.Output)
	}
}

func TestCheckoutStep_ExistingCheckout(t *testing.T) {
	fake := &fakeRunner{}
	step := NewCheckoutStepWithRunner(fake.run)
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := step.Execute(context.Background(), &Request{
		WorkDir: dir,
		With:    map[string]string{"repository": "https://example.com/repo.git", "ref": "develop", "fetch-depth": "0"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := fake.commandLines()
	if len(got) != 2 || got[0] != "git fetch origin develop" {
		t.Errorf("unexpected commands: %v", got)
	}
}

func TestCheckoutStep_NoRepository(t *testing.T) {
	fake := &fakeRunner{results: []Result{{Output: "fatal: not a git repository\n", ExitCode: 128}}}
	step := NewCheckoutStepWithRunner(fake.run)

	resp, err := step.Execute(context.Background(), &Request{WorkDir: t.TempDir()})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if resp == nil || resp.ExitCode != 128 {
		t.Errorf("expected exit code passed through, got %+v", resp)
	}
}

func TestCheckoutStep_FetchFails(t *testing.T) {
	fake := &fakeRunner{results: []Result{{ExitCode: 0}, {Output: "no such ref", ExitCode: 1}}}
	step := NewCheckoutStepWithRunner(fake.run)

	resp, err := step.Execute(context.Background(), &Request{
		WorkDir: t.TempDir(),
		With:    map[string]string{"repository": "r", "ref": "x"},
	})
	if err != nil {
		t.Fatalf("exit code failure should not be an error: %v", err)
	}
	if resp.ExitCode != 1 {
		t.Errorf("expected exit 1, got %d", resp.ExitCode)
	}
	if len(fake.commandLines()) != 2 {
		t.Errorf("checkout should stop after failed fetch: %v", fake.commandLines())
	}
}

// Toolchain Tests

func TestToolchainStep_Execute(t *testing.T) {
	tests := []struct {
		name string
		with map[string]string
		want string
	}{
		{
			name: "default command",
			with: map[string]string{"version": "nightly"},
			want: "sh -c rustup toolchain install nightly --profile minimal",
		},
		{
			name: "components",
			with: map[string]string{"version": "stable", "components": "clippy, rustfmt"},
			want: "sh -c rustup toolchain install stable --profile minimal --component clippy --component rustfmt",
		},
		{
			name: "custom install",
			with: map[string]string{"version": "1.22", "install": "goenv install {{ .version }} --arch {{ .arch }}", "arch": "arm64"},
			want: "sh -c goenv install 1.22 --arch arm64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRunner{}
			resp, err := NewToolchainStepWithRunner(fake.run).Execute(context.Background(), &Request{With: tt.with})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fake.commandLines(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("expected %q, got %v", tt.want, got)
			}
			if resp.Outputs["version"] != tt.with["version"] {
				t.Errorf("unexpected outputs: %v", resp.Outputs)
			}
		})
	}
}

func TestToolchainStep_InvalidConfig(t *testing.T) {
	step := NewToolchainStepWithRunner((&fakeRunner{}).run)

	if _, err := step.Execute(context.Background(), &Request{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing version: expected ErrInvalidConfig, got %v", err)
	}

	req := &Request{With: map[string]string{"version": "stable", "install": "{{ .version"}}
	if _, err := step.Execute(context.Background(), req); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad template: expected ErrInvalidConfig, got %v", err)
	}
}

// Delay Tests

func TestDelayStep_Execute(t *testing.T) {
	step := DelayStep()

	start := time.Now()
	resp, err := step.Execute(context.Background(), &Request{With: map[string]string{"duration": "50ms"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("delay was too short")
	}
	if resp.Outputs["duration_ms"] != int64(50) {
		t.Errorf("expected duration_ms=50, got %v", resp.Outputs["duration_ms"])
	}
}

func TestDelayStep_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := DelayStep().Execute(ctx, &Request{With: map[string]string{"duration": "10s"}})
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

func TestDelayStep_InvalidConfig(t *testing.T) {
	for _, with := range []map[string]string{nil, {"duration": "soon"}, {"duration": "0"}} {
		if _, err := DelayStep().Execute(context.Background(), &Request{With: with}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("with %v: expected ErrInvalidConfig, got %v", with, err)
		}
	}
}

// HTTP Tests

func TestHTTPStep_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("expected header X-Token")
		}
		w.Write([]byte("healthy"))
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(), &Request{
		With: map[string]string{"url": server.URL, "header.X-Token": "secret"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Output != "healthy" || resp.Outputs["status_code"] != 200 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHTTPStep_POST(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %s", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"ref":"main"}` {
			t.Errorf("unexpected body %s", body)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	_, err := NewHTTPStep().Execute(context.Background(), &Request{
		With: map[string]string{"url": server.URL, "method": "post", "body": `{"ref":"main"}`, "expect-status": "202"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPStep_FailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(), &Request{With: map[string]string{"url": server.URL}})
	if !IsHTTPError(err) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if resp == nil || resp.ExitCode == 0 {
		t.Error("response should carry a failing exit code")
	}
}

func TestHTTPStep_InvalidConfig(t *testing.T) {
	_, err := NewHTTPStep().Execute(context.Background(), &Request{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestHTTPStep_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPStep().Execute(ctx, &Request{With: map[string]string{"url": server.URL}})
	if !errors.Is(err, ErrStepTimeout) {
		t.Errorf("expected ErrStepTimeout, got %v", err)
	}
}

func TestHTTPStep_RetriesUntilHealthy(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(), &Request{
		With: map[string]string{"url": server.URL, "attempts": "5", "retry-delay": "10ms"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outputs["attempts"] != 3 || calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got outputs=%v calls=%d", resp.Outputs["attempts"], calls.Load())
	}
}

func TestHTTPStep_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	resp, err := NewHTTPStep().Execute(context.Background(), &Request{
		With: map[string]string{"url": server.URL, "attempts": "2", "retry-delay": "10ms"},
	})
	if !IsHTTPError(err) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if calls.Load() != 2 || resp.ExitCode == 0 {
		t.Errorf("calls=%d exit=%d", calls.Load(), resp.ExitCode)
	}
}
