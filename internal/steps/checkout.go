package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StepTypeCheckout — тип шага checkout.
const StepTypeCheckout = "checkout"

// CheckoutStep — получение исходников через git.
//
// Параметры with:
//
//	repository: https://github.com/org/repo.git   // по умолчанию event.repository
//	ref: main                                    // по умолчанию event.sha или ветка события
//	path: src                                    // каталог внутри workspace
//	fetch-depth: 1                               // 0 = полная история
//
// Если репозиторий не задан, шаг проверяет, что workspace уже является
// git checkout, и ничего не скачивает.
type CheckoutStep struct {
	git    string
	runner Runner
}

// NewCheckoutStep создаёт новый CheckoutStep.
func NewCheckoutStep() *CheckoutStep {
	return &CheckoutStep{git: "git", runner: ExecRunner}
}

// NewCheckoutStepWithRunner создаёт CheckoutStep с заданным Runner.
func NewCheckoutStepWithRunner(runner Runner) *CheckoutStep {
	return &CheckoutStep{git: "git", runner: runner}
}

// Type возвращает тип шага.
func (s *CheckoutStep) Type() string {
	return StepTypeCheckout
}

// Execute выполняет checkout.
func (s *CheckoutStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	repo := GetWith(req.With, "repository", req.Event.Repository)
	ref := GetWith(req.With, "ref", req.Event.SHA)
	if ref == "" {
		ref = req.Event.BranchName()
	}
	depth, err := GetWithInt(req.With, "fetch-depth", 1)
	if err != nil {
		return nil, err
	}

	dest := req.WorkDir
	if p := GetWith(req.With, "path", ""); p != "" {
		dest = filepath.Join(req.WorkDir, p)
	}

	var log strings.Builder

	if repo == "" {
		res := s.runGit(ctx, req, dest, &log, "rev-parse", "--is-inside-work-tree")
		if res.Err != nil || res.ExitCode != 0 {
			return s.response(res, &log), fmt.Errorf("%w: %s: no repository configured and %s is not a git checkout",
				ErrInvalidConfig, StepTypeCheckout, dest)
		}
		return s.response(res, &log), nil
	}

	if _, statErr := os.Stat(filepath.Join(dest, ".git")); statErr != nil {
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("create checkout dir: %w", err)
		}
		args := []string{"clone", "--no-checkout"}
		if depth > 0 {
			args = append(args, "--depth", fmt.Sprint(depth))
		}
		args = append(args, repo, dest)
		if res := s.runGit(ctx, req, filepath.Dir(dest), &log, args...); res.Err != nil || res.ExitCode != 0 {
			return s.response(res, &log), res.Err
		}
	}

	fetch := []string{"fetch", "origin", ref}
	if depth > 0 {
		fetch = []string{"fetch", "--depth", fmt.Sprint(depth), "origin", ref}
	}
	if res := s.runGit(ctx, req, dest, &log, fetch...); res.Err != nil || res.ExitCode != 0 {
		return s.response(res, &log), res.Err
	}

	res := s.runGit(ctx, req, dest, &log, "checkout", "--force", "FETCH_HEAD")
	resp := s.response(res, &log)
	resp.Outputs["ref"] = ref
	resp.Outputs["path"] = dest
	return resp, res.Err
}

// git2 запускает git и дописывает вывод в общий лог шага.
func (s *CheckoutStep) runGit(ctx context.Context, req *Request, dir string, log *strings.Builder, args ...string) Result {
	fmt.Fprintf(log, "$ git %s\n", strings.Join(args, " "))
	res := s.runner(ctx, Command{
		Name:   s.git,
		Args:   args,
		Dir:    dir,
		Env:    req.Env,
		Stream: req.Stream,
	})
	log.WriteString(res.Output)
	return res
}

func (s *CheckoutStep) response(res Result, log *strings.Builder) *Response {
	return &Response{
		ExitCode: res.ExitCode,
		Output:   log.String(),
		Outputs:  map[string]any{},
	}
}
