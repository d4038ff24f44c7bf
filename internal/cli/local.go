package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/worker"
)

// LocalEnv — зависимости локальных команд (run, expand, validate).
type LocalEnv struct {
	// WorkflowFile возвращает путь к workflow после парсинга флагов.
	WorkflowFile func() string

	// Output — форматирование вывода.
	Output func() *Output

	// WorkDir — корень workspace по умолчанию для run.
	WorkDir string

	// Logger — логгер оркестратора и worker'а (default: slog.Default()).
	Logger *slog.Logger
}

func (e LocalEnv) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e LocalEnv) load() (*domain.Workflow, error) {
	path := e.WorkflowFile()
	wf, err := engine.ParseFile(path)
	if err != nil {
		return nil, configError(fmt.Errorf("%s: %w", path, err))
	}
	return wf, nil
}

// NewRunCmd создаёт команду локального выполнения workflow.
//
// Код выхода: 0 — run успешен или событие не совпало с правилами
// запуска; 1 — run завершился failure; 2 — ошибка конфигурации.
func NewRunCmd(env LocalEnv) *cobra.Command {
	var (
		kind, branch, sha, repository string
		failFast, continueOnError     bool
		maxParallel                   int
		timeout                       time.Duration
		workDir                       string
		force, quiet                  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workflow locally for an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			logger := env.logger()

			wf, err := env.load()
			if err != nil {
				return err
			}

			event := domain.Event{
				Kind:       domain.EventKind(kind),
				Branch:     branch,
				Repository: repository,
				SHA:        sha,
			}
			if !event.Kind.IsValid() {
				return configError(fmt.Errorf("unknown event kind %q", kind))
			}

			// Флаги перекрывают политику workflow, только если заданы явно
			policy := orchestrator.PolicyFor(wf)
			flags := cmd.Flags()
			if flags.Changed("fail-fast") {
				policy.FailFast = failFast
			}
			if flags.Changed("continue-on-error") {
				policy.ContinueOnError = continueOnError
			}
			if flags.Changed("max-parallel") {
				if maxParallel < 0 {
					return configError(fmt.Errorf("negative --max-parallel: %d", maxParallel))
				}
				policy.MaxParallel = maxParallel
			}
			if flags.Changed("timeout") {
				policy.Timeout = timeout
			}

			var stream func(domain.JobConfig) io.Writer
			if !quiet {
				stream = func(job domain.JobConfig) io.Writer { return out.Stream(job.Name) }
			}

			orch := orchestrator.New(orchestrator.Config{
				Workflow: wf,
				Runner: worker.New(worker.Config{
					Workspace: workDir,
					Stream:    stream,
					Logger:    logger,
				}),
				Logger: logger,
			})

			if !force && !orch.Accepts(event) {
				out.Success(fmt.Sprintf("Event %s on %s does not match trigger rules of %s, nothing to run",
					event.Kind, event.Branch, wf.Name))
				return nil
			}

			run, err := orch.Run(cmd.Context(), event, policy)
			if run != nil {
				printRun(out, wf, run)
			}
			if err != nil {
				return configError(err)
			}
			if run.Status != domain.RunStatusSuccess {
				return runFailed(wf.Name, run.ID.String())
			}

			out.Success(fmt.Sprintf("Run %s succeeded in %s", run.ID, formatDuration(run.Duration())))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&kind, "event", string(domain.EventPush), "Event kind (push, pull_request, schedule)")
	f.StringVar(&branch, "branch", engine.DefaultScheduleBranch, "Target branch")
	f.StringVar(&sha, "sha", "", "Commit SHA")
	f.StringVar(&repository, "repository", "", "Repository URL for checkout steps")
	f.BoolVar(&failFast, "fail-fast", false, "Abort remaining jobs after the first failing job")
	f.BoolVar(&continueOnError, "continue-on-error", false, "Jobs failing only on continue-on-error steps do not fail the run")
	f.IntVar(&maxParallel, "max-parallel", 0, "Maximum concurrent jobs (0 = unlimited)")
	f.DurationVar(&timeout, "timeout", 0, "Timeout for the whole run")
	f.StringVar(&workDir, "workdir", env.WorkDir, "Workspace root; each job gets job-<index> inside it")
	f.BoolVar(&force, "force", false, "Run even if the event does not match trigger rules")
	f.BoolVarP(&quiet, "quiet", "q", false, "Do not stream step output")

	return cmd
}

// printRun выводит итог run: по строке на job.
func printRun(out *Output, wf *domain.Workflow, run *domain.RunResult) {
	keys := make([]string, len(wf.Matrix))
	for i, d := range wf.Matrix {
		keys[i] = d.Name
	}

	headers := jobHeaders
	rows := make([][]string, len(run.Jobs))
	for i, j := range run.Jobs {
		failed := "-"
		if step, pos := j.FailedStep(); step != nil {
			failed = fmt.Sprintf("%s (#%d, exit %d)", step.Name, pos, step.ExitCode)
		}
		rows[i] = []string{
			strconv.Itoa(j.Job.Index),
			j.Job.Name,
			orDash(formatMatrix(keys, j.Job.Matrix)),
			string(j.Status),
			failed,
			formatDuration(j.Duration()),
		}
	}

	out.Print(headers, rows, run)

	for _, w := range run.Warnings {
		out.Error("warning: " + w)
	}
	if run.Error != "" {
		out.Error(run.Error)
	}
}

// NewExpandCmd создаёт команду, выводящую jobs развёрнутой матрицы.
func NewExpandCmd(env LocalEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "expand",
		Short: "Print the jobs the build matrix expands to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()

			wf, err := env.load()
			if err != nil {
				return err
			}

			jobs, err := orchestrator.New(orchestrator.Config{Workflow: wf, Logger: env.logger()}).Expand()
			if err != nil {
				return configError(err)
			}

			keys := make([]string, len(wf.Matrix))
			for i, d := range wf.Matrix {
				keys[i] = d.Name
			}

			headers := []string{"INDEX", "JOB", "MATRIX", "STEPS"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				names := make([]string, len(j.Steps))
				for k, s := range j.Steps {
					names[k] = s.DisplayName()
				}
				rows[i] = []string{
					strconv.Itoa(j.Index),
					j.Name,
					orDash(formatMatrix(keys, j.Matrix)),
					strings.Join(names, " → "),
				}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}
}

// NewValidateCmd создаёт команду проверки workflow без выполнения.
func NewValidateCmd(env LocalEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the workflow file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()

			wf, err := env.load()
			if err != nil {
				return err
			}

			jobs, err := orchestrator.New(orchestrator.Config{Workflow: wf, Logger: env.logger()}).Expand()
			if err != nil {
				return configError(fmt.Errorf("%s: %w", env.WorkflowFile(), err))
			}

			out.Success(fmt.Sprintf("Workflow %q is valid: %d triggers, %d schedules, %d jobs × %d steps",
				wf.Name, len(wf.Triggers), len(wf.Schedules), len(jobs), len(wf.Steps)))
			return nil
		},
	}
}
