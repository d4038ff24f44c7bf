package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewRemoteCmd создаёт группу команд для работы с Conveyor API.
func NewRemoteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Work with a Conveyor API server",
	}

	runs := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}
	runs.AddCommand(
		newRunsListCmd(clientFn, outputFn),
		newRunsShowCmd(clientFn, outputFn),
		newRunsJobsCmd(clientFn, outputFn),
	)

	cmd.AddCommand(
		runs,
		newEventCmd(clientFn, outputFn),
		newWorkflowCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunsListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(cmd.Context(), opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW", "EVENT", "BRANCH", "STATUS", "DURATION", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.Workflow, r.Event.Kind, r.Event.Branch, r.Status, formatMs(r.DurationMs), r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "Filter by workflow name")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, running, success, failure)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Skip the first N results")

	return cmd
}

func newRunsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run verdict and its jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(run)
				return nil
			}

			out.Table(
				[]string{"ID", "WORKFLOW", "EVENT", "BRANCH", "STATUS", "DURATION", "ERROR"},
				[][]string{{run.ID, run.Workflow, run.Event.Kind, run.Event.Branch, run.Status, formatMs(run.DurationMs), orDash(run.Error)}},
			)
			if len(run.Jobs) > 0 {
				fmt.Fprintln(out.w)
				out.Table(jobHeaders, jobRows(run.Jobs))
			}
			return nil
		},
	}
}

func newRunsJobsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var showOutput bool

	cmd := &cobra.Command{
		Use:   "jobs RUN_ID",
		Short: "List jobs of a run with their steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(jobs)
				return nil
			}

			headers := []string{"JOB", "#", "STEP", "STATUS", "EXIT", "DURATION", "ERROR"}
			var rows [][]string
			for _, j := range jobs {
				for i, s := range j.Steps {
					status := s.Status
					if s.ContinueOnError && s.Status == "failure" {
						status += " (allowed)"
					}
					rows = append(rows, []string{
						j.Name, strconv.Itoa(i + 1), s.Name, status,
						strconv.Itoa(s.ExitCode), formatMs(s.DurationMs), orDash(s.Error),
					})
				}
			}
			out.Table(headers, rows)

			if showOutput {
				for _, j := range jobs {
					for _, s := range j.Steps {
						if s.Output == "" {
							continue
						}
						fmt.Fprintf(out.w, "\n--- %s / %s ---\n%s", j.Name, s.Name, s.Output)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showOutput, "output", false, "Print captured step output")

	return cmd
}

func newEventCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req EventRequest

	cmd := &cobra.Command{
		Use:   "event",
		Short: "Send a push or pull_request event to the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.SendEvent(cmd.Context(), req)
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(resp)
				return nil
			}
			if resp.Accepted {
				out.Success(fmt.Sprintf("Event %s on %s accepted", resp.Kind, resp.Branch))
			} else {
				out.Success(fmt.Sprintf("Event %s on %s does not match trigger rules", resp.Kind, resp.Branch))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Kind, "kind", "push", "Event kind (push, pull_request)")
	cmd.Flags().StringVar(&req.Branch, "branch", "main", "Target branch")
	cmd.Flags().StringVar(&req.SHA, "sha", "", "Commit SHA")
	cmd.Flags().StringVar(&req.Repository, "repository", "", "Repository URL")

	return cmd
}

func newWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "workflow",
		Short: "Show the workflow loaded by the API and its matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"INDEX", "JOB", "MATRIX", "STEPS"}
			rows := make([][]string, len(wf.Jobs))
			for i, j := range wf.Jobs {
				rows[i] = []string{
					strconv.Itoa(j.Index), j.Name,
					orDash(formatMatrix(sortedKeys(j.Matrix), j.Matrix)),
					strings.Join(j.Steps, " → "),
				}
			}

			out.Print(headers, rows, wf)
			return nil
		},
	}
}

var jobHeaders = []string{"INDEX", "JOB", "MATRIX", "STATUS", "FAILED STEP", "DURATION"}

func jobRows(jobs []JobResponse) [][]string {
	rows := make([][]string, len(jobs))
	for i, j := range jobs {
		failed := "-"
		if j.FailedStep != "" {
			failed = fmt.Sprintf("%s (#%d)", j.FailedStep, j.FailedStepPosition)
		}
		rows[i] = []string{
			strconv.Itoa(j.Index), j.Name,
			orDash(formatMatrix(sortedKeys(j.Matrix), j.Matrix)),
			j.Status, failed, formatMs(j.DurationMs),
		}
	}
	return rows
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
