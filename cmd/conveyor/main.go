// Conveyor CLI — локальный запуск workflow и работа с Conveyor API.
//
// Использование:
//
//	conveyor [--workflow FILE] [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить workflow для события
//	expand    Показать jobs развёрнутой матрицы
//	validate  Проверить workflow
//	remote    История runs и отправка событий через API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitConfig)
	}

	logger := telemetry.SetupLoggerTo(os.Stderr)

	var workflowFile, apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor — matrix CI pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&workflowFile, "workflow", "f", cfg.WorkflowFile, "Workflow file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", cfg.APIURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	local := cli.LocalEnv{
		WorkflowFile: func() string { return workflowFile },
		Output:       outputFn,
		WorkDir:      cfg.WorkDir,
		Logger:       logger,
	}

	rootCmd.AddCommand(
		cli.NewRunCmd(local),
		cli.NewExpandCmd(local),
		cli.NewValidateCmd(local),
		cli.NewRemoteCmd(clientFn, outputFn),
	)

	// Ctrl+C отменяет run: jobs останавливаются на границе шагов
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
