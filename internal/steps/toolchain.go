package steps

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
)

const (
	// StepTypeToolchain — тип шага установки toolchain.
	StepTypeToolchain = "toolchain"

	// DefaultInstallCommand — команда установки по умолчанию.
	DefaultInstallCommand = "rustup toolchain install {{ .version }} --profile minimal{{ range .components }} --component {{ . }}{{ end }}"
)

// ToolchainStep — установка toolchain.
//
// Ядро не знает, что такое toolchain: шаг рендерит команду установки
// из шаблона и запускает её через shell.
//
// Параметры with:
//
//	version: stable                          // обязательный
//	components: clippy,rustfmt               // через запятую
//	install: "asdf install golang {{ .version }}"  // свой шаблон команды
type ToolchainStep struct {
	install string
	shell   *ShellStep
}

// NewToolchainStep создаёт новый ToolchainStep.
func NewToolchainStep() *ToolchainStep {
	return &ToolchainStep{install: DefaultInstallCommand, shell: NewShellStep()}
}

// NewToolchainStepWithRunner создаёт ToolchainStep с заданным Runner.
func NewToolchainStepWithRunner(runner Runner) *ToolchainStep {
	return &ToolchainStep{install: DefaultInstallCommand, shell: NewShellStepWithRunner(runner)}
}

// Type возвращает тип шага.
func (s *ToolchainStep) Type() string {
	return StepTypeToolchain
}

// Execute устанавливает toolchain.
func (s *ToolchainStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	version := GetWith(req.With, "version", "")
	if version == "" {
		return nil, fmt.Errorf("%w: %s: version is required", ErrInvalidConfig, StepTypeToolchain)
	}

	command, err := s.command(req.With, version)
	if err != nil {
		return nil, err
	}

	sub := *req
	sub.Run = command
	sub.With = map[string]string{"shell": GetWith(req.With, "shell", DefaultShell)}

	resp, err := s.shell.Execute(ctx, &sub)
	if resp != nil {
		resp.Outputs["version"] = version
		resp.Outputs["command"] = command
	}
	return resp, err
}

// command рендерит команду установки.
func (s *ToolchainStep) command(with map[string]string, version string) (string, error) {
	tmpl := GetWith(with, "install", s.install)

	t, err := template.New(StepTypeToolchain).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %s: install template: %v", ErrInvalidConfig, StepTypeToolchain, err)
	}

	var components []string
	for _, c := range strings.Split(GetWith(with, "components", ""), ",") {
		if c = strings.TrimSpace(c); c != "" {
			components = append(components, c)
		}
	}

	data := map[string]any{
		"version":    version,
		"components": components,
	}
	for k, v := range with {
		if _, reserved := data[k]; !reserved {
			data[k] = v
		}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: install template: %v", ErrInvalidConfig, StepTypeToolchain, err)
	}
	return buf.String(), nil
}
