package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// DefaultScheduleBranch — ветка для событий schedule, если не задана.
const DefaultScheduleBranch = "main"

// document — YAML-представление workflow.
type document struct {
	Name            string           `yaml:"name"`
	On              yaml.Node        `yaml:"on"`
	ContinueOnError bool             `yaml:"continue-on-error"`
	TimeoutMinutes  int              `yaml:"timeout-minutes"`
	DefaultBranch   string           `yaml:"default-branch"`
	Strategy        strategy         `yaml:"strategy"`
	Steps           []domain.StepDef `yaml:"steps"`
}

type strategy struct {
	Matrix      yaml.Node `yaml:"matrix"`
	FailFast    bool      `yaml:"fail-fast"`
	MaxParallel int       `yaml:"max-parallel"`
}

type branchFilter struct {
	Branches []string `yaml:"branches"`
}

type scheduleEntry struct {
	Cron string `yaml:"cron"`
}

// ParseFile читает и разбирает workflow из файла.
func ParseFile(path string) (*domain.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML workflow и валидирует результат.
//
// Порядок осей матрицы сохраняется таким, как он объявлен в документе.
func Parse(data []byte) (*domain.Workflow, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewConfigurationError("", "", err.Error(), fmt.Errorf("%w: %v", ErrInvalidDocument, err))
	}

	wf := &domain.Workflow{
		Name:            doc.Name,
		ContinueOnError: doc.ContinueOnError,
		FailFast:        doc.Strategy.FailFast,
		MaxParallel:     doc.Strategy.MaxParallel,
		TimeoutMinutes:  doc.TimeoutMinutes,
		Steps:           doc.Steps,
	}

	branch := doc.DefaultBranch
	if branch == "" {
		branch = DefaultScheduleBranch
	}

	var err error
	if wf.Triggers, wf.Schedules, err = parseTriggers(&doc.On, branch); err != nil {
		return nil, err
	}
	if wf.Matrix, err = parseMatrix(&doc.Strategy.Matrix); err != nil {
		return nil, err
	}

	if err := Validate(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// parseTriggers разбирает секцию on. Поддерживаются три формы:
//
//	on: push
//	on: [push, pull_request]
//	on: {push: {branches: [main]}, schedule: [{cron: "0 3 * * *"}]}
func parseTriggers(node *yaml.Node, branch string) ([]domain.TriggerRule, []domain.Schedule, error) {
	switch node.Kind {
	case 0:
		return nil, nil, nil

	case yaml.ScalarNode:
		return []domain.TriggerRule{{Kind: domain.EventKind(node.Value)}}, nil, nil

	case yaml.SequenceNode:
		rules := make([]domain.TriggerRule, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, nil, onError(item, "expected event name")
			}
			rules = append(rules, domain.TriggerRule{Kind: domain.EventKind(item.Value)})
		}
		return rules, nil, nil

	case yaml.MappingNode:
		var rules []domain.TriggerRule
		var schedules []domain.Schedule

		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			kind := domain.EventKind(key.Value)

			if kind == domain.EventSchedule {
				var entries []scheduleEntry
				if err := value.Decode(&entries); err != nil {
					return nil, nil, onError(value, "schedule must be a list of {cron: ...}")
				}
				for _, e := range entries {
					schedules = append(schedules, domain.Schedule{CronExpr: e.Cron, Branch: branch})
				}
				rules = append(rules, domain.TriggerRule{Kind: kind})
				continue
			}

			var filter branchFilter
			if value.Kind != 0 && !isNull(value) {
				if err := value.Decode(&filter); err != nil {
					return nil, nil, onError(value, "expected {branches: [...]}")
				}
			}
			rules = append(rules, domain.TriggerRule{Kind: kind, Branches: filter.Branches})
		}
		return rules, schedules, nil

	default:
		return nil, nil, onError(node, "unsupported trigger section")
	}
}

// parseMatrix разбирает strategy.matrix, сохраняя порядок ключей.
func parseMatrix(node *yaml.Node) ([]domain.MatrixDimension, error) {
	if node.Kind == 0 || isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, NewConfigurationError("", "strategy.matrix",
			fmt.Sprintf("line %d: matrix must be a mapping", node.Line), ErrInvalidMatrix)
	}

	dims := make([]domain.MatrixDimension, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var values []string
		switch {
		case isNull(value):
			values = []string{}
		case value.Kind == yaml.SequenceNode:
			values = make([]string, 0, len(value.Content))
			for _, item := range value.Content {
				if item.Kind != yaml.ScalarNode {
					return nil, NewConfigurationError("", "strategy.matrix."+key.Value,
						fmt.Sprintf("line %d: matrix values must be scalars", item.Line), ErrInvalidMatrix)
				}
				values = append(values, item.Value)
			}
		default:
			return nil, NewConfigurationError("", "strategy.matrix."+key.Value,
				fmt.Sprintf("line %d: matrix dimension must be a list", value.Line), ErrInvalidMatrix)
		}

		dims = append(dims, domain.MatrixDimension{Name: key.Value, Values: values})
	}
	return dims, nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null"
}

func onError(node *yaml.Node, msg string) error {
	return NewConfigurationError("", "on",
		fmt.Sprintf("line %d: %s", node.Line, msg), ErrInvalidTriggerRule)
}

// Validate выполняет полную валидацию workflow.
//
// Проверяет:
// - Наличие шагов и ровно одно из run/uses в каждом шаге
// - Таймауты и параметры стратегии
// - Правила запуска и cron-выражения
// - Структуру матрицы (пустая ось проверяется в Expand)
func Validate(wf *domain.Workflow) error {
	if wf == nil || len(wf.Steps) == 0 {
		return NewConfigurationError("", "steps", "workflow has no steps", ErrEmptySteps)
	}

	for i := range wf.Steps {
		if err := ValidateStep(i, &wf.Steps[i]); err != nil {
			return err
		}
	}

	if wf.TimeoutMinutes < 0 {
		return NewConfigurationError("", "timeout-minutes",
			fmt.Sprintf("negative timeout: %d", wf.TimeoutMinutes), ErrInvalidTimeout)
	}
	if wf.MaxParallel < 0 {
		return NewConfigurationError("", "strategy.max-parallel",
			fmt.Sprintf("negative max-parallel: %d", wf.MaxParallel), ErrInvalidPolicy)
	}

	if err := trigger.ValidateRules(wf.Triggers); err != nil {
		return NewConfigurationError("", "on", err.Error(), errors.Join(ErrInvalidTriggerRule, err))
	}

	for _, s := range wf.Schedules {
		if _, err := cron.ParseStandard(s.CronExpr); err != nil {
			return NewConfigurationError("", "on.schedule",
				fmt.Sprintf("invalid cron %q: %v", s.CronExpr, err), ErrInvalidSchedule)
		}
	}

	return ValidateMatrix(wf.Matrix)
}

// ValidateStep валидирует один шаг. index — позиция шага (с 0).
func ValidateStep(index int, step *domain.StepDef) error {
	name := step.DisplayName()
	if name == "" {
		name = fmt.Sprintf("#%d", index+1)
	}

	if (step.Run == "") == (step.Uses == "") {
		return NewConfigurationError(name, "run",
			"step must define exactly one of run or uses", ErrInvalidStep)
	}

	if step.TimeoutMinutes < 0 {
		return NewConfigurationError(name, "timeout-minutes",
			fmt.Sprintf("negative timeout: %d", step.TimeoutMinutes), ErrInvalidTimeout)
	}

	return nil
}
