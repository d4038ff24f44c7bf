package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Context — контекст для подстановки значений матрицы в шаги.
//
// Доступные выражения:
//   - ${{ matrix.toolchain }} — значение оси матрицы
//   - ${{ job }} — имя job
type Context struct {
	// Matrix — назначение осей матрицы для текущего job.
	Matrix map[string]string `json:"matrix"`

	// Job — имя job.
	Job string `json:"job"`
}

// NewContext создаёт контекст для одной точки матрицы.
func NewContext(matrix map[string]string) *Context {
	if matrix == nil {
		matrix = make(map[string]string)
	}
	return &Context{Matrix: matrix}
}

// actionsExpr — выражение в стиле GitHub Actions: ${{ matrix.toolchain }}.
var actionsExpr = regexp.MustCompile(`\$\{\{\s*([^}]*?)\s*\}\}`)

// Render подставляет значения матрицы в строку.
//
// Заменяются только выражения ${{ ... }}. Остальной текст, включая
// {{ }} в командах вида docker ps --format '{{.Names}}', остаётся как есть:
// его интерпретирует сам шаг.
//
//	rustup toolchain install ${{ matrix.toolchain }}
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "${{") {
		return tmpl, nil
	}

	var firstErr error
	out := actionsExpr.ReplaceAllStringFunc(tmpl, func(m string) string {
		if firstErr != nil {
			return m
		}
		expr := strings.TrimSpace(actionsExpr.FindStringSubmatch(m)[1])

		switch {
		case strings.HasPrefix(expr, "matrix."):
			key := strings.TrimPrefix(expr, "matrix.")
			val, ok := ctx.Matrix[key]
			if !ok {
				firstErr = fmt.Errorf("%w: unknown matrix key %q", ErrTemplateRender, key)
				return m
			}
			return val
		case expr == "job":
			return ctx.Job
		default:
			firstErr = fmt.Errorf("%w: unsupported expression %q", ErrTemplateParse, expr)
			return m
		}
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// RenderMap рендерит все значения map.
func RenderMap(values map[string]string, ctx *Context) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}

	result := make(map[string]string, len(values))
	for key, val := range values {
		rendered, err := Render(val, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}

// RenderStep возвращает копию шага с подставленными значениями матрицы.
func RenderStep(step domain.StepDef, ctx *Context) (domain.StepDef, error) {
	out := step.Clone()
	var err error

	fields := []struct {
		name string
		ptr  *string
	}{
		{"name", &out.Name},
		{"uses", &out.Uses},
		{"run", &out.Run},
		{"working-directory", &out.WorkingDir},
	}
	for _, f := range fields {
		if *f.ptr, err = Render(*f.ptr, ctx); err != nil {
			return domain.StepDef{}, NewConfigurationError(step.DisplayName(), f.name, err.Error(), err)
		}
	}

	if out.With, err = RenderMap(step.With, ctx); err != nil {
		return domain.StepDef{}, NewConfigurationError(step.DisplayName(), "with", err.Error(), err)
	}
	if out.Env, err = RenderMap(step.Env, ctx); err != nil {
		return domain.StepDef{}, NewConfigurationError(step.DisplayName(), "env", err.Error(), err)
	}

	return out, nil
}

// MustRender рендерит шаблон и паникует при ошибке.
// Используется только для тестов.
func MustRender(tmpl string, ctx *Context) string {
	result, err := Render(tmpl, ctx)
	if err != nil {
		panic(err)
	}
	return result
}
