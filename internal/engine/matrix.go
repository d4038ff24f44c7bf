package engine

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MaxJobs — верхняя граница числа jobs в одном run.
const MaxJobs = 256

// Expand разворачивает матрицу в упорядоченный список jobs.
//
// Алгоритм:
//  1. Проверяем оси: имена непустые и уникальные, значения уникальные
//  2. Обходим декартово произведение как одометр: первая ось — внешняя,
//     последняя меняется быстрее всех
//  3. Для каждой точки копируем шаблон шагов и один раз подставляем
//     значения матрицы
//
// Без осей получается ровно один job. Ось без значений даёт ноль jobs
// и ConfigurationError с ErrEmptyDimension.
func Expand(dims []domain.MatrixDimension, template []domain.StepDef) ([]domain.JobConfig, error) {
	if err := ValidateMatrix(dims); err != nil {
		return nil, err
	}

	for _, d := range dims {
		if len(d.Values) == 0 {
			return nil, NewConfigurationError("", "matrix."+d.Name,
				fmt.Sprintf("dimension %q has no values, matrix is empty", d.Name), ErrEmptyDimension)
		}
	}

	total := MatrixSize(dims)
	jobs := make([]domain.JobConfig, 0, total)
	cursor := make([]int, len(dims))

	for n := 0; n < total; n++ {
		var assignment map[string]string
		values := make([]string, len(dims))
		if len(dims) > 0 {
			assignment = make(map[string]string, len(dims))
		}
		for i, d := range dims {
			v := d.Values[cursor[i]]
			assignment[d.Name] = v
			values[i] = v
		}

		name := domain.JobName(values)
		ctx := NewContext(assignment)
		ctx.Job = name

		steps := make([]domain.StepDef, len(template))
		for i, step := range template {
			rendered, err := RenderStep(step, ctx)
			if err != nil {
				return nil, err
			}
			steps[i] = rendered
		}

		jobs = append(jobs, domain.JobConfig{
			Index:  n,
			Name:   name,
			Matrix: assignment,
			Steps:  steps,
		})

		// Следующая точка: увеличиваем самую внутреннюю ось с переносом
		for i := len(dims) - 1; i >= 0; i-- {
			cursor[i]++
			if cursor[i] < len(dims[i].Values) {
				break
			}
			cursor[i] = 0
		}
	}

	return jobs, nil
}

// MatrixSize возвращает количество jobs, которое даст матрица.
// Для матрицы больше MaxJobs возвращает MaxJobs+1.
func MatrixSize(dims []domain.MatrixDimension) int {
	for _, d := range dims {
		if len(d.Values) == 0 {
			return 0
		}
	}

	total := 1
	for _, d := range dims {
		total *= len(d.Values)
		if total > MaxJobs {
			return MaxJobs + 1
		}
	}
	return total
}

// ValidateMatrix проверяет структуру осей и размер произведения.
// Пустая ось здесь не ошибка: о ней сообщает Expand.
func ValidateMatrix(dims []domain.MatrixDimension) error {
	names := make(map[string]bool, len(dims))

	for i, d := range dims {
		if d.Name == "" {
			return NewConfigurationError("", "matrix",
				fmt.Sprintf("dimension %d has empty name", i), ErrEmptyDimensionName)
		}
		if names[d.Name] {
			return NewConfigurationError("", "matrix."+d.Name,
				fmt.Sprintf("duplicate dimension: %s", d.Name), ErrDuplicateDimension)
		}
		names[d.Name] = true

		seen := make(map[string]bool, len(d.Values))
		for _, v := range d.Values {
			if seen[v] {
				return NewConfigurationError("", "matrix."+d.Name,
					fmt.Sprintf("duplicate value %q", v), ErrDuplicateValue)
			}
			seen[v] = true
		}
	}

	if MatrixSize(dims) > MaxJobs {
		return NewConfigurationError("", "matrix",
			fmt.Sprintf("matrix expands to more than %d jobs", MaxJobs), ErrMatrixTooLarge)
	}

	return nil
}
