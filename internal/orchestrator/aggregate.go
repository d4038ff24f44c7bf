package orchestrator

import "github.com/shaiso/Conveyor/internal/domain"

// Summary — итог набора jobs: вердикт и упорядоченные результаты.
type Summary struct {
	Status domain.RunStatus
	Jobs   []domain.JobResult
}

// Aggregate сводит результаты jobs в вердикт run.
//
// Run успешен, только если каждый job успешен, либо упал исключительно
// на шагах с continue-on-error при включённом Policy.ContinueOnError.
// Прерванный job всегда валит run.
//
// Функция чистая: входной срез не изменяется, повторный вызов
// на тех же данных даёт тот же результат.
func Aggregate(results []domain.JobResult, policy Policy) Summary {
	jobs := sortedByIndex(results)

	status := domain.RunStatusSuccess
	for i := range jobs {
		if policy.fails(&jobs[i]) {
			status = domain.RunStatusFailure
			break
		}
	}

	return Summary{Status: status, Jobs: jobs}
}
