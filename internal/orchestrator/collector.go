package orchestrator

import (
	"sort"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Collector собирает результаты jobs в порядке завершения
// и отдаёт их в порядке матрицы.
//
// Безопасен для конкурентного использования.
type Collector struct {
	mu      sync.Mutex
	results []domain.JobResult
}

// NewCollector создаёт Collector с запасом под n результатов.
func NewCollector(n int) *Collector {
	return &Collector{results: make([]domain.JobResult, 0, n)}
}

// Add добавляет результат job.
func (c *Collector) Add(result domain.JobResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Len возвращает количество собранных результатов.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Results возвращает копию результатов, упорядоченную по индексу job.
func (c *Collector) Results() []domain.JobResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedByIndex(c.results)
}

func sortedByIndex(results []domain.JobResult) []domain.JobResult {
	out := make([]domain.JobResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Job.Index < out[j].Job.Index
	})
	return out
}
