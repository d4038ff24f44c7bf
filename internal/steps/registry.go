package steps

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Registry сопоставляет значение uses с реализацией Step.
//
// Версия после "@" отбрасывается: uses: checkout@v4 найдёт checkout.
// Безопасен для конкурентного чтения, jobs одного run делят реестр.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Step
}

func NewRegistry(steps ...Step) *Registry {
	r := &Registry{actions: make(map[string]Step, len(steps))}
	for _, s := range steps {
		r.Register(s)
	}
	return r
}

// DefaultRegistry — встроенные action'ы Conveyor.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewShellStep(),
		NewCheckoutStep(),
		NewToolchainStep(),
		NewHTTPStep(),
		DelayStep(),
	)
}

// Register добавляет или заменяет action. aliases — дополнительные имена.
func (r *Registry) Register(step Step, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[step.Type()] = step
	for _, a := range aliases {
		r.actions[a] = step
	}
}

// Get ищет action по имени, ErrStepNotFound если его нет.
func (r *Registry) Get(action string) (Step, error) {
	name, _, _ := strings.Cut(action, "@")

	r.mu.RLock()
	step, ok := r.actions[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, action)
	}
	return step, nil
}

// Resolve находит реализацию для шага: run — shell, uses — по имени.
func (r *Registry) Resolve(def domain.StepDef) (Step, error) {
	action := def.Action()
	if action == "" {
		return nil, fmt.Errorf("%w: step %q has neither run nor uses", ErrInvalidConfig, def.DisplayName())
	}
	return r.Get(action)
}

// CheckActions проверяет все шаги шаблона до запуска jobs, чтобы
// неизвестный uses стал ошибкой конфигурации, а не падением каждого job.
func (r *Registry) CheckActions(defs []domain.StepDef) error {
	for _, def := range defs {
		if _, err := r.Resolve(def); err != nil {
			return fmt.Errorf("step %q: %w", def.DisplayName(), err)
		}
	}
	return nil
}

// Types возвращает имена action'ов по алфавиту, включая псевдонимы.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.actions))
}
