package trigger

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Listener — решает, запускает ли событие run.
//
// Правила передаются при создании; Listener их не изменяет
// и безопасен для конкурентного использования.
type Listener struct {
	rules []domain.TriggerRule
}

// New создаёт Listener с копией переданных правил.
func New(rules []domain.TriggerRule) *Listener {
	copied := make([]domain.TriggerRule, len(rules))
	for i, r := range rules {
		copied[i] = domain.TriggerRule{
			Kind:     r.Kind,
			Branches: append([]string(nil), r.Branches...),
		}
	}
	return &Listener{rules: copied}
}

// Accepts возвращает true, если тип события и ветка совпадают
// хотя бы с одним правилом.
//
// Событие без типа или без ветки отклоняется.
func (l *Listener) Accepts(event domain.Event) bool {
	_, ok := l.Match(event)
	return ok
}

// Match возвращает первое правило, принявшее событие.
func (l *Listener) Match(event domain.Event) (domain.TriggerRule, bool) {
	if !event.Kind.IsValid() {
		return domain.TriggerRule{}, false
	}
	branch := event.BranchName()
	if branch == "" {
		return domain.TriggerRule{}, false
	}

	for _, rule := range l.rules {
		if rule.Kind != event.Kind {
			continue
		}
		if MatchBranches(rule.Branches, branch) {
			return rule, true
		}
	}
	return domain.TriggerRule{}, false
}

// Rules возвращает правила Listener'а.
func (l *Listener) Rules() []domain.TriggerRule {
	return l.rules
}

// ValidateRules проверяет типы событий и синтаксис шаблонов.
func ValidateRules(rules []domain.TriggerRule) error {
	for i, rule := range rules {
		if !rule.Kind.IsValid() {
			return fmt.Errorf("rule %d: %w: %q", i, ErrUnknownEventKind, rule.Kind)
		}
		for _, p := range rule.Branches {
			if err := ValidatePattern(p); err != nil {
				return fmt.Errorf("rule %d (%s): %w", i, rule.Kind, err)
			}
		}
	}
	return nil
}
