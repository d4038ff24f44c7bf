// Package trigger решает, запускает ли входящее событие pipeline.
//
// Listener получает набор правил при создании и не имеет глобального
// состояния. Шаблоны веток поддерживают *, ?, ** и отрицание через "!".
package trigger
