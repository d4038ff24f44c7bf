// Package cli реализует инструмент командной строки Conveyor.
//
// # Локальные команды
//
// run, expand и validate работают с workflow-файлом напрямую, без
// сервера: разбирают YAML, разворачивают матрицу и выполняют jobs в
// текущем процессе через orchestrator и worker.
//
//	conveyor run --event push --branch main --max-parallel 2
//
// Код выхода run: 0 — вердикт success или событие не совпало с
// правилами запуска, 1 — вердикт failure, 2 — ошибка конфигурации
// (см. ExitCode).
//
// # Удалённые команды
//
// remote работает с Conveyor API через Client: история runs, отправка
// событий, просмотр загруженного workflow. Client не импортирует
// internal/api и дублирует нужные типы ответов.
//
//	conveyor remote runs list --status failure --json | jq .
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные пишутся в stdout, сообщения и вывод шагов — в stderr.
//
// Команды создаются фабриками (NewRunCmd, NewRemoteCmd и т.д.),
// принимающими замыкания для ленивого создания Client и Output после
// парсинга PersistentFlags.
package cli
