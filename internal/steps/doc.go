// Package steps содержит коллабораторы выполнения шагов.
//
// # Обзор
//
// Ядро pipeline не интерпретирует команды шагов: оно только упорядочивает
// их и собирает результаты. Всё, что делает шаг (запуск shell-команды,
// checkout репозитория, установка toolchain), живёт здесь, за интерфейсом Step.
//
// # Интерфейс Step
//
//	type Step interface {
//	    Type() string
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// Request содержит уже отрендеренные (с подставленной матрицей) поля шага:
// команду, параметры with, окружение и рабочую директорию.
//
// Response содержит:
//   - ExitCode — код возврата (0 = успех)
//   - Output — вывод команды без изменений
//   - Outputs — структурированные результаты
//
// Шаг считается упавшим, если Execute вернул ошибку или ненулевой ExitCode.
//
// # Registry
//
// Registry связывает имя action (поле uses) с реализацией, версия после
// "@" игнорируется.
// Поиск выполняется в момент выполнения шага:
//
//	registry := steps.DefaultRegistry()  // run, checkout, toolchain, http, delay
//	step, err := registry.Resolve(def)
//	if err != nil {
//	    // неизвестный action — шаг падает
//	}
//
// # Типы шагов
//
//   - run       — shell-команда через sh -c (shell.go)
//   - checkout  — git clone/fetch в workspace (checkout.go)
//   - toolchain — установка toolchain по шаблону команды (toolchain.go)
//   - http      — HTTP запрос с повторами, статус >= 400 — падение (http.go)
//   - delay     — пауза с поддержкой отмены (delay.go)
//
// Шаги никогда не повторяются автоматически. Если нужен retry,
// его реализует сам шаг.
package steps
