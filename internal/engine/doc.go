// Package engine содержит ядро подготовки run.
//
// Включает:
//   - parser.go   — парсинг и валидация workflow из YAML
//   - matrix.go   — разворачивание матрицы в упорядоченный список jobs
//   - template.go — подстановка значений матрицы в шаги (${{ matrix.x }}, ${{ job }})
//
// Engine отвечает за то, чтобы до запуска первого job все ошибки
// конфигурации были обнаружены, а шаги каждого job были полностью
// параметризованы.
package engine
