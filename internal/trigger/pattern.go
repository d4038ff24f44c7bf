package trigger

import (
	"fmt"
	"path"
	"strings"
)

// MatchPattern проверяет ветку против glob-шаблона:
//
//   - "main" — точное совпадение
//   - "release/*" — один сегмент: "release/1.0", но не "release/1.0/hotfix"
//   - "release/**" — любое число сегментов, включая ноль
//   - "**" — любая ветка
//   - "v?.*" — ? совпадает с одним символом кроме "/"
//
// Некорректный шаблон ни с чем не совпадает.
func MatchPattern(pattern, branch string) bool {
	if pattern == "**" {
		return branch != ""
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(branch, "/"))
}

// matchSegments сопоставляет сегменты шаблона и ветки.
// "**" поглощает ноль или больше сегментов.
func matchSegments(pattern, branch []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(branch); i++ {
				if matchSegments(rest, branch[i:]) {
					return true
				}
			}
			return false
		}

		if len(branch) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], branch[0])
		if err != nil || !ok {
			return false
		}
		pattern, branch = pattern[1:], branch[1:]
	}
	return len(branch) == 0
}

// MatchBranches применяет упорядоченный список шаблонов к ветке.
//
// Шаблоны проверяются по порядку, последний совпавший решает:
// обычный шаблон включает ветку, шаблон с "!" исключает.
// Пустой список совпадает с любой веткой. Если все шаблоны
// отрицательные, ветка включена, пока её не исключит один из них.
func MatchBranches(patterns []string, branch string) bool {
	if len(patterns) == 0 {
		return true
	}

	matched := onlyNegations(patterns)
	for _, p := range patterns {
		negate := strings.HasPrefix(p, "!")
		if MatchPattern(strings.TrimPrefix(p, "!"), branch) {
			matched = !negate
		}
	}
	return matched
}

func onlyNegations(patterns []string) bool {
	for _, p := range patterns {
		if !strings.HasPrefix(p, "!") {
			return false
		}
	}
	return true
}

// ValidatePattern проверяет синтаксис шаблона.
func ValidatePattern(pattern string) error {
	p := strings.TrimPrefix(pattern, "!")
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: %q", ErrEmptyPattern, pattern)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "**" {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrBadPattern, pattern, err)
		}
	}
	return nil
}
