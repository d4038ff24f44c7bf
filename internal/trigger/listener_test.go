package trigger

import (
	"errors"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		branch  string
		want    bool
	}{
		{"main", "main", true},
		{"main", "master", false},
		{"main", "main/x", false},
		{"release/*", "release/1.0", true},
		{"release/*", "release/1.0/hotfix", false},
		{"release/*", "release", false},
		{"release/**", "release", true},
		{"release/**", "release/1.0", true},
		{"release/**", "release/1.0/hotfix", true},
		{"release/**", "releases/1.0", false},
		{"**/hotfix", "hotfix", true},
		{"**/hotfix", "release/1.0/hotfix", true},
		{"**/hotfix", "release/1.0/hotfix-2", false},
		{"feature/**/wip", "feature/wip", true},
		{"feature/**/wip", "feature/a/b/wip", true},
		{"feature/**/wip", "feature/a/b/done", false},
		{"**", "anything/at/all", true},
		{"**", "", false},
		{"v?.*", "v1.2", true},
		{"v?.*", "v10.2", false},
		{"feature-*", "feature-login", true},
		{"feature-*", "feature/login", false},
		{"[", "main", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.branch, func(t *testing.T) {
			if got := MatchPattern(tt.pattern, tt.branch); got != tt.want {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.branch, got, tt.want)
			}
		})
	}
}

func TestMatchBranches(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		branch   string
		want     bool
	}{
		{"empty list matches all", nil, "anything", true},
		{"positive match", []string{"main", "develop"}, "develop", true},
		{"no match", []string{"main", "develop"}, "feature", false},
		{"negation after match", []string{"release/**", "!release/**-rc"}, "release/1.0-rc", false},
		{"negation leaves others", []string{"release/**", "!release/**-rc"}, "release/1.0", true},
		{"re-include after negation", []string{"release/**", "!release/old/*", "release/old/keep"}, "release/old/keep", true},
		{"only negations include rest", []string{"!wip/**"}, "main", true},
		{"only negations exclude", []string{"!wip/**"}, "wip/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchBranches(tt.patterns, tt.branch); got != tt.want {
				t.Errorf("MatchBranches(%v, %q) = %v, want %v", tt.patterns, tt.branch, got, tt.want)
			}
		})
	}
}

// TestListener_Accepts перебирает все сочетания наборов правил,
// типов событий и веток.
func TestListener_Accepts(t *testing.T) {
	ruleSets := map[string][]domain.TriggerRule{
		"none": nil,
		"push main": {
			{Kind: domain.EventPush, Branches: []string{"main"}},
		},
		"push+pr main": {
			{Kind: domain.EventPush, Branches: []string{"main"}},
			{Kind: domain.EventPullRequest, Branches: []string{"main"}},
		},
		"pr any": {
			{Kind: domain.EventPullRequest},
		},
		"push release": {
			{Kind: domain.EventPush, Branches: []string{"release/**"}},
		},
	}

	kinds := []domain.EventKind{domain.EventPush, domain.EventPullRequest, domain.EventSchedule, "", "tag"}
	branches := []string{"main", "refs/heads/main", "develop", "release/1.0", ""}

	// expected описывает ожидаемое решение независимо от реализации.
	expected := func(set string, kind domain.EventKind, branch string) bool {
		if branch == "" {
			return false
		}
		name := branch
		if name == "refs/heads/main" {
			name = "main"
		}
		switch set {
		case "push main":
			return kind == domain.EventPush && name == "main"
		case "push+pr main":
			return (kind == domain.EventPush || kind == domain.EventPullRequest) && name == "main"
		case "pr any":
			return kind == domain.EventPullRequest
		case "push release":
			return kind == domain.EventPush && name == "release/1.0"
		default:
			return false
		}
	}

	for set, rules := range ruleSets {
		l := New(rules)
		for _, kind := range kinds {
			for _, branch := range branches {
				want := expected(set, kind, branch)
				got := l.Accepts(domain.Event{Kind: kind, Branch: branch})
				if got != want {
					t.Errorf("set %q, event {%q, %q}: got %v, want %v", set, kind, branch, got, want)
				}
			}
		}
	}
}

func TestListener_RulesAreCopied(t *testing.T) {
	rules := []domain.TriggerRule{{Kind: domain.EventPush, Branches: []string{"main"}}}
	l := New(rules)

	rules[0].Branches[0] = "develop"

	if !l.Accepts(domain.Event{Kind: domain.EventPush, Branch: "main"}) {
		t.Error("listener should not observe caller mutations")
	}
}

func TestListener_Match(t *testing.T) {
	l := New([]domain.TriggerRule{
		{Kind: domain.EventPush, Branches: []string{"main"}},
		{Kind: domain.EventPush, Branches: []string{"**"}},
	})

	rule, ok := l.Match(domain.Event{Kind: domain.EventPush, Branch: "feature/x"})
	if !ok {
		t.Fatal("expected match")
	}
	if rule.Branches[0] != "**" {
		t.Errorf("expected second rule, got %v", rule.Branches)
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name    string
		rules   []domain.TriggerRule
		wantErr error
	}{
		{"valid", []domain.TriggerRule{{Kind: domain.EventPush, Branches: []string{"main", "!wip/**"}}}, nil},
		{"unknown kind", []domain.TriggerRule{{Kind: "tag"}}, ErrUnknownEventKind},
		{"empty pattern", []domain.TriggerRule{{Kind: domain.EventPush, Branches: []string{""}}}, ErrEmptyPattern},
		{"bare negation", []domain.TriggerRule{{Kind: domain.EventPush, Branches: []string{"!"}}}, ErrEmptyPattern},
		{"malformed", []domain.TriggerRule{{Kind: domain.EventPush, Branches: []string{"feature/["}}}, ErrBadPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRules(tt.rules)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
