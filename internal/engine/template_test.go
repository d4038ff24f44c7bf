package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestNewContext(t *testing.T) {
	// С nil matrix
	ctx := NewContext(nil)
	if ctx.Matrix == nil {
		t.Error("Matrix should not be nil")
	}

	ctx = NewContext(map[string]string{"toolchain": "stable"})
	if ctx.Matrix["toolchain"] != "stable" {
		t.Error("Matrix should contain provided values")
	}
}

func TestRender(t *testing.T) {
	ctx := NewContext(map[string]string{
		"toolchain":    "nightly",
		"rust-version": "1.80",
	})
	ctx.Job = "nightly"

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"plain text", "cargo build", "cargo build"},
		{"actions expression", "rustup install ${{ matrix.toolchain }}", "rustup install nightly"},
		{"actions expression no spaces", "${{matrix.toolchain}}", "nightly"},
		{"dashed key", "rust ${{ matrix.rust-version }}", "rust 1.80"},
		{"job name", "job=${{ job }}", "job=nightly"},
		{"repeated", "${{ matrix.toolchain }}-${{ matrix.toolchain }}", "nightly-nightly"},
		{"docker format braces", "docker ps --format '{{.Names}}'", "docker ps --format '{{.Names}}'"},
		{"go list braces", "go list -f '{{ .ImportPath }}' ./...", "go list -f '{{ .ImportPath }}' ./..."},
		{"braces next to expression", "echo {{ ${{ matrix.toolchain }} }}", "echo {{ nightly }}"},
		{"unclosed braces", "echo '{{ .Matrix.toolchain'", "echo '{{ .Matrix.toolchain'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRender_Errors(t *testing.T) {
	ctx := NewContext(map[string]string{"toolchain": "stable"})

	tests := []struct {
		name     string
		template string
		wantErr  error
	}{
		{"missing actions key", "${{ matrix.os }}", ErrTemplateRender},
		{"unsupported expression", "${{ secrets.TOKEN }}", ErrTemplateParse},
		{"error after valid expression", "${{ matrix.toolchain }} ${{ github.sha }}", ErrTemplateParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.template, ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRenderMap(t *testing.T) {
	ctx := NewContext(map[string]string{"toolchain": "beta"})

	result, err := RenderMap(map[string]string{
		"version": "${{ matrix.toolchain }}",
		"static":  "value",
	}, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["version"] != "beta" || result["static"] != "value" {
		t.Errorf("unexpected result: %v", result)
	}

	result, err = RenderMap(nil, ctx)
	if err != nil || result != nil {
		t.Errorf("nil map should render to nil, got %v, %v", result, err)
	}
}

func TestRenderStep(t *testing.T) {
	ctx := NewContext(map[string]string{"toolchain": "stable"})
	step := domain.StepDef{
		Name:            "Test on ${{ matrix.toolchain }}",
		Run:             "cargo +${{ matrix.toolchain }} test",
		Env:             map[string]string{"RUSTUP_TOOLCHAIN": "${{ matrix.toolchain }}"},
		WorkingDir:      "build/${{ matrix.toolchain }}",
		ContinueOnError: true,
		TimeoutMinutes:  5,
	}

	out, err := RenderStep(step, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Name != "Test on stable" || out.Run != "cargo +stable test" {
		t.Errorf("unexpected step: %+v", out)
	}
	if out.Env["RUSTUP_TOOLCHAIN"] != "stable" || out.WorkingDir != "build/stable" {
		t.Errorf("env or working dir not rendered: %+v", out)
	}
	if !out.ContinueOnError || out.TimeoutMinutes != 5 {
		t.Error("flags should be preserved")
	}
	if step.Env["RUSTUP_TOOLCHAIN"] != "${{ matrix.toolchain }}" {
		t.Error("source step was mutated")
	}
}

func TestRenderStep_ErrorHasStepContext(t *testing.T) {
	ctx := NewContext(nil)
	step := domain.StepDef{Name: "Build", With: map[string]string{"v": "${{ matrix.missing }}"}}

	_, err := RenderStep(step, ctx)

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	if cfgErr.Step != "Build" || cfgErr.Field != "with" {
		t.Errorf("unexpected context: step=%q field=%q", cfgErr.Step, cfgErr.Field)
	}
}

func TestMustRender(t *testing.T) {
	ctx := NewContext(map[string]string{"a": "b"})

	if got := MustRender("${{ matrix.a }}", ctx); got != "b" {
		t.Errorf("expected b, got %q", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustRender("${{ matrix.zzz }}", ctx)
}
