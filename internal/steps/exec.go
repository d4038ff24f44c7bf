package steps

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// maxOutput — сколько байт вывода команды хранится в результате.
const maxOutput = 1 << 20

// waitDelay — сколько ждать закрытия pipe'ов после завершения процесса.
const waitDelay = 5 * time.Second

// Command — внешняя команда.
type Command struct {
	Name   string
	Args   []string
	Dir    string
	Env    []string
	Stream io.Writer
}

// Result — результат внешней команды.
type Result struct {
	// Output — объединённый stdout/stderr (обрезается до maxOutput).
	Output string

	// ExitCode — код возврата, -1 если процесс не запустился.
	ExitCode int

	// Err — ошибка запуска или отмены. Ненулевой exit code ошибкой не считается.
	Err error
}

// Runner запускает внешние команды. Подменяется в тестах.
type Runner func(ctx context.Context, cmd Command) Result

// ExecRunner запускает команду через os/exec.
func ExecRunner(ctx context.Context, c Command) Result {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = waitDelay

	out := &limitedBuffer{limit: maxOutput}
	var w io.Writer = out
	if c.Stream != nil {
		w = io.MultiWriter(out, c.Stream)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()

	res := Result{Output: out.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = contextError(ctx)
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

// limitedBuffer хранит первые limit байт и молча отбрасывает остальное.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]\n"
	}
	return b.buf.String()
}
