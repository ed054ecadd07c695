// Package pak bridges the console to the external pak command-line tool. The
// bridge is a narrow synchronous port: run a command in a working directory
// with a hard timeout and return exit code, stdout, and stderr. Output parsing
// is kept to line splitting; anything richer belongs in pak itself.
package pak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/pak-sh/pakweb/internal/config"
	"github.com/pak-sh/pakweb/internal/telemetry"
)

// ErrTimeout is returned when a pak command exceeds its deadline. Callers can
// tell a hung tool apart from a tool that ran and failed.
var ErrTimeout = errors.New("pak command timed out")

// Result is the outcome of one pak invocation.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Runner executes the pak binary
type Runner struct {
	bin     string
	rootDir string
	timeout time.Duration
}

// NewRunner creates a Runner from config
func NewRunner(cfg config.PakConfig) *Runner {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &Runner{bin: cfg.Bin, rootDir: cfg.RootDir, timeout: timeout}
}

// Execute runs one pak command in cwd (the configured root when empty) and
// waits for it to finish, up to the configured timeout. A non-zero exit is not
// an error; it is reported in the Result. The process is killed on timeout.
func (r *Runner) Execute(ctx context.Context, args []string, cwd string) (*Result, error) {
	if len(args) == 0 {
		return nil, errors.New("no command given")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, args...)
	if cwd == "" {
		cwd = r.rootDir
	}
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "PAK_QUIET_MODE=true")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	telemetry.PakCommandDuration.WithLabelValues(args[0]).Observe(time.Since(start).Seconds())

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s: pak %s", ErrTimeout, r.timeout, args[0])
	}

	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to run pak: %w", err)
	}
	return result, nil
}
