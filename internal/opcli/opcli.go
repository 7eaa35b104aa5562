// Package opcli executes the 1Password CLI (`op`) as a short-lived
// subprocess and converts its exit status, stderr, and stdout into typed
// results. The service-account token travels to the child process through
// the environment only — it never appears in argv and is never logged.
package opcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from runaway output.
	maxOutputBytes = 1 << 20 // 1 MB

	// DefaultTimeout is the hard ceiling for a single op invocation.
	DefaultTimeout = 30 * time.Second

	// killDelay is how long a SIGTERM'd op process gets to exit cleanly
	// before it is killed.
	killDelay = 3 * time.Second

	// tokenEnvVar is the environment variable the op CLI reads the
	// service-account token from.
	tokenEnvVar = "OP_SERVICE_ACCOUNT_TOKEN"
)

// Invoker is the subprocess contract the broker depends on.
// *Runner is the real implementation; tests substitute fakes.
type Invoker interface {
	// Run executes op with the given arguments and returns raw stdout.
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// Config configures the op runner.
type Config struct {
	// Executable is the op binary name or path. Default: "op".
	Executable string

	// Timeout is the per-invocation ceiling. Default: DefaultTimeout.
	Timeout time.Duration
}

// Runner spawns one op process per call and synchronously awaits it.
// Safe for concurrent use: it holds no mutable state.
type Runner struct {
	executable string
	token      string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewRunner creates a Runner holding the service-account token.
func NewRunner(cfg Config, token string, logger *slog.Logger) *Runner {
	executable := cfg.Executable
	if executable == "" {
		executable = "op"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		executable: executable,
		token:      token,
		timeout:    timeout,
		logger:     logger,
	}
}

// Run executes op with the given arguments.
//
// Behavior:
//   - appends "--format json" unless the caller already requested a format
//   - stdin is connected to /dev/null so op can never block on a prompt
//   - the token is injected via OP_SERVICE_ACCOUNT_TOKEN
//   - on timeout the process receives SIGTERM, then SIGKILL after killDelay,
//     and the call fails with *CommandError carrying TimeoutExitCode
//   - non-zero exits are classified into the typed error taxonomy by stderr
func (r *Runner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if !hasFormatFlag(args) {
		args = append(args, "--format", "json")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.executable, args...)

	// A nil Stdin connects the child to /dev/null. op must never find an
	// interactive terminal to prompt on.
	cmd.Stdin = nil

	// Inherit the environment and append the token last so it wins over
	// any value already present.
	cmd.Env = append(os.Environ(), tokenEnvVar+"="+r.token)

	// Graceful termination on timeout/cancel: SIGTERM first, SIGKILL if
	// the process is still around after killDelay.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	// Create-path argv carries plaintext field assignments, so only the
	// leading op verbs are ever logged.
	verb := CommandVerb(args)
	r.logger.Debug("op executing",
		slog.String("verb", verb),
		slog.Duration("timeout", r.timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			r.logger.Warn("op timed out",
				slog.String("verb", verb),
				slog.Duration("timeout", r.timeout),
			)
			return nil, &CommandError{
				Message:  fmt.Sprintf("op command timed out after %s", r.timeout),
				ExitCode: TimeoutExitCode,
			}
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, &CommandError{
				Message:  "op command canceled",
				ExitCode: TimeoutExitCode,
			}
		case errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist):
			return nil, &CommandError{
				Message: fmt.Sprintf(
					"op executable %q not found: install the 1Password CLI and make sure it is on PATH",
					r.executable),
				ExitCode: TimeoutExitCode,
			}
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			err := classifyExit(stderrBuf.String(), exitErr.ExitCode())
			r.logger.Debug("op exited non-zero",
				slog.String("verb", verb),
				slog.Int("exit_code", exitErr.ExitCode()),
				slog.Duration("duration", duration),
			)
			return nil, err
		}

		return nil, &CommandError{
			Message:  fmt.Sprintf("op command failed to start: %v", runErr),
			ExitCode: TimeoutExitCode,
		}
	}

	r.logger.Debug("op completed",
		slog.String("verb", verb),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", stdoutBuf.Len()),
	)

	return stdoutBuf.Bytes(), nil
}

// RunJSON executes op through the given invoker and decodes stdout into T.
// A decode failure means op behaved inconsistently (exit 0 with malformed
// output) and is reported as a *CommandError with exit code 0.
func RunJSON[T any](ctx context.Context, inv Invoker, args ...string) (T, error) {
	var out T

	stdout, err := inv.Run(ctx, args...)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(stdout, &out); err != nil {
		return out, &CommandError{
			Message:  fmt.Sprintf("op returned malformed JSON output: %v", err),
			ExitCode: 0,
		}
	}
	return out, nil
}

// hasFormatFlag reports whether args already request an output format.
func hasFormatFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--format" || strings.HasPrefix(arg, "--format=") {
			return true
		}
	}
	return false
}

// CommandVerb returns the leading non-flag arguments (e.g. "item get"),
// which are safe to log and to use as metric labels.
func CommandVerb(args []string) string {
	verbs := make([]string, 0, 2)
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			break
		}
		verbs = append(verbs, arg)
		if len(verbs) == 2 {
			break
		}
	}
	return strings.Join(verbs, " ")
}

// limitedWriter stops writing after a byte limit; excess is discarded.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil
	}
	if len(p) > lw.remaining {
		p = p[:lw.remaining]
	}
	n, err := lw.w.Write(p)
	lw.remaining -= n
	return n, err
}

var _ Invoker = (*Runner)(nil)
