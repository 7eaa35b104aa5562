package opcli

import (
	"fmt"
	"strings"
)

// TimeoutExitCode is the sentinel exit code reported when the op process
// was terminated because it exceeded the execution ceiling.
const TimeoutExitCode = -1

// NotFoundError indicates the referenced vault or item does not exist or
// is not accessible to the service account.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AuthenticationError indicates the service account token was rejected or
// the op session is invalid.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// CommandError is a process-level failure: timeout, missing executable,
// a non-zero exit with unrecognized stderr, or malformed stdout.
type CommandError struct {
	Message  string
	Stderr   string
	ExitCode int
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit code %d): %s", e.Message, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s (exit code %d)", e.Message, e.ExitCode)
}

// notFoundMarkers and authMarkers are matched case-insensitively against
// stderr. The op CLI does not expose structured error codes, so substring
// classification at this boundary is the only classification that happens;
// errors are never re-classified downstream.
var (
	notFoundMarkers = []string{
		"not found",
		"no item found",
		"isn't an item",
	}
	authMarkers = []string{
		"authentication",
		"unauthorized",
		"invalid session",
		"invalid token",
		"not signed in",
	}
)

// classifyExit converts a non-zero op exit into one of the three typed
// errors based on stderr content.
func classifyExit(stderr string, exitCode int) error {
	lower := strings.ToLower(stderr)

	for _, marker := range notFoundMarkers {
		if strings.Contains(lower, marker) {
			return &NotFoundError{Message: strings.TrimSpace(stderr)}
		}
	}
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return &AuthenticationError{Message: strings.TrimSpace(stderr)}
		}
	}
	return &CommandError{
		Message:  "op command failed",
		Stderr:   strings.TrimSpace(stderr),
		ExitCode: exitCode,
	}
}
