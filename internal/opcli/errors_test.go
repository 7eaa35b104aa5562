package opcli

import (
	"errors"
	"testing"
)

func TestClassifyExit(t *testing.T) {
	tests := []struct {
		name     string
		stderr   string
		exitCode int
		want     any
	}{
		{"no item found", "no item found", 1, &NotFoundError{}},
		{"mixed case", "[ERROR] No Item Found for query", 1, &NotFoundError{}},
		{"unauthorized", "401 Unauthorized", 1, &AuthenticationError{}},
		{"invalid session", "invalid session token provided", 1, &AuthenticationError{}},
		{"fallback", "something exploded", 7, &CommandError{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyExit(tc.stderr, tc.exitCode)

			switch tc.want.(type) {
			case *NotFoundError:
				var nf *NotFoundError
				if !errors.As(err, &nf) {
					t.Fatalf("classifyExit(%q) = %T, want *NotFoundError", tc.stderr, err)
				}
			case *AuthenticationError:
				var ae *AuthenticationError
				if !errors.As(err, &ae) {
					t.Fatalf("classifyExit(%q) = %T, want *AuthenticationError", tc.stderr, err)
				}
			case *CommandError:
				var ce *CommandError
				if !errors.As(err, &ce) {
					t.Fatalf("classifyExit(%q) = %T, want *CommandError", tc.stderr, err)
				}
				if ce.ExitCode != tc.exitCode {
					t.Errorf("ExitCode = %d, want %d", ce.ExitCode, tc.exitCode)
				}
			}
		})
	}
}

func TestCommandErrorMessage(t *testing.T) {
	err := &CommandError{Message: "op command failed", Stderr: "disk full", ExitCode: 3}
	want := "op command failed (exit code 3): disk full"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	timeout := &CommandError{Message: "op command timed out after 30s", ExitCode: TimeoutExitCode}
	if got := timeout.Error(); got != "op command timed out after 30s (exit code -1)" {
		t.Errorf("Error() = %q", got)
	}
}
