package guard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/theRebelliousNerd/evoloop/internal/logging"
)

// DefaultTestTimeout bounds one full test-suite run.
const DefaultTestTimeout = 5 * time.Minute

// defaultTestCommand is used when no test command is configured.
var defaultTestCommand = []string{"go", "test", "./..."}

// Runner executes the repository's own test suite as the gate between
// an applied change and a commit.
type Runner struct {
	root    string
	timeout time.Duration
	command []string
}

// NewRunner creates a test runner for the workspace at root. A zero
// timeout selects DefaultTestTimeout; an empty command selects
// `go test ./...`.
func NewRunner(root string, timeout time.Duration, command string) *Runner {
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	args := strings.Fields(command)
	if len(args) == 0 {
		args = defaultTestCommand
	}
	return &Runner{root: root, timeout: timeout, command: args}
}

// RunUnitTests runs the configured test command and reports
// (passed, report). Only tests that actually ran and failed gate the
// cycle; a missing toolchain or a timed-out run returns passed=true
// with an explanatory report.
func (r *Runner) RunUnitTests(ctx context.Context) (bool, string) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logging.Guard("running test gate: %s", strings.Join(r.command, " "))
	start := time.Now()

	cmd := exec.CommandContext(runCtx, r.command[0], r.command[1:]...)
	cmd.Dir = r.root

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	report := output.String()
	elapsed := time.Since(start).Round(time.Millisecond)

	switch {
	case err == nil:
		logging.Guard("test gate passed in %s", elapsed)
		return true, fmt.Sprintf("tests passed in %s\n%s", elapsed, report)
	case runCtx.Err() == context.DeadlineExceeded:
		logging.GuardWarn("test gate timed out after %s, proceeding", r.timeout)
		return true, fmt.Sprintf("test run timed out after %s (proceeding)", r.timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logging.GuardWarn("test gate failed (exit %d) in %s", exitErr.ExitCode(), elapsed)
			return false, report
		}
		// go binary missing, permission trouble, and similar.
		logging.GuardWarn("test gate could not run: %v (proceeding)", err)
		return true, fmt.Sprintf("test execution error (proceeding): %v", err)
	}
}
