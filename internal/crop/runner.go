package crop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// Output is what an external command produced. A non-zero ExitCode is not an error by itself.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner launches external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec. The process is killed when ctx is cancelled.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("Running %s %v", name, args)
	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("launching %s: %w", name, err)
	}
	return out, nil
}
