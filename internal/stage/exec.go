package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	changedPathsEnv = "DRIFTWATCH_CHANGED_PATHS"
	maxMessageLen   = 512
)

// ExecStage shells out to an external tool. The target locator is appended
// as the final argument and the changed-path hints are passed through
// DRIFTWATCH_CHANGED_PATHS so incremental tools can use them.
type ExecStage struct {
	name    string
	command []string
	dir     string
}

func NewExecStage(name string, command []string) (*ExecStage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("exec stage: name is required")
	}
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("exec stage %s: command is required", name)
	}
	return &ExecStage{name: name, command: append([]string(nil), command...)}, nil
}

// SetDir overrides the working directory; by default the stage runs in the
// process working directory.
func (s *ExecStage) SetDir(dir string) {
	s.dir = dir
}

func (s *ExecStage) Name() string {
	return s.name
}

func (s *ExecStage) Run(ctx context.Context, req Request) Result {
	args := append(append([]string(nil), s.command[1:]...), req.Locator)
	cmd := exec.CommandContext(ctx, s.command[0], args...)
	cmd.Dir = s.dir
	cmd.Env = append(os.Environ(), changedPathsEnv+"="+strings.Join(req.ChangedPaths, ","))

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{OK: false, Message: fmt.Sprintf("%s: %v", s.name, ctxErr)}
		}
		return Result{OK: false, Message: tailMessage(fmt.Sprintf("%s: %v: %s", s.name, err, output))}
	}
	return Result{OK: true, Message: tailMessage(strings.TrimSpace(string(output)))}
}

func tailMessage(message string) string {
	message = strings.TrimSpace(message)
	if len(message) <= maxMessageLen {
		return message
	}
	return "..." + message[len(message)-maxMessageLen:]
}
