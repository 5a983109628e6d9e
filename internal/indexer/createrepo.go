package indexer

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
)

// Createrepo runs createrepo, or a compatible tool, as a subprocess.
type Createrepo struct {
	Command string
	Flags   []string
}

func NewCreaterepo(command string, flags []string) *Createrepo {
	if command == "" {
		command = DefaultCommand
	}
	return &Createrepo{Command: command, Flags: flags}
}

// Args returns the arguments for one invocation. The root is always last.
func (c *Createrepo) Args(root string, incremental bool, extraArgs []string) []string {
	args := make([]string, 0, len(c.Flags)+len(extraArgs)+len(IncrementalFlags)+1)
	args = append(args, c.Flags...)
	args = append(args, extraArgs...)
	if incremental {
		args = append(args, IncrementalFlags...)
	}
	return append(args, root)
}

// Generate runs the tool against root. Stdout is discarded and every stderr
// line is logged as a warning.
func (c *Createrepo) Generate(ctx context.Context, root string, incremental bool, extraArgs []string) error {
	args := c.Args(root, incremental, extraArgs)
	commandLine := strings.Join(append([]string{c.Command}, args...), " ")

	stderr := newLineLogger(c.Command)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Stdout = nil
	cmd.Stderr = stderr

	slog.Info("indexer executing", "cmd", commandLine)
	err := cmd.Run()
	stderr.Flush()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Failure{ExitCode: exitErr.ExitCode(), CommandLine: commandLine, Err: err}
		}
		return &Failure{ExitCode: -1, CommandLine: commandLine, Err: err}
	}

	slog.Info("indexer finished", "root", root, "incremental", incremental)
	return nil
}

var _ Indexer = (*Createrepo)(nil)
