package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// DefaultCommand is the index generator used when none is configured.
const DefaultCommand = "createrepo"

// IncrementalFlags make the generator reuse existing metadata and trust
// files it already knows.
var IncrementalFlags = []string{"--update", "--skip-stat"}

var ErrFailure = errors.New("indexer failed")

// Indexer regenerates repository metadata for a local tree.
type Indexer interface {
	Generate(ctx context.Context, root string, incremental bool, extraArgs []string) error
}

// Func adapts a function to Indexer.
type Func func(ctx context.Context, root string, incremental bool, extraArgs []string) error

func (f Func) Generate(ctx context.Context, root string, incremental bool, extraArgs []string) error {
	return f(ctx, root, incremental, extraArgs)
}

// Failure reports a generator that could not run or exited non-zero.
type Failure struct {
	ExitCode    int
	CommandLine string
	Err         error
}

func (e *Failure) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("unable to execute '%s': %v", e.CommandLine, e.Err)
	}
	return fmt.Sprintf("indexer returned '%d' executing '%s'", e.ExitCode, e.CommandLine)
}

func (e *Failure) Unwrap() error {
	return e.Err
}

func (e *Failure) Is(target error) bool {
	return target == ErrFailure
}

// ParseFlags splits extra generator options. Only options are accepted, so
// every token must start with "-".
func ParseFlags(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	flags, err := shlex.Split(text)
	if err != nil {
		return nil, fmt.Errorf("parse indexer flags %q: %w", text, err)
	}
	for _, flag := range flags {
		if !strings.HasPrefix(flag, "-") {
			return nil, fmt.Errorf("option %q invalid, you may only provide options, not arguments", flag)
		}
	}
	return flags, nil
}
