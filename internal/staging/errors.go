package staging

import (
	"errors"
	"fmt"
)

var (
	ErrLocalIO = errors.New("local io error")
	ErrLocked  = errors.New("staging directory locked by another process")
	ErrExists  = errors.New("file already exists in repository")
)

// LocalIOError reports a failed operation on the staging tree. A run that
// hits one is left with an inconsistent working copy.
type LocalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}

func (e *LocalIOError) Is(target error) bool {
	return target == ErrLocalIO
}
