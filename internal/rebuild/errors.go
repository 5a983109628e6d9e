package rebuild

import (
	"errors"
	"fmt"

	"github.com/openmined/s3repo/internal/repoaddr"
)

var ErrRepositoryNotFound = errors.New("repository not found")

// RepositoryNotFoundError is returned when the target holds no index and
// creating a repository was not allowed, or its bucket does not exist.
type RepositoryNotFoundError struct {
	Repo   repoaddr.Address
	Reason string
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("refusing to continue with %s: %s", e.Repo, e.Reason)
}

func (e *RepositoryNotFoundError) Is(target error) bool {
	return target == ErrRepositoryNotFound
}
