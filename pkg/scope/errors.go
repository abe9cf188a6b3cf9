package scope

import (
	"errors"
	"fmt"

	"github.com/orneryd/graphsession/pkg/element"
)

var (
	// ErrNotFound is returned when an element is neither in the working set
	// nor in the remote store.
	ErrNotFound = errors.New("element not found")
	// ErrMalformedResult is returned when the remote store answers in a shape
	// that cannot be interpreted, such as an insert without a persistent id.
	ErrMalformedResult = errors.New("malformed remote result")
	// ErrNoStatement is returned when an insert is owed but the statement
	// factory produced no command.
	ErrNoStatement = errors.New("no statement built for owed insert")
)

// CommitError reports the element whose remote command failed during a
// commit. Elements committed before it stay committed; it and every element
// after it keep their pre-commit state.
type CommitError struct {
	Kind   string
	ID     element.ID
	Action element.Action
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s %s (%s): %v", e.Kind, e.ID, e.Action, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
