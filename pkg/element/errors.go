package element

import "errors"

var (
	// ErrDeleted is returned when reading through or mutating an element that
	// was removed in the current session.
	ErrDeleted = errors.New("element has been deleted")
	// ErrInvalidDirection is returned for a direction outside Out, In and Both.
	ErrInvalidDirection = errors.New("invalid edge direction")
)
