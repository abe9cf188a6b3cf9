package scope

import (
	"context"

	"github.com/orneryd/graphsession/pkg/element"
)

// State is the constraint on element states a Scope can hold.
type State[S any] interface {
	element.Value[S]
	Labels() []string
}

// Command is one remote statement built by a StatementFactory: the action it
// performs, its query text and its parameters.
type Command struct {
	Action element.Action
	Text   string
	Params map[string]any
}

// Filter selects ids in RemoteElementHandler.QueryIDs. An empty Label means
// every label. Vertex and Direction are only set for adjacency queries on an
// edge handler: they restrict the result to edges incident to Vertex.
type Filter struct {
	Label     string
	Vertex    element.ID
	Direction element.Direction
}

// RemoteElementHandler executes reads and commands against the remote store.
// Every method may block on I/O and may fail; failures are returned to the
// caller unchanged.
type RemoteElementHandler[S any] interface {
	// GetAll loads the given ids. Missing ids are absent from the result,
	// which is not an error.
	GetAll(ctx context.Context, ids []element.ID) (map[element.ID]S, error)
	// Create runs an insert command and returns the id the store assigned.
	Create(ctx context.Context, cmd *Command, state S) (element.ID, error)
	// Update runs an update command.
	Update(ctx context.Context, cmd *Command, id element.ID, committed, current S) error
	// Delete runs a delete command.
	Delete(ctx context.Context, cmd *Command, id element.ID) error
	// QueryIDs returns every id matching filter.
	QueryIDs(ctx context.Context, filter Filter) ([]element.ID, error)
}

// StatementFactory turns a (committed, current) pair into the remote command
// owed for it, choosing insert, update or delete from current's sync state.
// It returns false when nothing is owed. Implementations must be pure.
type StatementFactory[S element.Value[S]] interface {
	Statement(id element.ID, committed, current *element.StateHolder[S]) (*Command, bool)
}

// StatementFunc adapts a function to StatementFactory.
type StatementFunc[S element.Value[S]] func(id element.ID, committed, current *element.StateHolder[S]) (*Command, bool)

// Statement calls f.
func (f StatementFunc[S]) Statement(id element.ID, committed, current *element.StateHolder[S]) (*Command, bool) {
	return f(id, committed, current)
}
