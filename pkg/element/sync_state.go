package element

import "fmt"

// SyncState describes what, if anything, an element owes the remote store.
//
// Transient and Discarded elements have no remote counterpart; Modified,
// Deleted and Synchronous ones exist remotely.
type SyncState uint8

const (
	Transient SyncState = iota + 1
	Modified
	Deleted
	Synchronous
	Discarded
)

// Action is the remote work owed by an element at commit time.
type Action uint8

const (
	ActionNone Action = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

// InvalidStateError is the panic value raised when a transition is requested
// for a value outside the five defined states.
type InvalidStateError struct {
	State SyncState
	Op    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("element: %s is undefined for sync state %d", e.Op, uint8(e.State))
}

func (s SyncState) invalid(op string) {
	panic(&InvalidStateError{State: s, Op: op})
}

// AsModified returns the state after a local value change.
func (s SyncState) AsModified() SyncState {
	switch s {
	case Transient:
		return Transient
	case Modified, Synchronous:
		return Modified
	case Deleted:
		return Deleted
	case Discarded:
		return Discarded
	}
	s.invalid("AsModified")
	return 0
}

// AsDeleted returns the state after a local delete.
func (s SyncState) AsDeleted() SyncState {
	switch s {
	case Transient, Discarded:
		return Discarded
	case Modified, Synchronous, Deleted:
		return Deleted
	}
	s.invalid("AsDeleted")
	return 0
}

// AsSynchronized returns the state once the owed action has been applied
// remotely.
func (s SyncState) AsSynchronized() SyncState {
	switch s {
	case Transient, Modified, Synchronous:
		return Synchronous
	case Deleted, Discarded:
		return Discarded
	}
	s.invalid("AsSynchronized")
	return 0
}

// Action returns the remote action owed at commit.
func (s SyncState) Action() Action {
	switch s {
	case Transient:
		return ActionInsert
	case Modified:
		return ActionUpdate
	case Deleted:
		return ActionDelete
	case Synchronous, Discarded:
		return ActionNone
	}
	s.invalid("Action")
	return 0
}

// Exists reports whether an element in this state has a remote counterpart.
func (s SyncState) Exists() bool {
	switch s {
	case Modified, Deleted, Synchronous:
		return true
	case Transient, Discarded:
		return false
	}
	s.invalid("Exists")
	return false
}

// Removed reports whether the element is gone from the session's view.
func (s SyncState) Removed() bool {
	return s == Deleted || s == Discarded
}

func (s SyncState) String() string {
	switch s {
	case Transient:
		return "transient"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Synchronous:
		return "synchronous"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("SyncState(%d)", uint8(s))
	}
}

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}
