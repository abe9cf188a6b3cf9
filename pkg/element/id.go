// Package element holds the value types a session keeps in memory for one
// graph element: identifiers, synchronization states, the immutable vertex and
// edge states, adjacency references and the state holders that pair a
// committed view with the current one.
package element

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// IDKind distinguishes ids assigned by the remote store from ids generated
// locally for elements that have not been inserted yet.
type IDKind uint8

const (
	// KindPersistent ids are assigned by the remote store and are stable.
	KindPersistent IDKind = iota + 1
	// KindTransient ids are unique within this process only.
	KindTransient
)

// ID identifies a graph element. The zero value is not a valid id.
//
// IDs are comparable and hash by (kind, value), so a transient id never equals
// a persistent one carrying the same number.
type ID struct {
	kind  IDKind
	value int64
}

var transientSeq atomic.Int64

// Persistent returns the id of an element stored remotely under value.
func Persistent(value int64) ID {
	return ID{kind: KindPersistent, value: value}
}

// NewTransientID returns a fresh process-unique transient id.
func NewTransientID() ID {
	return ID{kind: KindTransient, value: transientSeq.Add(1)}
}

// Kind reports whether the id is persistent or transient.
func (id ID) Kind() IDKind { return id.kind }

// Value returns the numeric part of the id.
func (id ID) Value() int64 { return id.value }

// IsPersistent reports whether the id was assigned by the remote store.
func (id ID) IsPersistent() bool { return id.kind == KindPersistent }

// IsTransient reports whether the id was generated locally.
func (id ID) IsTransient() bool { return id.kind == KindTransient }

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id.kind == 0 }

// String renders persistent ids as their number and transient ids as "t:<n>".
func (id ID) String() string {
	switch id.kind {
	case KindPersistent:
		return strconv.FormatInt(id.value, 10)
	case KindTransient:
		return "t:" + strconv.FormatInt(id.value, 10)
	default:
		return "<nil>"
	}
}

// ParseID parses the String form of an id.
func ParseID(s string) (ID, error) {
	kind := KindPersistent
	if len(s) > 2 && s[:2] == "t:" {
		kind = KindTransient
		s = s[2:]
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("invalid element id %q: %w", s, err)
	}
	return ID{kind: kind, value: v}, nil
}
