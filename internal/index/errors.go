package index

import (
	"errors"
	"fmt"
)

// Error kinds. A *NodeError wraps exactly one of these; use errors.Is to
// branch on the kind and errors.As to recover the path.
var (
	ErrRemoteFetch = errors.New("index: remote fetch failed")
	ErrDecode      = errors.New("index: node record unreadable")
	ErrStorage     = errors.New("index: cache write failed")
	ErrCanceled    = errors.New("index: canceled")
)

// NodeError reports a failure at one node of the tree.
type NodeError struct {
	Kind error  // one of the Err* kinds above
	Path string // full path of the node being processed; "" is the root
	Err  error  // underlying cause
}

func (e *NodeError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}

	return fmt.Sprintf("%v at %s: %v", e.Kind, path, e.Err)
}

// Unwrap exposes both the kind and the cause, so errors.Is matches either
// index.ErrStorage or, say, context.Canceled.
func (e *NodeError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func nodeErr(kind error, path string, err error) *NodeError {
	return &NodeError{Kind: kind, Path: path, Err: err}
}
