package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreadablePath reports an I/O failure while reading a file or directory.
	ErrUnreadablePath = errors.New("unreadable path")

	// ErrUnsupportedStructure reports a structural misuse: nested roots,
	// children under a non-directory, or a kind mismatch at an existing path.
	ErrUnsupportedStructure = errors.New("unsupported structure")

	// ErrUnsupportedOperation reports a branch that is deliberately not implemented.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// PathError records a failed operation together with the offending path.
// errors.Is matches it against its Kind sentinel as well as the wrapped cause.
type PathError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *PathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *PathError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unreadable wraps err as an ErrUnreadablePath for path.
func Unreadable(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Kind: ErrUnreadablePath, Err: err}
}

// Unsupported builds an ErrUnsupportedStructure error for path.
func Unsupported(op, path, format string, args ...any) error {
	return &PathError{Op: op, Path: path, Kind: ErrUnsupportedStructure, Err: fmt.Errorf(format, args...)}
}
