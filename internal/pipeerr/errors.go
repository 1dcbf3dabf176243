// Package pipeerr defines the error taxonomy shared by the pipe engine,
// the transport, and the mount surface.
package pipeerr

import "errors"

// Sentinel errors surfaced to callers. Wrap with fmt.Errorf("%w: ...") for
// context; callers should compare with errors.Is, never string matching.
var (
	// ErrInval is returned for invalid arguments, e.g. opening O_RDWR.
	ErrInval = errors.New("invalid argument")

	// ErrPerm is returned when a mode conflicts with the pipe's existing
	// opener. Registry lookups never return it: a miss is reported by the
	// lookup's ok result.
	ErrPerm = errors.New("operation not permitted")

	// ErrAgain is returned when a non-blocking call could make no progress.
	ErrAgain = errors.New("resource temporarily unavailable")

	// ErrPipe is returned for writes to a reader-less pipe and for waiters
	// unblocked by force exit during a data operation.
	ErrPipe = errors.New("broken pipe")

	// ErrNoEnt is returned when open races with a forced exit.
	ErrNoEnt = errors.New("no such file or directory")

	// ErrConnReset is returned when the transport fails mid-frame.
	ErrConnReset = errors.New("connection reset by peer")
)

// Op annotates an error with the operation and path it occurred on,
// preserving errors.Is/errors.Unwrap compatibility with the sentinels above.
type Op struct {
	Op   string
	Path string
	Err  error
}

func (e *Op) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Op) Unwrap() error { return e.Err }

// Wrap annotates err with the operation and path that produced it.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Op{Op: op, Path: path, Err: err}
}
