package partition

import "fmt"

// FilesystemError is returned for any failure touching the data root. The
// data root is expected to be reliable, so callers treat it as fatal.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

func fsError(op, path string, err error) error {
	return &FilesystemError{Op: op, Path: path, Err: err}
}
