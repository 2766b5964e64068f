package app

import "fmt"

// UsageError is an invalid invocation, detected before scanning starts.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func usageErrorf(format string, args ...interface{}) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// FilesystemError is a candidate that could not be read from disk.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return e.Err.Error()
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
