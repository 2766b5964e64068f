// Package archive lists and opens the entries of zip-family and tar-family
// containers, and walks directory trees for candidate containers.
package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEncrypted = errors.New("encrypted entry")
	ErrEmpty     = errors.New("empty archive")
)

// Kind is the container family of a file, derived from its name.
type Kind int

const (
	KindNone Kind = iota
	KindZip
	KindTar
)

func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindTar:
		return "tar"
	default:
		return "none"
	}
}

// Extensions are the name suffixes of each container family. Matching is
// case-sensitive.
type Extensions struct {
	Zip []string
	Tar []string
}

func DefaultExtensions() Extensions {
	return Extensions{
		Zip: []string{".jar", ".war", ".sar", ".ear", ".par", ".zip"},
		Tar: []string{".tar", ".tar.gz"},
	}
}

// KindOf is the single dispatch point from a name to a container family.
func (e Extensions) KindOf(name string) Kind {
	for _, ext := range e.Zip {
		if strings.HasSuffix(name, ext) {
			return KindZip
		}
	}

	for _, ext := range e.Tar {
		if strings.HasSuffix(name, ext) {
			return KindTar
		}
	}

	return KindNone
}

func (e Extensions) Accept(name string) bool {
	return e.KindOf(name) != KindNone
}

type ArchiveFile interface {
	Name() string
	IsRegular() bool
	// Compressed reports whether Open decompresses the entry.
	Compressed() bool
	Open() (io.ReadCloser, error)
}

// WalkFunc is called for every entry in listing order. An entry can only be
// opened during the call. Returning an error stops the walk.
type WalkFunc func(ArchiveFile) error

type ArchiveReader interface {
	Walk(fn WalkFunc) error
	Close() error
}

type ArchiveError struct {
	p string

	Err error
}

func (ae *ArchiveError) Error() string {
	if ae.p == "" {
		return ae.Err.Error()
	}

	return fmt.Sprintf("%s: %s", ae.p, ae.Err.Error())
}

func (ae *ArchiveError) Unwrap() error {
	return ae.Err
}

// Path is the entry the error occurred at, if any.
func (ae *ArchiveError) Path() string {
	return ae.p
}
