package archive

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

// Candidate is a file found by the directory walk. Err is set when the
// walk itself failed at Path; such candidates carry no file to scan.
type Candidate struct {
	Path string
	Rel  string

	Err error
}

// ExcludeSet holds absolute, cleaned directory paths that are pruned from
// the walk on exact match.
type ExcludeSet map[string]struct{}

func NewExcludeSet(paths ...string) (ExcludeSet, error) {
	s := ExcludeSet{}

	for _, p := range paths {
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s ExcludeSet) Add(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return err
	}

	s[filepath.Clean(abs)] = struct{}{}
	return nil
}

func (s ExcludeSet) Has(p string) bool {
	_, ok := s[filepath.Clean(p)]
	return ok
}

func (s ExcludeSet) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}

	return paths
}

// CompilePatterns compiles directory exclusion globs, matched against
// absolute slash separated paths.
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))

	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}

		globs = append(globs, g)
	}

	return globs, nil
}

func IsExcluded(p string, l []glob.Glob) bool {
	p = filepath.ToSlash(p)

	for _, g := range l {
		if g.Match(p) {
			return true
		}
	}

	return false
}

type DirectoryReader struct {
	p           string
	excludeList ExcludeSet
	patterns    []glob.Glob
	extensions  Extensions
}

func NewDirectoryReader(p string, excludeList ExcludeSet, patterns []glob.Glob, extensions Extensions) (*DirectoryReader, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, err
	}

	if excludeList == nil {
		excludeList = ExcludeSet{}
	}

	return &DirectoryReader{
		p:           abs,
		excludeList: excludeList,
		patterns:    patterns,
		extensions:  extensions,
	}, nil
}

func (za *DirectoryReader) excluded(p string) bool {
	return za.excludeList.Has(p) || IsExcluded(p, za.patterns)
}

// Walk yields every candidate container below the root. A root that is a
// file is yielded as the only candidate with an empty relative path. The
// channel is closed when the walk is done or ctx is cancelled.
func (za *DirectoryReader) Walk(ctx context.Context) <-chan Candidate {
	ch := make(chan Candidate)

	send := func(c Candidate) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)

		fi, err := os.Stat(za.p)
		if err != nil {
			send(Candidate{Path: za.p, Err: err})
			return
		}

		if !fi.IsDir() {
			if za.extensions.Accept(fi.Name()) {
				send(Candidate{Path: za.p, Rel: ""})
			}
			return
		}

		err = filepath.WalkDir(za.p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !send(Candidate{Path: path, Err: err}) {
					return ctx.Err()
				}
				return nil
			}

			if d.IsDir() {
				if path != za.p && za.excluded(path) {
					return filepath.SkipDir
				}
				return nil
			}

			if !za.extensions.Accept(d.Name()) {
				return nil
			}

			if !za.regular(path, d) {
				return nil
			}

			rel, err := filepath.Rel(za.p, path)
			if err != nil {
				rel = path
			}

			if !send(Candidate{Path: path, Rel: rel}) {
				return ctx.Err()
			}

			return nil
		})

		if err != nil && ctx.Err() == nil {
			send(Candidate{Path: za.p, Err: err})
		}
	}()

	return ch
}

// symlinks are followed for files only
func (za *DirectoryReader) regular(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}

	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}

	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
