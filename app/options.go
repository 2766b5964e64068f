package app

import (
	"fmt"
	"io"

	"github.com/dutchcoders/log4shell-scanner/archive"
	"github.com/dutchcoders/log4shell-scanner/fingerprint"
	uuid "github.com/nu7hatch/gouuid"
)

type OptionFn func(*scanner) error

// Root sets the directory or archive file to scan.
func Root(p string) (OptionFn, error) {
	if p == "" {
		return nil, fmt.Errorf("empty root path")
	}

	return func(b *scanner) error {
		b.root = p
		return nil
	}, nil
}

// ExcludeList prunes the given directories, matched on their exact
// absolute path. The directories are validated when the scan starts.
func ExcludeList(l []string) (OptionFn, error) {
	return func(b *scanner) error {
		b.excludeList = append(b.excludeList, l...)
		return nil
	}, nil
}

// ExcludePatterns prunes directories whose absolute path matches one of
// the globs.
func ExcludePatterns(l []string) (OptionFn, error) {
	globs, err := archive.CompilePatterns(l)
	if err != nil {
		return nil, err
	}

	return func(b *scanner) error {
		b.excludePatterns = append(b.excludePatterns, globs...)
		return nil
	}, nil
}

// SystemExcludes replaces the pseudo filesystems pruned by default.
func SystemExcludes(l []string) (OptionFn, error) {
	return func(b *scanner) error {
		b.systemExcludes = l
		return nil
	}, nil
}

func NumThreads(n int) (OptionFn, error) {
	if n <= 0 {
		return nil, fmt.Errorf("[!] Number of threads should be at least 1, got %d", n)
	}

	return func(b *scanner) error {
		b.numThreads = n
		return nil
	}, nil
}

// MaxDepth limits the nesting of containers. Negative values disable the
// limit.
func MaxDepth(n int) (OptionFn, error) {
	return func(b *scanner) error {
		b.limits.MaxDepth = n
		return nil
	}, nil
}

// MaxBytes limits the decompressed bytes read per top-level archive. Zero
// disables the limit.
func MaxBytes(n int64) (OptionFn, error) {
	if n < 0 {
		return nil, fmt.Errorf("[!] Maximum bytes should not be negative, got %d", n)
	}

	return func(b *scanner) error {
		b.limits.MaxBytes = n
		return nil
	}, nil
}

func Markers(m fingerprint.Markers) (OptionFn, error) {
	return func(b *scanner) error {
		b.markers = m
		return nil
	}, nil
}

func Extensions(e archive.Extensions) (OptionFn, error) {
	return func(b *scanner) error {
		b.extensions = e
		return nil
	}, nil
}

func LogFile(p string) (OptionFn, error) {
	return func(b *scanner) error {
		w, err := NewWriter(p)
		if err != nil {
			return err
		}

		id, err := uuid.NewV4()
		if err != nil {
			w.Close()
			return err
		}

		w.WriteLine("# scan %s", id.String())

		b.logfile = w
		return nil
	}, nil
}

// Output redirects the diagnosis lines.
func Output(w io.Writer) (OptionFn, error) {
	return func(b *scanner) error {
		b.output = w
		return nil
	}, nil
}

func Quiet() (OptionFn, error) {
	return func(b *scanner) error {
		b.quiet = true
		return nil
	}, nil
}

func Verbose() (OptionFn, error) {
	return func(b *scanner) error {
		b.verbose = true
		return nil
	}, nil
}

func JSON() (OptionFn, error) {
	return func(b *scanner) error {
		b.json = true
		return nil
	}, nil
}

func Progress() (OptionFn, error) {
	return func(b *scanner) error {
		b.progress = true
		return nil
	}, nil
}
