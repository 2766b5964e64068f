// Package inspect walks one top-level container and its nested containers,
// fingerprinting and diagnosing every layer on the way.
package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dutchcoders/log4shell-scanner/archive"
	"github.com/dutchcoders/log4shell-scanner/diagnosis"
	"github.com/dutchcoders/log4shell-scanner/fingerprint"
	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("log4shell/inspect")

const (
	// DefaultMaxDepth is the number of nested container levels opened below
	// a top-level candidate.
	DefaultMaxDepth = 16
	// DefaultMaxBytes is the number of decompressed entry bytes read per
	// top-level candidate.
	DefaultMaxBytes = 4 << 30
)

var (
	ErrMaxDepth = errors.New("maximum nesting depth exceeded")
	ErrMaxBytes = errors.New("maximum decompressed size exceeded")
)

// ContainerOpenError is an unreadable or malformed container at Path.
type ContainerOpenError struct {
	Path string
	Err  error
}

func (e *ContainerOpenError) Error() string {
	return e.Err.Error()
}

func (e *ContainerOpenError) Unwrap() error {
	return e.Err
}

// Handler receives the results of an inspection. Calls for one candidate
// are made from a single goroutine.
type Handler interface {
	Diagnosis(path string, d diagnosis.Diagnosis)
	Warning(path string, msg string)
	Error(path string, err error)
}

// Limits bound the work done for one top-level candidate. A MaxDepth of 0
// opens the candidate but none of its nested containers; a negative
// MaxDepth or a MaxBytes <= 0 disables the respective limit.
//
// MaxBytes counts the bytes read out of container entries. Bytes are counted
// once, by the innermost reader consuming them, and stored entries of a zip
// that is already held in memory are not counted again.
type Limits struct {
	MaxDepth int
	MaxBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxDepth: DefaultMaxDepth,
		MaxBytes: DefaultMaxBytes,
	}
}

type Inspector struct {
	extractor  *fingerprint.Extractor
	extensions archive.Extensions
	limits     Limits
}

type OptionFn func(*Inspector)

func WithLimits(l Limits) OptionFn {
	return func(i *Inspector) {
		i.limits = l
	}
}

func WithExtensions(e archive.Extensions) OptionFn {
	return func(i *Inspector) {
		i.extensions = e
	}
}

func New(extractor *fingerprint.Extractor, options ...OptionFn) *Inspector {
	i := &Inspector{
		extractor:  extractor,
		extensions: archive.DefaultExtensions(),
		limits:     DefaultLimits(),
	}

	for _, fn := range options {
		fn(i)
	}

	return i
}

func (i *Inspector) Extensions() archive.Extensions {
	return i.extensions
}

// InspectFile inspects the container at path, reporting layers under label.
// The container family is taken from path, so label may be empty. The
// returned error is the failure of the top-level container itself; failures
// of nested containers are passed to h and do not abort the inspection.
func (i *Inspector) InspectFile(path, label string, h Handler) error {
	kind := i.extensions.KindOf(path)
	if kind == archive.KindNone {
		return fmt.Errorf("%s: not a recognized archive", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer f.Close()

	w := i.newWalk(h)

	switch kind {
	case archive.KindZip:
		fi, err := f.Stat()
		if err != nil {
			return err
		}

		return w.zip(f, fi.Size(), label, 0, false)
	default:
		return w.tar(f, label, 0)
	}
}

// InspectStream inspects a container read from r. Zip-family streams are
// buffered in memory, subject to the byte limit.
func (i *Inspector) InspectStream(r io.Reader, label string, kind archive.Kind, h Handler) error {
	w := i.newWalk(h)

	switch kind {
	case archive.KindZip:
		buf, err := io.ReadAll(w.limit(r))
		if err != nil {
			return w.containerError(label, err)
		}

		return w.zip(bytes.NewReader(buf), int64(len(buf)), label, 0, true)
	case archive.KindTar:
		return w.tar(r, label, 0)
	}

	return fmt.Errorf("%s: unsupported container kind %s", label, kind)
}

// InspectImage inspects an image export as written by docker save. Layers
// stored as content addressed blobs carry no extension, so members under
// blobs/ are recognized by their leading bytes.
func (i *Inspector) InspectImage(r io.Reader, label string, h Handler) error {
	w := i.newWalk(h)
	w.image = true

	return w.tar(r, label, 0)
}

// walk is the state of a single top-level inspection.
type walk struct {
	*Inspector

	h Handler

	read      int64
	exhausted bool
	counting  bool

	image bool
}

func (i *Inspector) newWalk(h Handler) *walk {
	return &walk{Inspector: i, h: h}
}

// zip walks a zip layer. buffered is set when ra is held in memory.
func (w *walk) zip(ra io.ReaderAt, size int64, label string, depth int, buffered bool) error {
	zr, err := archive.NewZipArchiveReader(ra, size)
	if err != nil {
		return w.containerError(label, err)
	}

	defer zr.Close()

	return w.layer(zr, label, depth, buffered)
}

func (w *walk) tar(r io.Reader, label string, depth int) error {
	tr, err := archive.NewTARArchiveReader(r)
	if err != nil {
		return w.containerError(label, err)
	}

	defer tr.Close()

	return w.layer(tr, label, depth, false)
}

// layer scans the direct entries of one container. Nested containers are
// inspected depth-first before the layer itself is diagnosed.
func (w *walk) layer(ar archive.ArchiveReader, label string, depth int, buffered bool) error {
	log.Debugf("Inspecting %q (depth %d)", label, depth)

	layer := w.extractor.NewLayer(label)

	err := ar.Walk(func(af archive.ArchiveFile) error {
		if !af.IsRegular() {
			return nil
		}

		name := af.Name()

		if kind := w.extensions.KindOf(name); kind != archive.KindNone {
			return w.child(label, name, func(child string) error {
				return w.nested(af, child, kind, depth+1, buffered)
			})
		}

		if w.image && depth == 0 && strings.HasPrefix(name, "blobs/") {
			return w.child(label, name, func(child string) error {
				return w.blob(af, child, depth+1)
			})
		}

		class := w.extractor.Match(name)
		if class == fingerprint.ClassNone {
			return nil
		}

		content, err := w.readEntry(af, buffered)
		if errors.Is(err, archive.ErrEncrypted) {
			w.h.Warning(label, fmt.Sprintf("could not read encrypted %s", name))
			return nil
		} else if err != nil {
			return err
		}

		if layer.Record(class, content) {
			w.h.Warning(label, fmt.Sprintf("contains multiple copies of %s (%s); result may be invalid", class, name))
		}

		return nil
	})
	if err != nil {
		return w.containerError(label, err)
	}

	if d, ok := diagnosis.DiagnoseLayer(layer); ok {
		w.h.Diagnosis(label, d)
	}

	return nil
}

// child inspects the nested container name of the layer at label. Its
// failure is reported and the layer continues, unless the byte budget ran
// out.
func (w *walk) child(label, name string, fn func(child string) error) error {
	child := Join(label, name)

	if err := fn(child); err != nil {
		if w.exhausted {
			return err
		}

		w.h.Error(child, err)
	}

	return nil
}

func (w *walk) nested(af archive.ArchiveFile, label string, kind archive.Kind, depth int, buffered bool) error {
	if w.limits.MaxDepth >= 0 && depth > w.limits.MaxDepth {
		return &ContainerOpenError{Path: label, Err: ErrMaxDepth}
	}

	rc, err := w.open(af, buffered)
	if err != nil {
		return w.containerError(label, err)
	}

	defer rc.Close()

	return w.container(rc, label, kind, depth)
}

// blob inspects an image blob if it holds a container. Other blobs, such as
// configs and manifests, are skipped.
func (w *walk) blob(af archive.ArchiveFile, label string, depth int) error {
	rc, err := w.open(af, false)
	if err != nil {
		return w.containerError(label, err)
	}

	defer rc.Close()

	kind, r, err := archive.Sniff(rc)
	if err != nil {
		return w.containerError(label, err)
	} else if kind == archive.KindNone {
		return nil
	}

	if w.limits.MaxDepth >= 0 && depth > w.limits.MaxDepth {
		return &ContainerOpenError{Path: label, Err: ErrMaxDepth}
	}

	return w.container(r, label, kind, depth)
}

func (w *walk) container(r io.Reader, label string, kind archive.Kind, depth int) error {
	switch kind {
	case archive.KindZip:
		buf, err := io.ReadAll(r)
		if err != nil {
			return w.containerError(label, err)
		}

		return w.zip(bytes.NewReader(buf), int64(len(buf)), label, depth, true)
	default:
		return w.tar(r, label, depth)
	}
}

// open returns the content of an entry, counted against the byte budget
// unless it is a stored entry of a zip held in memory.
func (w *walk) open(af archive.ArchiveFile, buffered bool) (io.ReadCloser, error) {
	rc, err := af.Open()
	if err != nil {
		return nil, err
	}

	if buffered && !af.Compressed() {
		return rc, nil
	}

	return &budgetReadCloser{Reader: w.limit(rc), Closer: rc}, nil
}

func (w *walk) readEntry(af archive.ArchiveFile, buffered bool) ([]byte, error) {
	rc, err := w.open(af, buffered)
	if err != nil {
		return nil, err
	}

	defer rc.Close()

	return io.ReadAll(rc)
}

// containerError attributes err to the container at label, unless it
// already belongs to a nested container. Once the byte budget is exhausted
// every error is reported as ErrMaxBytes.
func (w *walk) containerError(label string, err error) error {
	var coe *ContainerOpenError
	if errors.As(err, &coe) {
		return err
	}

	if w.exhausted && !errors.Is(err, ErrMaxBytes) {
		err = fmt.Errorf("%w: %v", ErrMaxBytes, err)
	}

	return &ContainerOpenError{Path: label, Err: err}
}

func (w *walk) limit(r io.Reader) io.Reader {
	if w.limits.MaxBytes <= 0 {
		return r
	}

	return &budgetReader{r: r, w: w}
}

type budgetReadCloser struct {
	io.Reader
	io.Closer
}

// budgetReader counts the bytes it returns, unless it is read from within
// another budgetReader, which counts them instead.
type budgetReader struct {
	r io.Reader
	w *walk
}

func (b *budgetReader) Read(p []byte) (int, error) {
	if b.w.exhausted {
		return 0, ErrMaxBytes
	}

	if b.w.counting {
		return b.r.Read(p)
	}

	b.w.counting = true
	n, err := b.r.Read(p)
	b.w.counting = false

	b.w.read += int64(n)
	if b.w.read > b.w.limits.MaxBytes {
		b.w.exhausted = true
		return n, ErrMaxBytes
	}

	return n, err
}

// Join appends a nested entry name to a container path. Names are kept
// verbatim.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}
