package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	bzip2Magic = []byte("BZh")
	zipMagic   = []byte("PK\x03\x04")
	tarMagic   = []byte("ustar")
)

const tarMagicOffset = 257

type TARArchiveFile struct {
	*tar.Header

	r io.Reader
}

func (za *TARArchiveFile) Name() string {
	return za.Header.Name
}

func (za *TARArchiveFile) IsRegular() bool {
	return za.Header.Typeflag == tar.TypeReg
}

// Compressed is false: members are read straight from the tar stream, which
// is decompressed as a whole.
func (za *TARArchiveFile) Compressed() bool {
	return false
}

// Open returns the member's content. The stream is shared with the tar
// reader and is only valid until the next member is read.
func (za *TARArchiveFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(za.r), nil
}

type TARArchiveReader struct {
	*tar.Reader

	src    *countingReader
	closer io.Closer
}

func (za *TARArchiveReader) Walk(fn WalkFunc) error {
	for first := true; ; first = false {
		header, err := za.Reader.Next()
		if err == io.EOF && first && za.src.n == 0 {
			return &ArchiveError{p: "", Err: ErrEmpty}
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return &ArchiveError{p: "", Err: err}
		}

		if !SafePath(header.Name) {
			continue
		}

		if err := fn(&TARArchiveFile{header, za.Reader}); err != nil {
			return err
		}
	}
}

func (za *TARArchiveReader) Close() error {
	if za.closer == nil {
		return nil
	}

	return za.closer.Close()
}

// NewTARArchiveReader reads a tar stream, transparently decompressing gzip,
// xz, zstd and bzip2 input detected by its magic bytes.
func NewTARArchiveReader(r io.Reader) (*TARArchiveReader, error) {
	dr, closer, err := decompress(r)
	if err != nil {
		return nil, err
	}

	src := &countingReader{r: dr}
	return &TARArchiveReader{tar.NewReader(src), src, closer}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// Sniff detects the container family of r from its leading bytes. Any
// compressed stream is taken to be a tarball. The returned reader replays
// the inspected bytes.
func Sniff(r io.Reader) (Kind, io.Reader, error) {
	br := bufio.NewReaderSize(r, 512)

	magic, err := br.Peek(tarMagicOffset + len(tarMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return KindNone, nil, err
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic),
		bytes.HasPrefix(magic, xzMagic),
		bytes.HasPrefix(magic, zstdMagic),
		bytes.HasPrefix(magic, bzip2Magic):
		return KindTar, br, nil
	case bytes.HasPrefix(magic, zipMagic):
		return KindZip, br, nil
	case len(magic) >= tarMagicOffset+len(tarMagic) && bytes.Equal(magic[tarMagicOffset:], tarMagic):
		return KindTar, br, nil
	}

	return KindNone, br, nil
}

func decompress(r io.Reader) (io.Reader, io.Closer, error) {
	br := bufio.NewReader(r)

	magic, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, err
		}

		return gr, gr, nil
	case bytes.HasPrefix(magic, xzMagic):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, nil, err
		}

		return xr, nil, nil
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}

		rc := zr.IOReadCloser()
		return rc, rc, nil
	case bytes.HasPrefix(magic, bzip2Magic):
		return bzip2.NewReader(br), nil, nil
	}

	return br, nil, nil
}

// SafePath reports whether a member name is free of parent directory
// segments.
func SafePath(name string) bool {
	for _, segment := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return false
		}
	}

	return true
}
