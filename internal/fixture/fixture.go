// Package fixture builds in-memory archives for tests.
package fixture

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Class contents carrying the default markers of each version bucket.
var (
	ManagerV214      = []byte("\xca\xfe\xba\xbeorg/apache/logging/log4j/core/net/JndiManager")
	ManagerV215      = []byte("\xca\xfe\xba\xbeallowedJndiProtocols")
	ManagerV216      = []byte("\xca\xfe\xba\xbeallowedJndiProtocols\x00log4j2.enableJndi")
	ManagerV217      = []byte("\xca\xfe\xba\xbelog4j2.enableJndi\x00isJndiLookupEnabled")
	ManagerV212Patch = []byte("\xca\xfe\xba\xbelog4j2.enableJndi")
	LookupV20        = []byte("\xca\xfe\xba\xbeJndiLookup")
	LookupV21        = []byte("\xca\xfe\xba\xbeLOOKUP")
	LookupV212Patch  = []byte("\xca\xfe\xba\xbeJNDI is not supported")
)

const (
	ManagerEntry = "org/apache/logging/log4j/core/net/JndiManager.class"
	LookupEntry  = "org/apache/logging/log4j/core/lookup/JndiLookup.class"
)

type Entry struct {
	Name string
	Data []byte

	// Dir marks a directory entry; Data is ignored.
	Dir bool
	// Type overrides the tar type flag.
	Type byte
	// Stored writes the zip entry without compression.
	Stored bool
}

func File(name string, data []byte) Entry {
	return Entry{Name: name, Data: data}
}

func Zip(t testing.TB, entries ...Entry) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	for _, e := range entries {
		name := e.Name
		if e.Dir {
			name += "/"
		}

		method := zip.Deflate
		if e.Stored {
			method = zip.Store
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatalf("create zip entry %s: %v", e.Name, err)
		}

		if e.Dir {
			continue
		}

		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("write zip entry %s: %v", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	return buf.Bytes()
}

func Tar(t testing.TB, entries ...Entry) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)

	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     0644,
			Size:     int64(len(e.Data)),
			Typeflag: tar.TypeReg,
		}

		switch {
		case e.Dir:
			hdr.Name += "/"
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
			hdr.Size = 0
		case e.Type != 0:
			hdr.Typeflag = e.Type
			hdr.Size = 0
			hdr.Linkname = "target"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header %s: %v", e.Name, err)
		}

		if hdr.Size == 0 {
			continue
		}

		if _, err := tw.Write(e.Data); err != nil {
			t.Fatalf("write tar entry %s: %v", e.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}

	return buf.Bytes()
}

func Gzip(t testing.TB, data []byte) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	gw := gzip.NewWriter(buf)

	if _, err := gw.Write(data); err != nil {
		t.Fatalf("gzip: %v", err)
	}

	if err := gw.Close(); err != nil {
		t.Fatalf("gzip: %v", err)
	}

	return buf.Bytes()
}

func XZ(t testing.TB, data []byte) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	xw, err := xz.NewWriter(buf)
	if err != nil {
		t.Fatalf("xz: %v", err)
	}

	if _, err := xw.Write(data); err != nil {
		t.Fatalf("xz: %v", err)
	}

	if err := xw.Close(); err != nil {
		t.Fatalf("xz: %v", err)
	}

	return buf.Bytes()
}

func Zstd(t testing.TB, data []byte) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw, err := zstd.NewWriter(buf)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}

	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zstd: %v", err)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("zstd: %v", err)
	}

	return buf.Bytes()
}

// Nest wraps data in depth zip layers, each holding the previous one as
// "nested.jar".
func Nest(t testing.TB, data []byte, depth int) []byte {
	t.Helper()

	for i := 0; i < depth; i++ {
		data = Zip(t, File("nested.jar", data))
	}

	return data
}

// WriteFile writes data below dir, creating parent directories, and
// returns the full path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()

	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}

	return p
}
