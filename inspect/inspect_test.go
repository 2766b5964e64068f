package inspect

import (
	"archive/tar"
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dutchcoders/log4shell-scanner/archive"
	"github.com/dutchcoders/log4shell-scanner/diagnosis"
	"github.com/dutchcoders/log4shell-scanner/fingerprint"
	"github.com/dutchcoders/log4shell-scanner/internal/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	path string
	d    diagnosis.Diagnosis
}

type recorder struct {
	results  []result
	warnings []string
	errors   map[string]error
}

func newRecorder() *recorder {
	return &recorder{errors: map[string]error{}}
}

func (r *recorder) Diagnosis(path string, d diagnosis.Diagnosis) {
	r.results = append(r.results, result{path, d})
}

func (r *recorder) Warning(path string, msg string) {
	r.warnings = append(r.warnings, path+": "+msg)
}

func (r *recorder) Error(path string, err error) {
	r.errors[path] = err
}

func newInspector(options ...OptionFn) *Inspector {
	return New(fingerprint.NewExtractor(fingerprint.DefaultMarkers()), options...)
}

func inspectZip(t *testing.T, i *Inspector, data []byte, label string) (*recorder, error) {
	t.Helper()

	rec := newRecorder()
	err := i.InspectStream(bytes.NewReader(data), label, archive.KindZip, rec)
	return rec, err
}

func TestNestedLookupRemoved(t *testing.T) {
	inner := fixture.Zip(t, fixture.File(fixture.ManagerEntry, fixture.ManagerV214))
	outer := fixture.Zip(t, fixture.File("inner.jar", inner))

	root := t.TempDir()
	p := fixture.WriteFile(t, root, "outer.jar", outer)

	rec := newRecorder()
	err := newInspector().InspectFile(p, "outer.jar", rec)
	require.NoError(t, err)

	// a pre-2.15 JndiManager without JndiLookup is the class-removal
	// mitigation; the outer layer itself holds no tracked class
	require.Len(t, rec.results, 1)
	assert.Equal(t, "outer.jar/inner.jar", rec.results[0].path)
	assert.Equal(t, diagnosis.Fix, rec.results[0].d.Status)
	assert.Equal(t, "JndiLookup removed", rec.results[0].d.Note)
}

func TestNestedVulnerable(t *testing.T) {
	inner := fixture.Zip(t,
		fixture.File(fixture.ManagerEntry, fixture.ManagerV214),
		fixture.File(fixture.LookupEntry, fixture.LookupV21),
	)
	outer := fixture.Zip(t, fixture.File("inner.jar", inner))

	rec, err := inspectZip(t, newInspector(), outer, "outer.jar")
	require.NoError(t, err)

	require.Len(t, rec.results, 1)
	assert.Equal(t, "outer.jar/inner.jar", rec.results[0].path)
	assert.Equal(t, diagnosis.Vuln, rec.results[0].d.Status)
	assert.Equal(t, "Estimated version: 2.1 .. 2.14", rec.results[0].d.Note)
}

func TestLayersAreIndependent(t *testing.T) {
	inner := fixture.Zip(t, fixture.File(fixture.LookupEntry, fixture.LookupV21))
	outer := fixture.Zip(t,
		fixture.File(fixture.ManagerEntry, fixture.ManagerV216),
		fixture.File("lib/inner.jar", inner),
	)

	rec, err := inspectZip(t, newInspector(), outer, "outer.jar")
	require.NoError(t, err)

	require.Len(t, rec.results, 2)

	// children are reported before their parent
	assert.Equal(t, "outer.jar/lib/inner.jar", rec.results[0].path)
	assert.Equal(t, diagnosis.Inconsistent, rec.results[0].d.Status)
	assert.Equal(t, "JndiLookup: v21_PLUS, JndiManager: NOT_FOUND", rec.results[0].d.Note)

	assert.Equal(t, "outer.jar", rec.results[1].path)
	assert.Equal(t, diagnosis.Fix, rec.results[1].d.Status)
}

func TestNoTrackedClasses(t *testing.T) {
	data := fixture.Zip(t, fixture.File("META-INF/MANIFEST.MF", []byte("x")))

	rec, err := inspectZip(t, newInspector(), data, "plain.jar")
	require.NoError(t, err)

	assert.Empty(t, rec.results)
	assert.Empty(t, rec.warnings)
	assert.Empty(t, rec.errors)
}

func TestDuplicateSignal(t *testing.T) {
	data := fixture.Zip(t,
		fixture.File(fixture.LookupEntry, fixture.LookupV21),
		fixture.File(fixture.ManagerEntry, fixture.ManagerV214),
		fixture.File("shaded/"+fixture.ManagerEntry, fixture.ManagerV216),
	)

	rec, err := inspectZip(t, newInspector(), data, "fat.jar")
	require.NoError(t, err)

	require.Len(t, rec.warnings, 1)
	assert.Contains(t, rec.warnings[0], "multiple copies of JndiManager")

	// last entry in listing order wins
	require.Len(t, rec.results, 1)
	assert.Equal(t, diagnosis.Fix, rec.results[0].d.Status)
	assert.Equal(t, "Estimated version: 2.16", rec.results[0].d.Note)
	assert.True(t, rec.results[0].d.Ambiguous)
}

func TestMalformedNestedIsolated(t *testing.T) {
	good := fixture.Zip(t,
		fixture.File(fixture.ManagerEntry, fixture.ManagerV217),
		fixture.File(fixture.LookupEntry, fixture.LookupV21),
	)
	outer := fixture.Zip(t,
		fixture.File("a-broken.jar", []byte("not a zip")),
		fixture.File("b-good.jar", good),
		fixture.File(fixture.ManagerEntry, fixture.ManagerV215),
		fixture.File(fixture.LookupEntry, fixture.LookupV21),
	)

	rec, err := inspectZip(t, newInspector(), outer, "outer.ear")
	require.NoError(t, err)

	require.Len(t, rec.errors, 1)
	var coe *ContainerOpenError
	require.True(t, errors.As(rec.errors["outer.ear/a-broken.jar"], &coe))
	assert.Equal(t, "outer.ear/a-broken.jar", coe.Path)

	require.Len(t, rec.results, 2)
	assert.Equal(t, result{"outer.ear/b-good.jar", diagnosis.Diagnosis{Status: diagnosis.Fix, Note: "Estimated version: 2.17"}}, rec.results[0])
	assert.Equal(t, result{"outer.ear", diagnosis.Diagnosis{Status: diagnosis.Partial, Note: "Estimated version: 2.15"}}, rec.results[1])
}

func TestMalformedTopLevel(t *testing.T) {
	p := fixture.WriteFile(t, t.TempDir(), "broken.jar", []byte("garbage"))

	rec := newRecorder()
	err := newInspector().InspectFile(p, "", rec)

	var coe *ContainerOpenError
	require.True(t, errors.As(err, &coe))
	assert.Equal(t, "", coe.Path)
	assert.Empty(t, rec.results)
	assert.Empty(t, rec.errors)
}

func TestMissingFile(t *testing.T) {
	err := newInspector().InspectFile(filepath.Join(t.TempDir(), "gone.jar"), "gone.jar", newRecorder())
	assert.Error(t, err)

	var coe *ContainerOpenError
	assert.False(t, errors.As(err, &coe))
}

func TestSingleFileLabel(t *testing.T) {
	data := fixture.Zip(t, fixture.File(fixture.LookupEntry, fixture.LookupV20))
	p := fixture.WriteFile(t, t.TempDir(), "app.jar", data)

	rec := newRecorder()
	require.NoError(t, newInspector().InspectFile(p, "", rec))

	require.Len(t, rec.results, 1)
	assert.Equal(t, "", rec.results[0].path)
	assert.Equal(t, diagnosis.Vuln, rec.results[0].d.Status)
	assert.Equal(t, "Estimated version: 2.0", rec.results[0].d.Note)
}

func TestTarball(t *testing.T) {
	jar := fixture.Zip(t,
		fixture.File(fixture.ManagerEntry, fixture.ManagerV212Patch),
		fixture.File(fixture.LookupEntry, fixture.LookupV212Patch),
	)
	tarball := fixture.Gzip(t, fixture.Tar(t,
		fixture.Entry{Name: "opt", Dir: true},
		fixture.File("opt/app/lib/log4j-core-2.12.2.jar", jar),
		fixture.File("../escape.jar", jar),
		fixture.Entry{Name: "opt/link.jar", Type: '2'},
	))

	p := fixture.WriteFile(t, t.TempDir(), "dist.tar.gz", tarball)

	rec := newRecorder()
	require.NoError(t, newInspector().InspectFile(p, "dist.tar.gz", rec))

	require.Len(t, rec.results, 1)
	assert.Equal(t, "dist.tar.gz/opt/app/lib/log4j-core-2.12.2.jar", rec.results[0].path)
	assert.Equal(t, diagnosis.Diagnosis{Status: diagnosis.Fix, Note: "2.12.2 backport patch"}, rec.results[0].d)
	assert.Empty(t, rec.errors)
}

func TestTarInZipInTar(t *testing.T) {
	jar := fixture.Zip(t, fixture.File(fixture.LookupEntry, fixture.LookupV20))
	innerTar := fixture.XZ(t, fixture.Tar(t, fixture.File("app.jar", jar)))
	zipped := fixture.Zip(t, fixture.File("bundle.tar", innerTar))
	outer := fixture.Tar(t, fixture.File("layer.zip", zipped))

	rec := newRecorder()
	require.NoError(t, newInspector().InspectStream(bytes.NewReader(outer), "image.tar", archive.KindTar, rec))

	require.Len(t, rec.results, 1)
	assert.Equal(t, "image.tar/layer.zip/bundle.tar/app.jar", rec.results[0].path)
	assert.Equal(t, diagnosis.Vuln, rec.results[0].d.Status)
}

func TestTarLayerFingerprinted(t *testing.T) {
	data := fixture.Tar(t,
		fixture.File("webapp/WEB-INF/classes/"+fixture.ManagerEntry, fixture.ManagerV216),
		fixture.File("webapp/WEB-INF/classes/"+fixture.LookupEntry, fixture.LookupV21),
	)

	rec := newRecorder()
	require.NoError(t, newInspector().InspectStream(bytes.NewReader(data), "exploded.tar", archive.KindTar, rec))

	require.Len(t, rec.results, 1)
	assert.Equal(t, "exploded.tar", rec.results[0].path)
	assert.Equal(t, diagnosis.Fix, rec.results[0].d.Status)
}

func TestMaxDepth(t *testing.T) {
	core := fixture.Zip(t, fixture.File(fixture.LookupEntry, fixture.LookupV20))
	data := fixture.Nest(t, core, 3)

	// depth 3 is reachable with a limit of 3
	rec, err := inspectZip(t, newInspector(WithLimits(Limits{MaxDepth: 3})), data, "x.jar")
	require.NoError(t, err)
	require.Len(t, rec.results, 1)
	assert.Equal(t, "x.jar/nested.jar/nested.jar/nested.jar", rec.results[0].path)

	rec, err = inspectZip(t, newInspector(WithLimits(Limits{MaxDepth: 2})), data, "x.jar")
	require.NoError(t, err)
	assert.Empty(t, rec.results)

	require.Len(t, rec.errors, 1)
	assert.ErrorIs(t, rec.errors["x.jar/nested.jar/nested.jar/nested.jar"], ErrMaxDepth)
}

func TestMaxDepthZeroOpensTopLevelOnly(t *testing.T) {
	inner := fixture.Zip(t, fixture.File(fixture.LookupEntry, fixture.LookupV20))
	data := fixture.Zip(t,
		fixture.File("inner.jar", inner),
		fixture.File(fixture.LookupEntry, fixture.LookupV21),
		fixture.File(fixture.ManagerEntry, fixture.ManagerV217),
	)

	rec, err := inspectZip(t, newInspector(WithLimits(Limits{MaxDepth: 0})), data, "x.jar")
	require.NoError(t, err)

	require.Len(t, rec.results, 1)
	assert.Equal(t, "x.jar", rec.results[0].path)
	assert.ErrorIs(t, rec.errors["x.jar/inner.jar"], ErrMaxDepth)
}

func TestMaxBytes(t *testing.T) {
	big := bytes.Repeat([]byte("A"), 64<<10)
	inner := fixture.Zip(t,
		fixture.File("blob/"+fixture.LookupEntry, big),
	)
	outer := fixture.Zip(t,
		fixture.File("a.jar", inner),
		fixture.File("b.jar", inner),
		fixture.File(fixture.LookupEntry, fixture.LookupV20),
	)

	rec := newRecorder()
	i := newInspector(WithLimits(Limits{MaxDepth: DefaultMaxDepth, MaxBytes: 32 << 10}))
	err := i.InspectStream(bytes.NewReader(outer), "outer.jar", archive.KindZip, rec)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxBytes)

	// the candidate is abandoned as a whole
	assert.Empty(t, rec.results)
	assert.Empty(t, rec.errors)
}

func TestIdempotent(t *testing.T) {
	inner := fixture.Zip(t,
		fixture.File(fixture.ManagerEntry, fixture.ManagerV215),
		fixture.File(fixture.LookupEntry, fixture.LookupV21),
	)
	data := fixture.Zip(t,
		fixture.File("a.jar", inner),
		fixture.File("b.jar", []byte("broken")),
		fixture.File("c.jar", inner),
	)

	first, err := inspectZip(t, newInspector(), data, "x.war")
	require.NoError(t, err)

	second, err := inspectZip(t, newInspector(), data, "x.war")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSyntheticMarkers(t *testing.T) {
	m := fingerprint.Markers{
		ManagerSuffix: "Mgr.bin",
		LookupSuffix:  "Lkp.bin",
		Baseline:      []byte("B1"),
		JndiEnable:    []byte("E2"),
		LookupModern:  []byte("M3"),
	}

	data := fixture.Zip(t,
		fixture.File("x/Mgr.bin", []byte("B1 E2")),
		fixture.File("x/Lkp.bin", []byte("M3")),
		fixture.File(fixture.ManagerEntry, fixture.ManagerV214),
	)

	rec, err := inspectZip(t, New(fingerprint.NewExtractor(m)), data, "s.zip")
	require.NoError(t, err)

	require.Len(t, rec.results, 1)
	assert.Equal(t, "Estimated version: 2.16", rec.results[0].d.Note)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "inner.jar", Join("", "inner.jar"))
	assert.Equal(t, "outer.jar/inner.jar", Join("outer.jar", "inner.jar"))
	assert.Equal(t, "outer.tar/./lib/a.jar", Join("outer.tar", "./lib/a.jar"))
}

func padded(class []byte, n int) []byte {
	return append(append([]byte{}, class...), bytes.Repeat([]byte{'A'}, n)...)
}

func TestMaxBytesStoredNestedCountedOnce(t *testing.T) {
	inner := fixture.Zip(t, fixture.Entry{Name: fixture.LookupEntry, Data: padded(fixture.LookupV20, 20<<10), Stored: true})
	outer := fixture.Zip(t, fixture.Entry{Name: "inner.jar", Data: inner, Stored: true})

	p := fixture.WriteFile(t, t.TempDir(), "outer.jar", outer)

	rec := newRecorder()
	i := newInspector(WithLimits(Limits{MaxDepth: DefaultMaxDepth, MaxBytes: 32 << 10}))
	require.NoError(t, i.InspectFile(p, "outer.jar", rec))

	require.Len(t, rec.results, 1)
	assert.Equal(t, "outer.jar/inner.jar", rec.results[0].path)
	assert.Equal(t, diagnosis.Vuln, rec.results[0].d.Status)
	assert.Empty(t, rec.errors)
}

func TestMaxBytesNestedTarCountedOnce(t *testing.T) {
	inner := fixture.Tar(t, fixture.File(fixture.LookupEntry, padded(fixture.LookupV20, 20<<10)))
	outer := fixture.Tar(t, fixture.File("inner.tar", inner))

	p := fixture.WriteFile(t, t.TempDir(), "outer.tar", outer)

	rec := newRecorder()
	i := newInspector(WithLimits(Limits{MaxDepth: DefaultMaxDepth, MaxBytes: 32 << 10}))
	require.NoError(t, i.InspectFile(p, "outer.tar", rec))

	require.Len(t, rec.results, 1)
	assert.Equal(t, "outer.tar/inner.tar", rec.results[0].path)
	assert.Empty(t, rec.errors)

	// the same content still trips a smaller budget
	rec = newRecorder()
	i = newInspector(WithLimits(Limits{MaxDepth: DefaultMaxDepth, MaxBytes: 16 << 10}))
	assert.ErrorIs(t, i.InspectFile(p, "outer.tar", rec), ErrMaxBytes)
}

func TestEmptyNestedTar(t *testing.T) {
	outer := fixture.Zip(t,
		fixture.File("empty.tar", nil),
		fixture.File(fixture.LookupEntry, fixture.LookupV20),
	)

	rec, err := inspectZip(t, newInspector(), outer, "app.war")
	require.NoError(t, err)

	assert.ErrorIs(t, rec.errors["app.war/empty.tar"], archive.ErrEmpty)
	require.Len(t, rec.results, 1)
	assert.Equal(t, "app.war", rec.results[0].path)
}

func imageExport(t *testing.T, layer []byte) []byte {
	return fixture.Tar(t,
		fixture.File("oci-layout", []byte(`{"imageLayoutVersion":"1.0.0"}`)),
		fixture.File("index.json", []byte(`{"schemaVersion":2}`)),
		fixture.File("manifest.json", []byte(`[{"Layers":["blobs/sha256/aaaa"]}]`)),
		fixture.File("blobs/sha256/cccc", []byte(`{"architecture":"amd64"}`)),
		fixture.File("blobs/sha256/aaaa", layer),
		fixture.Entry{Name: "0123abcd/layer.tar", Type: tar.TypeSymlink},
	)
}

func TestInspectImageBlobs(t *testing.T) {
	layer := fixture.Tar(t, fixture.File("opt/app/log4j-core.jar", fixture.Zip(t,
		fixture.File(fixture.ManagerEntry, fixture.ManagerV214),
		fixture.File(fixture.LookupEntry, fixture.LookupV21),
	)))

	for name, data := range map[string][]byte{
		"plain": layer,
		"gzip":  fixture.Gzip(t, layer),
		"zstd":  fixture.Zstd(t, layer),
	} {
		t.Run(name, func(t *testing.T) {
			rec := newRecorder()
			require.NoError(t, newInspector().InspectImage(bytes.NewReader(imageExport(t, data)), "app:latest", rec))

			require.Len(t, rec.results, 1)
			assert.Equal(t, "app:latest/blobs/sha256/aaaa/opt/app/log4j-core.jar", rec.results[0].path)
			assert.Equal(t, diagnosis.Vuln, rec.results[0].d.Status)
			assert.Empty(t, rec.errors)
		})
	}
}

func TestBlobsOnlySniffedInImages(t *testing.T) {
	layer := fixture.Tar(t, fixture.File("lib/app.jar", fixture.Zip(t,
		fixture.File(fixture.LookupEntry, fixture.LookupV20),
	)))

	rec := newRecorder()
	require.NoError(t, newInspector().InspectStream(bytes.NewReader(imageExport(t, layer)), "export.tar", archive.KindTar, rec))
	assert.Empty(t, rec.results)
}
