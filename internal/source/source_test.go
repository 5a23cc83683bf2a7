package source

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

type entry struct {
	name string
	data []byte
}

func makeZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func names(docs []types.RawDocument) []string {
	var out []string
	for _, d := range docs {
		out = append(out, d.Name)
	}
	return out
}

func newCollector(t *testing.T, opts Options) *Collector {
	t.Helper()
	c, err := New(opts)
	require.NoError(t, err)
	return c
}

func TestFromBlobNestedArchives(t *testing.T) {
	inner := makeZip(t,
		entry{"b.xml", []byte("<b/>")},
		entry{"leia.txt", []byte("ignored")},
	)
	outer := makeZip(t,
		entry{"a.xml", []byte("<a/>")},
		entry{"lotes/inner.zip", inner},
		entry{"../evil.xml", []byte("<x/>")},
		entry{"/abs.xml", []byte("<x/>")},
	)

	res, err := newCollector(t, Options{}).FromBlob(context.Background(), "outer.zip", outer)
	require.NoError(t, err)

	assert.Equal(t, []string{"outer.zip/a.xml", "outer.zip/lotes/inner.zip/b.xml"}, names(res.Documents))
	assert.Equal(t, []byte("<b/>"), res.Documents[1].Content)

	require.Len(t, res.Skipped, 2)
	for _, s := range res.Skipped {
		assert.ErrorIs(t, s.Reason, types.ErrArchive)
	}
	assert.Equal(t, "outer.zip/../evil.xml", res.Skipped[0].Name)
}

func TestFromBlobDepthLimit(t *testing.T) {
	inner := makeZip(t, entry{"b.xml", []byte("<b/>")})
	outer := makeZip(t, entry{"a.xml", []byte("<a/>")}, entry{"inner.zip", inner})

	res, err := newCollector(t, Options{MaxDepth: 1}).FromBlob(context.Background(), "outer.zip", outer)
	require.NoError(t, err)

	assert.Equal(t, []string{"outer.zip/a.xml"}, names(res.Documents))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "outer.zip/inner.zip", res.Skipped[0].Name)
	assert.ErrorIs(t, res.Skipped[0].Reason, types.ErrArchiveDepth)
}

func TestFromBlobBadInputs(t *testing.T) {
	c := newCollector(t, Options{})
	ctx := context.Background()

	res, err := c.FromBlob(ctx, "lote.zip", []byte("not a zip at all"))
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0].Reason, types.ErrArchive)

	res, err = c.FromBlob(ctx, "corrupt.zip", []byte("PK\x03\x04garbage garbage garbage"))
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0].Reason, types.ErrArchive)

	res, err = c.FromBlob(ctx, "planilha.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0].Reason, types.ErrUnsupportedInput)

	res, err = c.FromBlob(ctx, "NOTA.XML", []byte("<a/>"))
	require.NoError(t, err)
	assert.Equal(t, []string{"NOTA.XML"}, names(res.Documents))
	assert.Empty(t, res.Skipped)
}

func TestFromBlobEntrySizeLimit(t *testing.T) {
	z := makeZip(t,
		entry{"grande.xml", []byte(strings.Repeat("x", 100))},
		entry{"pequeno.xml", []byte("<a/>")},
	)
	res, err := newCollector(t, Options{MaxEntryBytes: 10}).FromBlob(context.Background(), "z.zip", z)
	require.NoError(t, err)

	assert.Equal(t, []string{"z.zip/pequeno.xml"}, names(res.Documents))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "z.zip/grande.xml", res.Skipped[0].Name)
}

func TestFromBlobSkipsLargeNonXMLEntries(t *testing.T) {
	inner := makeZip(t, entry{"b.xml", []byte("<b/>")})
	z := makeZip(t,
		entry{"danfse.pdf", []byte("%PDF-1.4 " + strings.Repeat("x", 1000))},
		entry{"anexo.bin", inner},
		entry{"nota.xml", []byte("<a/>")},
	)
	res, err := newCollector(t, Options{MaxEntryBytes: 300}).FromBlob(context.Background(), "z.zip", z)
	require.NoError(t, err)

	assert.Equal(t, []string{"z.zip/anexo.bin/b.xml", "z.zip/nota.xml"}, names(res.Documents))
	assert.Empty(t, res.Skipped)
}

func TestZipCodePage(t *testing.T) {
	// "serviço.xml" with the name stored in IBM850
	z := makeZip(t, entry{"servi\x87o.xml", []byte("<a/>")})

	res, err := newCollector(t, Options{ZipCodePage: "IBM850"}).FromBlob(context.Background(), "z.zip", z)
	require.NoError(t, err)
	assert.Equal(t, []string{"z.zip/serviço.xml"}, names(res.Documents))

	_, err = New(Options{ZipCodePage: "no-such-charset"})
	assert.Error(t, err)
}

func TestFromPathsNaturalOrder(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	write("nota10.xml", []byte("<a/>"))
	write("nota2.xml", []byte("<a/>"))
	write("leia.txt", []byte("x"))
	write("lote.zip", makeZip(t, entry{"n1.xml", []byte("<a/>")}))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	write("sub/nota1.xml", []byte("<a/>"))

	single := filepath.Join(t.TempDir(), "avulsa.xml")
	require.NoError(t, os.WriteFile(single, []byte("<a/>"), 0o644))

	res, err := newCollector(t, Options{}).FromPaths(context.Background(), []string{dir, single})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"lote.zip/n1.xml",
		"nota2.xml",
		"nota10.xml",
		"sub/nota1.xml",
		"avulsa.xml",
	}, names(res.Documents))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "leia.txt", res.Skipped[0].Name)
	assert.ErrorIs(t, res.Skipped[0].Reason, types.ErrUnsupportedInput)
}

func TestFromPathsMissing(t *testing.T) {
	_, err := newCollector(t, Options{}).FromPaths(context.Background(), []string{filepath.Join(t.TempDir(), "nada")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFromPathsCancelled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte("<a/>"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newCollector(t, Options{}).FromPaths(ctx, []string{dir})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsSafePath(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.xml", true},
		{"dir/a.xml", true},
		{"dir/..a.xml", true},
		{"../a.xml", false},
		{"dir/../../a.xml", false},
		{`dir\..\a.xml`, false},
		{"/etc/passwd", false},
		{`\windows\a.xml`, false},
		{"C:/a.xml", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSafePath(tt.name), tt.name)
	}
}
