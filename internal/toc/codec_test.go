package toc

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
)

func TestIntRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 42, -42, 255, 256, -256, 65536, math.MaxInt32, math.MinInt32}

	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, WriteInt(&buf, v))
		assert.Equal(t, 5, buf.Len())

		got, err := ReadInt(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestIntLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInt(&buf, 1))
	assert.Equal(t, []byte{0, 1, 0, 0, 0}, buf.Bytes())

	buf.Reset()
	require.NoError(t, WriteInt(&buf, -2))
	assert.Equal(t, []byte{1, 2, 0, 0, 0}, buf.Bytes())

	buf.Reset()
	require.NoError(t, WriteInt(&buf, 0x01020304))
	assert.Equal(t, []byte{0, 4, 3, 2, 1}, buf.Bytes())
}

func TestOptStringAbsentVsEmpty(t *testing.T) {
	var absent, empty bytes.Buffer
	require.NoError(t, WriteOptString(&absent, nil))
	require.NoError(t, WriteOptString(&empty, []byte{}))

	// The two forms must serialize differently and decode back to
	// their distinct original shapes.
	assert.NotEqual(t, absent.Bytes(), empty.Bytes())

	gotAbsent, err := ReadOptString(&absent)
	require.NoError(t, err)
	assert.Nil(t, gotAbsent)

	gotEmpty, err := ReadOptString(&empty)
	require.NoError(t, err)
	require.NotNil(t, gotEmpty)
	assert.Len(t, gotEmpty, 0)
}

func TestOptStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOptString(&buf, []byte("acme_dbo")))

	got, err := ReadOptString(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("acme_dbo"), got)
}

// testHeader builds a valid header for dbname with fixed version,
// flags and timestamp.
func testHeader(t *testing.T, dbname string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write([]byte("PGDMP"))
	buf.Write([]byte{1, 14, 0}) // version
	buf.Write([]byte{4, 8, 3})  // int size, offset size, format
	require.NoError(t, WriteInt(&buf, 0)) // compression
	for _, v := range []int32{30, 15, 10, 1, 0, 124, 0} {
		require.NoError(t, WriteInt(&buf, v))
	}
	require.NoError(t, WriteOptString(&buf, []byte(dbname)))
	require.NoError(t, WriteOptString(&buf, []byte("15.4")))
	require.NoError(t, WriteOptString(&buf, []byte("pg_dump (PostgreSQL) 15.4")))
	return buf.Bytes()
}

func TestCopyHeaderPassesThrough(t *testing.T) {
	header := testHeader(t, "acme")

	var out bytes.Buffer
	require.NoError(t, CopyHeader(bytes.NewReader(header), &out))
	assert.Equal(t, header, out.Bytes())
}

func TestCopyHeaderRejectsBadMagic(t *testing.T) {
	header := testHeader(t, "acme")
	header[0] = 'X'

	err := CopyHeader(bytes.NewReader(header), &bytes.Buffer{})
	var formatErr *errdefs.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "magic", formatErr.Check)
}

func TestCopyHeaderRejectsBadVersion(t *testing.T) {
	header := testHeader(t, "acme")
	header[6] = 13 // minor

	err := CopyHeader(bytes.NewReader(header), &bytes.Buffer{})
	var formatErr *errdefs.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "version", formatErr.Check)
}

func TestCopyHeaderRejectsBadFlags(t *testing.T) {
	cases := []struct {
		name   string
		offset int
		check  string
	}{
		{"int size", 8, "int size"},
		{"offset size", 9, "offset size"},
		{"format", 10, "format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := testHeader(t, "acme")
			header[tc.offset] = 99

			err := CopyHeader(bytes.NewReader(header), &bytes.Buffer{})
			var formatErr *errdefs.FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Equal(t, tc.check, formatErr.Check)
		})
	}
}

func TestEntryRoundTrip(t *testing.T) {
	entry := &Entry{
		DumpID:      215,
		HadDumper:   1,
		TableOID:    []byte("16385"),
		CatalogOID:  []byte("1259"),
		Tag:         []byte("babelfish_sysdatabases"),
		Description: []byte("TABLE DATA"),
		Section:     3,
		Defn:        []byte{},
		DropStmt:    nil,
		CopyStmt:    []byte("COPY sys.babelfish_sysdatabases FROM stdin;"),
		Namespace:   []byte("sys"),
		Tablespace:  nil,
		TableAM:     []byte("heap"),
		Owner:       []byte("wilton"),
		Deps:        [][]byte{[]byte("210"), []byte("16")},
		Filename:    []byte("3309.dat"),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteEntry(&buf, entry))
	serialized := append([]byte(nil), buf.Bytes()...)

	got, err := ReadEntry(&buf)
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	// Re-serializing the decoded entry reproduces the exact bytes.
	var again bytes.Buffer
	require.NoError(t, WriteEntry(&again, got))
	assert.Equal(t, serialized, again.Bytes())
}

func TestEntryEmptyAndAbsentFieldsSurviveRoundTrip(t *testing.T) {
	entry := &Entry{
		DumpID:    1,
		HadDumper: 0,
		Tag:       []byte{},
		Section:   -1,
		Deps:      [][]byte{},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteEntry(&buf, entry))

	got, err := ReadEntry(&buf)
	require.NoError(t, err)
	require.NotNil(t, got.Tag)
	assert.Len(t, got.Tag, 0)
	assert.Nil(t, got.Description)
	assert.Nil(t, got.Filename)
}
