package toc

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
)

func TestIsRoleDeclTag(t *testing.T) {
	assert.True(t, isRoleDeclTag("acme_dbo", "acme"))
	assert.True(t, isRoleDeclTag("acme_db_owner", "acme"))
	assert.True(t, isRoleDeclTag("acme_guest", "acme"))
	assert.True(t, isRoleDeclTag("SCHEMA acme_dbo", "acme"))

	assert.False(t, isRoleDeclTag("TABLE sometable", "acme"))
	assert.False(t, isRoleDeclTag("acme_dbo.sometable", "acme"))
	assert.False(t, isRoleDeclTag("other_dbo", "acme"))
}

func TestReplaceIdentity(t *testing.T) {
	t.Run("bare token", func(t *testing.T) {
		got := replaceIdentity([]byte("acme_dbo"), []byte("acme_dbo"), "acme", "bolt", true)
		assert.Equal(t, []byte("bolt_dbo"), got)
	})

	t.Run("qualified reference", func(t *testing.T) {
		got := replaceIdentity([]byte("TABLE sometable"),
			[]byte("CREATE TABLE acme_dbo.sometable (id int);"), "acme", "bolt", true)
		assert.Equal(t, []byte("CREATE TABLE bolt_dbo.sometable (id int);"), got)
	})

	t.Run("all three roles", func(t *testing.T) {
		got := replaceIdentity([]byte("SCHEMA stuff"),
			[]byte("GRANT acme_guest TO acme_dbo GRANTED BY acme_db_owner;"),
			"acme", "bolt", true)
		assert.Equal(t, []byte("GRANT bolt_guest TO bolt_dbo GRANTED BY bolt_db_owner;"), got)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, replaceIdentity([]byte("tag"), nil, "acme", "bolt", true))
	})

	t.Run("unqualified field keeps dots alone", func(t *testing.T) {
		got := replaceIdentity([]byte("tag"), []byte("acme_dbo"), "acme", "bolt", false)
		assert.Equal(t, []byte("bolt_dbo"), got)
	})
}

func TestRewriteEntryOrder(t *testing.T) {
	// The tag is rewritten last, so the qualify decision for the other
	// fields still sees the original tag.
	e := &Entry{
		Tag:         []byte("acme_dbo"),
		Description: []byte("SCHEMA"),
		Defn:        []byte("CREATE SCHEMA acme_dbo;"),
		DropStmt:    []byte("DROP SCHEMA acme_dbo;"),
		Owner:       []byte("acme_db_owner"),
	}
	rewriteEntry(e, "acme", "bolt")

	assert.Equal(t, []byte("bolt_dbo"), e.Tag)
	assert.Equal(t, []byte("CREATE SCHEMA bolt_dbo;"), e.Defn)
	assert.Equal(t, []byte("DROP SCHEMA bolt_dbo;"), e.DropStmt)
	assert.Equal(t, []byte("bolt_db_owner"), e.Owner)
}

// writeTocFile serializes a complete toc.dat with the given entries.
func writeTocFile(t *testing.T, dir string, entries []*Entry) {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(testHeader(t, "wilton"))
	require.NoError(t, WriteInt(&buf, int32(len(entries))))
	for _, e := range entries {
		require.NoError(t, WriteEntry(&buf, e))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, TocFilename), buf.Bytes(), 0o644))
}

func readTocEntries(t *testing.T, path string) []*Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := bufio.NewReader(f)
	require.NoError(t, CopyHeader(r, &bytes.Buffer{}))
	count, err := ReadInt(r)
	require.NoError(t, err)

	entries := make([]*Entry, 0, count)
	for i := int32(0); i < count; i++ {
		e, err := ReadEntry(r)
		require.NoError(t, err)
		entries = append(entries, e)
	}
	return entries
}

func scenarioEntries() []*Entry {
	entries := []*Entry{
		{
			DumpID:      10,
			Tag:         []byte("acme_dbo"),
			Description: []byte("SCHEMA"),
			Defn:        []byte("CREATE SCHEMA acme_dbo;"),
			DropStmt:    []byte("DROP SCHEMA acme_dbo;"),
			Owner:       []byte("acme_db_owner"),
		},
		{
			DumpID:      11,
			Tag:         []byte("SCHEMA acme_dbo"),
			Description: []byte("ACL"),
			Defn:        []byte("GRANT ALL ON SCHEMA acme_dbo TO acme_db_owner;\nGRANT acme_guest TO acme_dbo;"),
		},
		{
			DumpID:      12,
			Tag:         []byte("TABLE sometable"),
			Description: []byte("TABLE"),
			Defn:        []byte("CREATE TABLE acme_dbo.sometable (id integer);"),
			DropStmt:    []byte("DROP TABLE acme_dbo.sometable;"),
			Namespace:   []byte("acme_dbo"),
			Owner:       []byte("acme_db_owner"),
		},
	}
	for i, table := range trackedTables {
		entries = append(entries, &Entry{
			DumpID:      int32(100 + i),
			HadDumper:   1,
			Tag:         []byte(table),
			Description: []byte("TABLE DATA"),
			CopyStmt:    []byte("COPY sys." + table + " FROM stdin;"),
			Namespace:   []byte("sys"),
			Filename:    []byte(fmt.Sprintf("4%d00.dat", i)),
		})
	}
	return entries
}

func TestRewriteRetargetsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTocFile(t, dir, scenarioEntries())

	rows := map[string]string{
		"4000.dat": "acme\tdbo\tacme_dbo\n\\.\n",
		"4100.dat": "acme\tsome_function\tnot_acme_field\n\\.\n",
		"4200.dat": "acme\tdbo\tacme_dbo\t1\n\\.\n",
		"4300.dat": "1\tacme\tacme_db_owner\n\\.\n",
	}
	for name, content := range rows {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	var lines []string
	sink := func(line string) { lines = append(lines, line) }
	require.NoError(t, Rewrite(dir, "bolt", sink))

	entries := readTocEntries(t, filepath.Join(dir, TocFilename))
	require.Len(t, entries, 7)

	assert.Equal(t, []byte("bolt_dbo"), entries[0].Tag)
	assert.Equal(t, []byte("CREATE SCHEMA bolt_dbo;"), entries[0].Defn)
	assert.Equal(t, []byte("bolt_db_owner"), entries[0].Owner)

	assert.Equal(t, []byte("SCHEMA bolt_dbo"), entries[1].Tag)
	assert.Equal(t, []byte("GRANT ALL ON SCHEMA bolt_dbo TO bolt_db_owner;\nGRANT bolt_guest TO bolt_dbo;"), entries[1].Defn)

	assert.Equal(t, []byte("CREATE TABLE bolt_dbo.sometable (id integer);"), entries[2].Defn)
	assert.Equal(t, []byte("bolt_dbo"), entries[2].Namespace)

	// Catalog export tags and filenames stay untouched.
	assert.Equal(t, []byte("babelfish_authid_user_ext"), entries[3].Tag)
	assert.Equal(t, []byte("4000.dat"), entries[3].Filename)

	got, err := os.ReadFile(filepath.Join(dir, "4000.dat"))
	require.NoError(t, err)
	assert.Equal(t, "bolt\tdbo\tbolt_dbo\n\\.\n", string(got))

	got, err = os.ReadFile(filepath.Join(dir, "4100.dat"))
	require.NoError(t, err)
	assert.Equal(t, "bolt\tsome_function\tnot_acme_field\n\\.\n", string(got))

	// The pre-images survive under .orig.
	for _, name := range []string{TocFilename, "4000.dat", "4100.dat", "4200.dat", "4300.dat"} {
		_, err := os.Stat(filepath.Join(dir, name+".orig"))
		assert.NoError(t, err, name)
	}
	orig, err := os.ReadFile(filepath.Join(dir, "4000.dat.orig"))
	require.NoError(t, err)
	assert.Equal(t, rows["4000.dat"], string(orig))

	assert.Contains(t, lines, "Original database name: acme")
	assert.Contains(t, lines, "TOC entries: 7")
}

func TestRewriteWithoutSchemaEntryCopiesVerbatim(t *testing.T) {
	dir := t.TempDir()
	writeTocFile(t, dir, []*Entry{
		{
			DumpID:      1,
			Tag:         []byte("TABLE plain"),
			Description: []byte("TABLE"),
			Defn:        []byte("CREATE TABLE plain (id integer);"),
		},
	})
	before, err := os.ReadFile(filepath.Join(dir, TocFilename))
	require.NoError(t, err)

	var lines []string
	require.NoError(t, Rewrite(dir, "bolt", func(line string) { lines = append(lines, line) }))

	after, err := os.ReadFile(filepath.Join(dir, TocFilename))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Contains(t, lines, "No schema entry found, TOC left unchanged")
}

func TestRewriteFailsWhenTrackedTableMissing(t *testing.T) {
	dir := t.TempDir()
	entries := scenarioEntries()
	// Drop the sysdatabases export.
	writeTocFile(t, dir, entries[:len(entries)-1])
	for _, name := range []string{"4000.dat", "4100.dat", "4200.dat"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("acme\trow\n"), 0o644))
	}

	err := Rewrite(dir, "bolt", nil)
	var formatErr *errdefs.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "tables", formatErr.Check)
	assert.Contains(t, formatErr.Detail, "babelfish_sysdatabases")

	// The source TOC is still in place and no rewritten leftovers remain.
	_, err = os.Stat(filepath.Join(dir, TocFilename))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, TocFilename+".rewritten"))
	assert.True(t, os.IsNotExist(err))
}

func TestRewriteTableRows(t *testing.T) {
	dir := t.TempDir()
	content := "acme\tdbo\tdb_acme\nacme_dbo\tacme_guest\tplain\n\\.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rows.dat"), []byte(content), 0o644))

	require.NoError(t, rewriteTableRows(dir, "rows.dat", "acme", "bolt"))

	got, err := os.ReadFile(filepath.Join(dir, "rows.dat"))
	require.NoError(t, err)
	// Only fields starting with the original name are rewritten, so the
	// "db_acme" field keeps its embedded occurrence.
	assert.Equal(t, "bolt\tdbo\tdb_acme\nbolt_dbo\tbolt_guest\tplain\n\\.\n", string(got))

	orig, err := os.ReadFile(filepath.Join(dir, "rows.dat.orig"))
	require.NoError(t, err)
	assert.Equal(t, content, string(orig))
}
