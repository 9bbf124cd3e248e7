package toc

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
)

// TocFilename is the TOC file inside a directory-format dump.
const TocFilename = "toc.dat"

const (
	schemaSuffix   = "_dbo"
	origBackupExt  = ".orig"
	rewrittenExt   = ".rewritten"
	schemaObjDescr = "SCHEMA"
)

// roleSuffixes derive the three per-database ownership roles from a
// logical database name.
var roleSuffixes = []string{"_dbo", "_db_owner", "_guest"}

// trackedTables are the catalog exports whose row data embeds the
// logical database name and must be rewritten alongside the TOC.
var trackedTables = []string{
	"babelfish_authid_user_ext",
	"babelfish_function_ext",
	"babelfish_namespace_ext",
	"babelfish_sysdatabases",
}

// ProgressSink receives human-readable progress lines.
type ProgressSink func(line string)

// isRoleDeclTag reports whether tag is the declaration entry of one of
// the derived roles itself (bare or as "SCHEMA {role}"). Such entries
// must never be matched in qualified (trailing-dot) form, or the role
// name would pick up a spurious dot.
func isRoleDeclTag(tag, origDB string) bool {
	for _, suf := range roleSuffixes {
		role := origDB + suf
		if tag == role || tag == schemaObjDescr+" "+role {
			return true
		}
	}
	return false
}

// replaceIdentity rewrites the db-derived role tokens inside field.
// When canQualify is set the tokens are matched both bare and with a
// trailing dot, so qualified references like "db_dbo.sometable" are
// retargeted without touching unrelated identifiers that merely contain
// the token as a substring of a longer word followed by a dot elsewhere.
func replaceIdentity(tag, field []byte, origDB, newDB string, canQualify bool) []byte {
	if field == nil {
		return nil
	}
	qualify := canQualify && !isRoleDeclTag(string(tag), origDB)
	pairs := make([]string, 0, 12)
	for _, suf := range roleSuffixes {
		needle := origDB + suf
		repl := newDB + suf
		if qualify {
			// Dotted needles first so they win at equal positions.
			pairs = append(pairs, needle+".", repl+".")
		}
		pairs = append(pairs, needle, repl)
	}
	return []byte(strings.NewReplacer(pairs...).Replace(string(field)))
}

// rewriteEntry retargets the identifier fields of e from origDB to
// newDB. The tag is rewritten last: the qualify decision for every
// other field reads the entry's current (original) tag.
func rewriteEntry(e *Entry, origDB, newDB string) {
	if origDB == "" {
		return
	}
	e.Defn = replaceIdentity(e.Tag, e.Defn, origDB, newDB, true)
	e.CopyStmt = replaceIdentity(e.Tag, e.CopyStmt, origDB, newDB, true)
	e.DropStmt = replaceIdentity(e.Tag, e.DropStmt, origDB, newDB, true)
	e.Namespace = replaceIdentity(e.Tag, e.Namespace, origDB, newDB, false)
	e.Owner = replaceIdentity(e.Tag, e.Owner, origDB, newDB, false)
	e.Tag = replaceIdentity(e.Tag, e.Tag, origDB, newDB, false)
}

// Rewrite retargets the TOC in dir to newDB in a single streaming pass:
// header and entry count are copied with validation, each entry is read,
// rewritten and written out, and the four tracked catalog exports are
// rewritten afterwards. The original toc.dat is kept as toc.dat.orig and
// the rewritten file takes its place.
//
// The original database name is discovered on the fly from the schema
// entry tagged "{name}_dbo". If no such entry exists the identifier
// rewriting is a no-op and the pass degrades to a byte-for-byte copy.
func Rewrite(dir, newDB string, sink ProgressSink) error {
	srcPath := filepath.Join(dir, TocFilename)
	destPath := filepath.Join(dir, TocFilename+rewrittenExt)

	origDB, dataFiles, err := rewritePass(srcPath, destPath, newDB, sink)
	if err != nil {
		os.Remove(destPath)
		return err
	}

	if origDB == "" {
		if sink != nil {
			sink("No schema entry found, TOC left unchanged")
		}
	} else {
		if sink != nil {
			sink(fmt.Sprintf("Original database name: %s", origDB))
		}
		for _, table := range trackedTables {
			filename, ok := dataFiles[table]
			if !ok {
				os.Remove(destPath)
				return &errdefs.FormatError{Check: "tables", Detail: "table not found: " + table}
			}
			if sink != nil {
				sink(fmt.Sprintf("Rewriting table: %s, file: %s", table, filename))
			}
			if err := rewriteTableRows(dir, filename, origDB, newDB); err != nil {
				os.Remove(destPath)
				return err
			}
		}
	}

	if err := os.Rename(srcPath, srcPath+origBackupExt); err != nil {
		return &errdefs.IOError{Path: srcPath, Err: err}
	}
	if err := os.Rename(destPath, srcPath); err != nil {
		return &errdefs.IOError{Path: destPath, Err: err}
	}
	return nil
}

// rewritePass streams srcPath into destPath, returning the discovered
// original database name and the tag-to-data-file mapping.
func rewritePass(srcPath, destPath, newDB string, sink ProgressSink) (string, map[string]string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", nil, &errdefs.IOError{Path: srcPath, Err: err}
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return "", nil, &errdefs.IOError{Path: destPath, Err: err}
	}
	defer dest.Close()

	r := bufio.NewReader(src)
	w := bufio.NewWriter(dest)

	if err := CopyHeader(r, w); err != nil {
		return "", nil, err
	}
	count, err := copyInt(r, w)
	if err != nil {
		return "", nil, err
	}
	if sink != nil {
		sink(fmt.Sprintf("TOC entries: %d", count))
	}

	dataFiles := make(map[string]string)
	origDB := ""
	for i := int32(0); i < count; i++ {
		e, err := ReadEntry(r)
		if err != nil {
			return "", nil, err
		}
		tag := string(e.Tag)
		if origDB == "" && strings.HasSuffix(tag, schemaSuffix) && string(e.Description) == schemaObjDescr {
			origDB = strings.TrimSuffix(tag, schemaSuffix)
		}
		if len(e.Filename) > 0 {
			dataFiles[tag] = string(e.Filename)
		}
		rewriteEntry(e, origDB, newDB)
		if err := WriteEntry(w, e); err != nil {
			return "", nil, err
		}
	}

	if err := w.Flush(); err != nil {
		return "", nil, &errdefs.IOError{Path: destPath, Err: err}
	}
	if err := dest.Close(); err != nil {
		return "", nil, &errdefs.IOError{Path: destPath, Err: err}
	}
	return origDB, dataFiles, nil
}
