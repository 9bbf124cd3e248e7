package toc

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
)

// Catalog rows can carry sizeable function bodies.
const maxRowLen = 16 * 1024 * 1024

// rewriteTableRows rewrites the tab-separated rows of one catalog
// export: every field that starts with origDB has all its occurrences of
// origDB replaced with newDB, other fields are left alone. The file is
// swapped atomically, keeping the pre-image under a ".orig" suffix.
func rewriteTableRows(dir, filename, origDB, newDB string) error {
	srcPath := filepath.Join(dir, filename)
	tmpPath := filepath.Join(dir, filename+rewrittenExt)

	if err := rewriteRowsFile(srcPath, tmpPath, origDB, newDB); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(srcPath, srcPath+origBackupExt); err != nil {
		return &errdefs.IOError{Path: srcPath, Err: err}
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		return &errdefs.IOError{Path: tmpPath, Err: err}
	}
	return nil
}

func rewriteRowsFile(srcPath, tmpPath, origDB, newDB string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return &errdefs.IOError{Path: srcPath, Err: err}
	}
	defer src.Close()

	tmp, err := os.Create(tmpPath)
	if err != nil {
		return &errdefs.IOError{Path: tmpPath, Err: err}
	}
	defer tmp.Close()

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxRowLen)
	w := bufio.NewWriter(tmp)

	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		for i, field := range fields {
			if strings.HasPrefix(field, origDB) {
				fields[i] = strings.ReplaceAll(field, origDB, newDB)
			}
		}
		if _, err := w.WriteString(strings.Join(fields, "\t")); err != nil {
			return &errdefs.IOError{Path: tmpPath, Err: err}
		}
		if err := w.WriteByte('\n'); err != nil {
			return &errdefs.IOError{Path: tmpPath, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return &errdefs.IOError{Path: srcPath, Err: err}
	}
	if err := w.Flush(); err != nil {
		return &errdefs.IOError{Path: tmpPath, Err: err}
	}
	return tmp.Close()
}
