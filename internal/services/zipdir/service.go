// Package zipdir converts between directory-format dumps and store-only
// zip archives. Entry names are relative to the source directory's
// parent, so the archive root matches the directory's own basename and
// unpacking elsewhere reproduces it literally.
package zipdir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
)

// ProgressSink receives one line per archive event.
type ProgressSink func(line string)

// Service defines the interface for directory/archive packaging.
type Service interface {
	Pack(srcDir, destZip string, level int, sink ProgressSink) error
	Unpack(zipPath, destParent string, sink ProgressSink) (string, error)
}

// Impl implements the zipdir Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new zipdir service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Pack walks srcDir recursively and writes a zip archive to destZip.
// Only level 0 (stored) is supported; any other level is rejected
// instead of silently compressing. The archive is written to a temp
// file first and moved into place on success.
func (s *Impl) Pack(srcDir, destZip string, level int, sink ProgressSink) error {
	if level != 0 {
		return fmt.Errorf("compression level %d not supported, only 0 (stored)", level)
	}
	info, err := os.Stat(srcDir)
	if err != nil {
		return &errdefs.IOError{Path: srcDir, Err: err}
	}
	if !info.IsDir() {
		return &errdefs.IOError{Path: srcDir, Err: fmt.Errorf("not a directory")}
	}

	tmp, err := os.CreateTemp(filepath.Dir(destZip), "bbfbackup-*.tmp")
	if err != nil {
		return &errdefs.IOError{Path: destZip, Err: err}
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if err := s.writeArchive(tmp, srcDir, sink); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return &errdefs.IOError{Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, destZip); err != nil {
		return &errdefs.IOError{Path: destZip, Err: err}
	}

	s.logger.Debug().Str("source", srcDir).Str("archive", destZip).Msg("directory packed")
	return nil
}

func (s *Impl) writeArchive(dest io.Writer, srcDir string, sink ProgressSink) (retErr error) {
	zw := zip.NewWriter(dest)
	defer func() {
		if err := zw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("zip writer close failed: %w", err)
		}
	}()

	// Names are relative to the parent so srcDir's basename becomes
	// the archive root.
	prefix := filepath.Dir(srcDir)

	return filepath.WalkDir(srcDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &errdefs.IOError{Path: path, Err: walkErr}
		}
		if path == srcDir {
			// The root itself gets no explicit entry.
			return nil
		}
		rel, err := filepath.Rel(prefix, path)
		if err != nil {
			return &errdefs.IOError{Path: path, Err: err}
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			// Written explicitly: some unzip tools do not create
			// intermediate directories from file paths alone.
			if _, err := zw.Create(name + "/"); err != nil {
				return fmt.Errorf("zip directory entry %s: %w", name, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return &errdefs.IOError{Path: path, Err: err}
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("zip header %s: %w", name, err)
		}
		header.Name = name
		header.Method = zip.Store

		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", name, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return &errdefs.IOError{Path: path, Err: err}
		}
		defer f.Close()
		if _, err := io.Copy(w, f); err != nil {
			return &errdefs.IOError{Path: path, Err: err}
		}
		if sink != nil {
			sink(name)
		}
		return nil
	})
}

// Unpack extracts zipPath into destParent and returns the name of the
// top-level directory found inside the archive.
func (s *Impl) Unpack(zipPath, destParent string, sink ProgressSink) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", &errdefs.IOError{Path: zipPath, Err: err}
	}
	defer zr.Close()

	topDir := ""
	for _, f := range zr.File {
		name := filepath.ToSlash(f.Name)
		if strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
			return "", fmt.Errorf("unsafe path in archive: %s", f.Name)
		}
		if topDir == "" {
			topDir = strings.SplitN(name, "/", 2)[0]
		}
		destPath := filepath.Join(destParent, filepath.FromSlash(name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return "", &errdefs.IOError{Path: destPath, Err: err}
			}
		} else {
			if err := extractFile(f, destPath); err != nil {
				return "", err
			}
		}
		if sink != nil {
			sink(name)
		}
	}
	if topDir == "" {
		return "", fmt.Errorf("empty archive: %s", zipPath)
	}

	s.logger.Debug().Str("archive", zipPath).Str("dir", topDir).Msg("archive unpacked")
	return topDir, nil
}

func extractFile(f *zip.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return &errdefs.IOError{Path: destPath, Err: err}
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &errdefs.IOError{Path: destPath, Err: err}
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return &errdefs.IOError{Path: destPath, Err: err}
	}
	return dest.Close()
}
