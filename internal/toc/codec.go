// Package toc reads and rewrites the binary table of contents of a
// directory-format dump archive. The layout is fixed: every integer is a
// sign byte followed by a 4-byte little-endian magnitude, and every
// string is length-prefixed with a negative length denoting absence.
// Bytes that are not subject to identity rewriting pass through
// unchanged.
package toc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
)

// Fixed values the header is validated against. Anything else is a dump
// this tool does not understand and must not touch.
const (
	versionMajor = 1
	versionMinor = 14

	flagIntSize    = 4
	flagOffsetSize = 8
	flagFormat     = 3
)

var magic = [5]byte{'P', 'G', 'D', 'M', 'P'}

// WriteInt writes v as the dump format's 5-byte integer: one sign byte
// (0 = non-negative, 1 = negative) followed by the little-endian
// magnitude. This is a fixed layout, not a varint.
func WriteInt(w io.Writer, v int32) error {
	var buf [5]byte
	mag := uint32(v)
	if v < 0 {
		buf[0] = 1
		mag = uint32(-int64(v))
	}
	binary.LittleEndian.PutUint32(buf[1:], mag)
	_, err := w.Write(buf[:])
	return err
}

// ReadInt reads a 5-byte integer written by WriteInt.
func ReadInt(r io.Reader) (int32, error) {
	var buf [5]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(buf[1:]))
	if buf[0] > 0 {
		v = -v
	}
	return v, nil
}

func copyInt(r io.Reader, w io.Writer) (int32, error) {
	v, err := ReadInt(r)
	if err != nil {
		return 0, err
	}
	return v, WriteInt(w, v)
}

// ReadOptString reads a length-prefixed optional string. An absent
// string decodes to nil, a present-but-empty one to a non-nil empty
// slice. The distinction is meaningful in the format and is preserved.
func ReadOptString(r io.Reader) ([]byte, error) {
	n, err := ReadInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteOptString writes b in the optional-string encoding; nil encodes
// as length -1, an empty non-nil slice as length 0.
func WriteOptString(w io.Writer, b []byte) error {
	if b == nil {
		return WriteInt(w, -1)
	}
	if err := WriteInt(w, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func copyOptString(r io.Reader, w io.Writer) ([]byte, error) {
	b, err := ReadOptString(r)
	if err != nil {
		return nil, err
	}
	return b, WriteOptString(w, b)
}

// copyString copies a string that the format requires to be present.
func copyString(name string, r io.Reader, w io.Writer) (string, error) {
	b, err := copyOptString(r, w)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", &errdefs.FormatError{Check: name, Detail: "required string is absent"}
	}
	return string(b), nil
}

func copyMagic(r io.Reader, w io.Writer) error {
	var buf [5]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	if buf != magic {
		return &errdefs.FormatError{Check: "magic", Detail: fmt.Sprintf("got %q, want %q", buf[:], magic[:])}
	}
	_, err := w.Write(buf[:])
	return err
}

func copyVersion(r io.Reader, w io.Writer) error {
	var buf [3]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	// buf[2] is the patch level and intentionally unchecked.
	if buf[0] != versionMajor || buf[1] != versionMinor {
		return &errdefs.FormatError{
			Check:  "version",
			Detail: fmt.Sprintf("got %d.%d, want %d.%d", buf[0], buf[1], versionMajor, versionMinor),
		}
	}
	_, err := w.Write(buf[:])
	return err
}

func copyFlags(r io.Reader, w io.Writer) error {
	var buf [3]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	if buf[0] != flagIntSize {
		return &errdefs.FormatError{Check: "int size", Detail: fmt.Sprintf("got %d, want %d", buf[0], flagIntSize)}
	}
	if buf[1] != flagOffsetSize {
		return &errdefs.FormatError{Check: "offset size", Detail: fmt.Sprintf("got %d, want %d", buf[1], flagOffsetSize)}
	}
	if buf[2] != flagFormat {
		return &errdefs.FormatError{Check: "format", Detail: fmt.Sprintf("got %d, want %d", buf[2], flagFormat)}
	}
	_, err := w.Write(buf[:])
	return err
}

// copyTimestamp passes the creation timestamp through: seven signed
// integers (sec, min, hour, day, month-1, year-1900, is-dst).
func copyTimestamp(r io.Reader, w io.Writer) error {
	for i := 0; i < 7; i++ {
		if _, err := copyInt(r, w); err != nil {
			return err
		}
	}
	return nil
}

// CopyHeader validates the fixed header fields and passes the whole
// header through to w unchanged. It fails with a FormatError naming the
// first check that did not hold.
func CopyHeader(r io.Reader, w io.Writer) error {
	if err := copyMagic(r, w); err != nil {
		return err
	}
	if err := copyVersion(r, w); err != nil {
		return err
	}
	if err := copyFlags(r, w); err != nil {
		return err
	}
	if _, err := copyInt(r, w); err != nil { // compression
		return err
	}
	if err := copyTimestamp(r, w); err != nil {
		return err
	}
	if _, err := copyString("dbname", r, w); err != nil {
		return err
	}
	if _, err := copyString("server version", r, w); err != nil {
		return err
	}
	if _, err := copyString("dump tool version", r, w); err != nil {
		return err
	}
	return nil
}
