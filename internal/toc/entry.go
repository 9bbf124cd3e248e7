package toc

import "io"

// Entry is one TOC record describing a single dumped object. Optional
// fields are nil when absent in the file; a present-but-empty field is a
// non-nil empty slice, and the two serialize differently.
type Entry struct {
	DumpID        int32
	HadDumper     int32
	TableOID      []byte
	CatalogOID    []byte
	Tag           []byte
	Description   []byte
	Section       int32
	Defn          []byte
	DropStmt      []byte
	CopyStmt      []byte
	Namespace     []byte
	Tablespace    []byte
	TableAM       []byte
	Owner         []byte
	TableWithOIDs []byte
	Deps          [][]byte
	Filename      []byte
}

// ReadEntry reads one TOC entry. The dependency list is terminated by an
// absent string in the file and is never nil in memory.
func ReadEntry(r io.Reader) (*Entry, error) {
	var e Entry
	var err error
	if e.DumpID, err = ReadInt(r); err != nil {
		return nil, err
	}
	if e.HadDumper, err = ReadInt(r); err != nil {
		return nil, err
	}
	if e.TableOID, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.CatalogOID, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.Tag, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.Description, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.Section, err = ReadInt(r); err != nil {
		return nil, err
	}
	if e.Defn, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.DropStmt, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.CopyStmt, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.Namespace, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.Tablespace, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.TableAM, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.Owner, err = ReadOptString(r); err != nil {
		return nil, err
	}
	if e.TableWithOIDs, err = ReadOptString(r); err != nil {
		return nil, err
	}
	e.Deps = make([][]byte, 0, 4)
	for {
		dep, err := ReadOptString(r)
		if err != nil {
			return nil, err
		}
		if dep == nil {
			break
		}
		e.Deps = append(e.Deps, dep)
	}
	if e.Filename, err = ReadOptString(r); err != nil {
		return nil, err
	}
	return &e, nil
}

// WriteEntry writes e in the field order ReadEntry expects, including
// the absent-string terminator after the dependency list.
func WriteEntry(w io.Writer, e *Entry) error {
	if err := WriteInt(w, e.DumpID); err != nil {
		return err
	}
	if err := WriteInt(w, e.HadDumper); err != nil {
		return err
	}
	for _, b := range [][]byte{e.TableOID, e.CatalogOID, e.Tag, e.Description} {
		if err := WriteOptString(w, b); err != nil {
			return err
		}
	}
	if err := WriteInt(w, e.Section); err != nil {
		return err
	}
	for _, b := range [][]byte{
		e.Defn, e.DropStmt, e.CopyStmt, e.Namespace,
		e.Tablespace, e.TableAM, e.Owner, e.TableWithOIDs,
	} {
		if err := WriteOptString(w, b); err != nil {
			return err
		}
	}
	for _, dep := range e.Deps {
		if dep == nil {
			dep = []byte{}
		}
		if err := WriteOptString(w, dep); err != nil {
			return err
		}
	}
	if err := WriteOptString(w, nil); err != nil {
		return err
	}
	return WriteOptString(w, e.Filename)
}
