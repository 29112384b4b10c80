package partition

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// WriteRows replaces the file at path with rows. The file is written to a
// temporary sibling and renamed into place, so a reader never observes a
// partially written file.
func WriteRows(path string, rows []Row) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fsError("create", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	err = w.Write(Header)
	if err == nil {
		for _, r := range rows {
			err = w.Write(r.values())
			if err != nil {
				break
			}
		}
	}
	if err == nil {
		w.Flush()
		err = w.Error()
	}
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return fsError("write", path, err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return fsError("rename", path, err)
	}
	return nil
}

// ReadRows reads a file written by WriteRows. A zero-byte file holds no rows.
func ReadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fsError("open", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fsError("read", path, err)
	}
	if !slices.Equal(header, Header) {
		return nil, fsError("read", path, errors.New("unexpected header"))
	}

	var rows []Row
	for {
		values, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fsError("read", path, err)
		}
		row, err := rowFromValues(values)
		if err != nil {
			return nil, fsError("read", path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
