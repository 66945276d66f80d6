package output

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"unicode/utf8"
)

// WriteRows creates (or truncates) path and writes rows to it as a
// delimited table. See EncodeRows.
func WriteRows(path string, rows []map[string]string, delim string) (err error) {
	comma, err := delimiterRune(delim)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return &WriteError{Op: "create", Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &WriteError{Op: "close", Err: cerr}
		}
	}()

	return encodeRows(f, rows, comma)
}

// EncodeRows writes a header of the sorted union of all row keys followed by
// one line per row. Keys missing from a row are written as empty fields.
// An empty rows slice produces a single empty header line.
func EncodeRows(w io.Writer, rows []map[string]string, delim string) error {
	comma, err := delimiterRune(delim)
	if err != nil {
		return err
	}
	return encodeRows(w, rows, comma)
}

func encodeRows(w io.Writer, rows []map[string]string, comma rune) error {
	header := Columns(rows)

	cw := csv.NewWriter(w)
	cw.Comma = comma

	if err := cw.Write(header); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	line := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			line[i] = row[col]
		}
		if err := cw.Write(line); err != nil {
			return &WriteError{Op: "write", Err: err}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return &WriteError{Op: "flush", Err: err}
	}
	return nil
}

// Columns returns the sorted union of keys across rows.
func Columns(rows []map[string]string) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}

	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func delimiterRune(delim string) (rune, error) {
	r, size := utf8.DecodeRuneInString(delim)
	if size == 0 || size != len(delim) || r == utf8.RuneError {
		return 0, ErrInvalidDelimiter
	}
	switch r {
	case 0, '"', '\r', '\n':
		return 0, ErrInvalidDelimiter
	}
	return r, nil
}
