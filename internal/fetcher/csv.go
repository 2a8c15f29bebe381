package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Supported charsets for ReadCSV.
const (
	CharsetUTF8        = "utf-8"
	CharsetUTF8BOM     = "utf-8-sig"
	CharsetWindows1255 = "windows-1255"
)

// CSVOptions configures ReadCSV.
type CSVOptions struct {
	Charset     string // default utf-8; "cp1255" is accepted as an alias of windows-1255
	Delimiter   rune   // default ','
	UpperHeader bool   // upper-case header names
	TrimSpace   bool
}

// Table is a fully read delimited file.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a Table and its header index.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}
	return t
}

// Col returns the index of the named column, or -1.
func (t *Table) Col(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasCol reports whether the header contains name.
func (t *Table) HasCol(name string) bool {
	return t.Col(name) >= 0
}

// Get returns the named field of row, or "" when the column or field is absent.
func (t *Table) Get(row []string, name string) string {
	i := t.Col(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// DecodeReader wraps r so it yields UTF-8 for the given charset.
func DecodeReader(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", CharsetUTF8, "utf8":
		return r, nil
	case CharsetUTF8BOM:
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	case CharsetWindows1255, "cp1255":
		return transform.NewReader(r, charmap.Windows1255.NewDecoder()), nil
	default:
		return nil, eris.Errorf("csv: unsupported charset %q", charset)
	}
}

// ReadCSV reads a whole delimited file into a Table. The first row is the header.
func ReadCSV(path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := ParseCSV(f, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: %s", path)
	}
	return t, nil
}

// normalizeHeader trims header names in place, drops a leading BOM and
// optionally upper-cases them.
func normalizeHeader(header []string, upper bool) {
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if upper {
			h = strings.ToUpper(h)
		}
		header[i] = h
	}
}

// ParseCSV reads delimited data from r into a Table.
func ParseCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	dr, err := DecodeReader(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(dr)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return NewTable(nil, nil), nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	normalizeHeader(header, opts.UpperHeader)

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", len(rows)+1)
		}
		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}
		rows = append(rows, record)
	}

	return NewTable(header, rows), nil
}

// StreamOptions configures StreamCSV.
type StreamOptions struct {
	CSVOptions
	// HeaderCh receives the header row before any data row, if set.
	HeaderCh chan<- []string
}

// StreamCSV decodes r and sends data rows to a channel. The first row is the
// header. Errors are sent on the error channel. Both channels are closed when
// processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts StreamOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		dr, err := DecodeReader(r, opts.Charset)
		if err != nil {
			errCh <- err
			return
		}
		reader := csv.NewReader(dr)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if first {
				first = false
				normalizeHeader(record, opts.UpperHeader)
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
