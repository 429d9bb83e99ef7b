package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"botnet-detector/internal/features"
)

// naTokens are read as missing values.
var naTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"-NaN": true,
	"-nan": true,
	"NULL": true,
	"null": true,
	"None": true,
	"<NA>": true,
	"#N/A": true,
}

// Dataset is a raw string table with a header row.
type Dataset struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// LoadCSV reads a header-first CSV file.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return ds, nil
}

func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, err
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	ds := &Dataset{Columns: columns}
	if err := ds.reindex(); err != nil {
		return nil, err
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		ds.Rows = append(ds.Rows, row)
	}
	if len(ds.Rows) == 0 {
		return nil, errors.New("dataset has no rows")
	}
	return ds, nil
}

func (d *Dataset) reindex() error {
	d.index = make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		if _, dup := d.index[c]; dup {
			return fmt.Errorf("duplicate column %q", c)
		}
		d.index[c] = i
	}
	return nil
}

func (d *Dataset) Len() int {
	return len(d.Rows)
}

func (d *Dataset) Has(column string) bool {
	_, ok := d.index[column]
	return ok
}

// DropColumns removes the named columns; unknown names are ignored.
func (d *Dataset) DropColumns(names ...string) []string {
	drop := make(map[int]bool)
	var dropped []string
	for _, n := range names {
		if i, ok := d.index[n]; ok {
			drop[i] = true
			dropped = append(dropped, n)
		}
	}
	if len(drop) == 0 {
		return nil
	}

	keep := make([]int, 0, len(d.Columns)-len(drop))
	for i := range d.Columns {
		if !drop[i] {
			keep = append(keep, i)
		}
	}
	d.Columns = pick(d.Columns, keep)
	for r, row := range d.Rows {
		d.Rows[r] = pick(row, keep)
	}
	_ = d.reindex()
	return dropped
}

func pick(row []string, keep []int) []string {
	out := make([]string, len(keep))
	for i, k := range keep {
		out[i] = row[k]
	}
	return out
}

// FillMissing replaces missing cells with value and returns how many were
// replaced.
func (d *Dataset) FillMissing(value string) int {
	filled := 0
	for _, row := range d.Rows {
		for i, v := range row {
			if naTokens[strings.TrimSpace(v)] {
				row[i] = value
				filled++
			}
		}
	}
	return filled
}

// Clean applies the training-time cleaning: identifying columns are dropped
// and missing cells are zero-filled. Anything scored against a bundle from
// CSV must go through it so rows vectorize as they did in training.
func (d *Dataset) Clean(dropColumns []string) (dropped []string, filled int) {
	dropped = d.DropColumns(dropColumns...)
	filled = d.FillMissing(MissingValue)
	return dropped, filled
}

// Record returns row r as a field map keyed by column name.
func (d *Dataset) Record(r int) map[string]string {
	rec := make(map[string]string, len(d.Columns))
	for i, name := range d.Columns {
		rec[name] = d.Rows[r][i]
	}
	return rec
}

// Column returns a copy of one column's values.
func (d *Dataset) Column(name string) ([]string, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]string, len(d.Rows))
	for r, row := range d.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// StringColumns lists, in column order, the columns holding at least one
// non-numeric value.
func (d *Dataset) StringColumns() []string {
	var names []string
	for i, c := range d.Columns {
		for _, row := range d.Rows {
			if _, err := features.ParseNumeric(row[i]); err != nil {
				names = append(names, c)
				break
			}
		}
	}
	return names
}

// SetColumn overwrites one column.
func (d *Dataset) SetColumn(name string, values []string) error {
	i, ok := d.index[name]
	if !ok {
		return fmt.Errorf("column %q not found", name)
	}
	if len(values) != len(d.Rows) {
		return fmt.Errorf("column %q: have %d values for %d rows", name, len(values), len(d.Rows))
	}
	for r, row := range d.Rows {
		row[i] = values[r]
	}
	return nil
}

// Row exposes row r as a features.FieldSource.
func (d *Dataset) Row(r int) features.FieldSource {
	return datasetRow{ds: d, row: d.Rows[r]}
}

type datasetRow struct {
	ds  *Dataset
	row []string
}

func (r datasetRow) Field(name string) (string, bool) {
	i, ok := r.ds.index[name]
	if !ok {
		return "", false
	}
	return r.row[i], true
}
