package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// EnergyKeywords select the columns of interest in engine CSV outputs.
var EnergyKeywords = []string{"Energy", "Electricity", "Gas", "Heating", "Cooling"}

const timestampColumn = "Date/Time"

// ErrEmptyTable is returned for a CSV without a header row.
var ErrEmptyTable = errors.New("empty table")

// ColumnSummary aggregates one numeric column.
type ColumnSummary struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Total float64 `json:"total"`
	Mean  float64 `json:"mean"`
	Peak  float64 `json:"peak"`
}

// TableSummary describes one engine CSV output.
type TableSummary struct {
	Rows    int             `json:"rows"`
	Columns int             `json:"columns"`
	Summary []ColumnSummary `json:"summary"`
}

// SummarizeTable totals every column whose name contains one of keywords.
// With no keywords every column except the timestamp is considered.
// Columns that sum to zero are omitted.
func SummarizeTable(r io.Reader, keywords []string) (TableSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return TableSummary{}, ErrEmptyTable
	}
	if err != nil {
		return TableSummary{}, fmt.Errorf("read header: %w", err)
	}

	var idx []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == timestampColumn {
			continue
		}
		if len(keywords) == 0 || containsAny(name, keywords) {
			idx = append(idx, i)
		}
	}

	cols := make([][]float64, len(idx))
	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return TableSummary{}, fmt.Errorf("read row %d: %w", rows+1, err)
		}
		rows++
		for j, i := range idx {
			if i >= len(rec) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				continue
			}
			cols[j] = append(cols[j], v)
		}
	}

	out := TableSummary{Rows: rows, Columns: len(header)}
	for j, i := range idx {
		vals := cols[j]
		if len(vals) == 0 {
			continue
		}
		total := floats.Sum(vals)
		if total == 0 {
			continue
		}
		out.Summary = append(out.Summary, ColumnSummary{
			Name:  strings.TrimSpace(header[i]),
			Count: len(vals),
			Total: total,
			Mean:  total / float64(len(vals)),
			Peak:  floats.Max(vals),
		})
	}
	return out, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
