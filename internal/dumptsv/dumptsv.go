// Package dumptsv writes result and failure streams to a tab-separated
// file for debugging and offline inspection, generalizing the teacher's
// terminal printTable helper from an aligned-column display to a proper
// delimited file format.
package dumptsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/mirrorkit/fedget/internal/streams"
)

// idxColumn is always the first column (so the file sorts the same way
// GetAll already returns it); collectColumns adds every other field name
// encountered, alphabetized for determinism.
const idxColumn = "idx"

// WriteResults writes entries (as returned by ResultStream.GetAll) to w as
// TSV: one header row of column names, one row per entry.
func WriteResults(w io.Writer, entries []streams.Entry) error {
	return writeEntries(w, entries)
}

// WriteFailures writes failure entries (as returned by
// FailureStream.GetAll) to w as TSV, same layout as WriteResults.
func WriteFailures(w io.Writer, entries []streams.Entry) error {
	return writeEntries(w, entries)
}

func writeEntries(w io.Writer, entries []streams.Entry) error {
	columns := collectColumns(entries)

	tw := csv.NewWriter(w)
	tw.Comma = '\t'

	if err := tw.Write(columns); err != nil {
		return fmt.Errorf("dumptsv: writing header: %w", err)
	}

	for _, e := range entries {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = fmt.Sprint(e[col])
		}

		if err := tw.Write(row); err != nil {
			return fmt.Errorf("dumptsv: writing row: %w", err)
		}
	}

	tw.Flush()

	return tw.Error()
}

// collectColumns gathers every key present across entries, with idx
// pinned first and the rest alphabetized, so column order is stable
// regardless of map iteration order.
func collectColumns(entries []streams.Entry) []string {
	seen := map[string]bool{idxColumn: true}
	rest := []string{}

	for _, e := range entries {
		for k := range e {
			if k == idxColumn || seen[k] {
				continue
			}

			seen[k] = true

			rest = append(rest, k)
		}
	}

	sort.Strings(rest)

	return append([]string{idxColumn}, rest...)
}
