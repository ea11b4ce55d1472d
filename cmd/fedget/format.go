package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
)

// formatSize returns a human-readable byte count (e.g. "1.2 MB"), used when
// rendering per-worker download totals in the interactive summary table.
func formatSize(bytes float64) string {
	switch {
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", bytes/sizeGB)
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", bytes/sizeMB)
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", bytes/sizeKB)
	default:
		return fmt.Sprintf("%.0f B", bytes)
	}
}

// itoa is a small convenience wrapper so callers building table rows don't
// need their own strconv import.
func itoa(n int) string {
	return strconv.Itoa(n)
}

// printTable writes aligned columns to the given writer. headers and each
// row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
