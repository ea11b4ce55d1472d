package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown manifest keys are detected.
const maxLevenshteinDistance = 3

// knownMirrorKeys are the valid fields inside a [[mirror]] table.
var knownMirrorKeys = map[string]bool{
	"name": true, "server": true, "dir": true, "transport": true,
	"transport_ver": true, "bw_limit_mbps": true, "queue_depth": true, "timeout_ms": true,
}

// knownRetryKeys are the valid fields inside the [retry] table.
var knownRetryKeys = map[string]bool{
	"max_retries": true, "history_len": true,
}

var knownMirrorKeysList = sortedKeys(knownMirrorKeys)
var knownRetryKeysList = sortedKeys(knownRetryKeys)

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys left over
// inside [[mirror]] and [retry] tables (resource tables are decoded as
// map[string]any and never leave anything undecoded) and returns an error
// with "did you mean?" suggestions for each.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		parts := key.String()

		switch {
		case strings.HasPrefix(parts, "mirror."):
			field := strings.TrimPrefix(parts, "mirror.")
			if err := buildKeyError("mirror", field, knownMirrorKeys, knownMirrorKeysList); err != nil {
				errs = append(errs, err)
			}
		case strings.HasPrefix(parts, "retry."):
			field := strings.TrimPrefix(parts, "retry.")
			if err := buildKeyError("retry", field, knownRetryKeys, knownRetryKeysList); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func buildKeyError(table, field string, known map[string]bool, knownList []string) error {
	if known[field] {
		return nil
	}

	if suggestion := closestMatch(field, knownList); suggestion != "" {
		return fmt.Errorf("unknown key %q in [%s] — did you mean %q?", field, table, suggestion)
	}

	return fmt.Errorf("unknown key %q in [%s]", field, table)
}

// closestMatch finds the closest known key by Levenshtein distance. Returns
// empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 0; i < len(a); i++ {
		curr[0] = i + 1

		for j := 0; j < len(b); j++ {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
