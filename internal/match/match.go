// Package match implements the approximate string matching used for vendor
// resolution. The scoring is an explicit normalized edit distance (0 =
// identical, 1 = nothing in common) so that score direction and tie-breaking
// are part of this codebase's contract instead of a library's ranking.
package match

import (
	"regexp"
	"strings"
)

// entitySuffixes mirrors the normalization applied before name comparison:
// legal-form suffixes carry no identity signal and only inflate distances.
var entitySuffixes = regexp.MustCompile(
	`(?i)\s*,?\s*(GMBH|AG|KG|GMBH\s*&\s*CO\.?\s*KG|UG|E\.?V\.?|` +
		`LLC|L\.?L\.?C\.?|INC\.?|INCORPORATED|CORP\.?|CORPORATION|` +
		`CO\.?|COMPANY|LTD\.?|LIMITED|SARL|S\.?A\.?)\s*\.?\s*$`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// Normalize uppercases a vendor name, strips legal-form suffixes and
// collapses whitespace.
func Normalize(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = entitySuffixes.ReplaceAllString(n, "")
	n = multiSpace.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// Distance returns the normalized edit distance between two strings after
// Normalize: levenshtein(a, b) / max(len(a), len(b)), in [0, 1].
func Distance(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 0
	}
	ra, rb := []rune(na), []rune(nb)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}
	return float64(levenshtein(ra, rb)) / float64(longest)
}

// levenshtein computes the classic edit distance with a two-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Candidate is one searchable name with the record it belongs to.
type Candidate struct {
	Name     string
	RecordID string
}

// Best scores query against every candidate and returns the record with the
// lowest distance strictly below threshold. Ties keep the earlier candidate:
// scores are compared strictly, so insertion order of the searched set is the
// tie-breaker.
func Best(query string, candidates []Candidate, threshold float64) (recordID string, score float64, ok bool) {
	var best float64
	var found bool
	for _, c := range candidates {
		d := Distance(query, c.Name)
		if d >= threshold {
			continue
		}
		if !found || d < best {
			best, recordID, found = d, c.RecordID, true
		}
	}
	return recordID, best, found
}
