package rules

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Compiled patterns are cached per process; rules re-run on every invoice and
// recompiling on each evaluation would dominate the pipeline.
var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

// maxPatternLen caps synthesized patterns; anything longer is treated as
// malformed rather than handed to the regexp engine.
const maxPatternLen = 512

func compilePattern(pattern string) *regexp.Regexp {
	if pattern == "" || len(pattern) > maxPatternLen {
		return nil
	}
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		patternCache[pattern] = nil
		return nil
	}
	patternCache[pattern] = re
	return re
}

// regexExtract returns capture group n of the first match, or nil.
func regexExtract(pattern, text string, group int) any {
	re := compilePattern(pattern)
	if re == nil || group < 0 {
		return nil
	}
	m := re.FindStringSubmatch(text)
	if m == nil || group >= len(m) {
		return nil
	}
	return m[group]
}

func regexTest(pattern, text string) bool {
	re := compilePattern(pattern)
	return re != nil && re.MatchString(text)
}

// mapLookup resolves a description against an ordered lookup table:
// exact normalized match first, then substring containment in table order.
func mapLookup(table []MapEntry, key string) any {
	norm := strings.ToLower(strings.TrimSpace(key))
	if norm == "" {
		return nil
	}
	for _, e := range table {
		if e.Key == norm {
			return e.Value
		}
	}
	for _, e := range table {
		if e.Key != "" && strings.Contains(norm, e.Key) {
			return e.Value
		}
	}
	return nil
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02.01.06",
	"02/01/2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeDateISO renders any recognized date shape as YYYY-MM-DD.
func normalizeDateISO(s string) any {
	t, ok := parseDate(s)
	if !ok {
		return nil
	}
	return t.Format("2006-01-02")
}

// normalizeDateGerman renders any recognized date shape as DD.MM.YYYY.
func normalizeDateGerman(s string) any {
	t, ok := parseDate(s)
	if !ok {
		return nil
	}
	return t.Format("02.01.2006")
}

var numberRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// extractNumber returns the first numeric literal in s, accepting both
// decimal-point and decimal-comma notation.
func extractNumber(s string) any {
	m := numberRe.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return nil
	}
	return f
}

// currencyCodes is the closed set of recognized codes, checked in order.
var currencyCodes = []string{"EUR", "USD", "GBP", "CHF", "JPY"}

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"€", "EUR"},
	{"$", "USD"},
	{"£", "GBP"},
	{"¥", "JPY"},
}

// extractCurrency returns the first known currency code or symbol in s.
func extractCurrency(s string) any {
	upper := strings.ToUpper(s)
	for _, code := range currencyCodes {
		if strings.Contains(upper, code) {
			return code
		}
	}
	for _, cs := range currencySymbols {
		if strings.Contains(s, cs.symbol) {
			return cs.code
		}
	}
	return nil
}
