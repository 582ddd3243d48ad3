package parser

import (
	"strconv"
	"strings"
)

// ParsePrice converts a currency-prefixed price string to its numeric
// value. Currency symbols and thousands separators are stripped before
// parsing. The second return value reports whether the string parsed
// to a non-negative decimal; records with an unparseable price are
// tagged as unpriced upstream rather than dropped.
func ParsePrice(raw string) (float64, bool) {
	cleaned := strings.TrimSpace(raw)
	for _, symbol := range []string{"$", "£", "€"} {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}
