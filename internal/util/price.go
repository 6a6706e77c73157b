package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pricePattern     = regexp.MustCompile(`(\d{1,3}(?:[\s.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`)
	thousandsDot     = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	thousandsComma   = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	mixedCommaDot    = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+\.\d{1,2}$`)
	mixedDotComma    = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+,\d{1,2}$`)
	groupedWithSpace = regexp.MustCompile(`^\d{1,3}(?:\s\d{3})+`)
)

// ParsePrice extracts the first monetary amount from visible price text such
// as "$2.90 USD", "2,90€" or "1,234.50". Currency symbols are ignored.
func ParsePrice(input string) *float64 {
	line := strings.ReplaceAll(input, "\u00A0", " ")
	m := pricePattern.FindStringSubmatch(line)
	if len(m) < 2 {
		return nil
	}
	norm := normalizeNumericToken(strings.TrimSpace(m[1]))
	parsed, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return nil
	}
	return FloatPtr(parsed)
}

// ParseCents reads an integer amount of minor currency units and converts it to
// major units.
func ParseCents(input string) *float64 {
	cents, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || cents < 0 {
		return nil
	}
	return FloatPtr(float64(cents) / 100)
}

func normalizeNumericToken(token string) string {
	compact := token
	if groupedWithSpace.MatchString(compact) {
		compact = strings.ReplaceAll(compact, " ", "")
	}
	switch {
	case mixedCommaDot.MatchString(compact):
		return strings.ReplaceAll(compact, ",", "")
	case mixedDotComma.MatchString(compact):
		compact = strings.ReplaceAll(compact, ".", "")
		return strings.ReplaceAll(compact, ",", ".")
	case thousandsDot.MatchString(compact):
		return strings.ReplaceAll(compact, ".", "")
	case thousandsComma.MatchString(compact):
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
