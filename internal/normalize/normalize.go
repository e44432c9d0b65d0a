// Package normalize coerces raw source fields into the canonical values
// stored by the reconcilers. Every helper maps empty or unusable input to
// nil instead of failing.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// DateLayout is the canonical textual form of parsed dates.
const DateLayout = "2006-01-02 15:04:05"

// ErrUnparseableDate is returned by ParseDate for non-empty input that is not a date.
var ErrUnparseableDate = eris.New("normalize: unparseable date")

var (
	currencyRe   = regexp.MustCompile(`(?i)\b(eur|usd|dollars?)\b`)
	nonNumericRe = regexp.MustCompile(`[^\d.,-]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// Text trims, lowercases and NFC-normalizes raw. Blank input yields nil.
func Text(raw string) *string {
	s := strings.ToLower(strings.TrimSpace(norm.NFC.String(raw)))
	if s == "" {
		return nil
	}
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return &s
}

// TextValue is Text without the pointer; blank input yields "".
func TextValue(raw string) string {
	if s := Text(raw); s != nil {
		return *s
	}
	return ""
}

// Float parses a currency or plain number.
//
// With only commas present a single comma is the decimal separator and
// several commas are grouping. With both present the rightmost separator
// is the decimal point and the other is grouping.
func Float(raw string) *float64 {
	s := Text(raw)
	if s == nil {
		return nil
	}

	cleaned := currencyRe.ReplaceAllString(*s, "")
	cleaned = nonNumericRe.ReplaceAllString(cleaned, "")

	hasComma := strings.Contains(cleaned, ",")
	hasPeriod := strings.Contains(cleaned, ".")
	switch {
	case hasComma && !hasPeriod:
		if strings.Count(cleaned, ",") == 1 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma && hasPeriod:
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	if cleaned == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseDate parses a free-form date and re-emits it in DateLayout (UTC).
// Blank input yields (nil, nil); garbage yields ErrUnparseableDate.
func ParseDate(raw string) (*string, error) {
	s := strings.TrimSpace(norm.NFC.String(raw))
	if s == "" {
		return nil, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil, ErrUnparseableDate
	}
	out := t.UTC().Format(DateLayout)
	return &out, nil
}

// SplitStreet splits a street line into its house number and street name
// at the first space. A line without a space is all street number.
func SplitStreet(line string) (number, name *string) {
	s := Text(line)
	if s == nil {
		return nil, nil
	}
	num, rest, _ := strings.Cut(*s, " ")
	return Text(num), Text(rest)
}

// ReverseName turns a roster-style "last, first" into "first last".
func ReverseName(raw string) string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// Truncate caps s at n runes.
func Truncate(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// TruncatePtr applies Truncate through a nil-able pointer.
func TruncatePtr(s *string, n int) *string {
	if s == nil {
		return nil
	}
	t := Truncate(*s, n)
	return &t
}

// Canonical permit statuses.
const (
	StatusCancelled = "cancelled"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
)

var statusSynonyms = map[string]string{
	"open":        StatusOngoing,
	"issued":      StatusOngoing,
	"active":      StatusOngoing,
	"ongoing":     StatusOngoing,
	"in progress": StatusOngoing,
	"closed":      StatusCompleted,
	"complete":    StatusCompleted,
	"completed":   StatusCompleted,
	"finaled":     StatusCompleted,
	"final":       StatusCompleted,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
	"void":        StatusCancelled,
	"revoked":     StatusCancelled,
	"expired":     StatusCancelled,
	"stop work":   StatusCancelled,
}

// PermitStatus maps source status vocabularies onto the canonical set.
// Unrecognized values pass through normalized.
func PermitStatus(raw string) *string {
	s := Text(raw)
	if s == nil {
		return nil
	}
	if canon, ok := statusSynonyms[*s]; ok {
		return &canon
	}
	return s
}
