package search

import (
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// indelParams prices a substitution as a deletion plus an insertion, so
// Distance yields the insertion/deletion edit distance.
var indelParams = levenshtein.NewParams().SubCost(2)

// Ratio returns the normalized InDel similarity of a and b in [0, 100].
// Identical strings score 100; two empty strings also score 100.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	dist := levenshtein.Distance(a, b, indelParams)
	return 100 * (1 - float64(dist)/float64(total))
}
