// Package search ranks contractor names against a free-text query and
// assembles the detailed contractor lookup.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/permitcheck/internal/metrics"
	"github.com/sells-group/permitcheck/internal/normalize"
)

const (
	// ShortQueryLen is the longest query answered by substring match alone.
	ShortQueryLen = 4
	// CandidateLimit caps the names scored by the fuzzy tier.
	CandidateLimit = 50
	// ResultLimit caps the names returned by any tier.
	ResultLimit = 10
	// DefaultThreshold is the minimum ratio kept when none is supplied.
	DefaultThreshold = 75
)

// Candidate tiers, used as metric labels.
const (
	TierEmpty    = "empty"
	TierShort    = "short"
	TierFuzzy    = "fuzzy"
	TierFallback = "fallback"
)

// Match is one ranked contractor name. Score is the floored ratio; the
// short-query tier always reports 0.
type Match struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// NameSource supplies candidate contractor names.
type NameSource interface {
	ContractorNamesLike(ctx context.Context, substr string, limit int) ([]string, error)
	PermitContractorNames(ctx context.Context, substr string, limit int) ([]string, error)
}

// Searcher runs the tiered contractor name search.
type Searcher struct {
	names NameSource
	log   *zap.Logger
}

// NewSearcher returns a Searcher reading candidates from names.
func NewSearcher(names NameSource) *Searcher {
	return &Searcher{
		names: names,
		log:   zap.L().With(zap.String("component", "search")),
	}
}

type scored struct {
	name  string
	ratio float64
}

// Search returns up to ResultLimit contractor names for query.
//
// Queries of ShortQueryLen runes or fewer return substring matches with
// score 0. Longer queries score contractors that have permit history and
// contain the query; when none do, every contractor with permit history
// is scored instead. Only ratios >= threshold are kept, best first.
func (s *Searcher) Search(ctx context.Context, query string, threshold float64) ([]Match, error) {
	q := normalize.TextValue(query)
	if q == "" {
		metrics.SearchRequests.WithLabelValues(TierEmpty).Inc()
		return []Match{}, nil
	}

	if utf8.RuneCountInString(q) <= ShortQueryLen {
		metrics.SearchRequests.WithLabelValues(TierShort).Inc()
		names, err := s.names.ContractorNamesLike(ctx, q, ResultLimit)
		if err != nil {
			return nil, eris.Wrap(err, "search: short query")
		}
		out := make([]Match, 0, len(names))
		for _, n := range names {
			out = append(out, Match{Name: n, Score: 0})
		}
		return out, nil
	}

	tier := TierFuzzy
	cands, err := s.names.PermitContractorNames(ctx, q, CandidateLimit)
	if err != nil {
		return nil, eris.Wrap(err, "search: candidates")
	}
	if len(cands) == 0 {
		tier = TierFallback
		cands, err = s.names.PermitContractorNames(ctx, "", CandidateLimit)
		if err != nil {
			return nil, eris.Wrap(err, "search: fallback candidates")
		}
	}
	metrics.SearchRequests.WithLabelValues(tier).Inc()

	ranked := rank(q, cands, threshold)
	s.log.Debug("search ranked",
		zap.String("query", q),
		zap.String("tier", tier),
		zap.Int("candidates", len(cands)),
		zap.Int("matches", len(ranked)),
	)
	return ranked, nil
}

// rank scores names against q, drops those below threshold and returns
// the best ResultLimit. Equal ratios keep candidate order.
func rank(q string, names []string, threshold float64) []Match {
	kept := make([]scored, 0, len(names))
	for _, n := range names {
		r := Ratio(q, strings.ToLower(n))
		if r >= threshold {
			kept = append(kept, scored{name: n, ratio: r})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ratio > kept[j].ratio })
	if len(kept) > ResultLimit {
		kept = kept[:ResultLimit]
	}

	out := make([]Match, 0, len(kept))
	for _, k := range kept {
		out = append(out, Match{Name: k.name, Score: int(math.Floor(k.ratio))})
	}
	return out
}
