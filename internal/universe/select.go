package universe

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rxtech-lab/argo-perp/internal/venue"
)

// Candidate is a ranked ticker.
type Candidate struct {
	Symbol        string
	ChangePercent float64
	QuoteVolume   float64
	Score         float64
}

// Rank scores tickers by |priceChangePercent| × volume/maxVolume, keeping only
// symbols with the suffix and a quote volume at or above the floor. Tickers
// with unparsable numbers are skipped. The result is sorted by score
// descending, then symbol.
func Rank(tickers []venue.Ticker, minVolume float64, suffix string) []Candidate {
	cands := make([]Candidate, 0, len(tickers))

	for _, t := range tickers {
		if suffix != "" && !strings.HasSuffix(t.Symbol, suffix) {
			continue
		}

		change, err := strconv.ParseFloat(t.PriceChangePercent, 64)
		if err != nil || math.IsNaN(change) {
			continue
		}

		volume, ok := quoteVolume(t)
		if !ok || volume < minVolume {
			continue
		}

		cands = append(cands, Candidate{Symbol: t.Symbol, ChangePercent: change, QuoteVolume: volume})
	}

	maxVolume := 0.0
	for _, c := range cands {
		maxVolume = math.Max(maxVolume, c.QuoteVolume)
	}

	for i := range cands {
		if maxVolume > 0 {
			cands[i].Score = math.Abs(cands[i].ChangePercent) * cands[i].QuoteVolume / maxVolume
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}

		return cands[i].Symbol < cands[j].Symbol
	})

	return cands
}

// quoteVolume prefers the venue's quote volume and falls back to base volume × last price.
func quoteVolume(t venue.Ticker) (float64, bool) {
	if t.QuoteVolume != "" {
		v, err := strconv.ParseFloat(t.QuoteVolume, 64)

		return v, err == nil && v >= 0
	}

	base, err := strconv.ParseFloat(t.Volume, 64)
	if err != nil {
		return 0, false
	}

	last, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return 0, false
	}

	v := base * last

	return v, v >= 0 && !math.IsInf(v, 0)
}

// Top returns the first n symbols; n <= 0 means all of them.
func Top(cands []Candidate, n int) []string {
	if n > 0 && len(cands) > n {
		cands = cands[:n]
	}

	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Symbol)
	}

	return out
}

// Merge returns base ∪ include − exclude, keeping first-seen order and
// collapsing duplicates. Blank entries are dropped.
func Merge(base, include, exclude []string) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		excluded[normalize(s)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(base)+len(include))
	out := make([]string, 0, len(base)+len(include))

	for _, list := range [][]string{base, include} {
		for _, s := range list {
			s = normalize(s)
			if s == "" {
				continue
			}

			if _, skip := excluded[s]; skip {
				continue
			}

			if _, dup := seen[s]; dup {
				continue
			}

			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	return out
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
