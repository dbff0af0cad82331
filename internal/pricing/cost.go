package pricing

import "math"

// TokenCounts is the set of token classes a cost is computed from (spec
// §3, Usage Record: "input, output, cacheWrite, cacheRead, total").
type TokenCounts struct {
	Input      int
	Output     int
	CacheWrite int
	CacheRead  int
}

// Total returns the invariant sum from spec §3: "total_tokens = input +
// cacheWrite + cacheRead + output".
func (t TokenCounts) Total() int {
	return t.Input + t.CacheWrite + t.CacheRead + t.Output
}

// Cost is the per-class monetary breakdown of one usage record, each
// field already rounded to six fractional digits (spec §4.C).
type Cost struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
	Total      float64
}

// Compute applies the formula from spec §4.C:
//
//	cost_class = tokens_class / 1_000_000 × price_class
//	total_cost = input + cacheWrite + cacheRead + output
//
// Each class is rounded to six fractional digits before summing, and the
// rounding rule is round-half-away-from-zero (Design Notes §9 asks that a
// straight float port pin one rule and document it; this one matches what
// every pricing example in this corpus does with math.Round, and avoids
// the float64-banker's-rounding surprises of round-half-to-even at the
// precision these prices operate at).
func Compute(tokens TokenCounts, price Entry) Cost {
	c := Cost{
		Input:      round6(float64(tokens.Input) / 1_000_000 * price.Input),
		Output:     round6(float64(tokens.Output) / 1_000_000 * price.Output),
		CacheWrite: round6(float64(tokens.CacheWrite) / 1_000_000 * price.CacheWrite),
		CacheRead:  round6(float64(tokens.CacheRead) / 1_000_000 * price.CacheRead),
	}
	c.Total = round6(c.Input + c.Output + c.CacheWrite + c.CacheRead)
	return c
}

func round6(v float64) float64 {
	return math.Round(v*1_000_000) / 1_000_000
}
