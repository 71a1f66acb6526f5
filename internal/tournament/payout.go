package tournament

import (
	"github.com/shopspring/decimal"
)

// SplitPrizePool divides the pool across the configured shares, one cut per
// finishing rank. Each cut floors to whole credits; rounding scraps and any
// share without a finisher go to first place, so the payouts always sum to
// exactly the pool.
func SplitPrizePool(pool int64, shares []float64, ranks int) []int64 {
	if pool <= 0 || ranks <= 0 || len(shares) == 0 {
		return nil
	}
	n := ranks
	if n > len(shares) {
		n = len(shares)
	}

	total := decimal.NewFromInt(pool)
	out := make([]int64, n)
	var paid int64
	for i := 0; i < n; i++ {
		cut := total.Mul(decimal.NewFromFloat(shares[i])).Floor().IntPart()
		out[i] = cut
		paid += cut
	}
	out[0] += pool - paid
	return out
}
