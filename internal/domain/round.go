package domain

import (
	"math"
	"strconv"
)

// Round2 rounds kudos-like values to two decimals. Every mutation of a kudos
// balance or sub-ledger entry goes through this, so balances never accumulate
// float drift beyond the cent.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round1 rounds throughput samples (tokens per second) to one decimal.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// formatRounded renders a two-decimal value without trailing zeros, e.g.
// 1.5 -> "1.5", 2.0 -> "2".
func formatRounded(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', -1, 64)
}
