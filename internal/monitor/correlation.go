package monitor

import (
	"math"
	"sort"

	"github.com/fleetoms/fleet/pkg/types"
)

// correlationMatrix computes pairwise daily-return correlations across
// accounts. Requires at least two accounts with the configured minimum
// number of daily returns; returns nil otherwise.
func (m *Monitor) correlationMatrix() *types.CorrelationMatrix {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var accounts []string
	minLen := math.MaxInt
	for accountID, returns := range m.dailyReturns {
		if len(returns) >= m.config.MinCorrelationDays {
			accounts = append(accounts, accountID)
			if len(returns) < minLen {
				minLen = len(returns)
			}
		}
	}
	if len(accounts) < 2 {
		return nil
	}
	sort.Strings(accounts)

	// align on the common trailing window
	series := make([][]float64, len(accounts))
	for i, accountID := range accounts {
		returns := m.dailyReturns[accountID]
		series[i] = returns[len(returns)-minLen:]
	}

	values := make([][]float64, len(accounts))
	for i := range accounts {
		values[i] = make([]float64, len(accounts))
		values[i][i] = 1
		for j := 0; j < i; j++ {
			c := pearson(series[i], series[j])
			values[i][j] = c
			values[j][i] = c
		}
	}

	return &types.CorrelationMatrix{Accounts: accounts, Values: values, Days: minLen}
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}

	meanA, meanB := mean(a), mean(b)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
