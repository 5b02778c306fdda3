package allocator

// Strategy compatibility is a pairwise allow-list. Mean-reversion style
// strategies (grid, dca, pullback) can share an account; momentum and
// arbitrage must run alone because they fight any co-resident strategy
// for the same margin.
var compatiblePairs = map[[2]string]bool{
	{"dca", "grid"}:      true,
	{"grid", "pullback"}: true,
	{"dca", "pullback"}:  true,
}

var exclusiveStrategies = map[string]bool{
	"momentum":  true,
	"arbitrage": true,
}

// compatible reports whether two strategies may coexist on one account.
func compatible(a, b string) bool {
	if a == b {
		return true
	}
	if exclusiveStrategies[a] || exclusiveStrategies[b] {
		return false
	}
	if a > b {
		a, b = b, a
	}
	return compatiblePairs[[2]string{a, b}]
}
