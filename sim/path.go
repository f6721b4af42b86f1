package sim

import (
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

// RandomWalk 生成几何随机游走价格路径，vol 为每步对数收益的标准差。
// 同一 seed 生成相同路径。
func RandomWalk(start decimal.Decimal, steps int, vol float64, seed int64) []decimal.Decimal {
	rng := rand.New(rand.NewSource(seed))
	out := make([]decimal.Decimal, 0, steps)
	p := start.InexactFloat64()
	for i := 0; i < steps; i++ {
		p *= math.Exp(rng.NormFloat64() * vol)
		out = append(out, decimal.NewFromFloat(p).Round(12))
	}
	return out
}

// Linear 从 from 到 to 等距生成 steps 个价格（含两端）。
func Linear(from, to decimal.Decimal, steps int) []decimal.Decimal {
	if steps <= 1 {
		return []decimal.Decimal{to}
	}
	out := make([]decimal.Decimal, 0, steps)
	step := to.Sub(from).Div(decimal.NewFromInt(int64(steps - 1)))
	for i := 0; i < steps; i++ {
		out = append(out, from.Add(step.Mul(decimal.NewFromInt(int64(i)))))
	}
	return out
}
