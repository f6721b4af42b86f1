package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleros/market-maker/internal/engine"
	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/order"
	"github.com/kleros/market-maker/strategy"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPaperExchangeMatch(t *testing.T) {
	ex := NewPaperExchange()
	ctx := context.Background()
	require.NoError(t, ex.Submit(ctx, []order.Order{
		{ClientID: 1, Symbol: "tX", Amount: d("1"), Price: d("0.9")},
		{ClientID: 2, Symbol: "tX", Amount: d("1"), Price: d("0.8")},
		{ClientID: 3, Symbol: "tX", Amount: d("-1"), Price: d("1.1")},
	}))

	_, ok := ex.Match(d("1"))
	assert.False(t, ok)

	f, ok := ex.Match(d("0.85"))
	require.True(t, ok)
	assert.True(t, f.Price.Equal(d("0.9")))
	assert.True(t, f.BaseAmount.Equal(d("1")))
	_, ok = ex.Match(d("0.85"))
	assert.False(t, ok)

	f, ok = ex.Match(d("1.2"))
	require.True(t, ok)
	assert.Equal(t, "sell", f.Side())

	open, err := ex.OpenOrders(ctx, "tX")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(2), open[0].ClientID)

	require.NoError(t, ex.CancelAll(ctx))
	assert.Empty(t, ex.Resting())
	assert.Error(t, ex.Submit(ctx, []order.Order{{Amount: d("1")}}))
}

func TestPaperExchangeFee(t *testing.T) {
	ex := NewPaperExchange()
	ex.FeeRate = d("0.002")
	require.NoError(t, ex.Submit(context.Background(), []order.Order{{Amount: d("-100"), Price: d("0.5")}}))
	f, ok := ex.Match(d("0.6"))
	require.True(t, ok)
	assert.True(t, f.Fee.Equal(d("0.1")), f.Fee.String())
	assert.Equal(t, inventory.FeeQuote, f.FeeAsset)
}

func curveRunner(t *testing.T, maxFills int) *Runner {
	t.Helper()
	r, err := BuildRunner(RunnerConfig{
		Reserve:  inventory.Reserve{Base: d("100000"), Quote: d("5")},
		Ladder:   strategy.EngineConfig{Model: strategy.ModelCurve, Steps: 4, SizePerStep: d("0.1")},
		MaxFills: maxFills,
	})
	require.NoError(t, err)
	return r
}

func TestRunnerCurveKeepsInvariant(t *testing.T) {
	r := curveRunner(t, 0)
	up := Linear(d("0.00005"), d("0.00006"), 11)
	down := Linear(d("0.00006"), d("0.00004"), 21)
	res, err := r.Run(context.Background(), append(up, down...))
	require.NoError(t, err)
	require.NoError(t, res.Stopped)

	require.NotEmpty(t, res.Fills)
	require.Len(t, res.Steps, 32)
	assert.Len(t, res.Invariants, len(res.Fills))
	assert.Equal(t, len(res.Fills), res.Markout.TotalFills)
	assert.Positive(t, res.Markout.AnalyzedFills)
	// 模拟时钟：第 0 步价格等于均衡价，不会成交
	assert.False(t, res.Fills[0].Time.Before(time.Unix(1, 0)))

	prev := res.Initial.Invariant()
	floor := d("0.9999")
	for i, k := range res.Invariants {
		assert.True(t, k.GreaterThanOrEqual(prev.Mul(floor)), "fill %d: k %s < %s", i, k, prev)
		prev = k
	}
	assert.True(t, res.Final.Invariant().GreaterThan(res.Initial.Invariant()))

	// 价格回落到 0.00004 后均衡价跟随下移
	assert.True(t, res.Final.EquilibriumPrice().LessThan(d("0.00005")), res.Final.String())
	assert.Equal(t, engine.StateRunning, r.Engine.GetState())
}

func TestRunnerStopsOnKillSwitch(t *testing.T) {
	r := curveRunner(t, 2)
	res, err := r.Run(context.Background(), Linear(d("0.00005"), d("0.00007"), 5))
	require.NoError(t, err)
	require.Error(t, res.Stopped)
	assert.True(t, errors.Is(res.Stopped, engine.ErrFatal))
	assert.Len(t, res.Fills, 3)
	assert.Equal(t, engine.StateStopped, r.Engine.GetState())
}

func TestRunnerRejectsBadPrice(t *testing.T) {
	r := curveRunner(t, 0)
	_, err := r.Run(context.Background(), []decimal.Decimal{d("0")})
	assert.Error(t, err)

	_, err = (&Runner{}).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestBuildRunnerValidates(t *testing.T) {
	_, err := BuildRunner(RunnerConfig{
		Ladder: strategy.EngineConfig{Model: strategy.ModelCurve, Steps: 4, SizePerStep: d("0.1")},
	})
	assert.Error(t, err)

	_, err = BuildRunner(RunnerConfig{
		Reserve: inventory.Reserve{Base: d("1"), Quote: d("1")},
		Ladder:  strategy.EngineConfig{Model: "nope"},
	})
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	a := RandomWalk(d("0.00005"), 50, 0.01, 7)
	b := RandomWalk(d("0.00005"), 50, 0.01, 7)
	require.Len(t, a, 50)
	for i := range a {
		assert.True(t, a[i].Equal(b[i]))
		assert.True(t, a[i].IsPositive())
	}

	l := Linear(d("1"), d("2"), 5)
	require.Len(t, l, 5)
	assert.True(t, l[0].Equal(d("1")))
	assert.True(t, l[2].Equal(d("1.5")))
	assert.True(t, l[4].Equal(d("2")))
}
