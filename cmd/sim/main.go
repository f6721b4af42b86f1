package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/risk"
	"github.com/kleros/market-maker/sim"
	"github.com/kleros/market-maker/strategy"
)

// 本地模拟：用随机游走价格驱动引擎和纸面交易所，逐步输出储备 CSV。
// 不连接真实交易所。
func main() {
	base := flag.String("base", "100000", "初始 base 储备")
	quote := flag.String("quote", "5", "初始 quote 储备")
	model := flag.String("model", string(strategy.ModelCurve), "阶梯模型 linear|curve|price_step")
	steps := flag.Int("steps", 8, "每侧档位数")
	size := flag.String("size", "0.25", "每档大小")
	spread := flag.String("spread", "0.02", "linear/price_step 价差")
	interval := flag.String("interval", "0.005", "linear 档间距")
	ticks := flag.Int("ticks", 200, "价格步数")
	vol := flag.Float64("vol", 0.02, "每步对数收益标准差")
	seed := flag.Int64("seed", time.Now().UnixNano(), "随机种子")
	fee := flag.String("fee", "0", "手续费率，以 quote 收取")
	tolerance := flag.String("tolerance", risk.DefaultTolerance.String(), "k 容忍下限")
	maxFills := flag.Int("maxFills", 0, "成交次数上限，0 不限")
	out := flag.String("out", "-", "CSV 输出路径，- 为标准输出")
	flag.Parse()

	reserve := inventory.Reserve{Base: mustDecimal("base", *base), Quote: mustDecimal("quote", *quote)}
	runner, err := sim.BuildRunner(sim.RunnerConfig{
		Reserve: reserve,
		Ladder: strategy.EngineConfig{
			Model:       strategy.Model(*model),
			Steps:       *steps,
			SizePerStep: mustDecimal("size", *size),
			Spread:      mustDecimal("spread", *spread),
			Interval:    mustDecimal("interval", *interval),
		},
		Tolerance: mustDecimal("tolerance", *tolerance),
		FeeRate:   mustDecimal("fee", *fee),
		MaxFills:  *maxFills,
	})
	if err != nil {
		fail(err)
	}

	path := sim.RandomWalk(reserve.EquilibriumPrice(), *ticks, *vol, *seed)
	res, err := runner.Run(context.Background(), path)
	if err != nil {
		fail(err)
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		w = f
	}
	if err := gocsv.Marshal(res.Steps, w); err != nil {
		fail(err)
	}

	initial, final := res.Initial, res.Final
	fmt.Fprintf(os.Stderr, "seed=%d fills=%d k: %s -> %s eq: %s -> %s\n",
		*seed, len(res.Fills),
		initial.Invariant().StringFixed(6), final.Invariant().StringFixed(6),
		initial.EquilibriumPrice().String(), final.EquilibriumPrice().String())
	if m := res.Markout; m.AnalyzedFills > 0 {
		fmt.Fprintf(os.Stderr, "markout: analyzed=%d adverse=%s avg=%v\n",
			m.AnalyzedFills, m.AdverseSelectionRate.StringFixed(4), m.AvgMarkout)
	}
	if res.Stopped != nil {
		fmt.Fprintf(os.Stderr, "stopped: %v\n", res.Stopped)
		os.Exit(5)
	}
}

func mustDecimal(name, v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		fail(fmt.Errorf("-%s: %w", name, err))
	}
	return d
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "sim:", err)
	os.Exit(1)
}
