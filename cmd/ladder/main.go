package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/config"
	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/order"
	"github.com/kleros/market-maker/strategy"
)

// row 是 CSV 中的一档。
type row struct {
	Step   int    `csv:"step"`
	Side   string `csv:"side"`
	Price  string `csv:"price"`
	Amount string `csv:"amount"`
	Quote  string `csv:"quote"`
}

// 打印给定储备下将要挂出的阶梯，不连接交易所。
// 指定 -balanceBase/-balanceQuote/-price 时先按价格区间计算最大储备。
func main() {
	cfgPath := flag.String("config", "", "读取 pair/ladder/bounds 的配置文件，留空使用默认值")
	base := flag.String("base", "", "base 储备")
	quote := flag.String("quote", "", "quote 储备")
	balanceBase := flag.String("balanceBase", "", "可用 base 余额")
	balanceQuote := flag.String("balanceQuote", "", "可用 quote 余额")
	price := flag.String("price", "", "参考价")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		raw, err := os.ReadFile(*cfgPath)
		if err != nil {
			fail(err)
		}
		// 只需要阶梯相关的配置，不校验凭据
		if cfg, err = config.Decode(raw); err != nil {
			fail(err)
		}
		if err := config.ValidateLadder(cfg.Ladder); err != nil {
			fail(err)
		}
		if err := cfg.Bounds.Validate(); err != nil {
			fail(err)
		}
	}

	var r inventory.Reserve
	switch {
	case *base != "" && *quote != "":
		r = inventory.Reserve{Base: mustDecimal("base", *base), Quote: mustDecimal("quote", *quote)}
	case *balanceBase != "" && *balanceQuote != "" && *price != "":
		var err error
		r, err = cfg.Bounds.MaximumReserve(mustDecimal("balanceBase", *balanceBase),
			mustDecimal("balanceQuote", *balanceQuote), mustDecimal("price", *price))
		if err != nil {
			fail(err)
		}
	default:
		fail(fmt.Errorf("need -base/-quote or -balanceBase/-balanceQuote/-price"))
	}

	eng, err := strategy.NewEngine(cfg.Ladder.EngineConfig())
	if err != nil {
		fail(err)
	}
	ladder, err := eng.Ladder(r)
	if err != nil {
		fail(err)
	}

	rows := make([]row, 0, len(ladder))
	for i, o := range order.FromLadder(ladder, cfg.Pair.Symbol) {
		rows = append(rows, row{
			Step:   i/2 + 1,
			Side:   o.Side,
			Price:  o.Price.String(),
			Amount: o.Amount.String(),
			Quote:  o.Quote.String(),
		})
	}
	if err := gocsv.Marshal(rows, os.Stdout); err != nil {
		fail(err)
	}
	fmt.Fprintf(os.Stderr, "reserve base=%s quote=%s k=%s eq=%s\n",
		r.Base, r.Quote, r.Invariant(), r.EquilibriumPrice())
}

func mustDecimal(name, v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		fail(fmt.Errorf("-%s: %w", name, err))
	}
	return d
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "ladder:", err)
	os.Exit(1)
}
