package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/internal/engine"
	"github.com/kleros/market-maker/inventory"
	"github.com/kleros/market-maker/posttrade"
)

// Step 是价格路径上每一步的结果。
type Step struct {
	Index       int     `csv:"step"`
	Price       string  `csv:"price"`
	Fills       int     `csv:"fills"`
	Base        string  `csv:"base"`
	Quote       string  `csv:"quote"`
	Equilibrium string  `csv:"equilibrium"`
	Invariant   string  `csv:"invariant"`
	Value       float64 `csv:"value"`
}

// Result 汇总一次模拟。
type Result struct {
	Fills      []inventory.Fill
	Invariants []decimal.Decimal // 每笔成交后的 k
	Steps      []Step
	Initial    inventory.Reserve
	Final      inventory.Reserve
	// Stopped 非空表示引擎因致命错误提前停止
	Stopped error
	Markout posttrade.Stats
}

// DefaultMaxFillsPerStep 是 Runner.MaxFillsPerStep 未设置时的上限。
const DefaultMaxFillsPerStep = 64

// Runner 把价格路径喂给交易引擎与纸面交易所。
type Runner struct {
	Engine   *engine.TradingEngine
	Exchange *PaperExchange
	// MaxFillsPerStep 限制同一价格下连续成交的笔数
	MaxFillsPerStep int
	// StepInterval > 0 时使用模拟时钟，第 i 步的时间为 Start + i×StepInterval
	StepInterval time.Duration
	Start        time.Time
	// Markout 可选，统计成交后的价格走势
	Markout *posttrade.Analyzer
}

// Run 先 Bootstrap 挂出初始阶梯，然后逐个价格撮合。
// 每笔成交都走完整的 OnFill 流程，新阶梯挂出后才撮合下一笔。
func (r *Runner) Run(ctx context.Context, path []decimal.Decimal) (res Result, err error) {
	if r.Engine == nil || r.Exchange == nil {
		return Result{}, errors.New("runner not initialized")
	}
	maxFills := r.MaxFillsPerStep
	if maxFills <= 0 {
		maxFills = DefaultMaxFillsPerStep
	}
	if err := r.Engine.Bootstrap(ctx); err != nil {
		return Result{}, fmt.Errorf("bootstrap: %w", err)
	}
	res = Result{Initial: r.Engine.Reserve()}
	defer func() {
		if r.Markout != nil {
			res.Markout = r.Markout.Stats()
		}
	}()

	var now time.Time
	if r.StepInterval > 0 {
		r.Exchange.Clock = func() time.Time { return now }
	}
	for i, price := range path {
		if !price.IsPositive() {
			return res, fmt.Errorf("step %d: price %s must be > 0", i, price)
		}
		now = r.Start.Add(time.Duration(i) * r.StepInterval)
		if r.Markout != nil {
			r.Markout.OnMark(price, r.Exchange.Clock())
		}
		n := 0
		for ; n < maxFills; n++ {
			f, ok := r.Exchange.Match(price)
			if !ok {
				break
			}
			err := r.Engine.OnFill(ctx, f)
			if err != nil && !errors.Is(err, engine.ErrFatal) {
				return res, fmt.Errorf("step %d fill %s: %w", i, f.ID, err)
			}
			res.Fills = append(res.Fills, f)
			if r.Markout != nil {
				r.Markout.OnFill(f)
			}
			res.Invariants = append(res.Invariants, r.Engine.Reserve().Invariant())
			if err != nil {
				res.Stopped = err
				res.Steps = append(res.Steps, r.step(i, price, n+1))
				res.Final = r.Engine.Reserve()
				return res, nil
			}
		}
		res.Steps = append(res.Steps, r.step(i, price, n))
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	res.Final = r.Engine.Reserve()
	return res, nil
}

func (r *Runner) step(i int, price decimal.Decimal, fills int) Step {
	cur := r.Engine.Reserve()
	return Step{
		Index:       i,
		Price:       price.String(),
		Fills:       fills,
		Base:        cur.Base.String(),
		Quote:       cur.Quote.String(),
		Equilibrium: cur.EquilibriumPrice().String(),
		Invariant:   cur.Invariant().String(),
		Value:       cur.Value(price).InexactFloat64(),
	}
}
