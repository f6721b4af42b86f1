package risk

import (
	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

// Detector 判断一笔已被接受的成交是否可疑，可疑成交计入 KillSwitch 的连续异常。
type Detector interface {
	Anomalous(f inventory.Fill, before, after inventory.Reserve) (bool, string)
}

// Detectors 依次运行全部检测器，返回所有命中的原因。
type Detectors []Detector

func (ds Detectors) Check(f inventory.Fill, before, after inventory.Reserve) (bool, []string) {
	var reasons []string
	for _, d := range ds {
		if d == nil {
			continue
		}
		if hit, why := d.Anomalous(f, before, after); hit {
			reasons = append(reasons, why)
		}
	}
	return len(reasons) > 0, reasons
}

// InvariantDrift 命中 k 下降但仍在容忍范围内的成交。
type InvariantDrift struct{}

func (InvariantDrift) Anomalous(_ inventory.Fill, before, after inventory.Reserve) (bool, string) {
	if InvariantRatio(before, after).LessThan(decimal.NewFromInt(1)) {
		return true, "invariant_drift"
	}
	return false, ""
}

// AdverseFill 命中价格在均衡价错误一侧的成交：买入价高于均衡价或卖出价低于均衡价，
// 挂单成交不应出现这种情况。
type AdverseFill struct{}

func (AdverseFill) Anomalous(f inventory.Fill, before, _ inventory.Reserve) (bool, string) {
	eq := before.EquilibriumPrice()
	if f.BaseAmount.IsPositive() && f.Price.GreaterThan(eq) {
		return true, "adverse_buy"
	}
	if f.BaseAmount.IsNegative() && f.Price.LessThan(eq) {
		return true, "adverse_sell"
	}
	return false, ""
}
