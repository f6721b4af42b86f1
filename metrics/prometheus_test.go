package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReserveMetrics(t *testing.T) {
	UpdateReserve(3000000, 120, 360000000, 0.00004)

	if testutil.ToFloat64(ReserveBase) != 3000000 {
		t.Errorf("Expected ReserveBase to be 3000000, got %f", testutil.ToFloat64(ReserveBase))
	}
	if testutil.ToFloat64(ReserveQuote) != 120 {
		t.Errorf("Expected ReserveQuote to be 120, got %f", testutil.ToFloat64(ReserveQuote))
	}
	if testutil.ToFloat64(EquilibriumPrice) != 0.00004 {
		t.Errorf("Expected EquilibriumPrice to be 0.00004, got %f", testutil.ToFloat64(EquilibriumPrice))
	}
}

func TestLadderMetrics(t *testing.T) {
	UpdateLadder(3, 2)

	if got := testutil.ToFloat64(LadderRungs.WithLabelValues("buy")); got != 3 {
		t.Errorf("Expected 3 buy rungs, got %f", got)
	}
	if got := testutil.ToFloat64(LadderRungs.WithLabelValues("sell")); got != 2 {
		t.Errorf("Expected 2 sell rungs, got %f", got)
	}
}

func TestFillMetrics(t *testing.T) {
	before := testutil.ToFloat64(FillsTotal.WithLabelValues("buy"))
	RecordFill("buy", 1.0001)

	if got := testutil.ToFloat64(FillsTotal.WithLabelValues("buy")); got != before+1 {
		t.Errorf("Expected buy fills %f, got %f", before+1, got)
	}
	if testutil.ToFloat64(InvariantRatio) != 1.0001 {
		t.Errorf("Expected InvariantRatio to be 1.0001, got %f", testutil.ToFloat64(InvariantRatio))
	}
}

func TestKillSwitchMetric(t *testing.T) {
	SetKillSwitch(true)
	if testutil.ToFloat64(KillSwitchTripped) != 1 {
		t.Errorf("Expected kill switch gauge to be 1")
	}
	SetKillSwitch(false)
	if testutil.ToFloat64(KillSwitchTripped) != 0 {
		t.Errorf("Expected kill switch gauge to be 0")
	}
}

func TestMarketDataSkipsZero(t *testing.T) {
	UpdateMarketData("tTESTETH", 0.5, 0.7, 0, 0.6)

	if got := testutil.ToFloat64(MarketPrice.WithLabelValues("tTESTETH", "mid")); got != 0.6 {
		t.Errorf("Expected mid 0.6, got %f", got)
	}
	if n := testutil.CollectAndCount(MarketPrice); n < 3 {
		t.Errorf("Expected at least 3 market series, got %d", n)
	}
}

func TestObserveRest(t *testing.T) {
	before := testutil.ToFloat64(RestErrors.WithLabelValues("ticker"))
	ObserveRest("ticker", 10*time.Millisecond, nil)
	ObserveRest("ticker", 10*time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(RestErrors.WithLabelValues("ticker")); got != before+1 {
		t.Errorf("Expected one rest error, got %f", got-before)
	}
}
