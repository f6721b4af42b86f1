package journal

import (
	"fmt"
	"sync"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/kleros/market-maker/inventory"
)

// Journal 记录成交及成交后的储备。
type Journal interface {
	RecordFill(f inventory.Fill, before, after inventory.Reserve) error
	Close() error
}

// Config InfluxDB 连接参数
type Config struct {
	URL      string
	Database string
	Username string
	Password string
	// Tags 附加到每个点上，例如 pair、env
	Tags map[string]string
}

// InfluxJournal 每笔成交写入一个 fills 点和一个 reserve 点。
type InfluxJournal struct {
	cfg    Config
	client client.Client
	mu     sync.Mutex
	now    func() time.Time
}

// NewInflux 创建 HTTP 客户端，不会立即连接。
func NewInflux(cfg Config) (*InfluxJournal, error) {
	if cfg.Database == "" {
		cfg.Database = "algos"
	}
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("influx client: %w", err)
	}
	return &InfluxJournal{cfg: cfg, client: c, now: time.Now}, nil
}

func (j *InfluxJournal) tags(extra map[string]string) map[string]string {
	out := make(map[string]string, len(j.cfg.Tags)+len(extra))
	for k, v := range j.cfg.Tags {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (j *InfluxJournal) RecordFill(f inventory.Fill, before, after inventory.Reserve) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  j.cfg.Database,
		Precision: "us",
	})
	if err != nil {
		return err
	}

	ts := f.Time
	if ts.IsZero() {
		ts = j.now()
	}
	fill, err := client.NewPoint("fills",
		j.tags(map[string]string{"side": f.Side(), "symbol": f.Symbol}),
		map[string]interface{}{
			"id":       f.ID,
			"order_id": f.OrderID,
			"amount":   f.BaseAmount.InexactFloat64(),
			"price":    f.Price.InexactFloat64(),
			"fee":      f.Fee.InexactFloat64(),
			"fee_side": string(f.FeeAsset),
		}, ts)
	if err != nil {
		return err
	}
	bp.AddPoint(fill)

	ratio := 0.0
	if k := before.Invariant(); !k.IsZero() {
		ratio = after.Invariant().Div(k).InexactFloat64()
	}
	res, err := client.NewPoint("reserve",
		j.tags(nil),
		map[string]interface{}{
			"base":        after.Base.InexactFloat64(),
			"quote":       after.Quote.InexactFloat64(),
			"invariant":   after.Invariant().InexactFloat64(),
			"equilibrium": after.EquilibriumPrice().InexactFloat64(),
			"k_ratio":     ratio,
		}, ts)
	if err != nil {
		return err
	}
	bp.AddPoint(res)

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.client.Write(bp); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (j *InfluxJournal) Close() error { return j.client.Close() }

// Nop 在未启用时使用。
type Nop struct{}

func (Nop) RecordFill(inventory.Fill, inventory.Reserve, inventory.Reserve) error { return nil }
func (Nop) Close() error                                                          { return nil }
