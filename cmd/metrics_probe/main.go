package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kleros/market-maker/metrics"
)

// 启动 /metrics 并写入一组模拟的储备与阶梯指标，用于验证 Prometheus/Grafana 配置。
func main() {
	addr := flag.String("metricsAddr", ":9100", "Prometheus 指标监听地址")
	base := flag.Float64("base", 100000, "模拟 base 储备")
	quote := flag.Float64("quote", 5, "模拟 quote 储备")
	steps := flag.Int("steps", 16, "模拟每侧档位数")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.StartMetricsServer(ctx, *addr)
	fmt.Printf("metrics_probe started at %s\n", *addr)

	metrics.UpdateLadder(*steps, *steps)
	metrics.SetKillSwitch(false)
	metrics.UpdateWallet("BASE", *base)
	metrics.UpdateWallet("QUOTE", *quote)

	// 周期性模拟一笔买入，观察储备与 k 的变化
	b, q := *base, *quote
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		k := b * q
		eq := q / b
		metrics.UpdateReserve(b, q, k, eq)
		metrics.UpdateMarketData("PROBE", eq*0.99, eq*1.01, eq, eq)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		size := b * 0.001
		b += size
		q = k / b * 1.0001
		metrics.RecordFill("buy", b*q/k)
	}
}
