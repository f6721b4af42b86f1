package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kleros/market-maker/config"
	"github.com/kleros/market-maker/gateway"
	"github.com/kleros/market-maker/infrastructure/logger"
	"github.com/kleros/market-maker/order"
)

// 紧急撤单：runner 异常退出且交易所没有自动撤单时，通过 REST 撤掉全部挂单并打印剩余挂单。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	timeout := flag.Duration("timeout", 30*time.Second, "整体超时")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(2)
	}
	log, err := logger.New(logger.Config{Level: "info", Outputs: []string{"stdout"}, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(2)
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	gc := cfg.Gateway
	switch gc.Exchange {
	case "bitfinex":
		rest := gateway.NewBitfinexREST(gateway.Credentials{Key: gc.APIKey, Secret: gc.APISecret}, nil)
		if gc.RESTURL != "" {
			rest.AuthURL = gc.RESTURL
		}
		if err := rest.CancelAll(ctx); err != nil {
			log.Fatal("cancel all failed", zap.Error(err))
		}
		log.Info("cancel all sent")
		left, err := rest.OpenOrders(ctx, cfg.Pair.Symbol)
		if err != nil {
			log.Fatal("query open orders failed", zap.Error(err))
		}
		for _, o := range left {
			log.Warn("order still open", zap.String("id", o.ID), zap.Int64("cid", o.ClientID),
				zap.Stringer("price", o.Price), zap.Stringer("amount", o.Amount))
		}
		log.Info("done", zap.Int("open", len(left)))

	case "idex":
		signer, err := order.NewIdexSigner(gc.PrivateKey)
		if err != nil {
			log.Fatal("invalid private key", zap.Error(err))
		}
		rest := gateway.NewIdexREST(gc.APIKey, cfg.Pair.Symbol, signer, log)
		if gc.RESTURL != "" {
			rest.BaseURL = gc.RESTURL
		}
		if err := rest.CancelAll(ctx); err != nil {
			log.Fatal("cancel all failed", zap.Error(err))
		}
		log.Info("done", zap.String("address", signer.Address().Hex()))

	default:
		log.Fatal("exchange has no remote orders", zap.String("exchange", gc.Exchange))
	}
}
