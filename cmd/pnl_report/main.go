package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// stats 汇总 runner 日志中的成交与储备记录。
type stats struct {
	trades     int
	boughtBase decimal.Decimal
	soldBase   decimal.Decimal
	paidQuote  decimal.Decimal // 买入 base 付出的 quote
	gotQuote   decimal.Decimal // 卖出 base 收到的 quote
	feeBase    decimal.Decimal
	feeQuote   decimal.Decimal
	firstK     decimal.Decimal
	lastK      decimal.Decimal
	last       reserve
}

type reserve struct {
	base, quote decimal.Decimal
}

func (s *stats) addFill(side string, amount, price, fee decimal.Decimal, feeAsset string) {
	if amount.IsZero() || !price.IsPositive() {
		return
	}
	s.trades++
	notional := amount.Abs().Mul(price)
	if side == "sell" {
		s.soldBase = s.soldBase.Add(amount.Abs())
		s.gotQuote = s.gotQuote.Add(notional)
	} else {
		s.boughtBase = s.boughtBase.Add(amount.Abs())
		s.paidQuote = s.paidQuote.Add(notional)
	}
	switch feeAsset {
	case "base":
		s.feeBase = s.feeBase.Add(fee.Abs())
	case "quote":
		s.feeQuote = s.feeQuote.Add(fee.Abs())
	}
}

func (s *stats) addReserve(base, quote, k decimal.Decimal) {
	if s.firstK.IsZero() {
		s.firstK = k
	}
	s.lastK = k
	s.last = reserve{base: base, quote: quote}
}

// summarize 逐行读取 JSON 日志，只统计 fill_event/applied 与 reserve_event。
func summarize(r io.Reader, symbol string, since time.Time) (stats, error) {
	var st stats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "{")
		if idx == -1 || !gjson.Valid(line[idx:]) {
			continue
		}
		evt := gjson.Parse(line[idx:])
		if !since.IsZero() {
			if ts, err := time.Parse("2006-01-02T15:04:05.000Z0700", evt.Get("ts").String()); err == nil && ts.Before(since) {
				continue
			}
		}
		if symbol != "" && evt.Get("symbol").Exists() && evt.Get("symbol").String() != symbol {
			continue
		}
		switch evt.Get("msg").String() {
		case "fill_event":
			if evt.Get("event").String() != "applied" {
				continue
			}
			st.addFill(evt.Get("side").String(), dec(evt.Get("amount")), dec(evt.Get("price")),
				dec(evt.Get("fee")), evt.Get("fee_asset").String())
		case "reserve_event":
			st.addReserve(dec(evt.Get("base")), dec(evt.Get("quote")), dec(evt.Get("k")))
		}
	}
	return st, scanner.Err()
}

func dec(r gjson.Result) decimal.Decimal {
	d, err := decimal.NewFromString(r.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func main() {
	logPath := flag.String("log", "/var/log/market-maker/runner.log", "runner 日志路径")
	symbol := flag.String("symbol", "", "仅统计指定交易对 (默认全量)")
	sinceStr := flag.String("since", "", "仅统计此时间之后的记录 (RFC3339，例如 2025-11-22T00:00:00Z)")
	flag.Parse()

	var since time.Time
	var err error
	if *sinceStr != "" {
		since, err = time.Parse(time.RFC3339Nano, *sinceStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "解析 since 参数失败: %v\n", err)
			os.Exit(1)
		}
	}

	f, err := os.Open(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法读取日志: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	st, err := summarize(f, *symbol, since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取日志出错: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("统计文件: %s\n", *logPath)
	if *symbol != "" {
		fmt.Printf("交易对: %s\n", *symbol)
	}
	if !since.IsZero() {
		fmt.Printf("起始时间: %s\n", since.Format(time.RFC3339))
	}
	fmt.Printf("成交笔数: %d\n", st.trades)
	fmt.Printf("买入 base: %s (付出 quote %s)\n", st.boughtBase, st.paidQuote)
	fmt.Printf("卖出 base: %s (收到 quote %s)\n", st.soldBase, st.gotQuote)
	fmt.Printf("净 quote: %s\n", st.gotQuote.Sub(st.paidQuote))
	fmt.Printf("手续费: base %s, quote %s\n", st.feeBase, st.feeQuote)
	if st.firstK.IsPositive() {
		growth := st.lastK.Div(st.firstK).Sub(decimal.NewFromInt(1))
		fmt.Printf("k: %s -> %s (%s%%)\n", st.firstK, st.lastK, growth.Shift(2).StringFixed(4))
		fmt.Printf("当前储备: base %s, quote %s\n", st.last.base, st.last.quote)
	}
}
