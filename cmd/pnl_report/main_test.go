package main

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"level":"info","ts":"2024-01-01T00:00:00.000Z","msg":"reserve_event","symbol":"tPNKETH","event":"bootstrap","base":"100000","quote":"5","k":"500000"}
{"level":"info","ts":"2024-01-01T00:01:00.000Z","msg":"fill_event","symbol":"tPNKETH","event":"applied","side":"buy","amount":"1000","price":"0.00004","fee":"0.00008","fee_asset":"quote"}
{"level":"info","ts":"2024-01-01T00:01:00.000Z","msg":"reserve_event","symbol":"tPNKETH","event":"reserve","base":"101000","quote":"4.96","k":"500960"}
not json at all
{"level":"info","ts":"2024-01-01T00:02:00.000Z","msg":"fill_event","symbol":"tOTHER","event":"applied","side":"sell","amount":"-5","price":"1"}
{"level":"info","ts":"2024-01-01T00:03:00.000Z","msg":"fill_event","symbol":"tPNKETH","event":"applied","side":"sell","amount":"-500","price":"0.00005"}
`

func dd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSummarize(t *testing.T) {
	st, err := summarize(strings.NewReader(sampleLog), "tPNKETH", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, st.trades)
	assert.True(t, st.boughtBase.Equal(dd("1000")))
	assert.True(t, st.paidQuote.Equal(dd("0.04")))
	assert.True(t, st.soldBase.Equal(dd("500")))
	assert.True(t, st.gotQuote.Equal(dd("0.025")))
	assert.True(t, st.feeQuote.Equal(dd("0.00008")))
	assert.True(t, st.firstK.Equal(dd("500000")))
	assert.True(t, st.lastK.Equal(dd("500960")))
	assert.True(t, st.last.base.Equal(dd("101000")))
}

func TestSummarizeSince(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 2, 0, 0, time.UTC)
	st, err := summarize(strings.NewReader(sampleLog), "", since)
	require.NoError(t, err)
	assert.Equal(t, 2, st.trades)
	assert.True(t, st.boughtBase.IsZero())
	assert.True(t, st.firstK.IsZero())
}
