package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamName(t *testing.T) {
	assert.Equal(t, "trade.SOL_USDC_PERP", StreamName("SOL_USDC_PERP"))
}

func TestDecodeTrade(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		ok    bool
		price string
		size  string
		ts    int64
	}{
		{
			name:  "envelope",
			data:  `{"stream":"trade.SOL_USDC_PERP","data":{"e":"trade","s":"SOL_USDC_PERP","p":"101.25","q":"0.4","T":1700000000123}}`,
			ok:    true,
			price: "101.25",
			size:  "0.4",
			ts:    1700000000123,
		},
		{
			name:  "flat",
			data:  `{"p":"99","q":"2","T":1700000000999}`,
			ok:    true,
			price: "99",
			size:  "2",
			ts:    1700000000999,
		},
		{name: "other symbol", data: `{"s":"ETH_USDC_PERP","p":"1","q":"1","T":1}`},
		{name: "other stream", data: `{"stream":"depth.SOL_USDC_PERP","data":{"p":"1","q":"1","T":1}}`},
		{name: "subscribe ack", data: `{"result":null,"id":1}`},
		{name: "garbage", data: `not json`},
		{name: "bad price", data: `{"p":"abc","q":"1","T":1}`},
		{name: "missing time", data: `{"p":"1","q":"1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, ok := DecodeTrade("SOL_USDC_PERP", []byte(tt.data))
			assert.Equal(t, tt.ok, ok)

			if !tt.ok {
				return
			}

			assert.Equal(t, "SOL_USDC_PERP", trade.Symbol)
			assert.Equal(t, tt.price, trade.Price.String())
			assert.Equal(t, tt.size, trade.Size.String())
			assert.Equal(t, tt.ts, trade.TimestampMs)
		})
	}
}
