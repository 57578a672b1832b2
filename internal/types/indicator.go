package types

// IndicatorType names a derived column of an indicator frame.
type IndicatorType string

const (
	IndicatorEMA20      IndicatorType = "ema20"
	IndicatorEMA50      IndicatorType = "ema50"
	IndicatorEMA200     IndicatorType = "ema200"
	IndicatorRSI        IndicatorType = "rsi"
	IndicatorMACD       IndicatorType = "macd"
	IndicatorMACDSignal IndicatorType = "macd_signal"
	IndicatorMACDHist   IndicatorType = "macd_hist"
	IndicatorTRIX       IndicatorType = "trix"
	IndicatorHigh20     IndicatorType = "high20"
	IndicatorLow20      IndicatorType = "low20"
)
