package binance

// Kline represents a single candlestick from the Binance public API.
type Kline struct {
	Symbol    string  // trading pair symbol
	OpenTime  int64   // open time (ms)
	Open      float64 // open price
	High      float64 // high price
	Low       float64 // low price
	Close     float64 // close price
	Volume    float64 // base asset volume
	CloseTime int64   // close time (ms)
}
