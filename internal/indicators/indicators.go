// Package indicators implements the technical indicators used by the
// trading strategies. All functions take prices oldest first.
package indicators

import "math"

// NeutralRSI is returned when there is not enough data.
const NeutralRSI = 50.0

// RSI computes the relative strength index over the last period price
// changes using simple averages of gains and losses.
func RSI(prices []float64, period int) float64 {
	if period < 1 || len(prices) < period+1 {
		return NeutralRSI
	}

	var gains, losses float64
	window := prices[len(prices)-period-1:]
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// SMA returns the simple moving average of the last period prices, or
// false when there are fewer than period prices.
func SMA(prices []float64, period int) (float64, bool) {
	if period < 1 || len(prices) < period {
		return 0, false
	}
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), true
}

// EMA returns the exponential moving average series seeded with the SMA of
// the first period prices. The result has len(prices)-period+1 values.
func EMA(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period {
		return nil
	}
	seed, _ := SMA(prices[:period], period)
	k := 2 / float64(period+1)

	out := make([]float64, 0, len(prices)-period+1)
	out = append(out, seed)
	for _, p := range prices[period:] {
		prev := out[len(out)-1]
		out = append(out, p*k+prev*(1-k))
	}
	return out
}

// MACDResult holds the latest MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the MACD with the given fast, slow and signal periods
// (typically 12, 26, 9).
func MACD(prices []float64, fast, slow, signal int) (MACDResult, bool) {
	if fast >= slow || len(prices) < slow+signal-1 {
		return MACDResult{}, false
	}
	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)

	// align the fast series to the slow one
	offset := len(fastEMA) - len(slowEMA)
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}

	signalEMA := EMA(line, signal)
	if len(signalEMA) == 0 {
		return MACDResult{}, false
	}
	m := line[len(line)-1]
	s := signalEMA[len(signalEMA)-1]
	return MACDResult{MACD: m, Signal: s, Histogram: m - s}, true
}

// Bands holds Bollinger Bands around a simple moving average.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes bands of width k population standard deviations over
// the last period prices.
func Bollinger(prices []float64, period int, k float64) (Bands, bool) {
	mean, ok := SMA(prices, period)
	if !ok {
		return Bands{}, false
	}
	var variance float64
	for _, p := range prices[len(prices)-period:] {
		variance += (p - mean) * (p - mean)
	}
	sd := math.Sqrt(variance / float64(period))
	return Bands{Upper: mean + k*sd, Middle: mean, Lower: mean - k*sd}, true
}
