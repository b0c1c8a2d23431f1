// Package analysis holds the statistical computations shard workers apply to
// freshly fetched bars before staging them.
package analysis

import "math"

// ZScores holds the standardized values of one bar against a symbol's history
type ZScores struct {
	Close  float64
	Volume float64
	Range  float64
}

// Observation is one historical data point per dimension
type Observation struct {
	Close    float64
	Volume   float64
	RangePct float64
}

// ComputeZScores standardizes the current close, volume and range_pct against
// the symbol's historical rows. With no history, or a dimension whose standard
// deviation is zero, that dimension's z-score is 0.
func ComputeZScores(history []Observation, close, volume, rangePct float64) ZScores {
	if len(history) == 0 {
		return ZScores{}
	}

	closes := make([]float64, len(history))
	volumes := make([]float64, len(history))
	ranges := make([]float64, len(history))
	for i, h := range history {
		closes[i] = h.Close
		volumes[i] = h.Volume
		ranges[i] = h.RangePct
	}

	return ZScores{
		Close:  zScore(close, closes),
		Volume: zScore(volume, volumes),
		Range:  zScore(rangePct, ranges),
	}
}

func zScore(current float64, values []float64) float64 {
	std := sampleStd(values)
	if std == 0 {
		return 0
	}
	return (current - mean(values)) / std
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd is the sample standard deviation (n-1 denominator). A single
// observation has no spread, so it yields 0.
func sampleStd(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}
