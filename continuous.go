package fleadaq

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ContinuousBuffer accumulates continuous-mode batches into a rolling,
// queryable series. The device never transmits per-sample timestamps in
// this mode; they are synthesized from a running sample counter at the
// known fixed rate. After every append the buffer is trimmed to the
// retention horizon.
//
// Not safe for concurrent use; the device handle owns one and serializes
// access to it.
type ContinuousBuffer struct {
	sampleRate float64
	retention  time.Duration
	times      []float64
	volts      []float64
	count      uint64 // total samples ever appended
}

// NewContinuousBuffer creates an empty buffer for the given fixed sample
// rate, retaining at most `retention` worth of trailing samples.
func NewContinuousBuffer(sampleRate float64, retention time.Duration) *ContinuousBuffer {
	return &ContinuousBuffer{sampleRate: sampleRate, retention: retention}
}

// Len returns the number of retained samples.
func (b *ContinuousBuffer) Len() int { return len(b.volts) }

// Append adds one batch, timestamping each sample by extrapolating the
// sample counter, then trims to the retention horizon.
func (b *ContinuousBuffer) Append(batch []float64) {
	for _, v := range batch {
		b.times = append(b.times, float64(b.count)/b.sampleRate)
		b.volts = append(b.volts, v)
		b.count++
	}
	b.trim()
}

// trim keeps only the last retention's worth of samples. In-place copy, the
// same shape as a stream "keep last N" trim, so it is amortized O(1) per
// appended sample.
func (b *ContinuousBuffer) trim() {
	keep := int(b.retention.Seconds() * b.sampleRate)
	L := len(b.volts)
	if keep >= L {
		return
	}
	copy(b.times[:keep], b.times[L-keep:])
	copy(b.volts[:keep], b.volts[L-keep:])
	b.times = b.times[:keep]
	b.volts = b.volts[:keep]
}

// BinStat is one downsampled plot point: the representative (median) value
// of a time bin, plus the envelope statistics for future min/max shading.
type BinStat struct {
	Time   float64
	Median float64
	Min    float64
	Max    float64
	Mean   float64
}

// Query reduces the last `window` of samples to at most `points` BinStats:
// the window is split into `points` equal-width time bins and each bin is
// reduced in a single grouping pass. The first and last bins may be only
// partially covered at the window edges, so both are dropped to avoid
// edge artifacts.
//
// With wrap set, timestamps are mapped modulo the window so the result is
// a stationary sweep rather than a scrolling one.
//
// The query only reads buffer state, so identical parameters against an
// unchanged buffer yield identical output.
func (b *ContinuousBuffer) Query(window time.Duration, points int, wrap bool) []BinStat {
	if points < 3 || len(b.volts) == 0 || window <= 0 {
		return nil
	}
	winSec := window.Seconds()
	tEnd := b.times[len(b.times)-1]
	tStart := tEnd - winSec

	// Locate the first in-window sample. Timestamps are monotonic, so a
	// binary search suffices.
	lo := sort.SearchFloat64s(b.times, tStart)

	binWidth := winSec / float64(points)
	groups := make([][]float64, points)

	// Single grouping pass over the window.
	for i := lo; i < len(b.times); i++ {
		var x float64
		if wrap {
			x = math.Mod(b.times[i], winSec)
		} else {
			x = b.times[i] - tStart
		}
		bin := int(x / binWidth)
		if bin < 0 || bin >= points {
			continue
		}
		groups[bin] = append(groups[bin], b.volts[i])
	}

	var xBase float64
	if !wrap {
		xBase = tStart
	}
	result := make([]BinStat, 0, points-2)
	for bin := 1; bin < points-1; bin++ { // drop the first and last bin
		g := groups[bin]
		if len(g) == 0 {
			continue
		}
		sort.Float64s(g)
		result = append(result, BinStat{
			Time:   xBase + (float64(bin)+0.5)*binWidth,
			Median: stat.Quantile(0.5, stat.Empirical, g, nil),
			Min:    g[0],
			Max:    g[len(g)-1],
			Mean:   stat.Mean(g, nil),
		})
	}
	return result
}
