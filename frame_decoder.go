package fleadaq

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// DecodeFrame turns a raw sample table into calibrated DataPoints: the
// analog column is converted to volts through the probe's stored
// calibration, and the digital bitmap is unpacked into per-channel booleans.
//
// A frame whose columns disagree in length violates the hardware protocol
// contract. That is fatal to the batch, never to the loop: the caller must
// skip the snapshot update for this cycle rather than display corrupt data.
func DecodeFrame(frame *RawFrame, probe *Probe) ([]float64, []DataPoint, error) {
	if frame == nil {
		return nil, nil, fmt.Errorf("nil frame")
	}
	n := len(frame.Times)
	if len(frame.Counts) != n || len(frame.Bitmap) != n {
		ProblemLogger.Printf("inconsistent frame columns: %s", spew.Sdump(struct {
			Times, Counts, Bitmap int
		}{n, len(frame.Counts), len(frame.Bitmap)}))
		return nil, nil, fmt.Errorf("frame columns disagree: %d times, %d counts, %d bitmaps",
			n, len(frame.Counts), len(frame.Bitmap))
	}

	cal := probe.Calibration()
	factor := probe.Kind.Factor()
	times := make([]float64, n)
	points := make([]DataPoint, n)
	for i := 0; i < n; i++ {
		times[i] = frame.Times[i]
		points[i].Volts = cal.Volts(frame.Counts[i], factor)
		points[i].Digital = UnpackDigital(frame.Bitmap[i])
	}
	return times, points, nil
}

// UnpackDigital expands a 9-bit digital bitmap into per-channel booleans,
// bit 0 being channel 0.
func UnpackDigital(bitmap uint16) [NumDigitalChannels]bool {
	var ch [NumDigitalChannels]bool
	for i := range ch {
		ch[i] = bitmap&(1<<uint(i)) != 0
	}
	return ch
}

// CalibrateBatch converts one continuous-mode batch of raw counts to volts.
func CalibrateBatch(counts []uint16, probe *Probe) []float64 {
	cal := probe.Calibration()
	factor := probe.Kind.Factor()
	volts := make([]float64, len(counts))
	for i, c := range counts {
		volts[i] = cal.Volts(c, factor)
	}
	return volts
}
