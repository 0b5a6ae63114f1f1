package fleadaq

import (
	"fmt"
	"sync"
	"time"
)

// ProbeKind selects one of the two measurement front-ends on the scope.
type ProbeKind int

// Names for the possible values of ProbeKind
const (
	ProbeX1  ProbeKind = iota // direct 1:1 probe
	ProbeX10                  // 10:1 attenuating probe
)

func (p ProbeKind) String() string {
	if p == ProbeX10 {
		return "x10"
	}
	return "x1"
}

// Factor returns the attenuation factor the probe applies to the input.
func (p ProbeKind) Factor() float64 {
	if p == ProbeX10 {
		return 10.0
	}
	return 1.0
}

// Calibration holds the stored reference constants for one probe: the raw
// count observed at 0V and at the 3.3V reference. Captured by the calibrate
// commands and persisted on the device itself via WriteCalibration.
type Calibration struct {
	ZeroCounts float64 // raw counts measured against the 0V reference
	FullCounts float64 // raw counts measured against the 3.3V reference
}

// calReferenceVolts is the voltage of the scope's built-in calibration reference.
const calReferenceVolts = 3.3

// Volts converts one raw count to volts using this calibration and the
// probe's attenuation factor.
func (c Calibration) Volts(count uint16, factor float64) float64 {
	span := c.FullCounts - c.ZeroCounts
	if span == 0 {
		span = 1
	}
	return calReferenceVolts * (float64(count) - c.ZeroCounts) / span * factor
}

// Counts converts a voltage back to raw counts, for encoding trigger levels.
func (c Calibration) Counts(volts float64, factor float64) float64 {
	span := c.FullCounts - c.ZeroCounts
	return c.ZeroCounts + volts/(calReferenceVolts*factor)*span
}

// Probe is a calibrated measurement front-end. The worker owns two of these
// (x1 and x10); whichever the active CaptureConfig names is applied to the
// analog column of every decoded frame.
type Probe struct {
	Kind ProbeKind

	mu  sync.Mutex
	cal Calibration
}

// NewProbe returns a probe with nominal (uncalibrated) constants for a
// 12-bit converter: 0V at 1024 counts, 3.3V at 3072 counts.
func NewProbe(kind ProbeKind) *Probe {
	return &Probe{Kind: kind, cal: Calibration{ZeroCounts: 1024, FullCounts: 3072}}
}

// Calibration returns the probe's current constants.
func (p *Probe) Calibration() Calibration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cal
}

// SetCalibration replaces the probe's constants, e.g. when restoring state.
func (p *Probe) SetCalibration(cal Calibration) {
	p.mu.Lock()
	p.cal = cal
	p.mu.Unlock()
}

// Calibrate0V asks the hardware to measure the 0V reference through this
// probe and stores the result as the new zero point.
func (p *Probe) Calibrate0V(conn ScopeConn) error {
	counts, err := conn.Calibrate0V(p.Kind)
	if err != nil {
		return fmt.Errorf("%s probe 0V calibration: %w", p.Kind, err)
	}
	p.mu.Lock()
	p.cal.ZeroCounts = counts
	p.mu.Unlock()
	return nil
}

// Calibrate3V3 asks the hardware to measure the 3.3V reference through this
// probe and stores the result as the new full-scale point.
func (p *Probe) Calibrate3V3(conn ScopeConn) error {
	counts, err := conn.Calibrate3V3(p.Kind)
	if err != nil {
		return fmt.Errorf("%s probe 3.3V calibration: %w", p.Kind, err)
	}
	p.mu.Lock()
	p.cal.FullCounts = counts
	p.mu.Unlock()
	return nil
}

// RawFrame is one hardware read's worth of undecoded samples: a raw analog
// count, a 9-bit digital bitmap, and a relative sample time per row.
type RawFrame struct {
	Times  []float64 // seconds, relative to the trigger point
	Counts []uint16  // raw analog converter counts
	Bitmap []uint16  // digital channels, bits 0..8
}

// ScopeConn is the opaque capability for one hardware connection. The
// capture worker holds the sole reference; nothing else may touch it.
//
// Read blocks until the trigger condition is met and timeFrame's worth of
// samples have been captured, which can legitimately take unbounded time.
// CancelRead asks a concurrent Read to unblock cooperatively; the cancelled
// Read returns ErrReadCancelled. A Read that completes naturally while a
// cancel is in flight may still return its data, and callers must accept
// either outcome.
type ScopeConn interface {
	Read(timeFrame time.Duration, trigger string) (*RawFrame, error)
	ReadBatch(nsamp int) ([]uint16, error)
	CancelRead()
	SetWaveform(cfg WaveformConfig) error
	Calibrate0V(probe ProbeKind) (float64, error)
	Calibrate3V3(probe ProbeKind) (float64, error)
	WriteCalibration(x1, x10 Calibration) error
	SampleRate() float64
	Close() error
}

// ErrReadCancelled is returned by ScopeConn.Read when a CancelRead
// interrupted it before the capture completed.
var ErrReadCancelled = fmt.Errorf("hardware read cancelled")

// ErrConnectionLost is returned by ScopeConn methods when the device has
// disappeared (unplugged, powered off).
var ErrConnectionLost = fmt.Errorf("connection to device lost")
