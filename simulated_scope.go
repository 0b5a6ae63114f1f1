package fleadaq

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SimScope is a software stand-in for real scope hardware, behind the same
// ScopeConn boundary. It synthesizes the signal its own waveform generator
// is configured for, honors cooperative read cancellation, and lets tests
// inject trigger latency and failures. cmd/fleadaq uses it when no hardware
// backend is configured.
type SimScope struct {
	rate float64

	// TriggerLatency simulates the wait for the trigger condition before a
	// triggered read produces data. Set before starting reads.
	TriggerLatency time.Duration

	mu      sync.Mutex
	cancel  chan struct{} // non-nil while a triggered read is in flight
	wave    WaveformConfig
	zero    float64 // converter counts at 0V
	full    float64 // converter counts at 3.3V
	count   uint64  // continuous-mode sample counter
	failErr error   // injected failure for the next operation
	written [2]Calibration
	closed  bool
}

// maxFrameSamples models the scope's finite capture memory.
const maxFrameSamples = 8192

// NewSimScope creates a simulated scope sampling at the given rate.
func NewSimScope(rate float64) *SimScope {
	return &SimScope{
		rate:           rate,
		TriggerLatency: 2 * time.Millisecond,
		wave:           WaveformConfig{Enabled: true, Shape: ShapeSine, FreqHz: 100},
		zero:           1024,
		full:           3072,
	}
}

// SampleRate returns the fixed sample rate.
func (s *SimScope) SampleRate() float64 { return s.rate }

// FailNext makes the next Read, ReadBatch, or calibration return err.
func (s *SimScope) FailNext(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

func (s *SimScope) takeFailure() error {
	err := s.failErr
	s.failErr = nil
	return err
}

// Read blocks for the simulated trigger wait, then returns one frame of
// synthesized samples. CancelRead unblocks it with ErrReadCancelled.
func (s *SimScope) Read(timeFrame time.Duration, trigger string) (*RawFrame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrConnectionLost
	}
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	cancel := make(chan struct{})
	s.cancel = cancel
	wave := s.wave
	latency := s.TriggerLatency
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.cancel == cancel {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	select {
	case <-time.After(latency):
	case <-cancel:
		return nil, ErrReadCancelled
	}

	n := int(s.rate * timeFrame.Seconds())
	if n < 16 {
		n = 16
	}
	if n > maxFrameSamples {
		n = maxFrameSamples
	}
	frame := &RawFrame{
		Times:  make([]float64, n),
		Counts: make([]uint16, n),
		Bitmap: make([]uint16, n),
	}
	for i := 0; i < n; i++ {
		t := float64(i) / s.rate
		frame.Times[i] = t
		frame.Counts[i] = s.countsAt(wave, t)
		frame.Bitmap[i] = uint16(i) & 0x1ff
	}
	return frame, nil
}

// ReadBatch paces itself at the sample rate and returns n raw counts,
// continuing the phase of the previous batch.
func (s *SimScope) ReadBatch(nsamp int) ([]uint16, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrConnectionLost
	}
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	wave := s.wave
	start := s.count
	s.count += uint64(nsamp)
	s.mu.Unlock()

	time.Sleep(time.Duration(float64(nsamp) / s.rate * float64(time.Second)))

	counts := make([]uint16, nsamp)
	for i := range counts {
		t := float64(start+uint64(i)) / s.rate
		counts[i] = s.countsAt(wave, t)
	}
	return counts, nil
}

// CancelRead cooperatively unblocks an in-flight Read, if any.
func (s *SimScope) CancelRead() {
	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
	s.mu.Unlock()
}

// SetWaveform reconfigures the synthesized signal.
func (s *SimScope) SetWaveform(cfg WaveformConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrConnectionLost
	}
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.wave = cfg
	return nil
}

// Calibrate0V measures the simulated 0V reference.
func (s *SimScope) Calibrate0V(probe ProbeKind) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}
	return s.zero, nil
}

// Calibrate3V3 measures the simulated 3.3V reference.
func (s *SimScope) Calibrate3V3(probe ProbeKind) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return 0, err
	}
	return s.full, nil
}

// WriteCalibration records what would be persisted to the device's flash.
func (s *SimScope) WriteCalibration(x1, x10 Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.written[0] = x1
	s.written[1] = x10
	return nil
}

// WrittenCalibration returns the constants most recently persisted.
func (s *SimScope) WrittenCalibration() (x1, x10 Calibration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written[0], s.written[1]
}

// Close releases the simulated hardware; subsequent reads fail.
func (s *SimScope) Close() error {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
	s.mu.Unlock()
	return nil
}

// countsAt evaluates the configured waveform at time t, in raw counts.
func (s *SimScope) countsAt(wave WaveformConfig, t float64) uint16 {
	freq := float64(wave.FreqHz)
	if !wave.Enabled || freq <= 0 {
		freq = 1000
	}
	phase := math.Mod(t*freq, 1)
	var v float64 // 0..1
	switch wave.Shape {
	case ShapeSquare:
		if phase < 0.5 {
			v = 1
		}
	case ShapeTriangle:
		v = 1 - math.Abs(2*phase-1)
	case ShapeSawtooth:
		v = phase
	default:
		v = 0.5 + 0.5*math.Sin(2*math.Pi*phase)
	}
	counts := s.zero + v*(s.full-s.zero)
	if counts < 0 {
		counts = 0
	}
	if counts > 4095 {
		counts = 4095
	}
	return uint16(counts)
}

// String identifies the simulated device in logs.
func (s *SimScope) String() string {
	return fmt.Sprintf("SimScope(%.0f samples/s)", s.rate)
}
