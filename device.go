package fleadaq

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fleascope/fleadaq/internal/batchchan"
)

// TriggeredCaptureConfig is the remembered triggered-mode sub-config, kept
// when the device switches modes so switching back restores it.
type TriggeredCaptureConfig struct {
	TimeFrame time.Duration
	Trigger   TriggerConfig
}

// ContinuousCaptureConfig is the remembered continuous-mode sub-config.
type ContinuousCaptureConfig struct {
	BufferTime time.Duration // rolling window retained and displayed
}

// Device is the UI-facing handle for one connected scope. All methods are
// non-blocking: configuration edits publish into the config watcher,
// control methods enqueue commands, and Snapshot reads the latest
// published state. The worker goroutine owns the hardware; Device never
// touches worker memory.
type Device struct {
	Name string
	ID   ulid.ULID

	snapshots *SnapshotStore
	capture   *Watcher[CaptureConfig]
	waveform  *Watcher[WaveformConfig]
	controls  *ControlQueue
	notifier  *Notifier
	batches   *batchchan.Channel

	workerDone chan struct{}
	sampleRate float64

	mu         sync.Mutex // guards the remembered sub-configs below
	probe      ProbeKind
	mode       CaptureMode
	triggered  TriggeredCaptureConfig
	continuous ContinuousCaptureConfig
	wavecfg    WaveformConfig
	enabled    [1 + NumDigitalChannels]bool // analog + 9 digital display channels
	wrap       bool
	buf        *ContinuousBuffer
}

// NewDevice wires a connection handle and two calibrated probes into a
// running capture worker and returns the handle for it. The worker owns
// conn until Stop.
func NewDevice(name string, conn ScopeConn, x1, x10 *Probe,
	initial CaptureConfig, initialWave WaveformConfig, archive CaptureArchive) *Device {
	d := &Device{
		Name:       name,
		ID:         ulid.Make(),
		snapshots:  NewSnapshotStore(),
		capture:    NewWatcher(initial),
		waveform:   NewWatcher(initialWave),
		controls:   NewControlQueue(),
		notifier:   NewNotifier(),
		batches:    batchchan.New(),
		workerDone: make(chan struct{}),
		sampleRate: conn.SampleRate(),
		probe:      initial.Probe,
		mode:       initial.Mode,
		triggered: TriggeredCaptureConfig{
			TimeFrame: initial.TimeFrame,
			Trigger:   initial.Trigger,
		},
		continuous: ContinuousCaptureConfig{BufferTime: time.Second},
		wavecfg:    initialWave,
		wrap:       true,
	}
	for i := range d.enabled {
		d.enabled[i] = true
	}

	worker := NewCaptureWorker(conn, x1, x10, d.capture, d.waveform,
		d.controls, d.notifier, d.snapshots, d.batches, archive)
	go func() {
		worker.Run()
		close(d.workerDone)
	}()
	go d.drainBatches()
	return d
}

// signalConfigChange rebuilds the CaptureConfig from the remembered
// sub-configs and publishes it. Callers hold d.mu.
func (d *Device) signalConfigChange() {
	d.capture.Set(CaptureConfig{
		Probe:     d.probe,
		Mode:      d.mode,
		Trigger:   d.triggered.Trigger,
		TimeFrame: d.triggered.TimeFrame,
	})
}

// SetCaptureMode switches between triggered and continuous capture. The
// continuous buffer is discarded on any mode switch.
func (d *Device) SetCaptureMode(mode CaptureMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mode != d.mode {
		d.buf = nil
	}
	d.mode = mode
	d.signalConfigChange()
}

// SetTriggerConfig replaces the trigger condition for triggered mode.
func (d *Device) SetTriggerConfig(tc TriggerConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggered.Trigger = tc
	d.signalConfigChange()
}

// SetProbe selects the x1 or x10 front-end.
func (d *Device) SetProbe(kind ProbeKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probe = kind
	d.signalConfigChange()
}

// SetTimeFrame sets the triggered-capture duration, clamped to the scope's
// legal range.
func (d *Device) SetTimeFrame(tf time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggered.TimeFrame = ClampTimeFrame(tf)
	d.signalConfigChange()
}

// TimeFrame returns the current (clamped) triggered-capture duration.
func (d *Device) TimeFrame() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.triggered.TimeFrame
}

// SetBufferTime sets the continuous-mode rolling window. The buffer is
// rebuilt with the new retention on the next batch.
func (d *Device) SetBufferTime(window time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.continuous.BufferTime = window
	d.buf = nil
}

// SetWaveform enables the signal generator with the given shape and
// frequency (clamped to the generator's range).
func (d *Device) SetWaveform(shape WaveformShape, freqHz int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wavecfg = WaveformConfig{Enabled: true, Shape: shape, FreqHz: ClampWaveformHz(freqHz)}
	d.waveform.Set(d.wavecfg)
}

// WaveformConfig returns the current generator configuration.
func (d *Device) WaveformConfig() WaveformConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wavecfg
}

// CaptureConfig returns the capture configuration as last published.
func (d *Device) CaptureConfig() CaptureConfig {
	return d.capture.Peek()
}

// SetEnabledChannels sets the display mask: index 0 is the analog channel,
// 1..9 the digital channels.
func (d *Device) SetEnabledChannels(enabled [1 + NumDigitalChannels]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}

// EnabledChannels returns the display mask.
func (d *Device) EnabledChannels() [1 + NumDigitalChannels]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// SetWrap switches the continuous display between a stationary sweep and
// continuous scrolling.
func (d *Device) SetWrap(wrap bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wrap = wrap
}

// Pause asks the worker to stop acquiring. Calibration still works while
// paused.
func (d *Device) Pause() error {
	return d.controls.TrySend(ControlCommand{Op: OpPause})
}

// Resume asks the worker to continue acquiring.
func (d *Device) Resume() error {
	return d.controls.TrySend(ControlCommand{Op: OpResume})
}

// Step asks a paused worker to run exactly one acquisition cycle.
func (d *Device) Step() error {
	return d.controls.TrySend(ControlCommand{Op: OpStep})
}

// Calibrate0V asks the worker to calibrate the active probe against 0V.
func (d *Device) Calibrate0V() error {
	d.mu.Lock()
	probe := d.probe
	d.mu.Unlock()
	return d.controls.TrySend(ControlCommand{Op: OpCalibrate0V, Probe: probe})
}

// Calibrate3V asks the worker to calibrate the active probe against 3.3V.
func (d *Device) Calibrate3V() error {
	d.mu.Lock()
	probe := d.probe
	d.mu.Unlock()
	return d.controls.TrySend(ControlCommand{Op: OpCalibrate3V, Probe: probe})
}

// StoreCalibration asks the worker to persist both probes' calibration to
// the device's flash.
func (d *Device) StoreCalibration() error {
	return d.controls.TrySend(ControlCommand{Op: OpStoreCalibration})
}

// Stop commands the worker to exit and release the hardware.
func (d *Device) Stop() error {
	return d.controls.TrySend(ControlCommand{Op: OpExit})
}

// Stopped is closed once the worker has torn down.
func (d *Device) Stopped() <-chan struct{} {
	return d.workerDone
}

// Snapshot returns the latest published device state. Never blocks.
func (d *Device) Snapshot() *DeviceSnapshot {
	return d.snapshots.Load()
}

// TryRecvNotification drains one pending notification, for toast-style
// display. Never blocks.
func (d *Device) TryRecvNotification() (Notification, bool) {
	return d.notifier.TryRecv()
}

// drainBatches feeds continuous-mode batches into the rolling buffer. The
// buffer is created lazily on the first batch and discarded on mode switch.
func (d *Device) drainBatches() {
	for batch := range d.batches.Out() {
		d.mu.Lock()
		if d.buf == nil {
			d.buf = NewContinuousBuffer(d.sampleRate, d.continuous.BufferTime)
		}
		d.buf.Append(batch)
		d.mu.Unlock()
	}
}

// Series answers "≈points samples representing the current rolling window"
// for continuous mode. Returns nil when no continuous data is buffered.
func (d *Device) Series(points int) []BinStat {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.buf == nil {
		return nil
	}
	return d.buf.Query(d.continuous.BufferTime, points, d.wrap)
}
