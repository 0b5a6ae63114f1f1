package fleadaq

import (
	"errors"
	"sync"
	"time"

	"github.com/fleascope/fleadaq/internal/batchchan"
)

// CaptureArchive records one row per published capture. Implemented by
// internal/scopedb; a nil-connection implementation discards rows.
type CaptureArchive interface {
	RecordCapture(id, probe string, nsamples int, throughput float64)
}

type discardArchive struct{}

func (discardArchive) RecordCapture(string, string, int, float64) {}

// CaptureWorker is the state machine that owns one hardware connection and
// mediates between UI-issued changes and long-running, cancellable reads.
// It shares no mutable memory with the UI: everything crosses through the
// capture/waveform watchers, the control queue, the notifier, the batch
// channel, and the published snapshot.
type CaptureWorker struct {
	conn      ScopeConn
	x1, x10   *Probe
	capture   *Watcher[CaptureConfig]
	waveform  *Watcher[WaveformConfig]
	controls  *ControlQueue
	notifier  *Notifier
	snapshots *SnapshotStore
	batches   *batchchan.Channel
	archive   CaptureArchive

	// Loop-private state. Only Run's goroutine touches these.
	running   bool
	connected bool
	pipeline  sync.WaitGroup // in-flight decode→publish goroutines

	throughput     float64
	readCount      int
	lastRateUpdate time.Time
}

// errWorkerExit signals a clean, commanded shutdown of the worker loop.
var errWorkerExit = errors.New("capture worker exiting")

// pausedTick bounds how long the paused state waits before re-checking its
// inputs.
const pausedTick = 100 * time.Millisecond

// NewCaptureWorker assembles a worker from a connection handle, the two
// calibrated probes, and the channel endpoints. Call Run exactly once;
// the worker owns conn from here on.
func NewCaptureWorker(conn ScopeConn, x1, x10 *Probe,
	capture *Watcher[CaptureConfig], waveform *Watcher[WaveformConfig],
	controls *ControlQueue, notifier *Notifier, snapshots *SnapshotStore,
	batches *batchchan.Channel, archive CaptureArchive) *CaptureWorker {
	if archive == nil {
		archive = discardArchive{}
	}
	return &CaptureWorker{
		conn:      conn,
		x1:        x1,
		x10:       x10,
		capture:   capture,
		waveform:  waveform,
		controls:  controls,
		notifier:  notifier,
		snapshots: snapshots,
		batches:   batches,
		archive:   archive,
		running:   true,
		connected: true,

		lastRateUpdate: time.Now(),
	}
}

// Run is the persistent per-device loop. It returns only on an Exit
// command, at which point the hardware handle has been released and a
// final snapshot with connected=false, running=false has been published.
// A failed or cancelled read is never fatal: trigger waits may
// legitimately be long, so the loop retries indefinitely.
func (w *CaptureWorker) Run() {
	UpdateLogger.Printf("capture worker started")
	for {
		// Drain pending control commands, applying each immediately.
		stop := false
		for {
			cmd, ok := w.controls.TryRecv()
			if !ok {
				break
			}
			if err := w.handleControl(cmd); err != nil {
				stop = true
				break
			}
		}
		if stop {
			break
		}

		if w.waveform.Changed() {
			w.applyWaveform(w.waveform.Observe())
		}

		cfg := w.capture.Observe()
		if !w.running {
			if !w.waitWhilePaused() {
				break
			}
			continue
		}

		w.runCycle(cfg)
		w.tickThroughput()
	}
	w.teardown()
}

func (w *CaptureWorker) runCycle(cfg CaptureConfig) {
	switch cfg.Mode {
	case ModeContinuous:
		w.runContinuousCycle(cfg)
	default:
		w.runTriggeredCycle(cfg)
	}
}

// waitWhilePaused blocks on {timer tick, config change, waveform change,
// control command}, so calibration and resume still work while paused.
// Returns false when an Exit command arrived.
func (w *CaptureWorker) waitWhilePaused() bool {
	select {
	case <-time.After(pausedTick):
	case <-w.capture.WaitChan():
	case <-w.waveform.WaitChan():
	case cmd := <-w.controls.Recv():
		if err := w.handleControl(cmd); err != nil {
			return false
		}
	}
	return true
}

// handleControl applies one control command. Only Exit returns an error.
func (w *CaptureWorker) handleControl(cmd ControlCommand) error {
	UpdateLogger.Printf("handling control command: %s", cmd.Op)
	switch cmd.Op {
	case OpCalibrate0V:
		probe := w.probeFor(cmd.Probe)
		if err := probe.Calibrate0V(w.conn); err != nil {
			w.notifier.Error("%v", err)
		} else {
			w.notifier.Success("%s probe calibrated at 0V", probe.Kind)
		}

	case OpCalibrate3V:
		probe := w.probeFor(cmd.Probe)
		if err := probe.Calibrate3V3(w.conn); err != nil {
			w.notifier.Error("%v", err)
		} else {
			w.notifier.Success("%s probe calibrated at 3.3V", probe.Kind)
		}

	case OpStoreCalibration:
		if err := w.conn.WriteCalibration(w.x1.Calibration(), w.x10.Calibration()); err != nil {
			w.notifier.Error("Failed to save calibration: %v", err)
		} else {
			w.notifier.Success("Calibration saved successfully")
		}

	case OpPause:
		w.setPaused()

	case OpResume:
		w.running = true
		w.snapshots.PublishFlags(w.connected, true, w.throughput)

	case OpStep:
		// One acquisition cycle even while paused.
		w.runCycle(w.capture.Observe())

	case OpExit:
		return errWorkerExit
	}
	return nil
}

func (w *CaptureWorker) applyWaveform(cfg WaveformConfig) {
	if err := w.conn.SetWaveform(cfg); err != nil {
		if errors.Is(err, ErrConnectionLost) {
			w.setLostConnection()
			return
		}
		w.notifier.Error("Failed to configure waveform generator: %v", err)
	}
}

func (w *CaptureWorker) probeFor(kind ProbeKind) *Probe {
	if kind == ProbeX10 {
		return w.x10
	}
	return w.x1
}

func (w *CaptureWorker) setPaused() {
	w.running = false
	w.throughput = 0
	// Let any in-flight decode publish first, so the paused flags are the
	// final word.
	w.pipeline.Wait()
	w.snapshots.PublishFlags(w.connected, false, 0)
}

// setLostConnection reports a connection loss once per transition; the
// loop keeps retrying rather than exiting.
func (w *CaptureWorker) setLostConnection() {
	if !w.connected {
		return
	}
	ProblemLogger.Printf("lost connection to device")
	w.notifier.Error("Lost connection to the device.")
	w.connected = false
	w.snapshots.PublishFlags(false, w.running, 0)
}

func (w *CaptureWorker) setConnected() {
	if w.connected {
		return
	}
	w.connected = true
	w.notifier.Success("Device reconnected.")
}

// tickThroughput maintains the rolling one-second completed-reads counter.
func (w *CaptureWorker) tickThroughput() {
	w.readCount++
	if elapsed := time.Since(w.lastRateUpdate); elapsed >= time.Second {
		w.throughput = float64(w.readCount) / elapsed.Seconds()
		w.readCount = 0
		w.lastRateUpdate = time.Now()
	}
}

// teardown waits out the decode pipeline (so a late publish cannot mask
// the final state), releases the hardware handle, and publishes the
// terminal snapshot.
func (w *CaptureWorker) teardown() {
	w.pipeline.Wait()
	w.batches.Close()
	if err := w.conn.Close(); err != nil {
		ProblemLogger.Printf("closing device connection: %v", err)
	}
	w.snapshots.PublishFlags(false, false, 0)
	UpdateLogger.Printf("capture worker exited")
}
