package fleadaq

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// readResult joins the blocking hardware read back to the polling loop.
type readResult struct {
	frame *RawFrame
	err   error
}

// acquisitionPollInterval is how often an in-flight read is checked against
// the three cancellation sources. Cancellation latency is bounded by the
// driver's responsiveness, not by this interval.
const acquisitionPollInterval = time.Millisecond

// readRetryDelay spaces out retries after a failed read, so a dead or
// glitching device does not spin the loop.
const readRetryDelay = 50 * time.Millisecond

// runTriggeredCycle performs exactly one triggered hardware read,
// interruptible by a pending control command, a capture-config change, or a
// waveform change. The blocking call runs on its own goroutine so it cannot
// starve the worker; cancellation is cooperative via CancelRead.
//
// No timeout is imposed: a trigger wait may legitimately be unbounded, and
// only explicit cancellation may abort it.
func (w *CaptureWorker) runTriggeredCycle(cfg CaptureConfig) {
	probe := w.probeFor(cfg.Probe)
	trigger, err := EncodeTrigger(cfg.Trigger, probe)
	if err != nil {
		w.notifier.Error("Invalid trigger configuration: %v", err)
		w.setPaused()
		return
	}

	done := make(chan readResult, 1)
	go func() {
		frame, err := w.conn.Read(ClampTimeFrame(cfg.TimeFrame), trigger)
		done <- readResult{frame, err}
	}()

	ticker := time.NewTicker(acquisitionPollInterval)
	defer ticker.Stop()
	cancelled := false
	for {
		select {
		case res := <-done:
			// Natural completion can race a cancel signal; a read that
			// returns data anyway is still decoded and published, and the
			// next cycle picks up the fresh config.
			w.finishRead(res, probe)
			return
		case <-ticker.C:
			if cancelled {
				continue
			}
			// Fixed priority order: control commands, then capture config,
			// then waveform config.
			if w.controls.Pending() || w.capture.Changed() || w.waveform.Changed() {
				w.conn.CancelRead()
				cancelled = true
			}
		}
	}
}

// finishRead resolves one completed read to data, cancel, or error. The
// decode→calibrate→publish pipeline runs off the polling path so the next
// cycle can start immediately.
func (w *CaptureWorker) finishRead(res readResult, probe *Probe) {
	if res.err != nil {
		switch {
		case errors.Is(res.err, ErrReadCancelled):
			// Clean cancel: no data, no snapshot change, immediate restart.
		case errors.Is(res.err, ErrConnectionLost):
			w.setLostConnection()
			time.Sleep(readRetryDelay)
		default:
			// Transient failure (e.g. an auto-trigger miss): retried next
			// iteration, deliberately without a user notification.
			ProblemLogger.Printf("read failed, will retry: %v", res.err)
			time.Sleep(readRetryDelay)
		}
		return
	}
	w.setConnected()

	id := ulid.Make()
	running := w.running
	throughput := w.throughput
	w.pipeline.Add(1)
	go func() {
		defer w.pipeline.Done()
		times, points, err := DecodeFrame(res.frame, probe)
		if err != nil {
			// Protocol-contract violation: fatal to this batch only. No
			// snapshot update happens, rather than displaying corrupt data.
			ProblemLogger.Printf("dropping undecodable frame: %v", err)
			return
		}
		snap := &DeviceSnapshot{
			CaptureID:  id,
			Times:      times,
			Points:     points,
			LastUpdate: time.Now(),
			Throughput: throughput,
			Connected:  true,
			Running:    running,
		}
		w.snapshots.Publish(snap)
		w.archive.RecordCapture(id.String(), probe.Kind.String(), len(points), throughput)
	}()
}

// continuousReadsPerSecond sets the nominal batch cadence in continuous
// mode. Batches are short fixed-size reads and need no mid-flight cancel.
const continuousReadsPerSecond = 30

// runContinuousCycle performs one short streaming read and forwards the
// calibrated batch to the unbounded batch channel.
func (w *CaptureWorker) runContinuousCycle(cfg CaptureConfig) {
	probe := w.probeFor(cfg.Probe)
	nsamp := int(w.conn.SampleRate() / continuousReadsPerSecond)
	if nsamp < 64 {
		nsamp = 64
	}
	counts, err := w.conn.ReadBatch(nsamp)
	if err != nil {
		if errors.Is(err, ErrConnectionLost) {
			w.setLostConnection()
		} else {
			ProblemLogger.Printf("continuous read failed, will retry: %v", err)
		}
		time.Sleep(readRetryDelay)
		return
	}
	w.setConnected()
	w.batches.In() <- CalibrateBatch(counts, probe)
}
