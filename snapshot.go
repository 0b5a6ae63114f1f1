package fleadaq

import (
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// DataPoint is one decoded, calibrated sample: the analog voltage plus the
// states of the nine digital channels.
type DataPoint struct {
	Volts   float64
	Digital [NumDigitalChannels]bool
}

// DeviceSnapshot is the published view of a device. It is immutable once
// published: every update builds a fresh snapshot and swaps it in whole,
// so a reader never observes a half-updated value.
type DeviceSnapshot struct {
	CaptureID  ulid.ULID   // ID of the capture that produced the sample data
	Times      []float64   // seconds, relative to the trigger point
	Points     []DataPoint // same length as Times
	LastUpdate time.Time
	Throughput float64 // completed reads per second over the last second
	Connected  bool
	Running    bool
}

// AnalogSeries returns the time and voltage columns. The time slice shares
// the snapshot's backing array, which is safe because snapshots are never
// mutated after publication.
func (s *DeviceSnapshot) AnalogSeries() ([]float64, []float64) {
	volts := make([]float64, len(s.Points))
	for i, p := range s.Points {
		volts[i] = p.Volts
	}
	return s.Times, volts
}

// DigitalSeries returns the time column and channel's 0/1 trace.
func (s *DeviceSnapshot) DigitalSeries(channel int) ([]float64, []float64) {
	if channel < 0 || channel >= NumDigitalChannels {
		return nil, nil
	}
	levels := make([]float64, len(s.Points))
	for i, p := range s.Points {
		if p.Digital[channel] {
			levels[i] = 1
		}
	}
	return s.Times, levels
}

// SnapshotStore publishes DeviceSnapshots by atomic pointer replacement.
// The worker is the only writer; any number of UI readers may Load
// concurrently without ever blocking the worker.
type SnapshotStore struct {
	ptr atomic.Pointer[DeviceSnapshot]
}

// NewSnapshotStore starts with an empty, disconnected snapshot so Load
// never returns nil.
func NewSnapshotStore() *SnapshotStore {
	s := &SnapshotStore{}
	s.ptr.Store(&DeviceSnapshot{LastUpdate: time.Now()})
	return s
}

// Load returns the latest published snapshot. Never blocks, never nil.
func (s *SnapshotStore) Load() *DeviceSnapshot {
	return s.ptr.Load()
}

// Publish replaces the published snapshot wholesale.
func (s *SnapshotStore) Publish(snap *DeviceSnapshot) {
	s.ptr.Store(snap)
}

// PublishFlags republishes the current sample data with new status flags,
// used when pause or connection loss changes state without new data.
func (s *SnapshotStore) PublishFlags(connected, running bool, throughput float64) {
	prev := s.ptr.Load()
	s.ptr.Store(&DeviceSnapshot{
		CaptureID:  prev.CaptureID,
		Times:      prev.Times,
		Points:     prev.Points,
		LastUpdate: prev.LastUpdate,
		Throughput: throughput,
		Connected:  connected,
		Running:    running,
	})
}
