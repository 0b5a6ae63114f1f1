package fleadaq

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotStoreNeverNil(t *testing.T) {
	s := NewSnapshotStore()
	snap := s.Load()
	if snap == nil {
		t.Fatal("fresh store returned a nil snapshot")
	}
	if snap.Connected || snap.Running {
		t.Error("fresh snapshot claims to be connected or running")
	}
}

func TestPublishFlagsPreservesData(t *testing.T) {
	s := NewSnapshotStore()
	id := ulid.Make()
	published := &DeviceSnapshot{
		CaptureID:  id,
		Times:      []float64{0, 1, 2},
		Points:     []DataPoint{{Volts: 0.1}, {Volts: 0.2}, {Volts: 0.3}},
		LastUpdate: time.Now(),
		Connected:  true,
		Running:    true,
	}
	s.Publish(published)

	// Pausing republishes with new flags but the same sample data.
	s.PublishFlags(true, false, 0)
	snap := s.Load()
	assert.Equal(t, id, snap.CaptureID)
	assert.Equal(t, published.Times, snap.Times)
	assert.Equal(t, published.Points, snap.Points)
	assert.True(t, snap.Connected)
	assert.False(t, snap.Running)

	// The published snapshot itself was not mutated.
	assert.True(t, published.Running)
}

func TestSnapshotSeries(t *testing.T) {
	snap := &DeviceSnapshot{
		Times: []float64{0, 1e-3, 2e-3},
		Points: []DataPoint{
			{Volts: 1.0, Digital: UnpackDigital(0x001)},
			{Volts: 2.0, Digital: UnpackDigital(0x000)},
			{Volts: 3.0, Digital: UnpackDigital(0x101)},
		},
	}

	times, volts := snap.AnalogSeries()
	assert.Equal(t, snap.Times, times)
	assert.Equal(t, []float64{1, 2, 3}, volts)

	_, ch0 := snap.DigitalSeries(0)
	assert.Equal(t, []float64{1, 0, 1}, ch0)
	_, ch8 := snap.DigitalSeries(8)
	assert.Equal(t, []float64{0, 0, 1}, ch8)

	if times, levels := snap.DigitalSeries(NumDigitalChannels); times != nil || levels != nil {
		t.Error("DigitalSeries accepted an out-of-range channel")
	}
}
