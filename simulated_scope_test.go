package fleadaq

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimScopeCancelUnblocksRead(t *testing.T) {
	sim := NewSimScope(100000)
	sim.TriggerLatency = time.Hour

	result := make(chan error, 1)
	go func() {
		_, err := sim.Read(time.Millisecond, "rise:2048")
		result <- err
	}()
	time.Sleep(10 * time.Millisecond) // let the read arm
	sim.CancelRead()

	select {
	case err := <-result:
		if !errors.Is(err, ErrReadCancelled) {
			t.Errorf("cancelled read returned %v, want ErrReadCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("CancelRead did not unblock the read")
	}
}

func TestSimScopeFrameShape(t *testing.T) {
	sim := NewSimScope(100000)
	sim.TriggerLatency = 0

	frame, err := sim.Read(time.Millisecond, "rise:2048")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	n := len(frame.Times)
	assert.Equal(t, 100, n) // 100 kHz for 1 ms
	assert.Equal(t, n, len(frame.Counts))
	assert.Equal(t, n, len(frame.Bitmap))
	for _, c := range frame.Counts {
		if c > 4095 {
			t.Fatalf("count %d exceeds the 12-bit converter range", c)
		}
	}

	// Capture memory bounds the frame even for the longest time frames.
	long, err := sim.Read(MaxTimeFrame, "rise:2048")
	assert.NoError(t, err)
	assert.Equal(t, maxFrameSamples, len(long.Times))
}

func TestSimScopeClosedReadsFail(t *testing.T) {
	sim := NewSimScope(100000)
	assert.NoError(t, sim.Close())

	_, err := sim.Read(time.Millisecond, "rise:2048")
	assert.ErrorIs(t, err, ErrConnectionLost)
	_, err = sim.ReadBatch(64)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, sim.SetWaveform(WaveformConfig{}), ErrConnectionLost)
}

func TestSimScopeFailureInjection(t *testing.T) {
	sim := NewSimScope(100000)
	sim.TriggerLatency = 0
	boom := errors.New("boom")

	sim.FailNext(boom)
	_, err := sim.Read(time.Millisecond, "rise:2048")
	assert.ErrorIs(t, err, boom)

	// The injected failure is consumed; the next read succeeds.
	_, err = sim.Read(time.Millisecond, "rise:2048")
	assert.NoError(t, err)
}
