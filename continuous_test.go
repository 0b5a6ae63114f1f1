package fleadaq

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContinuousBufferTrims(t *testing.T) {
	// 1 kHz with 100 ms retention keeps at most 100 samples.
	b := NewContinuousBuffer(1000, 100*time.Millisecond)
	batch := make([]float64, 50)
	for i := 0; i < 5; i++ {
		for j := range batch {
			batch[j] = float64(i*50 + j)
		}
		b.Append(batch)
	}
	assert.Equal(t, 100, b.Len())

	// The retained samples are the most recent ones, timestamps intact.
	stats := b.Query(100*time.Millisecond, 12, false)
	if len(stats) == 0 {
		t.Fatal("Query returned nothing from a full buffer")
	}
	for _, s := range stats {
		if s.Median < 150 {
			t.Errorf("bin at t=%v holds value %v from the trimmed-away prefix", s.Time, s.Median)
		}
	}
}

func TestQueryBinsAreOrderedEnvelopes(t *testing.T) {
	b := NewContinuousBuffer(1000, time.Second)
	ramp := make([]float64, 1000)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	b.Append(ramp)

	const points = 50
	stats := b.Query(time.Second, points, false)
	if len(stats) == 0 || len(stats) > points-2 {
		t.Fatalf("Query returned %d bins, want 1..%d", len(stats), points-2)
	}
	prev := math.Inf(-1)
	for _, s := range stats {
		if s.Time <= prev {
			t.Errorf("bin times not increasing: %v after %v", s.Time, prev)
		}
		prev = s.Time
		if s.Min > s.Median || s.Median > s.Max {
			t.Errorf("bin at t=%v breaks Min<=Median<=Max: %v %v %v", s.Time, s.Min, s.Median, s.Max)
		}
		if s.Mean < s.Min || s.Mean > s.Max {
			t.Errorf("bin at t=%v has Mean %v outside [%v, %v]", s.Time, s.Mean, s.Min, s.Max)
		}
	}
}

// The query only reads buffer state: identical parameters against an
// unchanged buffer must yield identical output.
func TestQueryIsIdempotent(t *testing.T) {
	b := NewContinuousBuffer(1000, time.Second)
	batch := make([]float64, 500)
	for i := range batch {
		batch[i] = math.Sin(float64(i) / 20)
	}
	b.Append(batch)

	first := b.Query(500*time.Millisecond, 20, false)
	second := b.Query(500*time.Millisecond, 20, false)
	assert.Equal(t, first, second)
}

func TestQueryWrapFoldsTimestamps(t *testing.T) {
	b := NewContinuousBuffer(1000, time.Second)
	batch := make([]float64, 1000)
	b.Append(batch)

	window := 250 * time.Millisecond
	stats := b.Query(window, 10, true)
	if len(stats) == 0 {
		t.Fatal("wrapped Query returned nothing")
	}
	for _, s := range stats {
		if s.Time < 0 || s.Time >= window.Seconds() {
			t.Errorf("wrapped bin time %v outside [0, %v)", s.Time, window.Seconds())
		}
	}
}

func TestQueryDegenerateInputs(t *testing.T) {
	b := NewContinuousBuffer(1000, time.Second)
	if got := b.Query(time.Second, 10, false); got != nil {
		t.Errorf("Query of empty buffer returned %v, want nil", got)
	}
	b.Append([]float64{1, 2, 3})
	if got := b.Query(time.Second, 2, false); got != nil {
		t.Errorf("Query with points=2 returned %v, want nil", got)
	}
	if got := b.Query(0, 10, false); got != nil {
		t.Errorf("Query with zero window returned %v, want nil", got)
	}
}
