package fleadaq

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampTimeFrame(t *testing.T) {
	var tests = []struct {
		in   time.Duration
		want time.Duration
	}{
		{10 * time.Second, MaxTimeFrame},
		{10 * time.Microsecond, MinTimeFrame},
		{MinTimeFrame, MinTimeFrame},
		{MaxTimeFrame, MaxTimeFrame},
		{100 * time.Millisecond, 100 * time.Millisecond},
		{-time.Second, MinTimeFrame},
	}
	for _, test := range tests {
		if got := ClampTimeFrame(test.in); got != test.want {
			t.Errorf("ClampTimeFrame(%v) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestClampWaveformHz(t *testing.T) {
	var tests = []struct {
		in   int
		want int
	}{
		{5, MinWaveformHz},
		{10, 10},
		{440, 440},
		{4000, 4000},
		{40000, MaxWaveformHz},
		{-100, MinWaveformHz},
	}
	for _, test := range tests {
		if got := ClampWaveformHz(test.in); got != test.want {
			t.Errorf("ClampWaveformHz(%d) = %d, want %d", test.in, got, test.want)
		}
	}
}

func TestDigitalBitCycle(t *testing.T) {
	assert.Equal(t, BitLow, BitDontCare.Cycle())
	assert.Equal(t, BitHigh, BitLow.Cycle())
	assert.Equal(t, BitDontCare, BitHigh.Cycle())
}

// TestEncodeAnalogTrigger checks analog trigger levels against a probe
// with nominal calibration (0V at 1024 counts, 3.3V at 3072 counts).
func TestEncodeAnalogTrigger(t *testing.T) {
	x1 := NewProbe(ProbeX1)
	var tests = []struct {
		level float64
		edge  AnalogEdge
		want  string
	}{
		{1.65, EdgeRising, "rise:2048"},
		{0.0, EdgeFalling, "fall:1024"},
		{3.3, EdgeLevel, "level:3072"},
		{1.65, EdgeAuto, "auto:2048"},
	}
	for _, test := range tests {
		tc := TriggerConfig{
			Source: SourceAnalog,
			Analog: AnalogTrigger{Level: test.level, Edge: test.edge},
		}
		got, err := EncodeTrigger(tc, x1)
		if err != nil {
			t.Errorf("EncodeTrigger(level=%v, edge=%v) error: %v", test.level, test.edge, err)
		} else if got != test.want {
			t.Errorf("EncodeTrigger(level=%v, edge=%v) = %q, want %q", test.level, test.edge, got, test.want)
		}
	}

	// The x10 probe sees the same counts at 10x the voltage.
	x10 := NewProbe(ProbeX10)
	tc := TriggerConfig{
		Source: SourceAnalog,
		Analog: AnalogTrigger{Level: 16.5, Edge: EdgeRising},
	}
	got, err := EncodeTrigger(tc, x10)
	assert.NoError(t, err)
	assert.Equal(t, "rise:2048", got)
}

func TestEncodeAnalogTriggerRejectsBadLevels(t *testing.T) {
	x1 := NewProbe(ProbeX1)
	for _, level := range []float64{math.NaN(), 100, -100, 33.001} {
		tc := TriggerConfig{
			Source: SourceAnalog,
			Analog: AnalogTrigger{Level: level, Edge: EdgeRising},
		}
		if _, err := EncodeTrigger(tc, x1); err == nil {
			t.Errorf("EncodeTrigger accepted analog level %v, want error", level)
		}
	}
}

func TestEncodeDigitalTrigger(t *testing.T) {
	x1 := NewProbe(ProbeX1)
	var pattern [NumDigitalChannels]DigitalBit
	pattern[0] = BitHigh
	pattern[2] = BitLow

	var tests = []struct {
		mode DigitalMatchMode
		want string
	}{
		{MatchStarts, "start:1x0xxxxxx"},
		{MatchStops, "stop:1x0xxxxxx"},
		{MatchWhile, "while:1x0xxxxxx"},
		{MatchWhileAuto, "whileauto:1x0xxxxxx"},
	}
	for _, test := range tests {
		tc := TriggerConfig{
			Source:  SourceDigital,
			Digital: DigitalTrigger{Pattern: pattern, Mode: test.mode},
		}
		got, err := EncodeTrigger(tc, x1)
		if err != nil {
			t.Errorf("EncodeTrigger(mode=%v) error: %v", test.mode, err)
		} else if got != test.want {
			t.Errorf("EncodeTrigger(mode=%v) = %q, want %q", test.mode, got, test.want)
		}
	}
}

// An all-don't-care pattern can never start or stop matching, so those two
// modes must reject it. The while modes match everything, which is legal.
func TestEncodeDigitalTriggerEmptyPattern(t *testing.T) {
	x1 := NewProbe(ProbeX1)
	var empty [NumDigitalChannels]DigitalBit

	for _, mode := range []DigitalMatchMode{MatchStarts, MatchStops} {
		tc := TriggerConfig{Source: SourceDigital, Digital: DigitalTrigger{Pattern: empty, Mode: mode}}
		if _, err := EncodeTrigger(tc, x1); err == nil {
			t.Errorf("EncodeTrigger accepted all-don't-care pattern with mode %v", mode)
		}
	}
	tc := TriggerConfig{Source: SourceDigital, Digital: DigitalTrigger{Pattern: empty, Mode: MatchWhile}}
	got, err := EncodeTrigger(tc, x1)
	assert.NoError(t, err)
	assert.Equal(t, "while:xxxxxxxxx", got)
}
