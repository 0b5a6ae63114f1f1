package fleadaq

import (
	"fmt"
	"strings"
	"time"
)

// Time-frame limits imposed by the scope's capture memory and sample clock.
const (
	MinTimeFrame = 122 * time.Microsecond
	MaxTimeFrame = 3490 * time.Millisecond
)

// Waveform-generator frequency limits in Hz.
const (
	MinWaveformHz = 10
	MaxWaveformHz = 4000
)

// CaptureMode says whether the worker runs bounded triggered captures or
// streams continuously.
type CaptureMode int

// Names for the possible values of CaptureMode
const (
	ModeTriggered CaptureMode = iota
	ModeContinuous
)

func (m CaptureMode) String() string {
	if m == ModeContinuous {
		return "continuous"
	}
	return "triggered"
}

// TriggerSource selects which half of a TriggerConfig is live.
type TriggerSource int

// Names for the possible values of TriggerSource
const (
	SourceAnalog TriggerSource = iota
	SourceDigital
)

// AnalogEdge is the edge behavior of an analog trigger.
type AnalogEdge int

// Names for the possible values of AnalogEdge
const (
	EdgeRising AnalogEdge = iota
	EdgeFalling
	EdgeLevel
	EdgeAuto // level trigger that fires anyway after a holdoff
)

// DigitalBit is one slot of a digital trigger pattern.
type DigitalBit int

// Names for the possible values of DigitalBit
const (
	BitDontCare DigitalBit = iota
	BitLow
	BitHigh
)

// Cycle returns the next state in the don't-care → low → high rotation.
func (b DigitalBit) Cycle() DigitalBit {
	switch b {
	case BitDontCare:
		return BitLow
	case BitLow:
		return BitHigh
	default:
		return BitDontCare
	}
}

func (b DigitalBit) encode() byte {
	switch b {
	case BitLow:
		return '0'
	case BitHigh:
		return '1'
	default:
		return 'x'
	}
}

// DigitalMatchMode says when a digital pattern match fires the trigger.
type DigitalMatchMode int

// Names for the possible values of DigitalMatchMode
const (
	MatchStarts DigitalMatchMode = iota // fire when the pattern starts matching
	MatchStops                          // fire when the pattern stops matching
	MatchWhile                          // capture only while the pattern matches
	MatchWhileAuto                      // as MatchWhile, with auto holdoff
)

// NumDigitalChannels is the number of digital inputs on the scope.
const NumDigitalChannels = 9

// AnalogTrigger is a level/edge condition on the analog channel. Level is
// in calibrated volts for the active probe.
type AnalogTrigger struct {
	Level float64
	Edge  AnalogEdge
}

// DigitalTrigger is a bit-pattern condition over the digital channels.
type DigitalTrigger struct {
	Pattern [NumDigitalChannels]DigitalBit
	Mode    DigitalMatchMode
}

// TriggerConfig is a tagged union over the two trigger sources. Only the
// half named by Source is consulted.
type TriggerConfig struct {
	Source  TriggerSource
	Analog  AnalogTrigger
	Digital DigitalTrigger
}

// DefaultTriggerConfig is a rising-edge analog trigger at mid-range.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Source: SourceAnalog,
		Analog: AnalogTrigger{Level: 1.65, Edge: EdgeRising},
	}
}

// maxTriggerVolts bounds an analog trigger level to what any probe can
// actually see (x10 probe full scale).
const maxTriggerVolts = 33.0

// EncodeTrigger converts a TriggerConfig into the expression string the
// hardware read call accepts. The analog level is translated to raw counts
// using the given probe's calibration. An out-of-range level or an empty
// digital pattern is a configuration error.
func EncodeTrigger(tc TriggerConfig, probe *Probe) (string, error) {
	switch tc.Source {
	case SourceAnalog:
		level := tc.Analog.Level
		if level != level { // NaN
			return "", fmt.Errorf("analog trigger level is NaN")
		}
		if level < -maxTriggerVolts || level > maxTriggerVolts {
			return "", fmt.Errorf("analog trigger level %.3gV outside ±%.3gV", level, maxTriggerVolts)
		}
		counts := probe.Calibration().Counts(level, probe.Kind.Factor())
		var op string
		switch tc.Analog.Edge {
		case EdgeRising:
			op = "rise"
		case EdgeFalling:
			op = "fall"
		case EdgeLevel:
			op = "level"
		case EdgeAuto:
			op = "auto"
		default:
			return "", fmt.Errorf("unknown analog edge %d", tc.Analog.Edge)
		}
		return fmt.Sprintf("%s:%.0f", op, counts), nil

	case SourceDigital:
		var op string
		switch tc.Digital.Mode {
		case MatchStarts:
			op = "start"
		case MatchStops:
			op = "stop"
		case MatchWhile:
			op = "while"
		case MatchWhileAuto:
			op = "whileauto"
		default:
			return "", fmt.Errorf("unknown digital match mode %d", tc.Digital.Mode)
		}
		var sb strings.Builder
		allDontCare := true
		for _, bit := range tc.Digital.Pattern {
			sb.WriteByte(bit.encode())
			if bit != BitDontCare {
				allDontCare = false
			}
		}
		if allDontCare && (tc.Digital.Mode == MatchStarts || tc.Digital.Mode == MatchStops) {
			return "", fmt.Errorf("digital %s-matching trigger needs at least one significant bit", op)
		}
		return fmt.Sprintf("%s:%s", op, sb.String()), nil
	}
	return "", fmt.Errorf("unknown trigger source %d", tc.Source)
}

// CaptureConfig is the complete per-cycle capture request: which probe to
// read through and which mode to run. For ModeTriggered the Trigger and
// TimeFrame fields apply; ModeContinuous ignores them.
type CaptureConfig struct {
	Probe     ProbeKind
	Mode      CaptureMode
	Trigger   TriggerConfig
	TimeFrame time.Duration
}

// ClampTimeFrame forces a requested capture duration into the legal range.
func ClampTimeFrame(d time.Duration) time.Duration {
	if d < MinTimeFrame {
		return MinTimeFrame
	}
	if d > MaxTimeFrame {
		return MaxTimeFrame
	}
	return d
}

// DefaultCaptureConfig is a 100ms triggered capture on the x1 probe.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Probe:     ProbeX1,
		Mode:      ModeTriggered,
		Trigger:   DefaultTriggerConfig(),
		TimeFrame: 100 * time.Millisecond,
	}
}

// WaveformShape selects the built-in signal generator's output shape.
type WaveformShape int

// Names for the possible values of WaveformShape
const (
	ShapeSine WaveformShape = iota
	ShapeSquare
	ShapeTriangle
	ShapeSawtooth
)

func (s WaveformShape) String() string {
	switch s {
	case ShapeSquare:
		return "square"
	case ShapeTriangle:
		return "triangle"
	case ShapeSawtooth:
		return "sawtooth"
	default:
		return "sine"
	}
}

// WaveformConfig configures the signal generator. FreqHz is clamped to the
// generator's range when set through the device handle.
type WaveformConfig struct {
	Enabled bool
	Shape   WaveformShape
	FreqHz  int
}

// ClampWaveformHz forces a generator frequency into the legal range.
func ClampWaveformHz(hz int) int {
	if hz < MinWaveformHz {
		return MinWaveformHz
	}
	if hz > MaxWaveformHz {
		return MaxWaveformHz
	}
	return hz
}
