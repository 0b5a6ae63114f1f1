package fleadaq

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ScopeControl is the sub-server that handles remote configuration and
// operation of the active device. It is the headless stand-in for a local
// control panel: every UI-facing device operation is reachable here.
type ScopeControl struct {
	device *Device
}

// storedCaptureState is the viper-persisted shape of the capture and
// waveform configuration, restored on the next startup.
type storedCaptureState struct {
	Mode             string
	Probe            string
	TimeFrameSeconds float64
	Trigger          TriggerConfig
	Waveform         WaveformConfig
}

// saveCaptureState writes the current configuration back to the config
// file. Errors are logged, not fatal: persistence is best-effort.
func (s *ScopeControl) saveCaptureState() {
	cfg := s.device.CaptureConfig()
	state := storedCaptureState{
		Mode:             cfg.Mode.String(),
		Probe:            cfg.Probe.String(),
		TimeFrameSeconds: cfg.TimeFrame.Seconds(),
		Trigger:          cfg.Trigger,
		Waveform:         s.device.WaveformConfig(),
	}
	viper.Set("capture", state)
	if err := viper.WriteConfig(); err != nil {
		ProblemLogger.Printf("could not persist capture state: %v", err)
	}
}

// RestoreCaptureConfig rebuilds the last-used capture and waveform
// configuration from the config file, falling back to defaults for
// anything unreadable.
func RestoreCaptureConfig() (CaptureConfig, WaveformConfig) {
	cfg := DefaultCaptureConfig()
	wave := WaveformConfig{Shape: ShapeSine, FreqHz: 1000}
	var state storedCaptureState
	if err := viper.UnmarshalKey("capture", &state); err != nil {
		return cfg, wave
	}
	if strings.EqualFold(state.Mode, "continuous") {
		cfg.Mode = ModeContinuous
	}
	if strings.EqualFold(state.Probe, "x10") {
		cfg.Probe = ProbeX10
	}
	if state.TimeFrameSeconds > 0 {
		cfg.TimeFrame = ClampTimeFrame(time.Duration(state.TimeFrameSeconds * float64(time.Second)))
	}
	if state.Trigger != (TriggerConfig{}) {
		cfg.Trigger = state.Trigger
	}
	if state.Waveform.FreqHz != 0 {
		wave = state.Waveform
		wave.FreqHz = ClampWaveformHz(wave.FreqHz)
	}
	return cfg, wave
}

// Status reports the current snapshot summary.
func (s *ScopeControl) Status(dummy *string, reply *SnapshotSummary) error {
	snap := s.device.Snapshot()
	*reply = SnapshotSummary{
		Device:     s.device.Name,
		CaptureID:  snap.CaptureID.String(),
		NSamples:   len(snap.Points),
		LastUpdate: snap.LastUpdate,
		Throughput: snap.Throughput,
		Connected:  snap.Connected,
		Running:    snap.Running,
	}
	return nil
}

// Snapshot returns the full latest published snapshot, samples included.
func (s *ScopeControl) Snapshot(dummy *string, reply *DeviceSnapshot) error {
	*reply = *s.device.Snapshot()
	return nil
}

// ConfigureTrigger replaces the trigger condition.
func (s *ScopeControl) ConfigureTrigger(tc *TriggerConfig, reply *bool) error {
	s.device.SetTriggerConfig(*tc)
	s.saveCaptureState()
	*reply = true
	return nil
}

// SetCaptureMode switches between "triggered" and "continuous".
func (s *ScopeControl) SetCaptureMode(mode *string, reply *bool) error {
	switch strings.ToUpper(*mode) {
	case "TRIGGERED":
		s.device.SetCaptureMode(ModeTriggered)
	case "CONTINUOUS":
		s.device.SetCaptureMode(ModeContinuous)
	default:
		return fmt.Errorf("capture mode %q not recognized, must be one of (TRIGGERED, CONTINUOUS)", *mode)
	}
	s.saveCaptureState()
	*reply = true
	return nil
}

// SetProbe selects the "x1" or "x10" front-end.
func (s *ScopeControl) SetProbe(probe *string, reply *bool) error {
	switch strings.ToUpper(*probe) {
	case "X1":
		s.device.SetProbe(ProbeX1)
	case "X10":
		s.device.SetProbe(ProbeX10)
	default:
		return fmt.Errorf("probe %q not recognized, must be one of (X1, X10)", *probe)
	}
	s.saveCaptureState()
	*reply = true
	return nil
}

// SetTimeFrame sets the triggered-capture duration in seconds, clamped to
// the legal range. The clamped value is returned in seconds.
func (s *ScopeControl) SetTimeFrame(seconds *float64, reply *float64) error {
	s.device.SetTimeFrame(time.Duration(*seconds * float64(time.Second)))
	s.saveCaptureState()
	*reply = s.device.TimeFrame().Seconds()
	return nil
}

// SetBufferTime sets the continuous-mode rolling window in seconds.
func (s *ScopeControl) SetBufferTime(seconds *float64, reply *bool) error {
	if *seconds <= 0 {
		return fmt.Errorf("buffer time must be positive, got %v", *seconds)
	}
	s.device.SetBufferTime(time.Duration(*seconds * float64(time.Second)))
	*reply = true
	return nil
}

// WaveformArgs configures the signal generator over RPC.
type WaveformArgs struct {
	Shape  string
	FreqHz int
}

// ConfigureWaveform enables the signal generator.
func (s *ScopeControl) ConfigureWaveform(args *WaveformArgs, reply *bool) error {
	var shape WaveformShape
	switch strings.ToUpper(args.Shape) {
	case "SINE", "":
		shape = ShapeSine
	case "SQUARE":
		shape = ShapeSquare
	case "TRIANGLE":
		shape = ShapeTriangle
	case "SAWTOOTH":
		shape = ShapeSawtooth
	default:
		return fmt.Errorf("waveform shape %q not recognized", args.Shape)
	}
	s.device.SetWaveform(shape, args.FreqHz)
	s.saveCaptureState()
	*reply = true
	return nil
}

// Pause stops acquisition; calibration still works while paused.
func (s *ScopeControl) Pause(dummy *string, reply *bool) error {
	*reply = true
	return s.device.Pause()
}

// Resume continues acquisition.
func (s *ScopeControl) Resume(dummy *string, reply *bool) error {
	*reply = true
	return s.device.Resume()
}

// Step runs one acquisition cycle while paused.
func (s *ScopeControl) Step(dummy *string, reply *bool) error {
	*reply = true
	return s.device.Step()
}

// Calibrate0V calibrates the active probe against the 0V reference.
func (s *ScopeControl) Calibrate0V(dummy *string, reply *bool) error {
	*reply = true
	return s.device.Calibrate0V()
}

// Calibrate3V calibrates the active probe against the 3.3V reference.
func (s *ScopeControl) Calibrate3V(dummy *string, reply *bool) error {
	*reply = true
	return s.device.Calibrate3V()
}

// StoreCalibration persists both probes' constants to the device's flash.
func (s *ScopeControl) StoreCalibration(dummy *string, reply *bool) error {
	*reply = true
	return s.device.StoreCalibration()
}

// ExportTrace writes the current snapshot as numpy arrays under the given
// directory and replies with the common filename prefix.
func (s *ScopeControl) ExportTrace(dir *string, reply *string) error {
	prefix, err := ExportTrace(s.device.Snapshot(), *dir)
	if err != nil {
		return err
	}
	*reply = prefix
	return nil
}

// SeriesArgs asks for a downsampled continuous-mode series.
type SeriesArgs struct {
	Points int
}

// Series answers with ≈Points bins covering the continuous rolling window.
func (s *ScopeControl) Series(args *SeriesArgs, reply *[]BinStat) error {
	*reply = s.device.Series(args.Points)
	return nil
}

// RunRPCServer sets up and runs a permanent JSON-RPC server controlling
// the given device. Returns only on listener failure.
func RunRPCServer(dev *Device, portrpc int) error {
	scopeControl := &ScopeControl{device: dev}

	server := rpc.NewServer()
	if err := server.Register(scopeControl); err != nil {
		return err
	}
	port := fmt.Sprintf(":%d", portrpc)
	listener, err := net.Listen("tcp", port)
	if err != nil {
		return fmt.Errorf("listen error: %w", err)
	}
	UpdateLogger.Printf("RPC server listening on %s", port)
	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accept error: %w", err)
		}
		UpdateLogger.Printf("new connection established")
		go server.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}
