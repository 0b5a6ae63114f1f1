package scopedb

import "time"

// SessionMessage describes one run of the FleaDAQ server, from startup to
// shutdown. One row per session in the sessions table.
type SessionMessage struct {
	ID        string // ULID assigned at startup
	Hostname  string
	Version   string // FleaDAQ version
	GoVersion string
	Device    string // name of the attached scope
	Start     time.Time
	End       time.Time
}

// CaptureMessage describes one completed triggered capture. One row per
// capture in the captures table.
type CaptureMessage struct {
	ID         string // ULID of the capture
	SessionID  string
	Probe      string // "X1" or "X10"
	NSamples   int
	Throughput float64 // samples per second over the last rate window
	Time       time.Time
}
