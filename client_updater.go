package fleadaq

// Contains the client updater, which publishes JSON-encoded messages
// giving the latest FleaDAQ state on the status port.

import (
	"encoding/json"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// SnapshotSummary is the wire form of a DeviceSnapshot, without the bulk
// sample data (clients that want samples use the RPC Snapshot call).
type SnapshotSummary struct {
	Device     string
	CaptureID  string
	NSamples   int
	LastUpdate time.Time
	Throughput float64
	Connected  bool
	Running    bool
}

// summaryInterval is how often the status socket re-publishes the current
// snapshot summary.
const summaryInterval = 250 * time.Millisecond

// RunClientUpdater publishes device status on a ZMQ PUB socket: SNAPSHOT
// summaries at a steady cadence, NOTIFY messages as the worker emits them,
// and a STATUS message with build info on startup. Each message is two
// frames: topic, then JSON payload.
func RunClientUpdater(dev *Device, portstatus int, abort <-chan struct{}) {
	pubSocket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		ProblemLogger.Printf("could not create status socket: %v", err)
		return
	}
	defer pubSocket.Close()
	hostname := fmt.Sprintf("tcp://*:%d", portstatus)
	if err = pubSocket.Bind(hostname); err != nil {
		ProblemLogger.Printf("could not bind status socket %s: %v", hostname, err)
		return
	}

	publish := func(topic string, message interface{}) {
		payload, err := json.Marshal(message)
		if err != nil {
			ProblemLogger.Printf("could not encode %s message: %v", topic, err)
			return
		}
		if _, err = pubSocket.SendMessage(topic, payload); err != nil {
			ProblemLogger.Printf("could not publish %s message: %v", topic, err)
		}
		UpdateLogger.Printf("%s %s", topic, payload)
	}

	publish("STATUS", Build)

	ticker := time.NewTicker(summaryInterval)
	defer ticker.Stop()
	var lastPublished string
	for {
		select {
		case <-abort:
			return
		case <-ticker.C:
			for {
				note, ok := dev.TryRecvNotification()
				if !ok {
					break
				}
				publish("NOTIFY", note)
			}
			snap := dev.Snapshot()
			summary := SnapshotSummary{
				Device:     dev.Name,
				CaptureID:  snap.CaptureID.String(),
				NSamples:   len(snap.Points),
				LastUpdate: snap.LastUpdate,
				Throughput: snap.Throughput,
				Connected:  snap.Connected,
				Running:    snap.Running,
			}
			// Skip republishing an identical summary.
			if key := fmt.Sprintf("%+v", summary); key != lastPublished {
				lastPublished = key
				publish("SNAPSHOT", summary)
			}
		}
	}
}
