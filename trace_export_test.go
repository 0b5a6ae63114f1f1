package fleadaq

import (
	"fmt"
	"os"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

func TestExportTrace(t *testing.T) {
	snap := &DeviceSnapshot{
		CaptureID: ulid.Make(),
		Times:     []float64{0, 1e-5, 2e-5},
		Points: []DataPoint{
			{Volts: 0.0, Digital: UnpackDigital(0x001)},
			{Volts: 1.65, Digital: UnpackDigital(0x155)},
			{Volts: 3.3, Digital: UnpackDigital(0x1ff)},
		},
	}
	dir := t.TempDir()
	prefix, err := ExportTrace(snap, dir)
	if err != nil {
		t.Fatalf("ExportTrace: %v", err)
	}
	for _, suffix := range []string{"times", "volts", "digital"} {
		name := fmt.Sprintf("%s_%s.npy", prefix, suffix)
		info, err := os.Stat(name)
		if err != nil {
			t.Errorf("expected output file %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("output file %s is empty", name)
		}
	}
}

func TestExportTraceRejectsEmptySnapshot(t *testing.T) {
	_, err := ExportTrace(&DeviceSnapshot{}, t.TempDir())
	assert.Error(t, err)
}
