package fleadaq

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
)

// PackDigital is the inverse of UnpackDigital: nine channel booleans back
// into a bitmap, bit 0 being channel 0.
func PackDigital(ch [NumDigitalChannels]bool) uint16 {
	var bitmap uint16
	for i, on := range ch {
		if on {
			bitmap |= 1 << uint(i)
		}
	}
	return bitmap
}

// ExportTrace writes the snapshot's sample data into dir as numpy arrays
// (times.npy, volts.npy, digital.npy), named by capture ID for offline
// analysis. It returns the common filename prefix of the written files.
func ExportTrace(snap *DeviceSnapshot, dir string) (string, error) {
	if len(snap.Points) == 0 {
		return "", fmt.Errorf("snapshot holds no sample data to export")
	}
	if err := os.MkdirAll(dir, 0775); err != nil {
		return "", err
	}
	prefix := filepath.Join(dir, snap.CaptureID.String())

	volts := make([]float64, len(snap.Points))
	bitmaps := make([]uint16, len(snap.Points))
	for i, p := range snap.Points {
		volts[i] = p.Volts
		bitmaps[i] = PackDigital(p.Digital)
	}

	columns := []struct {
		suffix string
		data   interface{}
	}{
		{"times", snap.Times},
		{"volts", volts},
		{"digital", bitmaps},
	}
	for _, col := range columns {
		name := fmt.Sprintf("%s_%s.npy", prefix, col.suffix)
		f, err := os.Create(name)
		if err != nil {
			return "", err
		}
		if err = npyio.Write(f, col.data); err != nil {
			f.Close()
			return "", fmt.Errorf("writing %s: %w", name, err)
		}
		if err = f.Close(); err != nil {
			return "", err
		}
	}
	return prefix, nil
}
