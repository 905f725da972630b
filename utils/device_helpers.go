package utils

import (
	"fmt"

	"github.com/notargets/gocca"
	log "github.com/sirupsen/logrus"
)

// DeviceBackends lists OCCA device properties in order of preference
var DeviceBackends = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// NewDevice opens the first backend that initialises. An explicit property
// string takes precedence over the default list.
func NewDevice(props string) (*gocca.OCCADevice, error) {
	backends := DeviceBackends
	if props != "" {
		backends = []string{props}
	}
	var lastErr error
	for _, p := range backends {
		device, err := gocca.NewDevice(p)
		if err == nil {
			log.WithField("mode", device.Mode()).Debug("created OCCA device")
			return device, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no OCCA backend available: %w", lastErr)
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	device, err := NewDevice("")
	if err != nil {
		panic(err)
	}
	return device
}
