package sensor

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Porter is the minimal serial port surface a SerialSource needs.
type Porter interface {
	io.ReadWriteCloser
}

// PortOpener opens the serial device at path.
type PortOpener func(path string, opts PortOptions) (Porter, error)

// OpenSerialPort opens a real serial port with go.bug.st/serial.
func OpenSerialPort(path string, opts PortOptions) (Porter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrNoSensor, path, err)
	}
	return port, nil
}

// listPorts is replaced in tests.
var listPorts = enumerator.GetDetailedPortsList

// BridgeIDs lists USB "VID:PID" pairs (upper-case hex) of known depth bridges.
// A matching port wins over any other USB serial device.
var BridgeIDs = []string{"2E8A:000A", "0483:5740"}

// DetectPort returns the attached USB serial device that looks most like a
// depth bridge, or ErrNoSensor when none is present.
func DetectPort() (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("%w: list ports: %v", ErrNoSensor, err)
	}
	var fallback string
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		id := strings.ToUpper(p.VID + ":" + p.PID)
		for _, known := range BridgeIDs {
			if id == known {
				diagf("found depth bridge %s (%s %s)", p.Name, id, p.Product)
				return p.Name, nil
			}
		}
		if fallback == "" {
			fallback = p.Name
		}
	}
	if fallback != "" {
		diagf("no known bridge; using USB serial device %s", fallback)
		return fallback, nil
	}
	return "", fmt.Errorf("%w: no USB serial device attached", ErrNoSensor)
}
