package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the serial port at path and wraps it in a SerialMux.
func NewRealSerialMux(path string, port PortOptions, opts Options) (*SerialMux[serial.Port], error) {
	mode, err := port.SerialMode()
	if err != nil {
		return nil, err
	}

	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return NewSerialMux[serial.Port](p, opts), nil
}
