package serialmux

import "io"

// SerialPorter is what a SerialMux needs from its port. go.bug.st/serial
// ports, MockSerialPort and TestableSerialPort all satisfy it.
type SerialPorter interface {
	io.ReadWriteCloser
}
