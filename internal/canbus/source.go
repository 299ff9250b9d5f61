// Package canbus reads CAN frames from SocketCAN interfaces, serial SLCAN
// adapters, candump logs and pcap captures, and controls the kernel CAN link.
package canbus

import (
	"context"
	"errors"

	"github.com/banshee-data/helm/internal/j1939"
)

// ErrUnsupported is returned by sources that cannot run on this platform.
var ErrUnsupported = errors.New("canbus: not supported on this platform")

// Source produces frames on out until ctx is cancelled or the input ends.
// Run must not close out.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- j1939.Frame) error
}

// Sink consumes frames. HandleFrame is called from a single goroutine.
type Sink interface {
	HandleFrame(j1939.Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(j1939.Frame)

func (f SinkFunc) HandleFrame(fr j1939.Frame) { f(fr) }

const pumpBuffer = 256

// Pump runs src and hands every frame to each sink in order. It returns when
// src returns, after the remaining buffered frames have been delivered.
func Pump(ctx context.Context, src Source, sinks ...Sink) error {
	out := make(chan j1939.Frame, pumpBuffer)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		errc <- src.Run(ctx, out)
	}()
	for f := range out {
		for _, s := range sinks {
			s.HandleFrame(f)
		}
	}
	return <-errc
}
