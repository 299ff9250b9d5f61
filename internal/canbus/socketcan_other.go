//go:build !linux

package canbus

import (
	"context"

	"github.com/banshee-data/helm/internal/j1939"
)

// Run returns ErrUnsupported: raw CAN sockets only exist on Linux.
func (s *SocketCAN) Run(ctx context.Context, out chan<- j1939.Frame) error {
	return ErrUnsupported
}
