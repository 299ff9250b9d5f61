//go:build linux

package canbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
)

// Run reads frames until ctx is cancelled, reopening the socket after errors.
func (s *SocketCAN) Run(ctx context.Context, out chan<- j1939.Frame) error {
	for {
		err := s.readLoop(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		monitoring.Logf("socketcan %s: %v; reopening in %s", s.Interface, err, s.retryDelay())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock().After(s.retryDelay()):
		}
	}
}

func (s *SocketCAN) readLoop(ctx context.Context, out chan<- j1939.Frame) error {
	ifi, err := net.InterfaceByName(s.Interface)
	if err != nil {
		return fmt.Errorf("lookup interface: %w", err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("open socket: %w", err)
	}
	defer unix.Close(fd)

	// a receive timeout lets the loop notice cancellation
	tv := unix.NsecToTimeval(socketReadTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("set receive timeout: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		return fmt.Errorf("bind %s: %w", s.Interface, err)
	}
	monitoring.Logf("socketcan %s: listening", s.Interface)

	buf := make([]byte, canFrameSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("read: %w", err)
		}
		if n < canFrameSize {
			continue
		}
		id, data, err := DecodeCANFrame(buf[:n], binary.LittleEndian)
		if err != nil || id&j1939.ERRFlag != 0 {
			continue
		}
		f := j1939.NewFrame(s.Interface, id, data, s.clock().Now())
		select {
		case out <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
