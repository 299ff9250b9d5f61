package canbus

import (
	"time"

	"github.com/banshee-data/helm/internal/timeutil"
)

const (
	defaultRetryDelay = time.Second
	socketReadTimeout = 500 * time.Millisecond
)

// SocketCAN reads raw frames from a Linux CAN interface. When the socket
// fails, for example because the link was taken down to change bitrate, it
// waits RetryDelay and reopens it.
type SocketCAN struct {
	Interface  string
	RetryDelay time.Duration
	Clock      timeutil.Clock
}

// NewSocketCAN returns a reader for iface.
func NewSocketCAN(iface string) *SocketCAN {
	return &SocketCAN{
		Interface:  iface,
		RetryDelay: defaultRetryDelay,
		Clock:      timeutil.RealClock{},
	}
}

func (s *SocketCAN) Name() string { return "socketcan:" + s.Interface }

func (s *SocketCAN) clock() timeutil.Clock {
	if s.Clock == nil {
		return timeutil.RealClock{}
	}
	return s.Clock
}

func (s *SocketCAN) retryDelay() time.Duration {
	if s.RetryDelay <= 0 {
		return defaultRetryDelay
	}
	return s.RetryDelay
}
