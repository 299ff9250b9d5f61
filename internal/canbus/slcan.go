package canbus

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/timeutil"
)

// LineMux is the part of a serial multiplexer an SLCAN adapter needs.
type LineMux interface {
	Subscribe() (string, chan string)
	Unsubscribe(string)
	SendCommand(string) error
}

var slcanBitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

// SLCANBitrateCommand returns the Lawicel setup command for bitrate.
func SLCANBitrateCommand(bitrate int) (string, error) {
	cmd, ok := slcanBitrates[bitrate]
	if !ok {
		return "", fmt.Errorf("bitrate %d not supported by slcan", bitrate)
	}
	return cmd, nil
}

// ParseSLCAN decodes one Lawicel frame line: tiiildd.. for standard frames,
// Tiiiiiiiildd.. for extended ones, r and R for remote requests. A trailing
// timestamp is ignored.
func ParseSLCAN(line string) (rawID uint32, data []byte, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, nil, fmt.Errorf("empty slcan line")
	}
	var idLen int
	remote := false
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
	case 'r':
		idLen, remote = 3, true
	case 'R':
		idLen, remote = 8, true
	default:
		return 0, nil, fmt.Errorf("not an slcan frame: %q", line)
	}
	if len(line) < 1+idLen+1 {
		return 0, nil, fmt.Errorf("slcan frame too short: %q", line)
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("slcan id: %w", err)
	}
	dlc := int(line[1+idLen] - '0')
	if dlc < 0 || dlc > j1939.MaxDataLen {
		return 0, nil, fmt.Errorf("slcan dlc out of range: %q", line)
	}
	rawID = uint32(id)
	if idLen == 8 {
		rawID = rawID&j1939.EFFMask | j1939.EFFFlag
	} else {
		rawID &= j1939.SFFMask
	}
	if remote {
		return rawID | j1939.RTRFlag, nil, nil
	}
	payload := line[2+idLen:]
	if len(payload) < 2*dlc {
		return 0, nil, fmt.Errorf("slcan payload shorter than dlc %d: %q", dlc, line)
	}
	data, err = hex.DecodeString(payload[:2*dlc])
	if err != nil {
		return 0, nil, fmt.Errorf("slcan data: %w", err)
	}
	return rawID, data, nil
}

// SLCAN reads frames from a serial CAN adapter speaking the Lawicel ASCII
// protocol. The mux must split lines on carriage returns.
type SLCAN struct {
	Interface string
	Mux       LineMux
	Bitrate   int
	Clock     timeutil.Clock
}

func (s *SLCAN) Name() string { return "slcan:" + s.Interface }

// Open closes any open channel, sets the bitrate and opens the channel.
func (s *SLCAN) Open() error {
	rate, err := SLCANBitrateCommand(s.Bitrate)
	if err != nil {
		return err
	}
	for _, cmd := range []string{"C", rate, "O"} {
		if err := s.Mux.SendCommand(cmd); err != nil {
			return fmt.Errorf("slcan %q: %w", cmd, err)
		}
	}
	return nil
}

// Close closes the adapter channel.
func (s *SLCAN) Close() error {
	return s.Mux.SendCommand("C")
}

// Run decodes frame lines from the mux until ctx is cancelled or the mux
// closes the subscription. Adapter replies and malformed lines are skipped.
func (s *SLCAN) Run(ctx context.Context, out chan<- j1939.Frame) error {
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	id, lines := s.Mux.Subscribe()
	defer s.Mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			rawID, data, err := ParseSLCAN(line)
			if err != nil {
				if line = strings.TrimSpace(line); line != "" && line != "\a" {
					monitoring.Logf("slcan %s: %v", s.Interface, err)
				}
				continue
			}
			select {
			case out <- j1939.NewFrame(s.Interface, rawID, data, clock.Now()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
