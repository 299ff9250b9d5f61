package canbus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/helm/internal/monitoring"
)

// DefaultBitrate is used when a requested bitrate is not in AllowedBitrates.
const DefaultBitrate = 250000

// RestartMs is the bus-off auto restart delay configured on link up.
const RestartMs = 100

// AllowedBitrates are the bitrates Start accepts.
var AllowedBitrates = []int{125000, 250000, 500000, 666000, 666666, 1000000}

// ErrLinkCommand wraps failures of the ip tool.
var ErrLinkCommand = errors.New("link command failed")

// LinkStats is the parsed state of a CAN network interface.
type LinkStats struct {
	Interface    string            `json:"interface"`
	State        string            `json:"state,omitempty"`
	Bitrate      int               `json:"bitrate,omitempty"`
	BitrateLabel string            `json:"bitrate_label,omitempty"`
	RestartMs    int               `json:"restart_ms,omitempty"`
	RX           map[string]uint64 `json:"rx"`
	TX           map[string]uint64 `json:"tx"`
	RXBytes      string            `json:"rx_bytes"`
	TXBytes      string            `json:"tx_bytes"`
}

// LinkResult reports a link state change.
type LinkResult struct {
	Status  string `json:"status"`
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`
}

// ParseLinkStats parses the output of ip -details -statistics link show.
func ParseLinkStats(iface, output string) LinkStats {
	st := LinkStats{
		Interface: iface,
		RX:        make(map[string]uint64),
		TX:        make(map[string]uint64),
	}
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch {
		case len(fields) >= 3 && fields[0] == "can" && fields[1] == "state":
			state := fields[2]
			// ERROR-ACTIVE, ERROR-PASSIVE, ERROR-WARNING are reported by suffix
			if strings.HasPrefix(state, "ERROR-") {
				state = state[len("ERROR-"):]
			}
			st.State = state
			for j := 3; j+1 < len(fields); j++ {
				if fields[j] == "restart-ms" {
					st.RestartMs, _ = strconv.Atoi(fields[j+1])
				}
			}
		case fields[0] == "bitrate" && len(fields) >= 2 && st.Bitrate == 0:
			if b, err := strconv.Atoi(fields[1]); err == nil {
				st.Bitrate = b
				st.BitrateLabel = fmt.Sprintf("%dk", b/1000)
			}
		case fields[0] == "RX:" || fields[0] == "TX:":
			if i+1 >= len(lines) {
				continue
			}
			dst := st.RX
			if fields[0] == "TX:" {
				dst = st.TX
			}
			values := strings.Fields(lines[i+1])
			for k, name := range fields[1:] {
				if k >= len(values) {
					break
				}
				if v, err := strconv.ParseUint(values[k], 10, 64); err == nil {
					dst[name] = v
				}
			}
		}
	}
	st.RXBytes = humanize.IBytes(st.RX["bytes"])
	st.TXBytes = humanize.IBytes(st.TX["bytes"])
	return st
}

// NormalizeBitrate returns bitrate when it is allowed and DefaultBitrate
// otherwise.
func NormalizeBitrate(bitrate int) int {
	for _, b := range AllowedBitrates {
		if b == bitrate {
			return b
		}
	}
	return DefaultBitrate
}

// Link controls a kernel CAN interface through the ip tool. Start and Stop
// need root; with Sudo set they run through sudo, which must be allowed to run
// ip without a password.
type Link struct {
	Interface string
	Sudo      bool
	Runner    Runner

	mu sync.Mutex
}

// NewLink returns a controller for iface using real commands through sudo.
func NewLink(iface string) *Link {
	return &Link{Interface: iface, Sudo: true, Runner: ExecRunner{}}
}

func (l *Link) run(privileged bool, args ...string) (string, string, error) {
	name := "ip"
	if privileged && l.Sudo {
		name = "sudo"
		args = append([]string{"ip"}, args...)
	}
	cmdline := Call{Name: name, Args: args}.String()
	out, err := l.Runner.Run(name, args...)
	if err != nil {
		return cmdline, string(out), fmt.Errorf("%w: %s: %v: %s", ErrLinkCommand, cmdline, err, strings.TrimSpace(string(out)))
	}
	return cmdline, string(out), nil
}

// Stats reads the interface state and counters.
func (l *Link) Stats() (LinkStats, error) {
	_, out, err := l.run(false, "-details", "-statistics", "link", "show", l.Interface)
	if err != nil {
		return LinkStats{Interface: l.Interface}, err
	}
	return ParseLinkStats(l.Interface, out), nil
}

// Start takes the link down and brings it back up at bitrate, falling back to
// DefaultBitrate for unsupported values.
func (l *Link) Start(bitrate int) (LinkResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bitrate = NormalizeBitrate(bitrate)
	if _, out, err := l.run(true, "link", "set", l.Interface, "down"); err != nil {
		return LinkResult{Status: "error", Output: out}, err
	}
	cmd, out, err := l.run(true, "link", "set", l.Interface, "up", "type", "can",
		"bitrate", strconv.Itoa(bitrate), "restart-ms", strconv.Itoa(RestartMs))
	if err != nil {
		return LinkResult{Status: "error", Command: cmd, Output: out}, err
	}
	monitoring.Logf("can link %s up at %d bit/s", l.Interface, bitrate)
	return LinkResult{Status: "success", Command: cmd, Output: out}, nil
}

// Stop takes the link down.
func (l *Link) Stop() (LinkResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cmd, out, err := l.run(true, "link", "set", l.Interface, "down")
	if err != nil {
		return LinkResult{Status: "error", Command: cmd, Output: out}, err
	}
	monitoring.Logf("can link %s down", l.Interface)
	return LinkResult{Status: "success", Command: cmd, Output: out}, nil
}
