package j1939

import (
	"fmt"
	"strings"
	"time"
)

// Linux can_frame id flags.
const (
	EFFFlag = 0x80000000
	RTRFlag = 0x40000000
	ERRFlag = 0x20000000
	EFFMask = 0x1FFFFFFF
	SFFMask = 0x000007FF
)

// MaxDataLen is the payload size of a classic CAN frame.
const MaxDataLen = 8

// Frame is one CAN frame with its J1939 interpretation.
type Frame struct {
	Interface string    `json:"interface"`
	CANID     uint32    `json:"can_id"`
	Extended  bool      `json:"extended"`
	DLC       uint8     `json:"dlc"`
	Data      []byte    `json:"data"`
	Time      time.Time `json:"time"`
	ID
}

// NewFrame builds a frame from a raw can_frame id word, which may carry the
// EFF flag. Standard frames get the sentinel J1939 fields.
func NewFrame(iface string, rawID uint32, data []byte, ts time.Time) Frame {
	f := Frame{
		Interface: iface,
		Extended:  rawID&EFFFlag != 0,
		Time:      ts,
	}
	if len(data) > MaxDataLen {
		data = data[:MaxDataLen]
	}
	f.DLC = uint8(len(data))
	f.Data = append([]byte(nil), data...)
	if f.Extended {
		f.CANID = rawID & EFFMask
		f.ID = DecodeID(f.CANID)
	} else {
		f.CANID = rawID & SFFMask
		f.ID = ID{
			Priority: StandardPriority,
			PGN:      StandardPGN,
			DA:       StandardAddress,
			SA:       StandardAddress,
		}
	}
	return f
}

// IDString formats the identifier as candump does: eight hex digits for
// extended frames, three for standard ones.
func (f Frame) IDString() string {
	if f.Extended {
		return fmt.Sprintf("%08X", f.CANID)
	}
	return fmt.Sprintf("%03X", f.CANID)
}

// DataHex returns the payload as space separated upper case hex bytes,
// truncated to DLC.
func (f Frame) DataHex() string {
	data := f.Data
	if int(f.DLC) < len(data) {
		data = data[:f.DLC]
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func (f Frame) String() string {
	return fmt.Sprintf("%s %s [%d] %s", f.Interface, f.IDString(), f.DLC, f.DataHex())
}
