package canbus

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/helm/internal/j1939"
)

// canFrameSize is sizeof(struct can_frame): a 32-bit id, the DLC byte, three
// padding bytes and eight data bytes.
const canFrameSize = 16

// DecodeCANFrame unpacks a struct can_frame. SocketCAN delivers the id in
// host order; pcap captures with LinkTypeCANSocketCAN store it big-endian.
func DecodeCANFrame(b []byte, order binary.ByteOrder) (rawID uint32, data []byte, err error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("can frame too short: %d bytes", len(b))
	}
	rawID = order.Uint32(b[0:4])
	dlc := int(b[4])
	if dlc > j1939.MaxDataLen {
		dlc = j1939.MaxDataLen
	}
	if avail := len(b) - 8; dlc > avail {
		return 0, nil, fmt.Errorf("can frame truncated: dlc %d with %d data bytes", dlc, avail)
	}
	return rawID, b[8 : 8+dlc], nil
}

// EncodeCANFrame packs a frame into struct can_frame layout.
func EncodeCANFrame(rawID uint32, data []byte, order binary.ByteOrder) []byte {
	b := make([]byte, canFrameSize)
	order.PutUint32(b[0:4], rawID)
	if len(data) > j1939.MaxDataLen {
		data = data[:j1939.MaxDataLen]
	}
	b[4] = byte(len(data))
	copy(b[8:], data)
	return b
}

// rawID rebuilds the can_frame id word, flags included, from a frame.
func rawID(f j1939.Frame) uint32 {
	if f.Extended {
		return f.CANID | j1939.EFFFlag
	}
	return f.CANID
}
