// Package j1939 decodes SAE J1939 identifiers carried on 29-bit CAN frames and
// aggregates bus traffic into per-source, per-PGN summaries.
package j1939

import "fmt"

// Identifier bit masks.
const (
	PriorityMask = 0x1C000000
	EDPMask      = 0x02000000
	DPMask       = 0x01000000
	PFMask       = 0x00FF0000
	PSMask       = 0x0000FF00
	SAMask       = 0x000000FF
	PDU1PGNMask  = 0x03FF0000
	PDU2PGNMask  = 0x03FFFF00
)

// PF values at or above pdu2Threshold are broadcast (PDU2) messages.
const pdu2Threshold = 0xF0

// GlobalAddress is the destination of broadcast messages.
const GlobalAddress = 0xFF

// Sentinel fields assigned to standard (11-bit) frames, which carry no J1939
// identifier.
const (
	StandardPriority = 0xE
	StandardPGN      = 0xFFFFE
	StandardAddress  = 0xFE
)

// ID is a decoded 29-bit J1939 identifier.
type ID struct {
	Priority uint8  `json:"priority"`
	PGN      uint32 `json:"pgn"`
	PF       uint8  `json:"pf"`
	PS       uint8  `json:"ps"`
	DA       uint8  `json:"da"`
	SA       uint8  `json:"sa"`
}

// DecodeID splits a 29-bit CAN identifier into its J1939 fields. For PDU2
// messages the PS byte is a group extension and the destination is global.
func DecodeID(id uint32) ID {
	d := ID{
		Priority: uint8((id & PriorityMask) >> 26),
		PF:       uint8((id & PFMask) >> 16),
		PS:       uint8((id & PSMask) >> 8),
		SA:       uint8(id & SAMask),
	}
	if d.PF >= pdu2Threshold {
		d.DA = GlobalAddress
		d.PGN = (id & PDU2PGNMask) >> 8
	} else {
		d.DA = d.PS
		d.PGN = (id & PDU1PGNMask) >> 8
	}
	return d
}

// PDU2 reports whether the identifier is a broadcast message.
func (d ID) PDU2() bool { return d.PF >= pdu2Threshold }

// Encode builds the 29-bit identifier for a PGN sent from sa to da. da is
// ignored for PDU2 PGNs.
func Encode(priority uint8, pgn uint32, sa, da uint8) uint32 {
	id := uint32(priority&0x7)<<26 | (pgn<<8)&PDU2PGNMask | uint32(sa)
	if uint8((pgn>>8)&0xFF) < pdu2Threshold {
		id = id&^PSMask | uint32(da)<<8
	}
	return id
}

func (d ID) String() string {
	return fmt.Sprintf("pri=%d pgn=%d sa=%d da=%d", d.Priority, d.PGN, d.SA, d.DA)
}
