package canbus

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/helm/internal/j1939"
)

func TestDecodeCANFrame(t *testing.T) {
	// struct can_frame as read from a little-endian host
	raw := []byte{
		0x00, 0xF1, 0xFE, 0x98, // 0x18FEF100 | EFF
		0x03, 0, 0, 0,
		0xAA, 0xBB, 0xCC, 0, 0, 0, 0, 0,
	}
	id, data, err := DecodeCANFrame(raw, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x18FEF100|j1939.EFFFlag), id)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, data)

	f := j1939.NewFrame("can0", id, data, testTime)
	assert.Equal(t, "18FEF100", f.IDString())
	assert.Equal(t, uint32(65265), f.PGN)
}

func TestDecodeCANFrameErrors(t *testing.T) {
	_, _, err := DecodeCANFrame([]byte{1, 2, 3}, binary.LittleEndian)
	assert.Error(t, err)

	short := []byte{0, 0, 0, 0, 8, 0, 0, 0, 1, 2}
	_, _, err = DecodeCANFrame(short, binary.LittleEndian)
	assert.Error(t, err)
}

func TestEncodeCANFrameRoundTrip(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		b := EncodeCANFrame(0x0CF00400|j1939.EFFFlag, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
		require.Len(t, b, canFrameSize)
		id, data, err := DecodeCANFrame(b, order)
		require.NoError(t, err)
		assert.Equal(t, uint32(0x0CF00400|j1939.EFFFlag), id)
		assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data)
	}
}
