package canbus

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/helm/internal/j1939"
)

func TestPcapWriteAndReplay(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewPcapWriter(&buf)
	require.NoError(t, err)

	in := []j1939.Frame{
		j1939.NewFrame("can0", 0x18FEF100|j1939.EFFFlag, []byte{1, 2, 3}, testTime),
		j1939.NewFrame("can0", 0x123, []byte{0xFF}, testTime.Add(10*time.Millisecond)),
	}
	for _, f := range in {
		w.HandleFrame(f)
	}
	require.NoError(t, w.Err())

	out := make(chan j1939.Frame, len(in))
	n, err := ReplayPcap(context.Background(), &buf, "replay", 0, nil, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := <-out
	assert.Equal(t, "replay", got.Interface)
	assert.Equal(t, "18FEF100", got.IDString())
	assert.Equal(t, "01 02 03", got.DataHex())
	assert.True(t, got.Time.Equal(testTime))

	got = <-out
	assert.False(t, got.Extended)
	assert.Equal(t, "123", got.IDString())
}

func TestReplayPcapWrongLinkType(t *testing.T) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))

	_, err := ReplayPcap(context.Background(), &buf, "x", 0, nil, make(chan j1939.Frame))
	assert.Error(t, err)
}

func TestPcapReplayMissingFile(t *testing.T) {
	p := &PcapReplay{Path: t.TempDir() + "/missing.pcap"}
	assert.Error(t, p.Run(context.Background(), make(chan j1939.Frame)))
}
