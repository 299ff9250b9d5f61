package canbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/timeutil"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN: a struct can_frame with the
// id in network byte order.
const LinkTypeCANSocketCAN layers.LinkType = 227

// PcapReplay plays back a SocketCAN pcap capture.
type PcapReplay struct {
	Path string
	// Interface names the frames; defaults to the file name.
	Interface string
	Speed     float64
	Clock     timeutil.Clock
}

func (p *PcapReplay) Name() string { return "pcap:" + p.Path }

func (p *PcapReplay) Run(ctx context.Context, out chan<- j1939.Frame) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return fmt.Errorf("failed to open pcap %s: %w", p.Path, err)
	}
	defer f.Close()

	iface := p.Interface
	if iface == "" {
		iface = "pcap"
	}
	n, err := ReplayPcap(ctx, f, iface, p.Speed, p.Clock, out)
	monitoring.Logf("pcap replay %s: %d frames", p.Path, n)
	return err
}

// ReplayPcap reads a SocketCAN capture from r and sends its frames to out,
// returning the number of frames sent.
func ReplayPcap(ctx context.Context, r io.Reader, iface string, speed float64, clock timeutil.Clock, out chan<- j1939.Frame) (int, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read pcap header: %w", err)
	}
	if lt := reader.LinkType(); lt != LinkTypeCANSocketCAN {
		return 0, fmt.Errorf("pcap link type %d is not SocketCAN (%d)", lt, LinkTypeCANSocketCAN)
	}

	var pacer replayPacer
	count := 0
	for {
		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read packet %d: %w", count+1, err)
		}
		id, payload, err := DecodeCANFrame(data, binary.BigEndian)
		if err != nil {
			monitoring.Logf("pcap packet %d: %v", count+1, err)
			continue
		}
		if err := pacer.wait(ctx, clock, ci.Timestamp, speed); err != nil {
			return count, err
		}
		select {
		case out <- j1939.NewFrame(iface, id, payload, ci.Timestamp):
			count++
		case <-ctx.Done():
			return count, ctx.Err()
		}
	}
}

// PcapWriter records frames as a SocketCAN pcap capture. It is a Sink.
type PcapWriter struct {
	mu  sync.Mutex
	w   *pcapgo.Writer
	err error
}

// NewPcapWriter writes the file header to w.
func NewPcapWriter(w io.Writer) (*PcapWriter, error) {
	pw := pcapgo.NewWriterNanos(w)
	if err := pw.WriteFileHeader(canFrameSize, LinkTypeCANSocketCAN); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &PcapWriter{w: pw}, nil
}

// HandleFrame appends f. After the first write error further frames are
// dropped and the error is reported by Err.
func (p *PcapWriter) HandleFrame(f j1939.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	data := EncodeCANFrame(rawID(f), f.Data, binary.BigEndian)
	p.err = p.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     f.Time,
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
}

// Err returns the first write error.
func (p *PcapWriter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
