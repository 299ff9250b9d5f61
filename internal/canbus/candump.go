package canbus

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/timeutil"
)

// CandumpLine is one parsed line of candump output.
type CandumpLine struct {
	Interface string
	RawID     uint32
	Data      []byte
	// Time is zero when the line carried no timestamp.
	Time time.Time
}

// ParseCandump accepts both the log format written by candump -l
//
//	(1700000000.123456) can0 18FEF100#0102030405060708
//
// and the default display format, optionally timestamped with -t a
//
//	(1700000000.123456)  can0  18FEF100   [8]  01 02 03 04 05 06 07 08
func ParseCandump(line string) (CandumpLine, error) {
	fields := strings.Fields(line)
	var out CandumpLine
	if len(fields) > 0 && strings.HasPrefix(fields[0], "(") {
		ts, err := parseCandumpTime(fields[0])
		if err != nil {
			return out, err
		}
		out.Time = ts
		fields = fields[1:]
	}
	if len(fields) < 2 {
		return out, fmt.Errorf("short candump line: %q", line)
	}
	out.Interface = fields[0]

	if idStr, payload, ok := strings.Cut(fields[1], "#"); ok {
		id, err := parseCandumpID(idStr)
		if err != nil {
			return out, err
		}
		out.RawID = id
		if strings.HasPrefix(payload, "R") {
			out.RawID |= j1939.RTRFlag
			return out, nil
		}
		data, err := hex.DecodeString(strings.ReplaceAll(payload, ".", ""))
		if err != nil {
			return out, fmt.Errorf("candump data: %w", err)
		}
		if len(data) > j1939.MaxDataLen {
			return out, fmt.Errorf("candump data longer than %d bytes", j1939.MaxDataLen)
		}
		out.Data = data
		return out, nil
	}

	if len(fields) < 3 || !strings.HasPrefix(fields[2], "[") {
		return out, fmt.Errorf("unrecognised candump line: %q", line)
	}
	id, err := parseCandumpID(fields[1])
	if err != nil {
		return out, err
	}
	out.RawID = id
	dlc, err := strconv.Atoi(strings.Trim(fields[2], "[]"))
	if err != nil || dlc < 0 || dlc > j1939.MaxDataLen {
		return out, fmt.Errorf("candump dlc: %q", fields[2])
	}
	if len(fields) > 3 && fields[3] == "remote" {
		out.RawID |= j1939.RTRFlag
		return out, nil
	}
	if len(fields)-3 < dlc {
		return out, fmt.Errorf("candump line has fewer than %d data bytes", dlc)
	}
	out.Data = make([]byte, dlc)
	for i := 0; i < dlc; i++ {
		b, err := strconv.ParseUint(fields[3+i], 16, 8)
		if err != nil {
			return out, fmt.Errorf("candump data byte %d: %w", i, err)
		}
		out.Data[i] = byte(b)
	}
	return out, nil
}

func parseCandumpTime(s string) (time.Time, error) {
	s = strings.Trim(s, "()")
	secStr, fracStr, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("candump timestamp %q: %w", s, err)
	}
	var nsec int64
	if fracStr != "" {
		if len(fracStr) > 9 {
			fracStr = fracStr[:9]
		}
		fracStr += strings.Repeat("0", 9-len(fracStr))
		nsec, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("candump timestamp %q: %w", s, err)
		}
	}
	return time.Unix(sec, nsec).UTC(), nil
}

// parseCandumpID treats ids longer than three hex digits as extended.
func parseCandumpID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("candump id %q: %w", s, err)
	}
	if len(s) > 3 {
		return uint32(id)&j1939.EFFMask | j1939.EFFFlag, nil
	}
	return uint32(id) & j1939.SFFMask, nil
}

// CandumpReplay plays back a candump log. With Speed zero frames are emitted
// as fast as the consumer takes them; otherwise the recorded gaps are
// replayed scaled by 1/Speed.
type CandumpReplay struct {
	Reader io.Reader
	// Interface overrides the interface name recorded in the log.
	Interface string
	Speed     float64
	Clock     timeutil.Clock
}

func (c *CandumpReplay) Name() string { return "candump" }

func (c *CandumpReplay) Run(ctx context.Context, out chan<- j1939.Frame) error {
	clock := c.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	var pacer replayPacer
	scan := bufio.NewScanner(c.Reader)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		text := strings.TrimSpace(scan.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		l, err := ParseCandump(text)
		if err != nil {
			monitoring.Logf("candump line %d: %v", lineNo, err)
			continue
		}
		ts := l.Time
		if ts.IsZero() {
			ts = clock.Now()
		} else if err := pacer.wait(ctx, clock, ts, c.Speed); err != nil {
			return err
		}
		iface := l.Interface
		if c.Interface != "" {
			iface = c.Interface
		}
		select {
		case out <- j1939.NewFrame(iface, l.RawID, l.Data, ts):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scan.Err()
}

// replayPacer sleeps between recorded timestamps.
type replayPacer struct {
	last time.Time
}

func (p *replayPacer) wait(ctx context.Context, clock timeutil.Clock, ts time.Time, speed float64) error {
	if speed <= 0 {
		return nil
	}
	if p.last.IsZero() {
		p.last = ts
		return nil
	}
	delay := time.Duration(float64(ts.Sub(p.last)) / speed)
	p.last = ts
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(delay):
		return nil
	}
}
