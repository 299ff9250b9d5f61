package j1939

import (
	"fmt"
	"sync"
	"time"
)

// PGNSummary is the latest traffic seen for one PGN from one source.
type PGNSummary struct {
	Count     uint64    `json:"count"`
	ID        string    `json:"id"`
	DA        uint8     `json:"da"`
	Data      string    `json:"data"`
	Time      time.Time `json:"time"`
	TimeDelta string    `json:"time_delta"`
	Name      string    `json:"name"`
}

// SourceSummary aggregates the PGNs sent by one source address.
type SourceSummary struct {
	Count   uint64                 `json:"count"`
	Address uint8                  `json:"address"`
	Name    string                 `json:"name"`
	PGNs    map[uint32]*PGNSummary `json:"pgns"`
}

// InterfaceSummary aggregates the traffic of one CAN interface.
type InterfaceSummary struct {
	Count   uint64                   `json:"count"`
	Sources map[uint8]*SourceSummary `json:"sources"`
}

// Snapshot is a point-in-time copy of a Summary.
type Snapshot struct {
	Total      uint64                       `json:"total"`
	Started    time.Time                    `json:"started"`
	Interfaces map[string]*InterfaceSummary `json:"interfaces"`
}

// Summary accumulates frames into per-interface, per-source and per-PGN
// counters. It is safe for concurrent use.
type Summary struct {
	mu      sync.Mutex
	total   uint64
	started time.Time
	ifaces  map[string]*InterfaceSummary
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{ifaces: make(map[string]*InterfaceSummary)}
}

// Add records f.
func (s *Summary) Add(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total == 0 {
		s.started = f.Time
	}
	s.total++

	iface, ok := s.ifaces[f.Interface]
	if !ok {
		iface = &InterfaceSummary{Sources: make(map[uint8]*SourceSummary)}
		s.ifaces[f.Interface] = iface
	}
	iface.Count++

	src, ok := iface.Sources[f.SA]
	if !ok {
		src = &SourceSummary{
			Address: f.SA,
			Name:    SourceName(f.SA),
			PGNs:    make(map[uint32]*PGNSummary),
		}
		iface.Sources[f.SA] = src
	}
	src.Count++

	pgn, ok := src.PGNs[f.PGN]
	if !ok {
		pgn = &PGNSummary{
			ID:        f.IDString(),
			DA:        f.DA,
			TimeDelta: "0ms",
			Name:      PGNName(f.PGN),
		}
		src.PGNs[f.PGN] = pgn
	} else {
		pgn.TimeDelta = fmt.Sprintf("%dms", f.Time.Sub(pgn.Time).Milliseconds())
	}
	pgn.Count++
	pgn.Data = f.DataHex()
	pgn.Time = f.Time
}

// Total returns the number of frames recorded.
func (s *Summary) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Snapshot returns a deep copy of the current counters.
func (s *Summary) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		Total:      s.total,
		Started:    s.started,
		Interfaces: make(map[string]*InterfaceSummary, len(s.ifaces)),
	}
	for name, iface := range s.ifaces {
		ic := &InterfaceSummary{
			Count:   iface.Count,
			Sources: make(map[uint8]*SourceSummary, len(iface.Sources)),
		}
		for sa, src := range iface.Sources {
			sc := *src
			sc.PGNs = make(map[uint32]*PGNSummary, len(src.PGNs))
			for pgn, p := range src.PGNs {
				pc := *p
				sc.PGNs[pgn] = &pc
			}
			ic.Sources[sa] = &sc
		}
		out.Interfaces[name] = ic
	}
	return out
}

// Reset clears all counters.
func (s *Summary) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = 0
	s.started = time.Time{}
	s.ifaces = make(map[string]*InterfaceSummary)
}
