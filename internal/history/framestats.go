package history

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/j1939"
)

// ByteStats is the mean and standard deviation of one payload byte.
type ByteStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// StreamStats summarises the frames of one (interface, sa, pgn, da) stream.
type StreamStats struct {
	Interface string `json:"interface"`
	SA        uint8  `json:"sa"`
	PGN       uint32 `json:"pgn"`
	DA        uint8  `json:"da"`
	CANID     string `json:"can_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	// Period is the mean interval between frames in seconds.
	Period float64     `json:"period"`
	Bytes  []ByteStats `json:"bytes"`
}

type streamKey struct {
	iface string
	sa    uint8
	pgn   uint32
	da    uint8
}

// FrameStats groups a session's frames into streams, ordered by interface,
// source address and PGN.
func FrameStats(frames []db.FrameRow) []StreamStats {
	groups := map[streamKey][]db.FrameRow{}
	var keys []streamKey
	for _, f := range frames {
		k := streamKey{f.Interface, f.SA, f.PGN, f.DA}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], f)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.iface != b.iface {
			return a.iface < b.iface
		}
		if a.sa != b.sa {
			return a.sa < b.sa
		}
		if a.pgn != b.pgn {
			return a.pgn < b.pgn
		}
		return a.da < b.da
	})

	out := make([]StreamStats, 0, len(keys))
	for _, k := range keys {
		rows := groups[k]
		st := StreamStats{
			Interface: k.iface,
			SA:        k.sa,
			PGN:       k.pgn,
			DA:        k.da,
			CANID:     rows[0].CANID,
			Name:      j1939.PGNName(k.pgn),
			Count:     len(rows),
		}
		if len(rows) > 1 {
			intervals := make([]float64, len(rows)-1)
			for i := 1; i < len(rows); i++ {
				intervals[i-1] = rows[i].Timestamp - rows[i-1].Timestamp
			}
			st.Period = stat.Mean(intervals, nil)
		}
		for b := 0; b < j1939.MaxDataLen; b++ {
			var vals []float64
			for _, r := range rows {
				if b < len(r.Data) {
					vals = append(vals, float64(r.Data[b]))
				}
			}
			if len(vals) == 0 {
				break
			}
			bs := ByteStats{Mean: stat.Mean(vals, nil)}
			if len(vals) > 1 {
				bs.StdDev = stat.StdDev(vals, nil)
			}
			st.Bytes = append(st.Bytes, bs)
		}
		out = append(out, st)
	}
	return out
}
