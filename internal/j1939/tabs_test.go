package j1939

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() Tree {
	return Tree{
		"Source1": {
			"PGN1": {"SPN1", "SPN2"},
			"PGN2": {"SPN3", "SPN4"},
		},
		"Source2": {
			"PGN3": {"SPN5", "SPN6"},
			"PGN4": {"SPN7", "SPN8"},
		},
	}
}

func TestNewTabs(t *testing.T) {
	tabs := NewTabs(sampleTree())
	require.Len(t, tabs.Tabs, 2)
	assert.Equal(t, 0, tabs.Active)
	assert.Equal(t, "Source1", tabs.Tabs[0].Source)
	assert.True(t, tabs.Tabs[0].Active)
	assert.False(t, tabs.Tabs[1].Active)
	assert.Equal(t, []Group{
		{PGN: "PGN1", Signals: []string{"SPN1", "SPN2"}},
		{PGN: "PGN2", Signals: []string{"SPN3", "SPN4"}},
	}, tabs.Tabs[0].Groups)
}

func TestTabsSelect(t *testing.T) {
	tabs := NewTabs(sampleTree())

	require.NoError(t, tabs.Select(1))
	assert.Equal(t, 1, tabs.Active)
	assert.False(t, tabs.Tabs[0].Active)
	assert.True(t, tabs.Tabs[1].Active)

	err := tabs.Select(2)
	assert.True(t, errors.Is(err, ErrNoTab))
	err = tabs.Select(-1)
	assert.True(t, errors.Is(err, ErrNoTab))
	assert.Equal(t, 1, tabs.Active, "failed select keeps the current tab")

	require.NoError(t, tabs.SelectSource("Source1"))
	cur, ok := tabs.Current()
	require.True(t, ok)
	assert.Equal(t, "Source1", cur.Source)
	assert.Error(t, tabs.SelectSource("nope"))

	active := 0
	for _, tab := range tabs.Tabs {
		if tab.Active {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestNewTabsEmpty(t *testing.T) {
	tabs := NewTabs(Tree{})
	assert.Empty(t, tabs.Tabs)
	assert.Equal(t, -1, tabs.Active)
	_, ok := tabs.Current()
	assert.False(t, ok)
	assert.Error(t, tabs.Select(0))
}

func TestTreeFromSummary(t *testing.T) {
	s := NewSummary()
	t0 := time.Now()
	s.Add(NewFrame("can0", 0x18FEF10F|EFFFlag, []byte{1}, t0))
	s.Add(NewFrame("can0", 0x0CF00400|EFFFlag, []byte{2}, t0))
	s.Add(NewFrame("can0", 0x18FEF100|EFFFlag, []byte{3}, t0))

	tabs := NewTabs(TreeFromSummary(s.Snapshot()))
	require.Len(t, tabs.Tabs, 2)
	assert.Equal(t, "0: Engine #1", tabs.Tabs[0].Source)
	assert.Equal(t, "15: Retarder", tabs.Tabs[1].Source)

	groups := tabs.Tabs[0].Groups
	require.Len(t, groups, 2)
	assert.Equal(t, "61444: EEC1 Electronic Engine Controller 1", groups[0].PGN)
	assert.Equal(t, "65265: CCVS Cruise Control/Vehicle Speed", groups[1].PGN)
	assert.Contains(t, groups[1].Signals, "id 18FEF100")
	assert.Contains(t, groups[1].Signals, "data 03")
}

func TestTreeFromSummaryMergesInterfaces(t *testing.T) {
	s := NewSummary()
	t0 := time.Now()
	s.Add(NewFrame("can1", 0x18FEF100|EFFFlag, []byte{1}, t0))
	s.Add(NewFrame("can0", 0x18FEF100|EFFFlag, []byte{2}, t0))
	s.Add(NewFrame("can0", 0x18FEF100|EFFFlag, []byte{3}, t0.Add(time.Second)))

	first := TreeFromSummary(s.Snapshot())
	for i := 0; i < 20; i++ {
		require.Equal(t, first, TreeFromSummary(s.Snapshot()), "rebuild %d", i)
	}

	signals := first["0: Engine #1"]["65265: CCVS Cruise Control/Vehicle Speed"]
	require.Len(t, signals, 12)
	assert.Equal(t, "interface can0", signals[0])
	assert.Equal(t, "count 2", signals[3])
	assert.Equal(t, "interface can1", signals[6])
	assert.Equal(t, "count 1", signals[9])
}

func TestNaturalLess(t *testing.T) {
	assert.True(t, naturalLess("9: b", "10: a"))
	assert.False(t, naturalLess("10: a", "9: b"))
	assert.True(t, naturalLess("3: a", "3: b"))
	assert.True(t, naturalLess("7: x", "alpha"))
	assert.True(t, naturalLess("alpha", "beta"))
}
