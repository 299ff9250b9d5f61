package j1939

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// ErrNoTab is returned when selecting a tab index that does not exist.
var ErrNoTab = errors.New("no such tab")

// Tree maps a source label to its PGN labels and their signal lines.
type Tree map[string]map[string][]string

// Group is one PGN heading inside a tab.
type Group struct {
	PGN     string   `json:"pgn"`
	Signals []string `json:"signals"`
}

// Tab is one source's page.
type Tab struct {
	Source string  `json:"source"`
	Active bool    `json:"active"`
	Groups []Group `json:"groups"`
}

// Tabs is an ordered tab set with exactly one active tab, or none when empty.
type Tabs struct {
	Tabs   []Tab `json:"tabs"`
	Active int   `json:"active"`
}

// TreeFromSummary builds a browsing tree from every interface of snap.
// Sources are labelled "<address>: <name>" and PGNs "<pgn>: <name>". When the
// same source sends the same PGN on several interfaces, their signal lines
// are concatenated in interface name order.
func TreeFromSummary(snap Snapshot) Tree {
	ifaces := make([]string, 0, len(snap.Interfaces))
	for name := range snap.Interfaces {
		ifaces = append(ifaces, name)
	}
	sort.Strings(ifaces)

	t := make(Tree)
	for _, ifName := range ifaces {
		for sa, src := range snap.Interfaces[ifName].Sources {
			label := fmt.Sprintf("%d: %s", sa, src.Name)
			pgns, ok := t[label]
			if !ok {
				pgns = make(map[string][]string)
				t[label] = pgns
			}
			for pgn, p := range src.PGNs {
				key := fmt.Sprintf("%d: %s", pgn, p.Name)
				pgns[key] = append(pgns[key],
					"interface "+ifName,
					"id "+p.ID,
					fmt.Sprintf("da %d", p.DA),
					fmt.Sprintf("count %d", p.Count),
					"data "+p.Data,
					"interval "+p.TimeDelta,
				)
			}
		}
	}
	return t
}

// NewTabs lays out t as tabs in natural label order with the first tab
// active.
func NewTabs(t Tree) *Tabs {
	sources := make([]string, 0, len(t))
	for s := range t {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return naturalLess(sources[i], sources[j]) })

	tabs := &Tabs{Tabs: make([]Tab, 0, len(sources)), Active: -1}
	for _, s := range sources {
		pgns := make([]string, 0, len(t[s]))
		for p := range t[s] {
			pgns = append(pgns, p)
		}
		sort.Slice(pgns, func(i, j int) bool { return naturalLess(pgns[i], pgns[j]) })

		tab := Tab{Source: s, Groups: make([]Group, 0, len(pgns))}
		for _, p := range pgns {
			tab.Groups = append(tab.Groups, Group{
				PGN:     p,
				Signals: append([]string(nil), t[s][p]...),
			})
		}
		tabs.Tabs = append(tabs.Tabs, tab)
	}
	if len(tabs.Tabs) > 0 {
		tabs.Active = 0
		tabs.Tabs[0].Active = true
	}
	return tabs
}

// Select makes tab i the only active tab. An out of range index is rejected
// and the current selection kept.
func (t *Tabs) Select(i int) error {
	if i < 0 || i >= len(t.Tabs) {
		return fmt.Errorf("%w: index %d of %d", ErrNoTab, i, len(t.Tabs))
	}
	for j := range t.Tabs {
		t.Tabs[j].Active = j == i
	}
	t.Active = i
	return nil
}

// SelectSource activates the tab with the given source label, keeping the
// current selection when it is missing.
func (t *Tabs) SelectSource(source string) error {
	for i, tab := range t.Tabs {
		if tab.Source == source {
			return t.Select(i)
		}
	}
	return fmt.Errorf("%w: %q", ErrNoTab, source)
}

// Current returns the active tab.
func (t *Tabs) Current() (Tab, bool) {
	if t.Active < 0 || t.Active >= len(t.Tabs) {
		return Tab{}, false
	}
	return t.Tabs[t.Active], true
}

// naturalLess orders labels by their leading integer, then lexically.
func naturalLess(a, b string) bool {
	na, ra, oka := leadingInt(a)
	nb, rb, okb := leadingInt(b)
	switch {
	case oka && okb && na != nb:
		return na < nb
	case oka != okb:
		return oka
	case oka && okb:
		return ra < rb
	}
	return a < b
}

func leadingInt(s string) (int, string, bool) {
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == 0 {
		return 0, s, false
	}
	if end < 0 {
		end = len(s)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, s, false
	}
	return n, s[end:], true
}
