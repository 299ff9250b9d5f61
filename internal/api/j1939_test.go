package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/helm/internal/j1939"
)

func TestShowSummary(t *testing.T) {
	e := newTestEnv(t)
	e.addFrames()

	w := e.do(t, http.MethodGet, "/api/j1939/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap j1939.Snapshot
	decode(t, w, &snap)
	assert.Equal(t, uint64(3), snap.Total)
	require.Contains(t, snap.Interfaces, "can0")
	assert.Len(t, snap.Interfaces["can0"].Sources, 2)
}

func TestShowTabs(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/j1939/tabs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var empty j1939.Tabs
	decode(t, w, &empty)
	assert.Empty(t, empty.Tabs)

	e.addFrames()
	w = e.do(t, http.MethodGet, "/api/j1939/tabs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tabs j1939.Tabs
	decode(t, w, &tabs)
	require.Len(t, tabs.Tabs, 2)
	assert.Equal(t, 0, tabs.Active)
	assert.True(t, tabs.Tabs[0].Active)
	assert.Contains(t, tabs.Tabs[0].Source, "0: ")
	assert.Contains(t, tabs.Tabs[1].Source, "3: ")
	assert.Len(t, tabs.Tabs[0].Groups, 2)
}

func TestSelectTabPersistsAcrossRebuilds(t *testing.T) {
	e := newTestEnv(t)
	e.addFrames()

	w := e.postForm(t, "/api/j1939/tabs/select", url.Values{"index": {"1"}})
	require.Equal(t, http.StatusOK, w.Code)
	var tabs j1939.Tabs
	decode(t, w, &tabs)
	assert.Equal(t, 1, tabs.Active)
	selected := tabs.Tabs[1].Source

	// a new source sorts between the two; the selection follows the source,
	// not the index
	e.summary.Add(j1939.NewFrame("can0", 0x18FEF101|j1939.EFFFlag, []byte{9}, testEpoch.Add(time.Second)))
	w = e.do(t, http.MethodGet, "/api/j1939/tabs", nil)
	tabs = j1939.Tabs{}
	decode(t, w, &tabs)
	require.Len(t, tabs.Tabs, 3)
	cur, ok := tabs.Current()
	require.True(t, ok)
	assert.Equal(t, selected, cur.Source)
	assert.Equal(t, 2, tabs.Active)
}

func TestSelectTabErrors(t *testing.T) {
	e := newTestEnv(t)
	e.addFrames()

	w := e.postForm(t, "/api/j1939/tabs/select", url.Values{"index": {"two"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.postForm(t, "/api/j1939/tabs/select", url.Values{"index": {"5"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/j1939/tabs/select", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSummaryUnavailable(t *testing.T) {
	s := NewServer(Options{})
	h := s.ServeMux()
	for _, path := range []string{"/api/j1939/summary", "/api/j1939/tabs", "/api/j1939/stream"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestStreamSummary(t *testing.T) {
	e := newTestEnv(t)
	e.addFrames()
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/j1939/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	event, data := readEvent(t, r)
	assert.Equal(t, SummaryEvent, event)
	var snap j1939.Snapshot
	require.NoError(t, json.Unmarshal([]byte(data), &snap))
	assert.Equal(t, uint64(3), snap.Total)

	e.summary.Add(j1939.NewFrame("can0", 0x18FEF100|j1939.EFFFlag, []byte{9}, testEpoch.Add(time.Second)))
	e.clock.Advance(time.Second)

	event, data = readEvent(t, r)
	assert.Equal(t, SummaryEvent, event)
	snap = j1939.Snapshot{}
	require.NoError(t, json.Unmarshal([]byte(data), &snap))
	assert.Equal(t, uint64(4), snap.Total)
}
