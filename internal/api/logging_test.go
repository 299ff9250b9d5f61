package api

import (
	"encoding/csv"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/history"
	"github.com/banshee-data/helm/internal/j1939"
)

// logSession records three frames from two streams into a stopped session.
func (e *testEnv) logSession(t *testing.T, label string) db.Session {
	t.Helper()
	w := e.postForm(t, "/api/logging/start", url.Values{"label": {label}})
	require.Equal(t, http.StatusOK, w.Code)
	var sess db.Session
	decode(t, w, &sess)

	e.logger.HandleFrame(j1939.NewFrame("can0", 0x18FEF100|j1939.EFFFlag, []byte{1, 2}, testEpoch))
	e.logger.HandleFrame(j1939.NewFrame("can0", 0x18FEF100|j1939.EFFFlag, []byte{3, 4}, testEpoch.Add(100*time.Millisecond)))
	e.logger.HandleFrame(j1939.NewFrame("can0", 0x0CF00400|j1939.EFFFlag, []byte{5}, testEpoch.Add(150*time.Millisecond)))

	w = e.do(t, http.MethodPost, "/api/logging/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	return sess
}

func TestLoggingLifecycle(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/logging/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st db.LoggingStatus
	decode(t, w, &st)
	assert.False(t, st.Active)

	w = e.postForm(t, "/api/logging/start", url.Values{"label": {" sea trial "}})
	require.Equal(t, http.StatusOK, w.Code)
	var sess db.Session
	decode(t, w, &sess)
	assert.Equal(t, "sea trial", sess.Label)
	assert.NotEmpty(t, sess.ID)

	w = e.do(t, http.MethodGet, "/api/logging/status", nil)
	st = db.LoggingStatus{}
	decode(t, w, &st)
	assert.True(t, st.Active)
	require.NotNil(t, st.Session)
	assert.Equal(t, sess.ID, st.Session.ID)

	w = e.postForm(t, "/api/logging/restart", url.Values{"label": {"second"}})
	require.Equal(t, http.StatusOK, w.Code)
	var next db.Session
	decode(t, w, &next)
	assert.NotEqual(t, sess.ID, next.ID)
	assert.Equal(t, "second", next.Label)

	w = e.do(t, http.MethodPost, "/api/logging/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stopped db.Session
	decode(t, w, &stopped)
	assert.Equal(t, next.ID, stopped.ID)
	assert.NotNil(t, stopped.StoppedAt)

	w = e.do(t, http.MethodPost, "/api/logging/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"idle"}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/logging/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []db.Session
	decode(t, w, &sessions)
	assert.Len(t, sessions, 2)
}

func TestLoggingMethods(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/api/logging/start", "/api/logging/stop", "/api/logging/restart"} {
		assert.Equal(t, http.StatusMethodNotAllowed, e.do(t, http.MethodGet, path, nil).Code, path)
	}
	assert.Equal(t, http.StatusMethodNotAllowed, e.do(t, http.MethodPost, "/api/logging/status", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, e.do(t, http.MethodPost, "/api/logging/sessions", nil).Code)
}

func TestSessionFrames(t *testing.T) {
	e := newTestEnv(t)
	sess := e.logSession(t, "trial")

	w := e.do(t, http.MethodGet, "/api/logging/sessions/"+sess.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got db.Session
	decode(t, w, &got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, int64(3), got.Frames)

	w = e.do(t, http.MethodGet, "/api/logging/sessions/"+sess.ID+"/frames", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var frames []db.FrameRow
	decode(t, w, &frames)
	require.Len(t, frames, 3)
	assert.Equal(t, "18FEF100", frames[0].CANID)
	assert.Equal(t, "01 02", frames[0].DataHex)

	w = e.do(t, http.MethodGet, "/api/logging/sessions/"+sess.ID+"/frames?can_id=0cf00400", nil)
	require.Equal(t, http.StatusOK, w.Code)
	frames = nil
	decode(t, w, &frames)
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(61444), frames[0].PGN)

	w = e.do(t, http.MethodGet, "/api/logging/sessions/"+sess.ID+"/frames?can_id=18FEF100,0CF00400", nil)
	frames = nil
	decode(t, w, &frames)
	assert.Len(t, frames, 3)

	w = e.do(t, http.MethodGet, "/api/logging/sessions/"+sess.ID+"/frames?can_id=zz", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionStats(t *testing.T) {
	e := newTestEnv(t)
	sess := e.logSession(t, "trial")

	w := e.do(t, http.MethodGet, "/api/logging/sessions/"+sess.ID+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats []history.StreamStats
	decode(t, w, &stats)
	require.Len(t, stats, 2)

	var ccvs *history.StreamStats
	for i := range stats {
		if stats[i].CANID == "18FEF100" {
			ccvs = &stats[i]
		}
	}
	require.NotNil(t, ccvs)
	assert.Equal(t, 2, ccvs.Count)
	assert.InDelta(t, 0.1, ccvs.Period, 1e-4)
	require.Len(t, ccvs.Bytes, 2)
	assert.Equal(t, 2.0, ccvs.Bytes[0].Mean)
}

func TestSessionDownload(t *testing.T) {
	e := newTestEnv(t)
	sess := e.logSession(t, "harbour/run 1")

	w := e.do(t, http.MethodGet, "/api/logging/sessions/"+sess.ID+"/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	disp := w.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disp, "attachment; filename="), disp)
	assert.NotContains(t, strings.TrimPrefix(disp, "attachment; filename="), "/")
	assert.Contains(t, disp, ".csv")

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"interface", "sa", "pgn", "timestamp", "da", "can_id", "data_hex"}, records[0])
	assert.Equal(t, "can0", records[1][0])
}

func TestSessionDelete(t *testing.T) {
	e := newTestEnv(t)
	sess := e.logSession(t, "trial")

	w := e.do(t, http.MethodDelete, "/api/logging/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/api/logging/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/api/logging/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionDeleteWhileLogging(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/logging/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sess db.Session
	decode(t, w, &sess)

	w = e.do(t, http.MethodDelete, "/api/logging/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionRoutesErrors(t *testing.T) {
	e := newTestEnv(t)
	sess := e.logSession(t, "trial")

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/logging/sessions/", http.StatusBadRequest},
		{http.MethodGet, "/api/logging/sessions/nope", http.StatusNotFound},
		{http.MethodGet, "/api/logging/sessions/nope/frames", http.StatusNotFound},
		{http.MethodGet, "/api/logging/sessions/" + sess.ID + "/bogus", http.StatusNotFound},
		{http.MethodGet, "/api/logging/sessions/" + sess.ID + "/frames/extra", http.StatusNotFound},
		{http.MethodPost, "/api/logging/sessions/" + sess.ID, http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/logging/sessions/" + sess.ID + "/frames", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		w := e.do(t, tt.method, tt.path, nil)
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.method, tt.path)
	}
}
