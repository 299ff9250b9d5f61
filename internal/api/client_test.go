package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/httputil"
)

func TestClientAgainstServer(t *testing.T) {
	e := newTestEnv(t)
	e.addFrames()
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	c := NewClient(srv.URL+"/", nil)

	nav, err := c.Nav("kmph")
	require.NoError(t, err)
	assert.Equal(t, "km/h", nav.SpeedUnits)

	change, err := c.Starboard()
	require.NoError(t, err)
	assert.Equal(t, dial.GestureStarboard, change.Kind)
	assert.Equal(t, 271.0, change.DesiredGoal)

	change, err = c.Port()
	require.NoError(t, err)
	assert.Equal(t, 269.0, change.DesiredGoal)

	change, err = c.Reset()
	require.NoError(t, err)
	assert.Equal(t, dial.GestureReset, change.Kind)

	goal, err := c.Goal()
	require.NoError(t, err)
	assert.Equal(t, change.DesiredGoal, goal.DesiredGoal)

	tabs, err := c.SelectTab(1)
	require.NoError(t, err)
	assert.Equal(t, 1, tabs.Active)

	tabs, err = c.Tabs()
	require.NoError(t, err)
	assert.Equal(t, 1, tabs.Active)

	_, err = c.SelectTab(9)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "no such tab")
}

func TestClientWithMock(t *testing.T) {
	stub := (&httputil.StubTransport{}).
		Reply(http.StatusOK, `{"kind":"port","desired_goal":89}`).
		Reply(http.StatusBadRequest, `{"error":"invalid units"}`).
		Reply(http.StatusBadGateway, `upstream down`).
		Reply(http.StatusOK, `not json`).
		Fail(errors.New("connection refused"))

	c := NewClient("http://boat.local:8080", stub.Client())

	change, err := c.Port()
	require.NoError(t, err)
	assert.Equal(t, 89.0, change.DesiredGoal)
	req := stub.Requests()[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://boat.local:8080/api/goal/port", req.URL)

	_, err = c.Nav("furlongs")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid units", apiErr.Message)
	assert.Equal(t, "http://boat.local:8080/api/nav?units=furlongs", stub.Requests()[1].URL)

	_, err = c.Goal()
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)

	_, err = c.Tabs()
	assert.ErrorContains(t, err, "failed to decode")

	_, err = c.Starboard()
	assert.ErrorContains(t, err, "connection refused")

	assert.Len(t, stub.Requests(), 5)
}

func TestClientSelectTabForm(t *testing.T) {
	stub := (&httputil.StubTransport{}).Reply(http.StatusOK, `{"tabs":[],"active":0}`)
	c := NewClient("http://x", stub.Client())

	_, err := c.SelectTab(3)
	require.NoError(t, err)
	req := stub.Requests()[0]
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))
	assert.Equal(t, "index=3", req.Body)
}
