package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/httputil"
	"github.com/banshee-data/helm/internal/j1939"
)

// Client talks to a running helm server. It backs the ctl subcommand.
type Client struct {
	base string
	http httputil.Doer
}

// NewClient returns a client for the server at base, e.g.
// "http://localhost:8080". A nil c uses a client with
// httputil.DefaultClientTimeout.
func NewClient(base string, c httputil.Doer) *Client {
	if c == nil {
		c = httputil.NewClient(0)
	}
	return &Client{base: strings.TrimRight(base, "/"), http: c}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) decode(resp *http.Response, err error, dst interface{}) error {
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(method, path string, body io.Reader, contentType string, dst interface{}) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	return c.decode(resp, err, dst)
}

func (c *Client) get(path string, dst interface{}) error {
	return c.do(http.MethodGet, path, nil, "", dst)
}

func (c *Client) postForm(path string, form url.Values, dst interface{}) error {
	return c.do(http.MethodPost, path, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", dst)
}

// Nav returns the current dial view with speed in unit; empty uses the
// server default.
func (c *Client) Nav(unit string) (NavResponse, error) {
	path := "/api/nav"
	if unit != "" {
		path += "?units=" + url.QueryEscape(unit)
	}
	var v NavResponse
	err := c.get(path, &v)
	return v, err
}

// Goal returns the outbound and acknowledged goals.
func (c *Client) Goal() (GoalResponse, error) {
	var g GoalResponse
	err := c.get("/api/goal", &g)
	return g, err
}

func (c *Client) button(name string) (dial.GoalChange, error) {
	var change dial.GoalChange
	err := c.postForm("/api/goal/"+name, nil, &change)
	return change, err
}

// Port presses the port button.
func (c *Client) Port() (dial.GoalChange, error) { return c.button("port") }

// Starboard presses the starboard button.
func (c *Client) Starboard() (dial.GoalChange, error) { return c.button("starboard") }

// Reset sets the desired goal to the current heading.
func (c *Client) Reset() (dial.GoalChange, error) { return c.button("reset") }

// Tabs returns the J1939 browser tabs.
func (c *Client) Tabs() (j1939.Tabs, error) {
	var t j1939.Tabs
	err := c.get("/api/j1939/tabs", &t)
	return t, err
}

// SelectTab activates tab i.
func (c *Client) SelectTab(i int) (j1939.Tabs, error) {
	var t j1939.Tabs
	err := c.postForm("/api/j1939/tabs/select", url.Values{"index": {fmt.Sprint(i)}}, &t)
	return t, err
}
