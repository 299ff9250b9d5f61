package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	if c := NewClient(0); c.Timeout != DefaultClientTimeout {
		t.Errorf("timeout = %v, want %v", c.Timeout, DefaultClientTimeout)
	}
	if c := NewClient(time.Second); c.Timeout != time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}
}

func TestClientAgainstServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(r.Method + " " + string(body)))
	}))
	defer server.Close()

	var d Doer = NewClient(0)
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/j1939/tabs/select", strings.NewReader("index=1"))
	resp, err := d.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted || string(body) != "POST index=1" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestStubTransport(t *testing.T) {
	stub := (&StubTransport{}).
		Reply(http.StatusOK, "first").
		Reply(http.StatusNotFound, "second")
	connErr := errors.New("connection refused")
	stub.Fail(connErr)
	c := stub.Client()

	resp, err := c.Get("http://boat.local/1")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "first" {
		t.Errorf("first: got %d %q", resp.StatusCode, body)
	}

	resp, err = c.Post("http://boat.local/2", "application/json", strings.NewReader("{}"))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("second: got %v %v", resp, err)
	}

	if _, err := c.Get("http://boat.local/3"); !errors.Is(err, connErr) {
		t.Errorf("third: got %v, want %v", err, connErr)
	}

	resp, err = c.Get("http://boat.local/4")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Errorf("empty queue: got %v %v", resp, err)
	}

	seen := stub.Requests()
	if len(seen) != 4 {
		t.Fatalf("recorded %d requests, want 4", len(seen))
	}
	if seen[1].Method != http.MethodPost || seen[1].Body != "{}" || seen[1].Header.Get("Content-Type") != "application/json" {
		t.Errorf("second request = %+v", seen[1])
	}
	if seen[3].URL != "http://boat.local/4" {
		t.Errorf("fourth URL = %s", seen[3].URL)
	}
}
