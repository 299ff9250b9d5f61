// Package httputil holds the JSON response helpers shared by the API handlers
// and the HTTP client seam used by the ctl subcommand.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultClientTimeout bounds ctl requests.
const DefaultClientTimeout = 5 * time.Second

// Doer sends a request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns an *http.Client with the given timeout, or
// DefaultClientTimeout when timeout is zero.
func NewClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = DefaultClientTimeout
	}
	return &http.Client{Timeout: timeout}
}

// RecordedRequest is what StubTransport saw of one request.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

type stubReply struct {
	status int
	body   string
	err    error
}

// StubTransport is an http.RoundTripper that answers from a queue and records
// every request. Once the queue is empty each request gets an empty 200.
type StubTransport struct {
	mu      sync.Mutex
	replies []stubReply
	seen    []RecordedRequest
}

// Reply queues a response.
func (s *StubTransport) Reply(status int, body string) *StubTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, stubReply{status: status, body: body})
	return s
}

// Fail queues a transport error.
func (s *StubTransport) Fail(err error) *StubTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, stubReply{err: err})
	return s
}

// Client wraps the stub in an *http.Client.
func (s *StubTransport) Client() *http.Client {
	return &http.Client{Transport: s}
}

func (s *StubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := RecordedRequest{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone()}
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		rec.Body = string(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, rec)
	reply := stubReply{status: http.StatusOK}
	if len(s.replies) > 0 {
		reply, s.replies = s.replies[0], s.replies[1:]
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &http.Response{
		StatusCode: reply.status,
		Status:     http.StatusText(reply.status),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader([]byte(reply.body))),
		Request:    req,
	}, nil
}

// Requests returns a copy of the requests seen so far.
func (s *StubTransport) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.seen...)
}
