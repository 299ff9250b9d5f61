package serialmux

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
)

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

// localHostRequest creates a request that passes tsweb's loopback check.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}
