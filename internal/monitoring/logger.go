// Package monitoring holds the service's diagnostic hooks: a swappable
// logger for library packages and the Prometheus collectors.
package monitoring

import "log"

// Logf is where library packages send diagnostics. It is log.Printf until
// SetLogger replaces it.
var Logf = log.Printf

// SetLogger routes Logf to f. A nil f discards output, which quietens tests.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = discard
	}
	Logf = f
}

func discard(string, ...interface{}) {}
