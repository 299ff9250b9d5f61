package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "helm.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testFrame(iface string, rawID uint32, offset time.Duration, data ...byte) j1939.Frame {
	return j1939.NewFrame(iface, rawID|j1939.EFFFlag, data, testEpoch.Add(offset))
}
