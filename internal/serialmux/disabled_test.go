package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDisabledSerialMux_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDisabledSerialMux("feed")
	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestDisabledSerialMux_Close(t *testing.T) {
	d := NewDisabledSerialMux("")
	_, ch1 := d.Subscribe()
	_, ch2 := d.Subscribe()
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	for _, ch := range []chan string{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Error("expected closed channel")
		}
	}
	// subscribing after close hands back a closed channel
	_, ch3 := d.Subscribe()
	if _, ok := <-ch3; ok {
		t.Error("expected closed channel after Close")
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDisabledSerialMux_NoOps(t *testing.T) {
	d := NewDisabledSerialMux("slcan")
	if err := d.SendCommand("O"); err != nil {
		t.Error(err)
	}
	if err := d.Initialize(); err != nil {
		t.Error(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Monitor(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Monitor = %v", err)
	}

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/slcan-disabled", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "slcan serial disabled, 1 commands dropped" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped = %d", d.Dropped())
	}
}

var _ SerialMuxInterface = (*DisabledSerialMux)(nil)
var _ SerialMuxInterface = (*SerialMux[*TestableSerialPort])(nil)
