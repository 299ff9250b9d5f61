package serialmux

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// DisabledSerialMux stands in for a link with no device configured, such as
// the autopilot port on a bench setup. Lines never arrive, commands are
// counted and dropped, and subscriber channels close on Unsubscribe or Close
// so readers can shut down.
type DisabledSerialMux struct {
	name string

	mu      sync.Mutex
	subs    map[string]chan string
	closed  bool
	dropped int
}

func NewDisabledSerialMux(name string) *DisabledSerialMux {
	if name == "" {
		name = "serial"
	}
	return &DisabledSerialMux{name: name, subs: make(map[string]chan string)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := uuid.NewString(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subs[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop(id)
}

func (d *DisabledSerialMux) drop(id string) {
	if ch, ok := d.subs[id]; ok {
		close(ch)
		delete(d.subs, id)
	}
}

// SendCommand discards the command without error so goal dispatch keeps
// working when no autopilot is attached.
func (d *DisabledSerialMux) SendCommand(string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped++
	return nil
}

// Dropped is the number of commands discarded so far.
func (d *DisabledSerialMux) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Initialize() error { return nil }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id := range d.subs {
		d.drop(id)
	}
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/"+d.name+"-disabled", func(w http.ResponseWriter, r *http.Request) {
		msg := d.name + " serial disabled"
		if n := d.Dropped(); n > 0 {
			msg += fmt.Sprintf(", %d commands dropped", n)
		}
		_, _ = w.Write([]byte(msg))
	})
}
