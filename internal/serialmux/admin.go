package serialmux

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var adminFS embed.FS

var consoleTmpl = template.Must(template.ParseFS(adminFS, "templates/console.html.tmpl"))

// AttachAdminRoutesForMux registers /debug/<name>-console, -send, -tail and
// -tail.js for m. FeedPortManager passes itself so the routes follow
// whichever port is current.
func AttachAdminRoutesForMux(mux *http.ServeMux, name string, m SerialMuxInterface) {
	a := adminRoutes{name: name, mux: m}
	debug := tsweb.Debugger(mux)
	debug.HandleFunc(name+"-console", "send commands to and tail the "+name+" serial port", a.console)
	debug.HandleSilentFunc(name+"-send", a.send)
	debug.HandleSilentFunc(name+"-tail", a.tail)
	debug.HandleSilentFunc(name+"-tail.js", a.script)
}

type adminRoutes struct {
	name string
	mux  SerialMuxInterface
}

func (a adminRoutes) console(w http.ResponseWriter, r *http.Request) {
	var page strings.Builder
	if err := consoleTmpl.Execute(&page, map[string]string{"Name": a.name}); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, page.String())
}

func (a adminRoutes) send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cmd := strings.TrimSpace(r.FormValue("command"))
	if cmd == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if err := a.mux.SendCommand(cmd); err != nil {
		http.Error(w, "Failed to write command: "+err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "Wrote command %q to %s", cmd, a.name)
}

// tail streams port lines as server-sent events until the client leaves or
// the port closes.
func (a adminRoutes) tail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	id, lines := a.mux.Subscribe()
	defer a.mux.Unsubscribe(id)

	fmt.Fprint(w, ": ping\n\n")
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (a adminRoutes) script(w http.ResponseWriter, r *http.Request) {
	js, err := adminFS.ReadFile("templates/tail.js")
	if err != nil {
		http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(js)
}
