package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/helm/internal/feed"
	"github.com/banshee-data/helm/internal/httputil"
	"github.com/banshee-data/helm/internal/serialmux"
)

// ErrPortManagerClosed is returned by a FeedPortManager after Close.
var ErrPortManagerClosed = errors.New("feed port manager is closed")

// PortFactory opens a serial mux for the given port options. It is injected
// so real, mock and disabled ports can be swapped in.
type PortFactory func(opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error)

// PortSnapshot describes the port currently behind the manager.
type PortSnapshot struct {
	Options serialmux.PortOptions `json:"options"`
	Source  string                `json:"source"`
}

// PortReloadResult is returned to API clients after a reload request.
type PortReloadResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Port    PortSnapshot `json:"port"`
}

// FeedPortManager wraps the autopilot serial mux so the port can be changed
// at runtime. It implements serialmux.SerialMuxInterface itself; subscribers
// get channels from an internal fanout that survives reloads, so the nav
// feed and the goal dispatcher keep working across a port swap.
type FeedPortManager struct {
	name string

	mu       sync.RWMutex
	current  serialmux.SerialMuxInterface
	snapshot PortSnapshot
	closed   bool

	factory  PortFactory
	reloadMu sync.Mutex

	// fanout bridges subscriptions across reloads
	done        chan struct{}
	fanoutMu    sync.RWMutex
	subscribers map[string]chan string
}

// NewFeedPortManager starts the fanout goroutine, which runs until Close.
func NewFeedPortManager(name string, initial serialmux.SerialMuxInterface, snapshot PortSnapshot, factory PortFactory) *FeedPortManager {
	m := &FeedPortManager{
		name:        name,
		current:     initial,
		snapshot:    snapshot,
		factory:     factory,
		done:        make(chan struct{}),
		subscribers: make(map[string]chan string),
	}
	go m.runFanout()
	return m
}

// CurrentMux returns the active mux.
func (m *FeedPortManager) CurrentMux() serialmux.SerialMuxInterface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the active port description.
func (m *FeedPortManager) Snapshot() PortSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// runFanout subscribes to whichever mux is current and forwards every line
// to the persistent subscriber channels, resubscribing when a reload closes
// the old mux.
func (m *FeedPortManager) runFanout() {
	var (
		subMux serialmux.SerialMuxInterface
		subID  string
		subCh  chan string
	)

	defer func() {
		if subMux != nil && subID != "" {
			subMux.Unsubscribe(subID)
		}
		m.fanoutMu.Lock()
		for id, ch := range m.subscribers {
			close(ch)
			delete(m.subscribers, id)
		}
		m.fanoutMu.Unlock()
	}()

	for {
		if subCh == nil {
			mux := m.CurrentMux()
			if mux == nil {
				select {
				case <-m.done:
					return
				case <-time.After(250 * time.Millisecond):
					continue
				}
			}
			subMux = mux
			subID, subCh = mux.Subscribe()
		}

		select {
		case <-m.done:
			return
		case line, ok := <-subCh:
			if !ok {
				// the mux was closed, most likely by a reload
				subMux, subID, subCh = nil, "", nil
				select {
				case <-m.done:
					return
				case <-time.After(50 * time.Millisecond):
				}
				continue
			}

			m.fanoutMu.RLock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
					log.Printf("%s: subscriber channel full, dropping line", m.name)
				}
			}
			m.fanoutMu.RUnlock()
		}
	}
}

// Subscribe returns a channel that stays valid across reloads. After Close
// it returns a closed channel.
func (m *FeedPortManager) Subscribe() (string, chan string) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()

	ch := make(chan string, 10)
	if closed {
		close(ch)
		return "", ch
	}

	id := uuid.NewString()
	m.fanoutMu.Lock()
	m.subscribers[id] = ch
	m.fanoutMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *FeedPortManager) Unsubscribe(id string) {
	m.fanoutMu.Lock()
	defer m.fanoutMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

func (m *FeedPortManager) active() (serialmux.SerialMuxInterface, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrPortManagerClosed
	}
	if m.current == nil {
		return nil, errors.New("feed port unavailable")
	}
	return m.current, nil
}

// SendCommand writes to the active port.
func (m *FeedPortManager) SendCommand(command string) error {
	mux, err := m.active()
	if err != nil {
		return err
	}
	return mux.SendCommand(command)
}

// Initialize sends the active port's init commands.
func (m *FeedPortManager) Initialize() error {
	mux, err := m.active()
	if err != nil {
		return err
	}
	return mux.Initialize()
}

// Monitor runs the active mux's Monitor, moving on to the new mux after a
// reload, until ctx is cancelled.
func (m *FeedPortManager) Monitor(ctx context.Context) error {
	for {
		mux := m.CurrentMux()
		if mux == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(250 * time.Millisecond):
				continue
			}
		}

		err := mux.Monitor(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pause := 100 * time.Millisecond
		if err != nil {
			log.Printf("%s monitor terminated with error: %v", m.name, err)
			pause = 500 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Close closes the active mux and stops the fanout. Only for shutdown.
func (m *FeedPortManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var err error
	if m.current != nil {
		err = m.current.Close()
	}
	m.current = nil
	m.mu.Unlock()

	close(m.done)
	return err
}

// AttachAdminRoutes registers the serial debug routes against the manager so
// they follow reloads.
func (m *FeedPortManager) AttachAdminRoutes(mux *http.ServeMux) {
	serialmux.AttachAdminRoutesForMux(mux, m.name, m)
}

// Reload switches to a port opened with opts. The old port is closed first
// because a device node cannot be opened twice.
func (m *FeedPortManager) Reload(ctx context.Context, opts serialmux.PortOptions) (*PortReloadResult, error) {
	if m.factory == nil {
		return nil, errors.New("feed port factory not configured")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	normalized, err := opts.Normalize()
	if err != nil {
		return nil, fmt.Errorf("invalid port options: %w", err)
	}

	current := m.Snapshot()
	if current.Options.Equal(normalized) {
		return &PortReloadResult{
			Success: true,
			Message: fmt.Sprintf("Port %q already active", normalized.Path),
			Port:    current,
		}, nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrPortManagerClosed
	}
	old := m.current
	m.current = nil
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Printf("warning: failed to close previous %s port: %v", m.name, err)
		}
	}

	next, err := m.factory(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", normalized.Path, err)
	}
	if err := next.Initialize(); err != nil {
		next.Close()
		return nil, fmt.Errorf("failed to initialize port: %w", err)
	}

	snap := PortSnapshot{Options: normalized, Source: "api"}
	m.mu.Lock()
	m.current = next
	m.snapshot = snap
	m.mu.Unlock()

	return &PortReloadResult{
		Success: true,
		Message: fmt.Sprintf("Switched %s to %q", m.name, normalized.Path),
		Port:    snap,
	}, nil
}

func (s *Server) handleFeedPort(w http.ResponseWriter, r *http.Request) {
	if s.feedPort == nil {
		httputil.Unavailable(w, "feed port")
		return
	}
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.feedPort.Snapshot())
	case http.MethodPost:
		var opts serialmux.PortOptions
		if err := decodeJSONBody(r, &opts); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if !opts.Enabled() {
			httputil.BadRequest(w, "path is required")
			return
		}
		if _, err := opts.Normalize(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		res, err := s.feedPort.Reload(r.Context(), opts)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, res)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// FeedResponse reports the nav feed counters and the last autopilot config.
type FeedResponse struct {
	feed.Stats
	Config     map[string]interface{} `json:"config,omitempty"`
	LastFeedAt *time.Time             `json:"last_feed_at,omitempty"`
}

func (s *Server) showFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.feed == nil {
		httputil.Unavailable(w, "nav feed")
		return
	}
	resp := FeedResponse{Stats: s.feed.Stats(), Config: s.feed.Config()}
	if at := s.owner.Latest().FeedAt; !at.IsZero() {
		resp.LastFeedAt = &at
	}
	httputil.WriteJSONOK(w, resp)
}
