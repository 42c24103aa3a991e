// Package web provides the HTTP status and control server for the injector-bench daemon.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sweeney/injector-bench/internal/config"
	"github.com/sweeney/injector-bench/internal/logic"
	"github.com/sweeney/injector-bench/internal/status"
)

// SettingsStore is the persisted settings record the API reads and writes.
type SettingsStore interface {
	Current() config.Settings
	Save(config.Settings) error
}

// Server serves the status page, the control API and the live feed.
// Handlers never touch the session; they only send commands to the control loop.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	store      SettingsStore
	commands   chan<- logic.Command

	upgrader  websocket.Upgrader
	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Server that reads state from the given tracker and forwards
// control requests on commands.
func New(addr string, tracker *status.Tracker, store SettingsStore, commands chan<- logic.Command) *Server {
	s := &Server{
		tracker:  tracker,
		store:    store,
		commands: commands,
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects feed clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clientsMu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// submit hands a command to the control loop without blocking the handler.
func (s *Server) submit(cmd logic.Command) bool {
	select {
	case s.commands <- cmd:
		log.Printf("[web] %s", cmd)
		return true
	default:
		return false
	}
}
