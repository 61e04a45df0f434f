// Package api provides the local HTTP API and event stream used by the
// external GUI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"memtrigger/internal/config"
	"memtrigger/internal/journal"
	"memtrigger/internal/keys"
	"memtrigger/internal/monitor"
)

// maxPressHold bounds the hold time of POST /api/press.
const maxPressHold = 5 * time.Second

// History is the reaction journal as seen by the API.
type History interface {
	Recent(ctx context.Context, bindingID string, limit int) ([]journal.Entry, error)
}

// Presser drives timed presses on the input channel. *channel.Channel
// implements it.
type Presser interface {
	SetActive(active bool)
	PressKey(ctx context.Context, code int, d time.Duration)
	PressGamepadButton(ctx context.Context, index int, d time.Duration)
}

// Options wires the server to the rest of the application.
type Options struct {
	Config     *config.Manager
	Supervisor *monitor.Supervisor
	// History may be nil when the journal is disabled.
	History History
	// Attach finds and attaches the configured process.
	Attach func() error
	// Start, when set, replaces attach plus StartAll for POST /api/start.
	Start func() error
	// Stop, when set, is called before every monitor is stopped by
	// POST /api/stop or /api/detach.
	Stop func()
	// Release deactivates the channel and stops every monitor.
	Release func()
	// Input may be nil, which disables POST /api/press.
	Input Presser
}

// Server provides HTTP API for local control
type Server struct {
	configMgr *config.Manager
	sup       *monitor.Supervisor
	history   History
	attach    func() error
	start     func() error
	stop      func()
	release   func()
	input     Presser
	pressMu   sync.Mutex
	token     string
	wsMgr     *WSManager
	hubOnce   sync.Once
	httpSrv   *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		configMgr: opts.Config,
		sup:       opts.Supervisor,
		history:   opts.History,
		attach:    opts.Attach,
		start:     opts.Start,
		stop:      opts.Stop,
		release:   opts.Release,
		input:     opts.Input,
	}
	s.token = s.configMgr.Get().General.APIToken
	s.wsMgr = newWSManager(s)
	return s
}

// Handler returns the routed, authenticated handler
func (s *Server) Handler() http.Handler {
	s.hubOnce.Do(func() { go s.wsMgr.start() })

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/bindings", s.handleBindings)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/attach", s.handleAttach)
	mux.HandleFunc("/api/detach", s.handleDetach)
	mux.HandleFunc("/api/release", s.handleRelease)
	mux.HandleFunc("/api/press", s.handlePress)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start serves the API on localhost:port until Shutdown. It blocks.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		log.Printf("ERROR: API server failed to listen on %s: %v", addr, err)
		return err
	}
	log.Printf("API: Listening on %s", addr)

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// This is blocking
	if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Printf("ERROR: API server stopped: %v", err)
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and the websocket hub
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsMgr.stop()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Broadcast forwards a supervisor event to websocket clients. It never blocks.
func (s *Server) Broadcast(ev monitor.Event) {
	s.wsMgr.BroadcastEvent(ev)
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOV: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks API token if configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if s.token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+s.token && r.URL.Query().Get("token") != s.token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var perr *config.ConfigParseError
	switch {
	case errors.Is(err, monitor.ErrMonitorRunning), errors.Is(err, monitor.ErrDuplicateBinding):
		status = http.StatusConflict
	case errors.Is(err, monitor.ErrUnknownBinding):
		status = http.StatusNotFound
	case errors.Is(err, monitor.ErrNotAttached):
		status = http.StatusPreconditionFailed
	case errors.As(err, &perr), errors.Is(err, monitor.ErrInvalidBinding):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusResponse is the body of GET /api/status
type statusResponse struct {
	Attached bool            `json:"attached"`
	PID      int             `json:"pid,omitempty"`
	Process  string          `json:"process"`
	Monitors []monitor.State `json:"monitors"`
}

func (s *Server) status() statusResponse {
	resp := statusResponse{
		Process:  s.configMgr.Get().General.ProcessName,
		Monitors: s.sup.States(),
	}
	if p := s.sup.Attached(); p != nil {
		resp.Attached = true
		resp.PID = p.PID()
	}
	return resp
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

// handleBindings handles GET (list), POST (create or replace a stopped
// binding) and DELETE ?id= for bindings
func (s *Server) handleBindings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.sup.Bindings())

	case http.MethodPost:
		var bc config.BindingConfig
		if err := json.NewDecoder(r.Body).Decode(&bc); err != nil {
			http.Error(w, "Invalid binding data", http.StatusBadRequest)
			return
		}
		if bc.ID == "" {
			http.Error(w, "Missing binding id", http.StatusBadRequest)
			return
		}

		b, err := config.ParseBinding(bc, s.configMgr.Dir())
		if err != nil {
			writeError(w, err)
			return
		}

		err = s.sup.Update(b)
		if errors.Is(err, monitor.ErrUnknownBinding) {
			err = s.sup.Add(b)
		}
		if err != nil {
			writeError(w, err)
			return
		}

		s.configMgr.SetBinding(bc)
		if err := s.configMgr.Save(); err != nil {
			log.Printf("API: Failed to save binding %s: %v", bc.ID, err)
		}
		log.Printf("API: Binding %s saved", bc.ID)
		writeJSON(w, http.StatusOK, b)

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Missing id parameter", http.StatusBadRequest)
			return
		}
		if err := s.sup.Remove(id); err != nil {
			writeError(w, err)
			return
		}
		s.configMgr.DeleteBinding(id)
		if err := s.configMgr.Save(); err != nil {
			log.Printf("API: Failed to save after deleting %s: %v", id, err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStart handles POST /api/start[?id=<binding>]
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	if id := r.URL.Query().Get("id"); id != "" {
		err = s.sup.StartBinding(id)
	} else if s.start != nil {
		err = s.start()
	} else {
		if s.sup.Attached() == nil && s.attach != nil {
			if aerr := s.attach(); aerr != nil {
				writeError(w, fmt.Errorf("%w: %v", monitor.ErrNotAttached, aerr))
				return
			}
		}
		err = s.sup.StartAll()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

// handleStop handles POST /api/stop[?id=<binding>]. Without an id every
// monitor stops and the process is released.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		if err := s.sup.StopBinding(id); err != nil {
			writeError(w, err)
			return
		}
	} else {
		if s.stop != nil {
			s.stop()
		}
		s.sup.StopAll()
	}
	writeJSON(w, http.StatusOK, s.status())
}

// handleAttach handles POST /api/attach
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.attach == nil {
		http.Error(w, "Attach not available", http.StatusNotImplemented)
		return
	}
	if err := s.attach(); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

// handleDetach handles POST /api/detach
func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.stop != nil {
		s.stop()
	}
	s.sup.Detach()
	writeJSON(w, http.StatusOK, s.status())
}

// handleRelease handles POST /api/release, the panic button
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.release != nil {
		s.release()
	} else {
		if s.stop != nil {
			s.stop()
		}
		s.sup.StopAll()
	}
	writeJSON(w, http.StatusOK, s.status())
}

// handlePress handles POST /api/press?key=<key>|button=<button>[&ms=<hold>].
// It is refused while any monitor runs, since the press owns the channel's
// active flag for its duration.
func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.input == nil {
		http.Error(w, "Input channel not available", http.StatusNotImplemented)
		return
	}

	q := r.URL.Query()
	hold := 100 * time.Millisecond
	if v := q.Get("ms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || time.Duration(n)*time.Millisecond > maxPressHold {
			http.Error(w, "Invalid hold time", http.StatusBadRequest)
			return
		}
		hold = time.Duration(n) * time.Millisecond
	}

	var press func()
	switch key, button := q.Get("key"), q.Get("button"); {
	case key != "" && button == "":
		code, err := keys.Lookup(key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		press = func() { s.input.PressKey(r.Context(), code, hold) }
	case button != "" && key == "":
		idx, err := keys.LookupButton(button)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		press = func() { s.input.PressGamepadButton(r.Context(), idx, hold) }
	default:
		http.Error(w, "Exactly one of key or button is required", http.StatusBadRequest)
		return
	}

	s.pressMu.Lock()
	defer s.pressMu.Unlock()
	if s.sup.AnyRunning() {
		writeError(w, fmt.Errorf("%w: stop monitoring before pressing inputs", monitor.ErrMonitorRunning))
		return
	}

	s.input.SetActive(true)
	press()
	s.input.SetActive(false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHistory handles GET /api/history?binding=<id>&limit=<n>
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "History disabled", http.StatusNotFound)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), r.URL.Query().Get("binding"), limit)
	if err != nil {
		log.Printf("API: History query failed: %v", err)
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleConfig handles GET (read) and POST (update) for configuration
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.configMgr.Get())

	case http.MethodPost:
		var newCfg config.Config
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			http.Error(w, "Invalid configuration data", http.StatusBadRequest)
			return
		}

		log.Printf("API: Receiving configuration update from %s", r.RemoteAddr)

		// Set triggers the change callback, which swaps the bindings in.
		s.configMgr.Set(&newCfg)
		if err := s.configMgr.Save(); err != nil {
			log.Printf("API: Failed to save received config: %v", err)
			http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
