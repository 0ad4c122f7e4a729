// Package api serves the running simulation over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (operator control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/talgya/compsim/internal/chart"
	"github.com/talgya/compsim/internal/compressor"
	"github.com/talgya/compsim/internal/curve"
	"github.com/talgya/compsim/internal/engine"
	"github.com/talgya/compsim/internal/persistence"
)

const (
	maxSSEConns = 4
	maxWSConns  = 8
)

// Server serves the simulation state over HTTP.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine
	DB          *persistence.DB // optional; enables run and stored-event queries
	Port        int
	AdminKey    string   // bearer token for POST endpoints; empty disables them
	RelayKey    string   // bearer token for the event stream; empty leaves it open
	CORSOrigins []string // extra allowed origins; localhost dev servers always pass
	RateLimit   int      // operator requests per minute per client, 0 for 60
	WSInterval  time.Duration

	sseConns int32
	wsConns  int32
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	rate := s.RateLimit
	if rate <= 0 {
		rate = 60
	}
	commandLimiter := NewRateLimiter(rate, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/map", s.handleMap)
	mux.HandleFunc("/api/v1/driver", s.handleDriver)

	// Streams.
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.HandleFunc("/api/v1/ws", s.handleWS)

	// Operator endpoints (POST, bearer token).
	mux.HandleFunc("/api/v1/command", s.adminOnly(RateLimitMiddleware(commandLimiter, s.handleCommand)))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))

	return s.corsMiddleware(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		slog.Info("HTTP API stopped")
		return nil
	}
}

func (s *Server) allowedOrigin(origin string) bool {
	switch origin {
	case "http://localhost:5173", "http://localhost:4173", "http://localhost:3000":
		return true
	}
	for _, o := range s.CORSOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// corsMiddleware adds CORS headers for allowed frontend origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.allowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// adminOnly requires the admin bearer token on POST requests. GET passes
// through for endpoints that support both.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "operator endpoints disabled (no COMPSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !bearer(r, s.AdminKey) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	stats := s.Sim.Stats()
	writeJSON(w, map[string]any{
		"name":         "compsim",
		"status":       st,
		"sim_time":     engine.FormatSimTime(st.Time),
		"engine_speed": s.Eng.Speed(),
		"running":      s.Eng.Running(),
		"stats":        stats,
		"summary": map[string]string{
			"power":           humanize.CommafWithDigits(st.Power, 0) + " kW",
			"energy":          humanize.SIWithDigits(stats.EnergyKWh*1000, 2, "Wh"),
			"operating_hours": humanize.CommafWithDigits(st.OperatingHours, 1),
		},
	})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Telemetry())
}

func queryInt(r *http.Request, key string, def, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, hi)
}

// queryRun parses ?run=; ok is false when the parameter is absent.
func queryRun(r *http.Request) (id uuid.UUID, ok bool, err error) {
	v := r.URL.Query().Get("run")
	if v == "" {
		return uuid.Nil, false, nil
	}
	id, err = uuid.Parse(v)
	return id, true, err
}

// handleEvents returns recent events, from memory or, with ?run=, from the
// database.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 1000)
	run, fromDB, err := queryRun(r)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	if !fromDB {
		writeJSON(w, s.Sim.RecentEvents(limit))
		return
	}
	if s.DB == nil {
		http.Error(w, "no database", http.StatusNotFound)
		return
	}
	events, err := s.DB.RecentEvents(run, limit)
	if err != nil {
		slog.Error("event query failed", "run", run, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, events)
}

// historyView writes a missing surge margin as null.
type historyView struct {
	compressor.HistoryPoint
	SurgeMargin *float64 `json:"surge_margin"`
}

func historyViews(pts []compressor.HistoryPoint) []historyView {
	out := make([]historyView, len(pts))
	for i, p := range pts {
		out[i].HistoryPoint = p
		if !math.IsNaN(p.SurgeMargin) && !math.IsInf(p.SurgeMargin, 0) {
			m := p.SurgeMargin
			out[i].SurgeMargin = &m
		}
	}
	return out
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	run, fromDB, err := queryRun(r)
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	if fromDB {
		if s.DB == nil {
			http.Error(w, "no database", http.StatusNotFound)
			return
		}
		pts, err := s.DB.History(run, queryInt(r, "limit", 600, 100000))
		if err != nil {
			slog.Error("history query failed", "run", run, "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, historyViews(pts))
		return
	}

	after := math.Inf(-1)
	if v := r.URL.Query().Get("after"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid after", http.StatusBadRequest)
			return
		}
		after = f
	}
	writeJSON(w, historyViews(s.Sim.History(after)))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, []persistence.Run{})
		return
	}
	runs, err := s.DB.Runs(queryInt(r, "limit", 20, 500))
	if err != nil {
		slog.Error("run query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

type boundaryView struct {
	Active bool      `json:"active"`
	Flow   []float64 `json:"flow"`
	Head   []float64 `json:"head"`
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	m := s.Sim.Map()
	view := struct {
		HeadUnit       chart.HeadUnit  `json:"head_unit"`
		MinSpeed       float64         `json:"min_speed"`
		MaxSpeed       float64         `json:"max_speed"`
		ReferenceSpeed float64         `json:"reference_speed"`
		Reference      chart.Reference `json:"reference"`
		Curves         []curve.Curve   `json:"curves"`
		Surge          boundaryView    `json:"surge"`
		StoneWall      boundaryView    `json:"stonewall"`
	}{
		HeadUnit:       m.HeadUnit(),
		MinSpeed:       m.MinSpeed(),
		MaxSpeed:       m.MaxSpeed(),
		ReferenceSpeed: m.ReferenceSpeed(),
		Reference:      m.ReferenceConditions(),
		Curves:         m.Curves(),
	}
	if c := m.SurgeCurve(); c != nil {
		view.Surge.Active = c.Active()
		view.Surge.Flow, view.Surge.Head = c.Points()
	}
	if c := m.StoneWallCurve(); c != nil {
		view.StoneWall.Active = c.Active()
		view.StoneWall.Flow, view.StoneWall.Head = c.Points()
	}
	writeJSON(w, view)
}

func (s *Server) handleDriver(w http.ResponseWriter, r *http.Request) {
	d := s.Sim.Driver()
	if d == nil {
		writeJSON(w, map[string]any{"driver": nil})
		return
	}
	writeJSON(w, map[string]any{
		"driver":              d,
		"type":                d.Type.String(),
		"max_available_power": d.MaxAvailablePower(),
		"overload_time":       d.OverloadTime(),
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var cmd engine.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if err := s.Sim.Apply(cmd); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, compressor.ErrInvalidTransition) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, s.Sim.Status())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("engine speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleStream pushes events as server-sent events, starting with the last
// 50 as catch-up.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey != "" && !bearer(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	for _, e := range s.Sim.RecentEvents(50) {
		writeSSEEvent(w, e)
	}
	flusher.Flush()
	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, e)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Category, data)
}

// wsMessage is one frame on the websocket.
type wsMessage struct {
	Type      string         `json:"type"` // "telemetry" or "event"
	Status    *engine.Status `json:"status,omitempty"`
	Telemetry any            `json:"telemetry,omitempty"`
	Event     *engine.Event  `json:"event,omitempty"`
}

func (s *Server) telemetryMessage() wsMessage {
	st := s.Sim.Status()
	return wsMessage{Type: "telemetry", Status: &st, Telemetry: s.Sim.Telemetry()}
}

// handleWS pushes a telemetry frame every WSInterval and each event as it
// happens. Incoming frames are read only to notice the client leaving.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	current := atomic.AddInt32(&s.wsConns, 1)
	defer atomic.AddInt32(&s.wsConns, -1)
	if current > maxWSConns {
		http.Error(w, "too many websocket connections", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.allowedOrigin(origin) || strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://") == r.Host
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m wsMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(m); err != nil {
			slog.Info("websocket client gone", "sub_id", subID, "error", err)
			return false
		}
		return true
	}

	interval := s.WSInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if !send(s.telemetryMessage()) {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case e, ok := <-ch:
			if !ok || !send(wsMessage{Type: "event", Event: &e}) {
				return
			}
		case <-ticker.C:
			if !send(s.telemetryMessage()) {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}
