// Package api exposes the locate engine over HTTP: session control,
// live status, trail snapshots and exports, an SSE detection stream, and
// GPS source management.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mitchross/intercept/internal/btlocate"
	"github.com/mitchross/intercept/internal/db"
	"github.com/mitchross/intercept/internal/gpsfix"
	"github.com/mitchross/intercept/internal/httputil"
	"github.com/mitchross/intercept/internal/monitoring"
	"github.com/mitchross/intercept/internal/scan"
	"github.com/mitchross/intercept/internal/units"
)

type Server struct {
	session *btlocate.Session
	db      *db.DB
	backend scan.Backend
	hub     *Hub
	units   string

	gpsReader *gpsfix.Reader
	manualGPS *gpsfix.ManualProvider
}

// NewServer wires the HTTP surface to the engine. db, backend, and
// gpsReader may be nil; the corresponding endpoints degrade gracefully.
// The hub receives every accepted detection via the session's accept hook;
// RegisterAcceptHook must be called once after construction.
func NewServer(session *btlocate.Session, store *db.DB, backend scan.Backend, gpsReader *gpsfix.Reader, manualGPS *gpsfix.ManualProvider, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	return &Server{
		session:   session,
		db:        store,
		backend:   backend,
		hub:       NewHub(),
		units:     speedUnits,
		gpsReader: gpsReader,
		manualGPS: manualGPS,
	}
}

// RegisterAcceptHook routes accepted detections to the SSE hub and, when a
// database is attached, the durable history.
func (s *Server) RegisterAcceptHook() {
	s.session.SetOnAccept(func(sessionID string, det btlocate.Detection) {
		s.hub.Broadcast("detection", det)
		if s.db != nil {
			if err := s.db.RecordDetection(sessionID, det); err != nil {
				monitoring.Logf("failed to persist detection: %v", err)
			}
		}
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/locate/start", s.startHandler)
	mux.HandleFunc("/api/locate/stop", s.stopHandler)
	mux.HandleFunc("/api/locate/clear", s.clearHandler)
	mux.HandleFunc("/api/locate/environment", s.environmentHandler)
	mux.HandleFunc("/api/locate/status", s.statusHandler)
	mux.HandleFunc("/api/locate/trail", s.trailHandler)
	mux.HandleFunc("/api/locate/heat", s.heatHandler)
	mux.HandleFunc("/api/locate/rssi", s.rssiHandler)
	mux.HandleFunc("/api/locate/export", s.exportHandler)
	mux.HandleFunc("/api/locate/stream", s.streamHandler)
	mux.HandleFunc("/api/locate/sessions", s.sessionsHandler)
	mux.HandleFunc("/api/locate/history", s.historyHandler)

	mux.HandleFunc("/api/gps/status", s.gpsStatusHandler)
	mux.HandleFunc("/api/gps/manual", s.gpsManualHandler)

	mux.HandleFunc("/api/devices", s.devicesHandler)

	return mux
}

// startRequest is the body of POST /api/locate/start.
type startRequest struct {
	Target         btlocate.TargetDescriptor `json:"target"`
	Environment    btlocate.Environment      `json:"environment"`
	CustomExponent float64                   `json:"custom_exponent,omitempty"`
	Hints          btlocate.Hints            `json:"hints,omitempty"`
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Environment == "" {
		req.Environment = btlocate.EnvOutdoor
	}

	id, err := s.session.Start(req.Target, req.Environment, req.CustomExponent, req.Hints)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if s.db != nil {
		view := s.session.LiveView()
		rec := db.SessionRecord{
			SessionID:        id,
			Target:           view.Target,
			Environment:      string(view.Environment),
			PathLossExponent: view.PathLossExponent,
			StartedAt:        time.Now(),
		}
		if view.StartedAt != nil {
			rec.StartedAt = *view.StartedAt
		}
		if err := s.db.CreateSession(rec); err != nil {
			monitoring.Logf("failed to persist session start: %v", err)
		}
	}

	httputil.WriteJSONOK(w, map[string]string{"session_id": id})
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	id := s.session.ID()
	s.session.Stop()
	if s.db != nil && id != "" {
		if err := s.db.EndSession(id, time.Now()); err != nil {
			monitoring.Logf("failed to persist session end: %v", err)
		}
	}
	httputil.WriteJSONOK(w, s.session.LiveView())
}

func (s *Server) clearHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.session.Clear()
	httputil.WriteJSONOK(w, s.session.LiveView())
}

// environmentRequest is the body of POST /api/locate/environment.
type environmentRequest struct {
	Environment    btlocate.Environment `json:"environment"`
	CustomExponent float64              `json:"custom_exponent,omitempty"`
}

func (s *Server) environmentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req environmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := s.session.SetEnvironment(req.Environment, req.CustomExponent); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.session.LiveView())
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	targetUnits := r.URL.Query().Get("units")
	if targetUnits == "" {
		targetUnits = s.units
	}
	if !units.IsValid(targetUnits) {
		httputil.BadRequest(w, "invalid units: must be one of "+units.GetValidUnitsString())
		return
	}

	view := s.session.LiveView()
	view.SpeedUnits = targetUnits
	if view.AvgSpeedMPS != nil {
		converted := units.ConvertSpeed(*view.AvgSpeedMPS, targetUnits)
		view.AvgSpeed = &converted
	}
	httputil.WriteJSONOK(w, view)
}

func (s *Server) trailHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	positionedOnly, _ := strconv.ParseBool(r.URL.Query().Get("positioned"))
	points := s.session.Snapshot(positionedOnly)
	if points == nil {
		points = []btlocate.Detection{}
	}
	httputil.WriteJSONOK(w, points)
}

func (s *Server) heatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	samples := s.session.HeatSamples()
	if samples == nil {
		samples = []btlocate.HeatSample{}
	}
	httputil.WriteJSONOK(w, samples)
}

func (s *Server) rssiHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	history := s.session.RSSIHistory()
	if history == nil {
		history = []btlocate.RSSISample{}
	}
	httputil.WriteJSONOK(w, history)
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	format := btlocate.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = btlocate.FormatCSV
	}

	body, err := btlocate.ExportTrail(s.session.Snapshot(false), format)
	if errors.Is(err, btlocate.ErrNoPositions) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	filename := fmt.Sprintf("locate-trail-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(body)
}

func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "session history is not enabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.SessionRecord{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "session history is not enabled")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		httputil.BadRequest(w, "session_id is required")
		return
	}

	detections, err := s.db.Detections(sessionID, 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load detections: %v", err))
		return
	}
	if detections == nil {
		detections = []btlocate.Detection{}
	}
	httputil.WriteJSONOK(w, detections)
}

func (s *Server) gpsStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	var sources []gpsfix.Status
	if s.gpsReader != nil {
		sources = append(sources, s.gpsReader.Status())
	}
	if s.manualGPS != nil {
		sources = append(sources, s.manualGPS.Status())
	}
	if sources == nil {
		sources = []gpsfix.Status{}
	}
	httputil.WriteJSONOK(w, sources)
}

// gpsManualRequest is the body of POST /api/gps/manual. A null position
// clears the override.
type gpsManualRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (s *Server) gpsManualHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.manualGPS == nil {
		httputil.NotFound(w, "manual GPS is not enabled")
		return
	}

	var req gpsManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.Lat == nil || req.Lon == nil {
		s.manualGPS.Clear()
		httputil.WriteJSONOK(w, s.manualGPS.Status())
		return
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
		httputil.BadRequest(w, "position out of range")
		return
	}
	s.manualGPS.Set(*req.Lat, *req.Lon)
	httputil.WriteJSONOK(w, s.manualGPS.Status())
}

func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.backend == nil {
		httputil.NotFound(w, "no scanner backend attached")
		return
	}

	devices := s.backend.Snapshot()
	if devices == nil {
		devices = []btlocate.RawDetection{}
	}
	httputil.WriteJSONOK(w, devices)
}
