package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/injuryrisk/internal/ingest/alpha"
	"github.com/claude/injuryrisk/internal/ingest/fit"
	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/predict"
	"github.com/claude/injuryrisk/internal/service"
	"github.com/claude/injuryrisk/internal/storage"
)

const (
	maxJSONBody = 64 << 20
	maxFITBody  = 32 << 20
	maxCSVBody  = 16 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHAEIngest(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var payload models.HAEPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	result, err := s.hae.Ingest(r.Context(), &payload, uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFITIngest(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFITBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading body: " + err.Error()})
		return
	}
	result, err := s.fit.Ingest(r.Context(), data, uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAlphaIngest(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	result, err := s.alpha.Ingest(r.Context(), http.MaxBytesReader(w, r.Body, maxCSVBody), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleImportStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	stats, err := s.svc.ImportStats(r.Context(), uid)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	logs, err := s.svc.ImportLogs(r.Context(), uid, queryLimit(r, 50))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// symptomRequest is the wire form of a SymptomEntry with a calendar date.
type symptomRequest struct {
	Date               string  `json:"date"`
	PainScore          float64 `json:"pain_score"`
	PainLocation       string  `json:"pain_location"`
	Swelling           bool    `json:"swelling"`
	MuscleSoreness     float64 `json:"muscle_soreness"`
	Fatigue            float64 `json:"fatigue"`
	SleepQuality       float64 `json:"sleep_quality"`
	PerceivedReadiness *float64 `json:"perceived_readiness"`
	Notes              string  `json:"notes"`
}

func (s *Server) handleSymptom(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req symptomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	date, err := parseDate(req.Date, time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	entry, err := s.ingest.RecordSymptom(r.Context(), models.SymptomEntry{
		UserID:             uid,
		Date:               date,
		PainScore:          req.PainScore,
		PainLocation:       req.PainLocation,
		Swelling:           req.Swelling,
		MuscleSoreness:     req.MuscleSoreness,
		Fatigue:            req.Fatigue,
		SleepQuality:       req.SleepQuality,
		PerceivedReadiness: req.PerceivedReadiness,
		Notes:              req.Notes,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// plannedRequest is the wire form of a PlannedSession.
type plannedRequest struct {
	SportType       string  `json:"sport_type"`
	DurationMinutes float64 `json:"duration_minutes"`
	Intensity       string  `json:"intensity"`
	ScheduledDate   string  `json:"scheduled_date"`
	Notes           string  `json:"notes"`
}

func (p plannedRequest) session() (models.PlannedSession, error) {
	out := models.PlannedSession{
		SportType:       models.SportType(p.SportType),
		DurationMinutes: p.DurationMinutes,
		IntensityZone:   models.IntensityZone(p.Intensity),
		Notes:           p.Notes,
	}
	if p.ScheduledDate != "" {
		d, err := parseDate(p.ScheduledDate, time.Time{})
		if err != nil {
			return out, err
		}
		out.ScheduledDate = d
	}
	return out, nil
}

func (s *Server) handleCreatePlanned(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req plannedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	p, err := req.session()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	created, err := s.svc.CreatePlannedSession(r.Context(), uid, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListPlanned(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	sessions, err := s.svc.UpcomingSessions(r.Context(), uid, queryLimit(r, 20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleEvaluatePlanned(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid planned session ID"})
		return
	}
	res, err := s.svc.EvaluatePlanned(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// evaluateRequest is the optional body of POST /evaluate.
type evaluateRequest struct {
	Date           string          `json:"date"`
	PlannedSession *plannedRequest `json:"planned_session"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Date == "" {
		req.Date = r.URL.Query().Get("date")
	}
	date, err := parseDate(req.Date, time.Time{})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var planned *models.PlannedSession
	if req.PlannedSession != nil {
		p, err := req.PlannedSession.session()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		planned = &p
	}

	res, err := s.svc.Evaluate(r.Context(), uid, date, planned)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	preds, err := s.svc.Predictions(r.Context(), uid, queryLimit(r, 30))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preds)
}

func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"), time.Time{})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	snap, err := s.svc.Snapshot(r.Context(), uid, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLoadSummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseTimeRange(r, 12*7)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	bucket := r.URL.Query().Get("bucket")
	switch bucket {
	case "":
		bucket = "week"
	case "day", "week", "month":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bucket must be day, week or month"})
		return
	}
	periods, err := s.svc.LoadSummary(r.Context(), uid, start, end, bucket)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, periods)
}

// writeError maps service errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, predict.ErrNoData):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no data yet: ingest workouts or daily metrics first"})
	case errors.Is(err, predict.ErrComputation):
		s.log.Error("evaluation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "computation error, safe to retry"})
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, fit.ErrInvalidFile), errors.Is(err, alpha.ErrInvalidCSV):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		s.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// mustUserID reads the {userID} path parameter, writing a 400 when invalid.
func mustUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return min(parsed, 500)
		}
	}
	return def
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty string yields def.
func parseDate(s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// parseTimeRange reads start/end query parameters. Without start, the range
// covers the last defDays days.
func parseTimeRange(r *http.Request, defDays int) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	end = time.Now().UTC()
	if endStr != "" {
		end, err = parseDate(endStr, time.Time{})
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if len(endStr) == len(time.DateOnly) {
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	if startStr == "" {
		return end.AddDate(0, 0, -defDays), end, nil
	}
	start, err = parseDate(startStr, time.Time{})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
