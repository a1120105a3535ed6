package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/monitor"
)

const (
	defaultReadingLimit = 5
	maxBodyBytes        = 1 << 20
	monthLayout         = "2006-01"
)

// Monitor is the operator surface served under /api.
type Monitor interface {
	ReadinessChecker
	Actor(token string) domain.Actor
	Locations(ctx context.Context) ([]domain.LocationStatus, error)
	ToggleFlag(ctx context.Context, location string, flag domain.Flag, displayed *monitor.SnapshotRef) (domain.LocationStatus, error)
	RecordReading(ctx context.Context, in domain.ReadingInput) (domain.SensorReading, domain.LocationStatus, error)
	Readings(ctx context.Context, limit int) ([]domain.SensorReading, error)
	ClearReadings(ctx context.Context, actor domain.Actor) error
	SubmitReport(ctx context.Context, req monitor.SubmitRequest, actor domain.Actor) (domain.InspectionReport, error)
	Report(ctx context.Context, date string) ([]domain.InspectionReport, error)
	SlotStatuses(ctx context.Context, date string) ([]domain.SlotStatus, error)
	Calendar(ctx context.Context, year int, month time.Month) ([]domain.CalendarDay, error)
	WeeklyForecast(ctx context.Context, force bool) (domain.WeeklyForecast, error)
	LogIncident(ctx context.Context, in domain.IncidentInput, actor domain.Actor) (domain.SensorReading, error)
	Authenticate(passcode string) (monitor.Session, error)
	Logout(token string)
	SetForecastKeys(ctx context.Context, short, mid string, actor domain.Actor) error
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/locations", s.handleLocations)
	mux.HandleFunc("POST /api/locations/{location}/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/readings", s.handleRecordReading)
	mux.HandleFunc("GET /api/readings", s.handleReadings)
	mux.HandleFunc("DELETE /api/readings", s.handleClearReadings)
	mux.HandleFunc("POST /api/reports/{date}/{slot}", s.handleSubmitReport)
	mux.HandleFunc("GET /api/reports/{date}", s.handleReport)
	mux.HandleFunc("GET /api/reports/{date}/slots", s.handleSlotStatuses)
	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("POST /api/incidents", s.handleLogIncident)
	mux.HandleFunc("POST /api/auth", s.handleAuth)
	mux.HandleFunc("DELETE /api/auth", s.handleLogout)
	mux.HandleFunc("PUT /api/settings/forecast-keys", s.handleForecastKeys)
}

// errorBody is the JSON shape of every failed API call.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:   http.StatusBadRequest,
	domain.KindPrecondition: http.StatusPreconditionFailed,
	domain.KindNotFound:     http.StatusNotFound,
	domain.KindConflict:     http.StatusConflict,
	domain.KindForbidden:    http.StatusForbidden,
}

// writeError maps user errors to their status code. Anything else is logged
// and reported as a 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ue, ok := domain.AsUserError(err); ok {
		status, known := kindStatus[ue.Kind]
		if !known {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorBody{Code: string(ue.Kind), Message: ue.Message})
		return
	}
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
}

// actor resolves the bearer token, if any, into the caller's capabilities.
func (s *Server) actor(r *http.Request) domain.Actor {
	return s.monitor.Actor(bearerToken(r))
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	default:
		return domain.Validationf("malformed request body: %v", err)
	}
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.monitor.Locations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

type toggleRequest struct {
	Flag         string `json:"flag"`
	SnapshotDate string `json:"snapshot_date,omitempty"`
	SnapshotSlot string `json:"snapshot_slot,omitempty"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	flag, err := domain.ParseFlag(req.Flag)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var displayed *monitor.SnapshotRef
	if req.SnapshotDate != "" || req.SnapshotSlot != "" {
		slot, err := domain.ParseSlot(req.SnapshotSlot)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		displayed = &monitor.SnapshotRef{Date: req.SnapshotDate, Slot: slot}
	}

	status, err := s.monitor.ToggleFlag(r.Context(), r.PathValue("location"), flag, displayed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type recordResponse struct {
	Reading domain.SensorReading  `json:"reading"`
	Status  domain.LocationStatus `json:"status"`
}

func (s *Server) handleRecordReading(w http.ResponseWriter, r *http.Request) {
	var in domain.ReadingInput
	if err := decode(w, r, &in, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	reading, status, err := s.monitor.RecordReading(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordResponse{Reading: reading, Status: status})
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	readings, err := s.monitor.Readings(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

// parseLimit accepts a non-negative count or "all". Zero means all.
func parseLimit(raw string) (int, error) {
	switch raw {
	case "":
		return defaultReadingLimit, nil
	case "all":
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Validationf("invalid limit %q", raw)
	}
	return n, nil
}

func (s *Server) handleClearReadings(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.ClearReadings(r.Context(), s.actor(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Reporter string `json:"reporter"`
	Confirm  bool   `json:"confirm"`
}

func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	slot, err := domain.ParseSlot(r.PathValue("slot"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body submitRequest
	if err := decode(w, r, &body, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.monitor.SubmitReport(r.Context(), monitor.SubmitRequest{
		Date:     r.PathValue("date"),
		Slot:     slot,
		Reporter: body.Reporter,
		Confirm:  body.Confirm,
	}, s.actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	reports, err := s.monitor.Report(r.Context(), r.PathValue("date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleSlotStatuses(w http.ResponseWriter, r *http.Request) {
	slots, err := s.monitor.SlotStatuses(r.Context(), r.PathValue("date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	month := domain.Now()
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := time.ParseInLocation(monthLayout, raw, domain.Zone())
		if err != nil {
			s.writeError(w, r, domain.Validationf("invalid month %q (want YYYY-MM)", raw))
			return
		}
		month = parsed
	}
	days, err := s.monitor.Calendar(r.Context(), month.Year(), month.Month())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	forecast, err := s.monitor.WeeklyForecast(r.Context(), force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (s *Server) handleLogIncident(w http.ResponseWriter, r *http.Request) {
	var in domain.IncidentInput
	if err := decode(w, r, &in, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	incident, err := s.monitor.LogIncident(r.Context(), in, s.actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, incident)
}

type authRequest struct {
	Passcode string `json:"passcode"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.monitor.Authenticate(req.Passcode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.monitor.Logout(bearerToken(r))
	w.WriteHeader(http.StatusNoContent)
}

type forecastKeysRequest struct {
	ShortKey string `json:"short_key"`
	MidKey   string `json:"mid_key"`
}

func (s *Server) handleForecastKeys(w http.ResponseWriter, r *http.Request) {
	var req forecastKeysRequest
	if err := decode(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.monitor.SetForecastKeys(r.Context(), req.ShortKey, req.MidKey, s.actor(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
