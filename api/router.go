// Package api exposes alert actions, patient views and metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/meditime/db"
	"git.0xdad.com/tblyler/meditime/fire"
	"git.0xdad.com/tblyler/meditime/reminder"
	"git.0xdad.com/tblyler/meditime/status"
)

const maxBodyBytes = 64 << 10

// ActionHandler applies user actions
type ActionHandler interface {
	HandleAction(ctx context.Context, action fire.Action, data []byte) error
}

// PatientViews resolves a patient's doses for today and their intake history
type PatientViews interface {
	ForPatient(ctx context.Context, patientID uuid.UUID) ([]status.Occurrence, error)
	History(ctx context.Context, patientID, medicationID uuid.UUID, limit int) ([]status.HistoryEntry, error)
}

// Handler is the HTTP transport; it holds no logic of its own
type Handler struct {
	actions  ActionHandler
	patients PatientViews
	log      zerolog.Logger
}

// NewHandler creates the HTTP handler
func NewHandler(actions ActionHandler, patients PatientViews, log zerolog.Logger) *Handler {
	return &Handler{
		actions:  actions,
		patients: patients,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// Router with every route registered
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/v1/actions/{action}", h.Action).Methods(http.MethodPost)
	r.HandleFunc("/v1/patients/{patientID}/today", h.Today).Methods(http.MethodGet)
	r.HandleFunc("/v1/patients/{patientID}/history", h.History).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

// OccurrenceView is the JSON shape of one of today's doses
type OccurrenceView struct {
	ID            string    `json:"id"`
	MedicationID  string    `json:"medicationId"`
	Name          string    `json:"name"`
	Dosage        string    `json:"dosage"`
	TimeOfDay     string    `json:"timeOfDay"`
	DisplayTime   string    `json:"displayTime"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Status        string    `json:"status"`
	Frequency     string    `json:"frequency"`
	DateRange     string    `json:"dateRange"`
	Times         string    `json:"times"`
}

// IntakeView is the JSON shape of one recorded intake
type IntakeView struct {
	ID            string     `json:"id"`
	MedicationID  string     `json:"medicationId"`
	Name          string     `json:"name,omitempty"`
	Dosage        string     `json:"dosage,omitempty"`
	ScheduledTime time.Time  `json:"scheduledTime"`
	TakenTime     *time.Time `json:"takenTime,omitempty"`
	Status        string     `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Action handles POST /v1/actions/{action} with a wake-up payload as the body
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	action, err := fire.ParseAction(mux.Vars(r)["action"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}

	err = h.actions.HandleAction(r.Context(), action, data)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, reminder.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Str("action", string(action)).Msg("action failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Today handles GET /v1/patients/{patientID}/today
func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(mux.Vars(r)["patientID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient id")
		return
	}

	occurrences, err := h.patients.ForPatient(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "patient not found")
			return
		}

		h.log.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to resolve today")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]OccurrenceView, 0, len(occurrences))
	for _, o := range occurrences {
		views = append(views, OccurrenceView{
			ID:            o.ID,
			MedicationID:  o.Medication.ID.String(),
			Name:          o.Medication.Name,
			Dosage:        o.Medication.Dosage,
			TimeOfDay:     o.TimeOfDay,
			DisplayTime:   reminder.DisplayTimeOfDay(o.TimeOfDay),
			ScheduledTime: o.ScheduledTime,
			Status:        string(o.Status),
			Frequency:     status.FrequencyText(o.Medication),
			DateRange:     status.DateRangeText(o.Medication),
			Times:         status.TimesText(o.Medication),
		})
	}

	writeJSON(w, http.StatusOK, views)
}

// History handles GET /v1/patients/{patientID}/history, optionally narrowed
// by the medication and limit query parameters
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	patientID, err := uuid.Parse(mux.Vars(r)["patientID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patient id")
		return
	}

	query := r.URL.Query()

	medicationID := uuid.Nil
	if value := query.Get("medication"); value != "" {
		if medicationID, err = uuid.Parse(value); err != nil {
			writeError(w, http.StatusBadRequest, "invalid medication id")
			return
		}
	}

	limit := 0
	if value := query.Get("limit"); value != "" {
		if limit, err = strconv.Atoi(value); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	entries, err := h.patients.History(r.Context(), patientID, medicationID, limit)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "patient not found")
			return
		}

		h.log.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to list history")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]IntakeView, 0, len(entries))
	for _, entry := range entries {
		view := IntakeView{
			ID:            entry.Log.ID.String(),
			MedicationID:  entry.Log.MedicationID.String(),
			ScheduledTime: entry.Log.ScheduledTime,
			TakenTime:     entry.Log.TakenTime,
			Status:        string(entry.Log.Status),
		}

		if entry.Medication != nil {
			view.Name = entry.Medication.Name
			view.Dosage = entry.Medication.Dosage
		}

		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, views)
}

// Serve the handler on addr until ctx is done
func Serve(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("serving http")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
