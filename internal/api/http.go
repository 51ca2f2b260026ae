package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"route-animator/internal/itinerary"
	"route-animator/internal/playback"
	"route-animator/internal/route"
)

// Controller is the playback surface exposed over HTTP and WebSocket.
type Controller interface {
	Status() playback.Status
	Select(day int) error
	Play(day int) error
	Toggle(ctx context.Context) error
	Pause() error
	Resume() error
	Reset(ctx context.Context) error
	Handle(ctx context.Context, cmd playback.Command) error
}

type HTTPHandler struct {
	ctrl      Controller
	itinerary *itinerary.Itinerary
}

func NewHTTPHandler(ctrl Controller, it *itinerary.Itinerary) *HTTPHandler {
	return &HTTPHandler{ctrl: ctrl, itinerary: it}
}

type DaySummary struct {
	Index     int    `json:"index"`
	Label     string `json:"label"`
	Segments  int    `json:"segments"`
	Locations int    `json:"locations"`
}

type DaysResponse struct {
	Itinerary string       `json:"itinerary"`
	Days      []DaySummary `json:"days"`
	Count     int          `json:"count"`
}

type PlaybackResponse struct {
	playback.Status
	ServerTime time.Time `json:"serverTime"`
}

type dayRequest struct {
	Day *int `json:"day"`
}

func (h *HTTPHandler) ListDays(w http.ResponseWriter, r *http.Request) {
	days := make([]DaySummary, 0, h.itinerary.Len())
	for i, d := range h.itinerary.Days {
		days = append(days, DaySummary{
			Index:     i,
			Label:     h.itinerary.Label(i),
			Segments:  len(d.Segments),
			Locations: len(d.Locations),
		})
	}
	respondJSON(w, http.StatusOK, DaysResponse{Itinerary: h.itinerary.ID, Days: days, Count: len(days)})
}

func (h *HTTPHandler) GetPlayback(w http.ResponseWriter, r *http.Request) {
	h.respondStatus(w, http.StatusOK)
}

func (h *HTTPHandler) Select(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDay(w, r)
	if !ok {
		return
	}
	if req.Day == nil {
		respondError(w, http.StatusBadRequest, "missing day")
		return
	}
	h.apply(w, h.ctrl.Select(*req.Day))
}

func (h *HTTPHandler) Play(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDay(w, r)
	if !ok {
		return
	}
	day := h.ctrl.Status().Selected
	if req.Day != nil {
		day = *req.Day
	}
	h.apply(w, h.ctrl.Play(day))
}

func (h *HTTPHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.apply(w, h.ctrl.Toggle(r.Context()))
}

func (h *HTTPHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.apply(w, h.ctrl.Pause())
}

func (h *HTTPHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.apply(w, h.ctrl.Resume())
}

func (h *HTTPHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.apply(w, h.ctrl.Reset(r.Context()))
}

func (h *HTTPHandler) apply(w http.ResponseWriter, err error) {
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	h.respondStatus(w, http.StatusOK)
}

func (h *HTTPHandler) respondStatus(w http.ResponseWriter, status int) {
	respondJSON(w, status, PlaybackResponse{Status: h.ctrl.Status(), ServerTime: time.Now()})
}

func decodeDay(w http.ResponseWriter, r *http.Request) (dayRequest, bool) {
	var req dayRequest
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return req, false
	}
	return req, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, playback.ErrAlreadyPlaying), errors.Is(err, playback.ErrNotPlaying):
		return http.StatusConflict
	case errors.Is(err, playback.ErrUnknownDay), errors.Is(err, playback.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, route.ErrInvalidCoordinate), errors.Is(err, route.ErrInvalidStep):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
