package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/billbatista/clubledger/eventlogger"
	"github.com/billbatista/clubledger/ledger"
	"github.com/billbatista/clubledger/middleware"
	"github.com/billbatista/clubledger/session"
	"github.com/billbatista/clubledger/user"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
)

type Server struct {
	ledger   *ledger.Service
	users    user.Repository
	sessions session.Repository
	audit    ledger.Auditor
}

func New(service *ledger.Service, users user.Repository, sessions session.Repository, audit ledger.Auditor) *Server {
	return &Server{
		ledger:   service,
		users:    users,
		sessions: sessions,
		audit:    audit,
	}
}

// Routes builds the HTTP API.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.AuthMiddleware(s.sessions))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Post("/user/login", s.login)
	router.Post("/user/logout", s.logout)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/users", s.listUsers)
		r.Get("/users/{userID}/transactions", s.listUserTransactions)

		r.Post("/events", s.createEvent)
		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/", s.getEvent)
			r.Patch("/", s.updateEvent)
			r.Delete("/", s.deleteEvent)
			r.Put("/cost", s.setCost)
			r.Put("/participations/{userID}", s.setParticipation)
			r.Delete("/participations/{userID}", s.deleteParticipation)
			r.Post("/transfers", s.addTransfer)
			r.Delete("/transfers/{transferID}", s.deleteTransfer)
			r.Get("/transactions", s.listEventTransactions)
			r.Post("/rebuild", s.rebuildEvent)
		})
	})

	return router
}

// logEvent queues an audit event tagged with the requesting user and
// client address.
func (s *Server) logEvent(r *http.Request, eventType string, data map[string]string) {
	if s.audit == nil {
		return
	}
	opts := []eventlogger.EventOption{
		eventlogger.WithType(eventType),
		eventlogger.WithData(data),
		eventlogger.WithMetadata("remote_addr", r.RemoteAddr),
	}
	if userID, ok := middleware.GetUserID(r.Context()); ok {
		opts = append(opts, eventlogger.WithMetadata("user_id", strconv.FormatInt(userID, 10)))
	}
	s.audit.Log(eventlogger.NewEvent(opts...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrEventNotFound),
		errors.Is(err, ledger.ErrParticipationNotFound),
		errors.Is(err, ledger.ErrTransferNotFound),
		errors.Is(err, user.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidCurrency),
		errors.Is(err, ledger.ErrNegativeAmount),
		errors.Is(err, ledger.ErrWrongEventType),
		errors.Is(err, ledger.ErrUnknownEventType),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidParticipation),
		errors.Is(err, ledger.ErrMissingCostDetail),
		errors.Is(err, ledger.ErrNaNAmount):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		http.Error(w, "internal server error", status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return errors.Join(errBadRequest, errors.New(msg))
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid " + name)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

// day is a JSON date in YYYY-MM-DD form.
type day struct {
	time.Time
}

func (d *day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}
