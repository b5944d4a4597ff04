package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/billbatista/clubledger/ledger"
	"github.com/billbatista/clubledger/session"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		writeError(w, err)
		return
	}
	if u == nil || u.PasswordHash == "" || s.users.VerifyPassword(u.PasswordHash, password) != nil {
		http.Error(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	sess, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.logEvent(r, "user.logged_in", map[string]string{
		"user_id":    strconv.FormatInt(u.ID, 10),
		"session_id": sess.ID.String(),
	})

	writeJSON(w, http.StatusOK, u)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if err := s.sessions.Delete(r.Context(), cookie.Value); err != nil {
			slog.Warn("failed to delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:   session.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) listUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	currency := ledger.Currency(r.URL.Query().Get("currency"))
	if currency == "" {
		currency = ledger.Points
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	transactions, err := s.ledger.ListUserTransactions(r.Context(), userID, currency, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

type createEventRequest struct {
	Type ledger.EventType   `json:"type"`
	Date day                `json:"date"`
	Name string             `json:"name"`
	Cost *ledger.CostDetail `json:"cost,omitempty"`
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Date.IsZero() {
		writeError(w, badRequest("date is required"))
		return
	}

	event, err := s.ledger.CreateEvent(r.Context(), req.Type, req.Date.Time, req.Name, req.Cost)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := s.ledger.GetEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type updateEventRequest struct {
	Name *string `json:"name,omitempty"`
	Date *day    `json:"date,omitempty"`
}

func (s *Server) updateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateEventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var date *time.Time
	if req.Date != nil {
		date = &req.Date.Time
	}
	result, err := s.ledger.UpdateEvent(r.Context(), eventID, req.Name, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) deleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.ledger.DeleteEvent(r.Context(), eventID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setCost(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}

	var cost ledger.CostDetail
	if err := decode(r, &cost); err != nil {
		writeError(w, err)
		return
	}
	cost.EventID = eventID

	result, err := s.ledger.SetCostDetail(r.Context(), cost)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type participationRequest struct {
	Type           ledger.ParticipationType `json:"type"`
	PointsCredited float64                  `json:"points_credited"`
	MoneyCredited  float64                  `json:"money_credited"`
	MoneyFactor    *float64                 `json:"money_factor,omitempty"`
}

func (s *Server) setParticipation(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := idParam(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req participationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, _, err := s.ledger.SetParticipation(r.Context(), ledger.ParticipationInput{
		EventID:        eventID,
		UserID:         userID,
		Type:           req.Type,
		PointsCredited: req.PointsCredited,
		MoneyCredited:  req.MoneyCredited,
		MoneyFactor:    req.MoneyFactor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteParticipation(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := idParam(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.ledger.DeleteParticipation(r.Context(), eventID, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transferRequest struct {
	SenderID    int64           `json:"sender_id"`
	RecipientID int64           `json:"recipient_id"`
	Currency    ledger.Currency `json:"currency"`
	Amount      float64         `json:"amount"`
}

func (s *Server) addTransfer(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req transferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	t, _, err := s.ledger.AddTransfer(r.Context(), ledger.Transfer{
		EventID:     eventID,
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Currency:    req.Currency,
		Amount:      req.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) deleteTransfer(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}
	transferID, err := idParam(r, "transferID")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.ledger.DeleteTransfer(r.Context(), eventID, transferID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listEventTransactions(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}

	transactions, err := s.ledger.ListEventTransactions(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (s *Server) rebuildEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := idParam(r, "eventID")
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.ledger.RebuildEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	s.logEvent(r, "ledger.rebuild_requested", map[string]string{
		"event_id": strconv.FormatInt(eventID, 10),
	})
	writeJSON(w, http.StatusOK, result)
}
