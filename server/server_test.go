package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbatista/clubledger/database/dbtest"
	"github.com/billbatista/clubledger/eventlogger"
	"github.com/billbatista/clubledger/ledger"
	"github.com/billbatista/clubledger/session"
	"github.com/billbatista/clubledger/user"
)

type captureAuditor struct {
	mu     sync.Mutex
	events []eventlogger.Event
}

func (c *captureAuditor) Log(e eventlogger.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return true
}

func (c *captureAuditor) last() eventlogger.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

type testServer struct {
	*httptest.Server
	cookie *http.Cookie
	audit  *captureAuditor
	alice  int64
	bob    int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := dbtest.New(t)
	ctx := context.Background()

	users := user.NewRepository(db)
	require.NoError(t, users.EnsureClearingAccounts(ctx, "system", "andeo"))
	alice, err := users.Register(ctx, "alice", "alice@example.com", "secret")
	require.NoError(t, err)
	bob, err := users.Register(ctx, "bob", "bob@example.com", "secret")
	require.NoError(t, err)

	audit := &captureAuditor{}
	srv := New(ledger.NewService(db), users, session.NewRepository(db), audit)
	ts := &testServer{Server: httptest.NewServer(srv.Routes()), audit: audit, alice: alice.ID, bob: bob.ID}
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) login(t *testing.T) {
	t.Helper()
	form := url.Values{"email": {"alice@example.com"}, "password": {"secret"}}
	resp, err := http.PostForm(ts.URL+"/user/login", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			ts.cookie = c
		}
	}
	require.NotNil(t, ts.cookie)
}

// do sends body as JSON and decodes the response into out when it is set.
func (ts *testServer) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("content-type", "application/json")
	if ts.cookie != nil {
		req.AddCookie(ts.cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", nil))
}

func TestRequiresLogin(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/users", "", nil))

	resp, err := http.PostForm(ts.URL+"/user/login", url.Values{"email": {"alice@example.com"}, "password": {"wrong"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.PostForm(ts.URL+"/user/login", url.Values{"email": {"system"}, "password": {""}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "clearing accounts can't log in")
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/users", "", nil))

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/user/logout", "", nil))
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/users", "", nil))
}

type failingSessions struct {
	session.Repository
}

func (failingSessions) GetByToken(context.Context, string) (*session.Session, error) {
	return &session.Session{UserID: 1}, nil
}

func (failingSessions) Delete(context.Context, string) error {
	return errors.New("database is locked")
}

func TestLogout_DeleteFailureStillClearsCookie(t *testing.T) {
	srv := New(nil, nil, failingSessions{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/user/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "token"})
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestLunchFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	var event ledger.Event
	status := ts.do(t, http.MethodPost, "/events",
		`{"type":"LUNCH","date":"2024-03-01","name":"Lunch","cost":{"points_cost":8,"vegetarian_money_factor":0.5}}`, &event)
	require.Equal(t, http.StatusCreated, status)
	require.NotZero(t, event.ID)
	base := "/events/" + itoa(event.ID)

	status = ts.do(t, http.MethodPut, base+"/participations/"+itoa(ts.alice), `{"type":"OMNIVOROUS","points_credited":8}`, nil)
	require.Equal(t, http.StatusOK, status)
	status = ts.do(t, http.MethodPut, base+"/participations/"+itoa(ts.bob), `{"type":"VEGETARIAN","money_credited":30}`, nil)
	require.Equal(t, http.StatusOK, status)

	var users []user.User
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/users", "", &users))
	byName := make(map[string]user.User)
	for _, u := range users {
		byName[u.Username] = u
	}
	assert.InDelta(t, 4, byName["alice"].Points, ledger.Epsilon)
	assert.InDelta(t, -20, byName["alice"].Money, ledger.Epsilon)
	assert.InDelta(t, 20, byName["bob"].Money, ledger.Epsilon)

	var transactions []ledger.Transaction
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"/transactions", "", &transactions))
	assert.Len(t, transactions, 12)

	var history []ledger.Transaction
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/users/"+itoa(ts.bob)+"/transactions?currency=MONEY", "", &history))
	require.NotEmpty(t, history)

	var result ledger.RebuildResult
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/rebuild", "", &result))
	assert.Zero(t, result.UpdateCount())
	last := ts.audit.last()
	assert.Equal(t, "ledger.rebuild_requested", last.Type)
	assert.Equal(t, itoa(event.ID), last.Data["event_id"])
	assert.Equal(t, itoa(ts.alice), last.Metadata["user_id"])
	assert.NotEmpty(t, last.Metadata["remote_addr"])

	var detail ledger.EventDetail
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base, "", &detail))
	assert.Len(t, detail.Participations, 2)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, base, "", nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, base, "", nil))
}

func TestSetParticipation_MoneyFactor(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	var event ledger.Event
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/events", `{"type":"SPECIAL","date":"2024-03-01"}`, &event))
	base := "/events/" + itoa(event.ID) + "/participations/"

	var p ledger.Participation
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, base+itoa(ts.alice), `{"type":"OPT_IN","money_credited":10}`, &p))
	assert.Equal(t, 1.0, p.MoneyFactor, "omitted factor defaults to 1")

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, base+itoa(ts.bob), `{"type":"OPT_IN","money_factor":0}`, &p))
	assert.Equal(t, 0.0, p.MoneyFactor)

	var users []user.User
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/users", "", &users))
	for _, u := range users {
		if u.ID == ts.bob {
			assert.Zero(t, u.Money)
		}
	}

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, base+itoa(ts.bob), `{"type":"OPT_IN","money_factor":-1}`, nil))
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	var lunch ledger.Event
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/events", `{"type":"LUNCH","date":"2024-03-01"}`, &lunch))
	base := "/events/" + itoa(lunch.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown event", http.MethodGet, "/events/999", "", http.StatusNotFound},
		{"bad event id", http.MethodGet, "/events/abc", "", http.StatusBadRequest},
		{"unknown event type", http.MethodPost, "/events", `{"type":"PARTY","date":"2024-03-01"}`, http.StatusBadRequest},
		{"missing date", http.MethodPost, "/events", `{"type":"LABEL"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/events", `{"type":"LABEL","date":"2024-03-01","x":1}`, http.StatusBadRequest},
		{"opt in on lunch", http.MethodPut, base + "/participations/" + itoa(ts.bob), `{"type":"OPT_IN"}`, http.StatusUnprocessableEntity},
		{"transfer on lunch", http.MethodPost, base + "/transfers", `{"sender_id":1,"recipient_id":2,"currency":"MONEY","amount":1}`, http.StatusBadRequest},
		{"missing participation", http.MethodDelete, base + "/participations/" + itoa(ts.bob), "", http.StatusNotFound},
		{"invalid currency", http.MethodGet, "/users/" + itoa(ts.bob) + "/transactions?currency=EUR", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ts.do(t, tt.method, tt.path, tt.body, nil))
		})
	}
}

func TestTransferFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t)

	var event ledger.Event
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/events", `{"type":"TRANSFER","date":"2024-03-01"}`, &event))
	base := "/events/" + itoa(event.ID)

	var transfer ledger.Transfer
	body := `{"sender_id":` + itoa(ts.alice) + `,"recipient_id":` + itoa(ts.bob) + `,"currency":"MONEY","amount":12.5}`
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, base+"/transfers", body, &transfer))

	var transactions []ledger.Transaction
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"/transactions", "", &transactions))
	assert.Len(t, transactions, 2)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, base+"/transfers/"+itoa(transfer.ID), "", nil))
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, base+"/transfers/"+itoa(transfer.ID), "", nil))

	var result ledger.RebuildResult
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPatch, base, `{"name":"settle up","date":"2024-04-01"}`, &result))

	var detail ledger.EventDetail
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base, "", &detail))
	assert.Equal(t, "settle up", detail.Event.Name)
	assert.Empty(t, detail.Transfers)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
