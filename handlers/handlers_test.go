package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendSmartAPI/internal/achievement"
	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/internal/clock"
	"spendSmartAPI/internal/leaderboard"
	"spendSmartAPI/internal/repository"
	"spendSmartAPI/internal/streak"
	"spendSmartAPI/internal/user"
	"spendSmartAPI/middleware"
	"spendSmartAPI/services"
)

const (
	testClerkID     = "user_test"
	testClerkHeader = "X-Test-Clerk-Id"
)

var webhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("test-webhook-secret"))

type fakeRanking struct {
	board *leaderboard.Leaderboard
	pos   *leaderboard.LeaderboardEntry
	err   error
}

func (f *fakeRanking) Top(ctx context.Context, limit int64) (*leaderboard.Leaderboard, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.board, nil
}

func (f *fakeRanking) Position(ctx context.Context, userID uuid.UUID) (*leaderboard.LeaderboardEntry, error) {
	return f.pos, nil
}

type testServer struct {
	router  *mux.Router
	store   *repository.MemoryStore
	clock   *clock.Fake
	users   *services.UserService
	engine  *services.GamificationService
	ranking *fakeRanking
	tmpl    challenge.Template
	user    *user.User
}

// fakeAuth stands in for Clerk: the test header carries the Clerk user ID.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(testClerkHeader); id != "" {
			r = r.WithContext(middleware.WithClerkID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store := repository.NewMemoryStore()
	clk := clock.NewFake(time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	users := services.NewUserService(store, clk)
	engine := services.NewGamificationService(store, clk, time.UTC)
	require.NoError(t, engine.SeedDefaults(ctx))

	tmpl := challenge.Template{ID: uuid.New(), Title: "No impulse buys", DurationHours: 48, IsActive: true}
	require.NoError(t, store.CreateTemplate(ctx, &tmpl))

	u, err := users.CreateUser(ctx, &user.CreateUserRequest{ClerkID: testClerkID, Email: "t@example.com", Username: "tester"})
	require.NoError(t, err)

	ranking := &fakeRanking{board: &leaderboard.Leaderboard{Entries: []*leaderboard.LeaderboardEntry{}}}

	challengeHandler := NewChallengeHandler(engine, users)
	expenseHandler := NewExpenseHandler(engine, users)
	streakHandler := NewStreakHandler(engine, users)
	badgeHandler := NewBadgeHandler(engine, users)
	leaderboardHandler := NewLeaderboardHandler(ranking, users)
	userHandler := NewUserHandler(users)
	webhookHandler := NewWebhookHandler(users, engine, webhookSecret)

	r := mux.NewRouter()
	r.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(fakeAuth)
	api.HandleFunc("/challenges", challengeHandler.ListChallenges).Methods("GET")
	api.HandleFunc("/challenges/start", challengeHandler.StartChallenge).Methods("POST")
	api.HandleFunc("/challenges/active", challengeHandler.GetActiveChallenge).Methods("GET")
	api.HandleFunc("/challenges/history", challengeHandler.GetChallengeHistory).Methods("GET")
	api.HandleFunc("/challenges/{id}/end", challengeHandler.EndChallenge).Methods("POST")
	api.HandleFunc("/expenses", expenseHandler.AddExpense).Methods("POST")
	api.HandleFunc("/expenses", expenseHandler.ListExpenses).Methods("GET")
	api.HandleFunc("/expenses/{id}", expenseHandler.UpdateExpense).Methods("PUT")
	api.HandleFunc("/expenses/{id}", expenseHandler.DeleteExpense).Methods("DELETE")
	api.HandleFunc("/streaks", streakHandler.GetStreaks).Methods("GET")
	api.HandleFunc("/streaks/login", streakHandler.CheckIn).Methods("POST")
	api.HandleFunc("/badges", badgeHandler.GetBadges).Methods("GET")
	api.HandleFunc("/badges/mine", badgeHandler.GetMyBadges).Methods("GET")
	api.HandleFunc("/leaderboard/streaks", leaderboardHandler.GetStreakLeaderboard).Methods("GET")
	api.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	api.HandleFunc("/user", userHandler.UpdateProfile).Methods("PUT")
	api.HandleFunc("/user", userHandler.DeleteAccount).Methods("DELETE")
	api.HandleFunc("/user/device-token", userHandler.RegisterDevice).Methods("POST")

	return &testServer{router: r, store: store, clock: clk, users: users, engine: engine, ranking: ranking, tmpl: tmpl, user: u}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.doAs(t, testClerkID, method, path, body)
}

func (s *testServer) doAs(t *testing.T, clerkID, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if clerkID != "" {
		req.Header.Set(testClerkHeader, clerkID)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestChallengeLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/v1/challenges", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]challenge.Template](t, rr), 1)

	rr = s.do(t, http.MethodPost, "/api/v1/challenges/start", map[string]string{"challengeId": s.tmpl.ID.String()})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	inst := decode[challenge.Instance](t, rr)
	assert.Equal(t, challenge.StatusActive, inst.Status)
	assert.Equal(t, 0, inst.Progress)

	rr = s.do(t, http.MethodPost, "/api/v1/challenges/start", map[string]string{"challengeId": s.tmpl.ID.String()})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/challenges/active", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	active := decode[challenge.ActiveChallengeResponse](t, rr)
	require.NotNil(t, active.ActiveChallenge)
	assert.Equal(t, inst.ID, active.ActiveChallenge.ID)
	assert.Equal(t, int64(48*3600), active.TimeRemainingSeconds)

	rr = s.do(t, http.MethodPost, "/api/v1/challenges/"+inst.ID.String()+"/end", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, challenge.StatusAbandoned, decode[challenge.Instance](t, rr).Status)

	rr = s.do(t, http.MethodPost, "/api/v1/challenges/"+inst.ID.String()+"/end", map[string]string{"reason": "abandoned"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/challenges/history", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]challenge.Instance](t, rr), 1)
}

func TestChallengeRequestValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"malformed json", http.MethodPost, "/api/v1/challenges/start", "{", http.StatusBadRequest},
		{"missing challenge id", http.MethodPost, "/api/v1/challenges/start", map[string]string{}, http.StatusBadRequest},
		{"non uuid challenge id", http.MethodPost, "/api/v1/challenges/start", map[string]string{"challengeId": "nope"}, http.StatusBadRequest},
		{"unknown template", http.MethodPost, "/api/v1/challenges/start", map[string]string{"challengeId": uuid.NewString()}, http.StatusNotFound},
		{"bad instance id", http.MethodPost, "/api/v1/challenges/xyz/end", nil, http.StatusBadRequest},
		{"bad end reason", http.MethodPost, "/api/v1/challenges/" + uuid.NewString() + "/end", map[string]string{"reason": "completed"}, http.StatusBadRequest},
		{"no active instance", http.MethodPost, "/api/v1/challenges/" + uuid.NewString() + "/end", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rr := s.doAs(t, "", http.MethodGet, "/api/v1/streaks", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.doAs(t, "user_unknown", http.MethodGet, "/api/v1/streaks", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecordExpenseOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/v1/challenges/start", map[string]string{"challengeId": s.tmpl.ID.String()})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"amount": 12.5, "mood": " Happy ", "category": "Food"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[services.EventResult](t, rr)
	assert.Equal(t, "happy", string(res.Expense.Mood))
	assert.Equal(t, "food", res.Expense.Category)
	require.NotNil(t, res.UpdatedChallenge)
	assert.Equal(t, 10, res.UpdatedChallenge.Progress)
	assert.NotNil(t, res.NewBadges)

	rr = s.do(t, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"amount": -3})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	future := s.clock.Now().Add(72 * time.Hour)
	rr = s.do(t, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"amount": 3, "date": future})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for i := 0; i < 3; i++ {
		rr = s.do(t, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"amount": 1, "mood": "sad"})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/expenses?limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]json.RawMessage](t, rr), 2)

	rr = s.do(t, http.MethodGet, "/api/v1/expenses", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]json.RawMessage](t, rr), 4)

	rr = s.do(t, http.MethodGet, "/api/v1/expenses?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEditExpenseOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"amount": 12.5, "mood": "happy", "category": "food"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[services.EventResult](t, rr)
	path := "/api/v1/expenses/" + created.Expense.ID.String()

	rr = s.do(t, http.MethodPut, path, map[string]interface{}{"amount": 20, "mood": "Stressed", "category": "Rent"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[map[string]interface{}](t, rr)
	assert.Equal(t, 20.0, updated["amount"])
	assert.Equal(t, "stressed", updated["mood"])
	assert.Equal(t, "rent", updated["category"])

	rr = s.do(t, http.MethodPut, path, map[string]interface{}{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/v1/expenses/not-a-uuid", map[string]interface{}{"amount": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	_, err := s.users.CreateUser(context.Background(), &user.CreateUserRequest{ClerkID: "user_other", Username: "other"})
	require.NoError(t, err)
	rr = s.doAs(t, "user_other", http.MethodPut, path, map[string]interface{}{"amount": 1})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = s.doAs(t, "user_other", http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/expenses", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]json.RawMessage](t, rr))
}

func TestStreaksOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/v1/streaks", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	streaks := decode[[]streak.Streak](t, rr)
	require.Len(t, streaks, 2)
	for _, st := range streaks {
		assert.Zero(t, st.CurrentStreak)
		assert.Nil(t, st.LastActivityDate)
	}

	rr = s.do(t, http.MethodPost, "/api/v1/streaks/login", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	login := decode[services.LoginResult](t, rr)
	assert.Equal(t, 1, login.Streak.CurrentStreak)

	s.clock.Advance(24 * time.Hour)
	rr = s.do(t, http.MethodPost, "/api/v1/streaks/login", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[services.LoginResult](t, rr).Streak.CurrentStreak)
}

func TestBadgesOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/v1/badges", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	catalog := decode[[]achievement.AchievementWithStatus](t, rr)
	require.Len(t, catalog, len(achievement.Defaults()))
	for _, b := range catalog {
		assert.False(t, b.Unlocked, b.Name)
	}

	rr = s.do(t, http.MethodPost, "/api/v1/expenses", map[string]interface{}{"amount": 20})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/v1/badges/mine", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	mine := decode[[]achievement.UserAchievement](t, rr)
	require.Len(t, mine, 1)

	rr = s.do(t, http.MethodGet, "/api/v1/badges", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	unlocked := 0
	for _, b := range decode[[]achievement.AchievementWithStatus](t, rr) {
		if b.Unlocked {
			unlocked++
			assert.Equal(t, "Budget Keeper", b.Name)
		}
	}
	assert.Equal(t, 1, unlocked)
}

func TestLeaderboardOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.ranking.board = &leaderboard.Leaderboard{
		Entries:    []*leaderboard.LeaderboardEntry{{UserID: uuid.New(), Username: "ace", LongestStreak: 9, Rank: 1}},
		TotalUsers: 2,
	}
	s.ranking.pos = &leaderboard.LeaderboardEntry{UserID: s.user.ID, Username: "tester", LongestStreak: 2, Rank: 2}

	rr := s.do(t, http.MethodGet, "/api/v1/leaderboard/streaks?limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	board := decode[leaderboard.Leaderboard](t, rr)
	assert.Len(t, board.Entries, 1)
	require.NotNil(t, board.UserPosition)
	assert.Equal(t, 2, board.UserPosition.Rank)

	rr = s.do(t, http.MethodGet, "/api/v1/leaderboard/streaks?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.ranking.err = errors.New("redis down")
	rr = s.do(t, http.MethodGet, "/api/v1/leaderboard/streaks", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestUserProfileOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/v1/user", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	u := decode[user.User](t, rr)
	assert.Equal(t, float64(user.DefaultMonthlyBudget), u.MonthlyBudget)

	rr = s.do(t, http.MethodPut, "/api/v1/user", map[string]interface{}{"monthlyBudget": -5})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/v1/user", map[string]interface{}{"currency": "DOGE"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPut, "/api/v1/user", map[string]interface{}{"monthlyBudget": 2500, "currency": "EUR"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	u = decode[user.User](t, rr)
	assert.Equal(t, 2500.0, u.MonthlyBudget)
	assert.Equal(t, "EUR", u.Currency)

	rr = s.do(t, http.MethodPost, "/api/v1/user/device-token", map[string]string{"token": "fcm-1", "platform": "pager"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/user/device-token", map[string]string{"token": "fcm-1", "platform": "android"})
	require.Equal(t, http.StatusOK, rr.Code)
	stored, err := s.store.GetUser(context.Background(), s.user.ID)
	require.NoError(t, err)
	require.Len(t, stored.DeviceTokens, 1)

	rr = s.do(t, http.MethodDelete, "/api/v1/user", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodGet, "/api/v1/user", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func signedWebhook(t *testing.T, eventType string, data interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{"type": eventType, "object": "event", "data": json.RawMessage(raw)})
	require.NoError(t, err)

	key, err := base64.StdEncoding.DecodeString(webhookSecret[len("whsec_"):])
	require.NoError(t, err)
	id := "msg_" + uuid.NewString()
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(body))
	req.Header.Set("svix-id", id)
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", "v1,bogus v1,"+signWebhook(key, id, ts, body))
	return req
}

func TestClerkWebhookProvisionsUsers(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created := map[string]interface{}{
		"id":                       "user_new",
		"username":                 "newbie",
		"first_name":               "New",
		"primary_email_address_id": "em_2",
		"email_addresses": []map[string]interface{}{
			{"id": "em_1", "email_address": "old@example.com"},
			{"id": "em_2", "email_address": "new@example.com", "verification": map[string]string{"status": "verified"}},
		},
	}

	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, signedWebhook(t, "user.created", created))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	u, err := s.users.GetUserByClerkID(ctx, "user_new")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.True(t, u.EmailVerified)

	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, signedWebhook(t, "user.updated", map[string]interface{}{"id": "user_new", "username": "renamed"}))
	require.Equal(t, http.StatusOK, rr.Code)
	u, err = s.users.GetUserByClerkID(ctx, "user_new")
	require.NoError(t, err)
	assert.Equal(t, "renamed", u.Username)

	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, signedWebhook(t, "session.created", map[string]string{"id": "sess_1", "user_id": "user_new", "status": "active"}))
	require.Equal(t, http.StatusOK, rr.Code)
	streaks, err := s.engine.GetStreak(ctx, u.ID)
	require.NoError(t, err)
	for _, st := range streaks {
		if st.Kind == streak.ActivityLogin {
			assert.Equal(t, 1, st.CurrentStreak)
		}
	}

	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, signedWebhook(t, "user.deleted", map[string]string{"id": "user_new"}))
	require.Equal(t, http.StatusOK, rr.Code)
	_, err = s.users.GetUserByClerkID(ctx, "user_new")
	assert.ErrorIs(t, err, services.ErrUserNotFound)

	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, signedWebhook(t, "user.deleted", map[string]string{"id": "user_new"}))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, signedWebhook(t, "email.created", map[string]string{"id": "em_9"}))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestClerkWebhookRejectsBadSignatures(t *testing.T) {
	s := newTestServer(t)

	tampered := signedWebhook(t, "user.created", map[string]string{"id": "user_evil"})
	tampered.Header.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString([]byte("forged")))
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, tampered)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	stale := signedWebhook(t, "user.created", map[string]string{"id": "user_evil"})
	stale.Header.Set("svix-timestamp", strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10))
	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, stale)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	unsigned := signedWebhook(t, "user.created", map[string]string{"id": "user_evil"})
	unsigned.Header.Del("svix-signature")
	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, unsigned)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	_, err := s.users.GetUserByClerkID(context.Background(), "user_evil")
	assert.ErrorIs(t, err, services.ErrUserNotFound)
}
