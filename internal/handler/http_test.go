package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boost-marketplace/internal/auth"
	"github.com/boost-marketplace/internal/catalog"
	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/domain"
	"github.com/boost-marketplace/internal/pricing"
	"github.com/boost-marketplace/internal/redis"
	"github.com/boost-marketplace/internal/service"
	"github.com/boost-marketplace/internal/websocket"
)

type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
}

func (m *memProfiles) EnsureProfile(_ context.Context, p domain.Profile) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[p.ID]; ok {
		return &existing, nil
	}
	m.profiles[p.ID] = p
	return &p, nil
}

func (m *memProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &p, nil
}

func (m *memProfiles) ListProfiles(_ context.Context) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memProfiles) UpdateRole(_ context.Context, id string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return domain.ErrProfileNotFound
	}
	p.Role = role
	m.profiles[id] = p
	return nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	server   *httptest.Server
	issuer   *auth.Issuer
	profiles *memProfiles
}

func newTestEnv(t *testing.T, rl config.RateLimitConfig, readiness map[string]Pinger) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	store, err := redis.NewStore(&config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	authCfg := &config.AuthConfig{JWTSecret: "handler-secret", Leeway: time.Second, TokenTTL: time.Hour}
	issuer, err := auth.NewIssuer(authCfg)
	require.NoError(t, err)

	profiles := &memProfiles{profiles: map[string]domain.Profile{
		"booster-1": {ID: "booster-1", Email: "b1@example.com", Role: domain.RoleBooster},
		"booster-2": {ID: "booster-2", Email: "b2@example.com", Role: domain.RoleBooster},
		"admin":     {ID: "admin", Email: "admin@example.com", Role: domain.RoleAdmin},
	}}
	profileSvc := service.NewProfileService(profiles, nil, logger)

	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	cat := catalog.Default()
	engine := pricing.NewEngine(cat)

	if readiness == nil {
		readiness = map[string]Pinger{"redis": store}
	}

	h := NewHandler(Dependencies{
		Orders:      service.NewOrderService(store, cat, engine, hub, logger),
		Tickets:     service.NewTicketService(store, logger),
		Profiles:    profileSvc,
		Preferences: service.NewPreferenceService(store),
		Catalog:     cat,
		Pricing:     engine,
		Hub:         hub,
		Auth:        auth.NewMiddleware(auth.NewVerifier(authCfg), profileSvc, logger),
		Limiter:     NewRateLimiter(&rl, logger),
		Readiness:   readiness,
	}, logger)

	server := httptest.NewServer(h.Router())
	t.Cleanup(server.Close)

	return &testEnv{server: server, issuer: issuer, profiles: profiles}
}

func generousLimits() config.RateLimitConfig {
	return config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, IdleTTL: time.Minute}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.issuer.Issue(userID, userID+"@example.com", "", time.Now())
	require.NoError(t, err)
	return token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func submit(t *testing.T, e *testEnv, userID string) domain.OrderView {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/v1/orders", userID, domain.SubmitOrderRequest{
		Game:        domain.GameValorant,
		CurrentRank: "iron",
		DesiredRank: "silver",
		Budget:      40,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var view domain.OrderView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	status, env := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, env = e.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"redis":"ok"`)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	e := newTestEnv(t, generousLimits(), map[string]Pinger{"postgres": failingPinger{}})

	status, env := e.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, env.Success)
	assert.Contains(t, string(env.Data), `"postgres":"unavailable"`)
}

func TestCatalogRoutes(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	status, env := e.do(t, http.MethodGet, "/api/v1/catalog/games", "", nil)
	require.Equal(t, http.StatusOK, status)
	var games []domain.GameInfo
	require.NoError(t, json.Unmarshal(env.Data, &games))
	assert.NotEmpty(t, games)

	status, env = e.do(t, http.MethodGet, "/api/v1/catalog/games/valorant/ranks", "", nil)
	require.Equal(t, http.StatusOK, status)
	var info domain.GameInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "iron", info.Ranks[0].ID)

	status, env = e.do(t, http.MethodGet, "/api/v1/catalog/games/chess/ranks", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, domain.ErrUnknownGame.Error(), env.Error)

	status, _ = e.do(t, http.MethodGet, "/api/v1/catalog/urgencies", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestQuote(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	tests := []struct {
		name        string
		req         pricing.QuoteRequest
		wantStatus  int
		wantPrice   int64
		submittable bool
	}{
		{"normal", pricing.QuoteRequest{Game: domain.GameValorant, CurrentRank: "iron", DesiredRank: "silver"}, http.StatusOK, 25, true},
		{"express", pricing.QuoteRequest{Game: domain.GameValorant, CurrentRank: "iron", DesiredRank: "silver", Urgency: domain.UrgencyExpress}, http.StatusOK, 50, true},
		{"descending", pricing.QuoteRequest{Game: domain.GameValorant, CurrentRank: "silver", DesiredRank: "iron"}, http.StatusOK, 0, false},
		{"unknown game", pricing.QuoteRequest{Game: "chess", CurrentRank: "a", DesiredRank: "b"}, http.StatusNotFound, 0, false},
		{"unknown urgency", pricing.QuoteRequest{Game: domain.GameValorant, CurrentRank: "iron", DesiredRank: "silver", Urgency: "yesterday"}, http.StatusBadRequest, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := e.do(t, http.MethodPost, "/api/v1/quote", "", tt.req)
			require.Equal(t, tt.wantStatus, status, env.Error)
			if status != http.StatusOK {
				return
			}
			var q pricing.Quote
			require.NoError(t, json.Unmarshal(env.Data, &q))
			assert.Equal(t, tt.wantPrice, q.Price)
			assert.Equal(t, tt.submittable, q.Submittable)
		})
	}
}

func TestOrdersRequireSession(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	status, _ := e.do(t, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/v1/orders", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOrderLifecycle(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	order := submit(t, e, "alice")
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(25), order.Price)
	assert.Equal(t, "Iron", order.CurrentRankName)

	// Another customer cannot see it.
	status, _ := e.do(t, http.MethodGet, "/api/v1/orders/"+order.ID, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Customers cannot accept.
	status, _ = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/accept", "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/accept", "booster-1", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	// A second accept loses.
	status, _ = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/accept", "booster-2", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/complete", "booster-2", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, domain.ErrBoosterMismatch.Error(), env.Error)

	status, env = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/complete", "booster-1", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var done domain.OrderView
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.Equal(t, domain.OrderStatusCompleted, done.Status)
	assert.Equal(t, "booster-1", done.BoosterID)

	status, _ = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestListOrdersIsRoleGated(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	submit(t, e, "alice")
	submit(t, e, "bob")

	count := func(userID, query string) int {
		status, env := e.do(t, http.MethodGet, "/api/v1/orders"+query, userID, nil)
		require.Equal(t, http.StatusOK, status, env.Error)
		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &body))
		return body.Count
	}

	assert.Equal(t, 1, count("alice", ""))
	assert.Equal(t, 2, count("booster-1", ""))
	assert.Equal(t, 2, count("admin", "?status=pending"))
	assert.Equal(t, 0, count("admin", "?status=completed"))

	status, _ := e.do(t, http.MethodGet, "/api/v1/orders?status=lost", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSubmitOrderValidation(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	status, env := e.do(t, http.MethodPost, "/api/v1/orders", "alice", domain.SubmitOrderRequest{
		Game:        domain.GameValorant,
		CurrentRank: "silver",
		DesiredRank: "iron",
		Budget:      10,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, domain.ErrInvalidRankOrder.Error(), env.Error)

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/v1/orders", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token(t, "alice"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTickets(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	status, env := e.do(t, http.MethodPost, "/api/v1/tickets", "alice", domain.CreateTicketRequest{
		Subject:  "Booster went quiet",
		Message:  "No progress for two days",
		Category: "order",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var ticket domain.SupportTicket
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "[ORDER] Booster went quiet", ticket.Subject)

	status, _ = e.do(t, http.MethodGet, "/api/v1/tickets/"+ticket.ID, "booster-1", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = e.do(t, http.MethodPost, "/api/v1/tickets/"+ticket.ID+"/responses", "admin", RespondRequest{Message: "Looking into it"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	require.Len(t, ticket.Responses, 1)
	assert.True(t, ticket.Responses[0].IsAdmin)

	status, _ = e.do(t, http.MethodPut, "/api/v1/tickets/"+ticket.ID+"/status", "alice", StatusRequest{Status: domain.TicketStatusClosed})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = e.do(t, http.MethodPut, "/api/v1/tickets/"+ticket.ID+"/status", "admin", StatusRequest{Status: domain.TicketStatusClosed})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, _ = e.do(t, http.MethodPost, "/api/v1/tickets/"+ticket.ID+"/responses", "alice", RespondRequest{Message: "Any news?"})
	assert.Equal(t, http.StatusConflict, status)
}

func TestMeHistoryAndPreferences(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	status, env := e.do(t, http.MethodGet, "/api/v1/me", "alice", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var me domain.ProfileView
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, domain.RoleUser, me.Role)

	status, _ = e.do(t, http.MethodPost, "/api/v1/me/history", "alice", VisitRequest{Path: "/boosting"})
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = e.do(t, http.MethodPost, "/api/v1/me/history", "alice", VisitRequest{Path: "boosting"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = e.do(t, http.MethodGet, "/api/v1/me/history", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var history []domain.NavigationEntry
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "/boosting", history[0].Path)

	status, env = e.do(t, http.MethodPut, "/api/v1/me/preferences", "alice", map[string]string{"theme": "dark"})
	require.Equal(t, http.StatusOK, status, env.Error)
	var prefs map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &prefs))
	assert.Equal(t, "dark", prefs["theme"])

	// Bob sees none of Alice's state.
	status, env = e.do(t, http.MethodGet, "/api/v1/me/preferences", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	prefs = nil
	require.NoError(t, json.Unmarshal(env.Data, &prefs))
	assert.Empty(t, prefs)
}

func TestAdminRoutes(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	status, _ := e.do(t, http.MethodGet, "/api/v1/admin/profiles", "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env := e.do(t, http.MethodPut, "/api/v1/admin/profiles/alice/role", "admin", RoleRequest{Role: domain.RoleBooster})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = e.do(t, http.MethodGet, "/api/v1/admin/profiles", "admin", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	var body struct {
		Profiles []domain.ProfileView `json:"profiles"`
		Stats    domain.ProfileStats  `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 4, body.Stats.Total)
	assert.Equal(t, 3, body.Stats.Boosters)
	assert.Equal(t, 1, body.Stats.Admins)

	status, _ = e.do(t, http.MethodPut, "/api/v1/admin/profiles/alice/role", "admin", RoleRequest{Role: "owner"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = e.do(t, http.MethodPut, "/api/v1/admin/profiles/ghost/role", "admin", RoleRequest{Role: domain.RoleUser})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRateLimitOnWrites(t *testing.T) {
	e := newTestEnv(t, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, IdleTTL: time.Minute}, nil)

	submit(t, e, "alice")

	status, env := e.do(t, http.MethodPost, "/api/v1/orders", "alice", domain.SubmitOrderRequest{
		Game: domain.GameValorant, CurrentRank: "iron", DesiredRank: "silver", Budget: 40,
	})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, domain.ErrRateLimited.Error(), env.Error)

	// Reads are not throttled.
	status, _ = e.do(t, http.MethodGet, "/api/v1/orders", "alice", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestWebSocketRequiresSession(t *testing.T) {
	e := newTestEnv(t, generousLimits(), nil)

	status, _ := e.do(t, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		want       int
		wantPublic error
	}{
		{domain.ErrUnauthenticated, http.StatusUnauthorized, domain.ErrUnauthenticated},
		{domain.ErrForbidden, http.StatusForbidden, domain.ErrForbidden},
		{fmt.Errorf("accepting order: %w", domain.ErrBoosterMismatch), http.StatusForbidden, domain.ErrBoosterMismatch},
		{fmt.Errorf("loading order: %w", domain.ErrOrderNotFound), http.StatusNotFound, domain.ErrOrderNotFound},
		{domain.ErrUnknownGame, http.StatusNotFound, domain.ErrUnknownGame},
		{domain.ErrOrderConflict, http.StatusConflict, domain.ErrOrderConflict},
		{domain.ErrTicketConflict, http.StatusConflict, domain.ErrTicketConflict},
		{domain.ErrTicketClosed, http.StatusConflict, domain.ErrTicketClosed},
		{domain.ErrInvalidRankOrder, http.StatusBadRequest, domain.ErrInvalidRankOrder},
		{errors.New("connection reset"), http.StatusInternalServerError, domain.ErrInternalError},
	}
	for _, tt := range tests {
		status, public := classify(tt.err)
		assert.Equal(t, tt.want, status, tt.err.Error())
		assert.Equal(t, tt.wantPublic, public, tt.err.Error())
	}

	status, public := classify(fmt.Errorf("creating order: %w", domain.Required("game")))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "game: is required", public.Error())
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(2 * time.Minute)
	rl.getLimiter("b")

	assert.Equal(t, 1, rl.Cleanup())
	assert.Len(t, rl.visitors, 1)
}
