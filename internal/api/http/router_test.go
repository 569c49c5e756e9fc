package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-labs/helpdesk-service/internal/api/http/handlers"
	"github.com/helpdesk-labs/helpdesk-service/internal/auth"
	"github.com/helpdesk-labs/helpdesk-service/internal/clock"
	"github.com/helpdesk-labs/helpdesk-service/internal/config"
	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
	"github.com/helpdesk-labs/helpdesk-service/internal/events"
	"github.com/helpdesk-labs/helpdesk-service/internal/idempotency"
	"github.com/helpdesk-labs/helpdesk-service/internal/observability"
	"github.com/helpdesk-labs/helpdesk-service/internal/repository"
	"github.com/helpdesk-labs/helpdesk-service/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	clock  *clock.Fake
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repository.NewMemoryTicketRepository(),
		Guard:      idempotency.NewGuard(idempotency.NewMemoryStore(), clk, idempotency.DefaultRetention, nil),
		Dispatcher: events.NewInMemoryDispatcher(),
		Clock:      clk,
		Metrics:    metrics,
	})
	tokens := auth.NewTokenManager("test-secret", 5)

	app := NewServer(ServerConfig{
		Name:           "helpdesk-test",
		RequestTimeout: 5 * time.Second,
		Metrics:        metrics,
		Routes: RouteConfig{
			Health:         handlers.NewHealthHandler("helpdesk-test", "test", nil, nil, clk),
			Meta:           handlers.NewMetaHandler("helpdesk-test", "test"),
			Tickets:        handlers.NewTicketsHandler(tickets),
			AuthMiddleware: auth.NewAuthMiddleware(tokens),
			RateLimit:      config.RateLimitConfig{Max: rateLimit, Window: time.Minute},
			Gatherer:       reg,
		},
	})
	return &testServer{app: app, tokens: tokens, clock: clk}
}

type call struct {
	method  string
	path    string
	body    string
	actor   *domain.Actor
	headers map[string]string
}

type result struct {
	status int
	header func(string) string
	body   map[string]any
	raw    []byte
}

func (s *testServer) do(t *testing.T, c call) result {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if c.actor != nil {
		token, _, err := s.tokens.GenerateToken(*c.actor)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := result{status: resp.StatusCode, header: resp.Header.Get, raw: raw}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(raw, &out.body))
	}
	return out
}

func errorCode(r result) string {
	errBody, _ := r.body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

var (
	requester = &domain.Actor{ID: "user-1", Role: domain.RoleUser}
	stranger  = &domain.Actor{ID: "user-2", Role: domain.RoleUser}
	agent     = &domain.Actor{ID: "agent-1", Role: domain.RoleAgent}
)

const createBody = `{"title":"Laptop will not boot","description":"Black screen","priority":"high","category":"hardware"}`

func (s *testServer) createTicket(t *testing.T, key string) map[string]any {
	t.Helper()
	res := s.do(t, call{
		method:  fiber.MethodPost,
		path:    "/api/tickets",
		body:    createBody,
		actor:   requester,
		headers: map[string]string{"Idempotency-Key": key},
	})
	require.Equal(t, fiber.StatusCreated, res.status, string(res.raw))
	return res.body["ticket"].(map[string]any)
}

func TestTicketsRequireAuthentication(t *testing.T) {
	s := newTestServer(t, 100)
	res := s.do(t, call{method: fiber.MethodGet, path: "/api/tickets"})
	assert.Equal(t, fiber.StatusUnauthorized, res.status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(res))
}

func TestCreateTicketRequiresIdempotencyKey(t *testing.T) {
	s := newTestServer(t, 100)
	res := s.do(t, call{method: fiber.MethodPost, path: "/api/tickets", body: createBody, actor: requester})
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "IDEMPOTENCY_KEY_REQUIRED", errorCode(res))
}

func TestCreateTicketReplay(t *testing.T) {
	s := newTestServer(t, 100)
	req := call{
		method:  fiber.MethodPost,
		path:    "/api/tickets",
		body:    createBody,
		actor:   requester,
		headers: map[string]string{"Idempotency-Key": "abc"},
	}

	first := s.do(t, req)
	require.Equal(t, fiber.StatusCreated, first.status)
	assert.Equal(t, "Ticket created successfully", first.body["message"])
	assert.Empty(t, first.header("Idempotent-Replayed"))

	ticket := first.body["ticket"].(map[string]any)
	assert.Equal(t, "open", ticket["status"])
	assert.Equal(t, float64(0), ticket["version"])
	assert.Equal(t, "2024-03-02T09:00:00Z", ticket["sla_deadline"])
	assert.Equal(t, false, ticket["sla_breached"])

	second := s.do(t, req)
	require.Equal(t, fiber.StatusCreated, second.status)
	assert.Equal(t, "true", second.header("Idempotent-Replayed"))
	assert.JSONEq(t, string(first.raw), string(second.raw))

	list := s.do(t, call{method: fiber.MethodGet, path: "/api/tickets", actor: agent})
	assert.Equal(t, float64(1), list.body["total"])
}

func TestCreateTicketValidationDetails(t *testing.T) {
	s := newTestServer(t, 100)
	res := s.do(t, call{
		method:  fiber.MethodPost,
		path:    "/api/tickets",
		body:    `{"title":"","description":"x","priority":"whenever","category":"hardware"}`,
		actor:   requester,
		headers: map[string]string{"Idempotency-Key": "v-1"},
	})
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(res))
	details := res.body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "title")
	assert.Contains(t, details, "priority")
}

func TestGetTicketAccessAndNotFound(t *testing.T) {
	s := newTestServer(t, 100)
	ticket := s.createTicket(t, "k-1")
	path := "/api/tickets/" + ticket["id"].(string)

	res := s.do(t, call{method: fiber.MethodGet, path: path, actor: stranger})
	assert.Equal(t, fiber.StatusForbidden, res.status)
	assert.Equal(t, "ACCESS_DENIED", errorCode(res))

	res = s.do(t, call{method: fiber.MethodGet, path: "/api/tickets/does-not-exist", actor: agent})
	assert.Equal(t, fiber.StatusNotFound, res.status)
	assert.Equal(t, "TICKET_NOT_FOUND", errorCode(res))

	res = s.do(t, call{method: fiber.MethodGet, path: path, actor: requester})
	assert.Equal(t, fiber.StatusOK, res.status)
	assert.NotContains(t, res.body, "message")
}

func TestUpdateTicketStaleVersion(t *testing.T) {
	s := newTestServer(t, 100)
	ticket := s.createTicket(t, "k-1")
	path := "/api/tickets/" + ticket["id"].(string)

	res := s.do(t, call{method: fiber.MethodPatch, path: path, actor: agent, body: `{"assignee":"agent-1","version":0}`})
	require.Equal(t, fiber.StatusOK, res.status, string(res.raw))
	assert.Equal(t, "Ticket updated successfully", res.body["message"])
	updated := res.body["ticket"].(map[string]any)
	assert.Equal(t, float64(1), updated["version"])
	assert.Equal(t, "agent-1", updated["assignee_id"])

	res = s.do(t, call{method: fiber.MethodPatch, path: path, actor: requester, body: `{"priority":"urgent","version":0}`})
	assert.Equal(t, fiber.StatusConflict, res.status)
	assert.Equal(t, "STALE_DATA", errorCode(res))
}

func TestUpdateTicketInvalidStatus(t *testing.T) {
	s := newTestServer(t, 100)
	ticket := s.createTicket(t, "k-1")
	path := "/api/tickets/" + ticket["id"].(string)

	res := s.do(t, call{method: fiber.MethodPatch, path: path, actor: agent, body: `{"status":"closed"}`})
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "INVALID_STATUS", errorCode(res))

	res = s.do(t, call{method: fiber.MethodPatch, path: path, actor: agent, body: `{}`})
	assert.Equal(t, "VALIDATION_ERROR", errorCode(res))
}

func TestAddCommentVisibility(t *testing.T) {
	s := newTestServer(t, 100)
	ticket := s.createTicket(t, "k-1")
	path := "/api/tickets/" + ticket["id"].(string)

	res := s.do(t, call{method: fiber.MethodPost, path: path + "/comments", actor: agent, body: `{"content":"check RAM","isInternal":true}`})
	require.Equal(t, fiber.StatusCreated, res.status, string(res.raw))
	assert.Equal(t, "Comment added successfully", res.body["message"])
	assert.Equal(t, true, res.body["comment"].(map[string]any)["is_internal"])

	res = s.do(t, call{method: fiber.MethodPost, path: path + "/comments", actor: requester, body: `{"content":"sneaky","isInternal":true}`})
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = s.do(t, call{method: fiber.MethodGet, path: path, actor: requester})
	require.Equal(t, fiber.StatusOK, res.status)
	got := res.body["ticket"].(map[string]any)
	assert.Empty(t, got["comments"])
	assert.Equal(t, float64(1), got["version"])
}

func TestListTicketsQuery(t *testing.T) {
	s := newTestServer(t, 100)
	s.createTicket(t, "k-1")
	s.createTicket(t, "k-2")

	res := s.do(t, call{method: fiber.MethodGet, path: "/api/tickets?limit=1", actor: agent})
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, float64(2), res.body["total"])
	assert.Equal(t, true, res.body["has_more"])
	assert.Equal(t, float64(1), res.body["next_offset"])
	assert.Len(t, res.body["items"], 1)

	res = s.do(t, call{method: fiber.MethodGet, path: "/api/tickets", actor: stranger})
	assert.Equal(t, float64(0), res.body["total"])
	assert.Nil(t, res.body["next_offset"])

	res = s.do(t, call{method: fiber.MethodGet, path: "/api/tickets?status=done", actor: agent})
	assert.Equal(t, "INVALID_STATUS", errorCode(res))

	res = s.do(t, call{method: fiber.MethodGet, path: "/api/tickets?priority=asap", actor: agent})
	assert.Equal(t, "VALIDATION_ERROR", errorCode(res))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	for i := 0; i < 2; i++ {
		res := s.do(t, call{method: fiber.MethodGet, path: "/api/health"})
		require.Equal(t, fiber.StatusOK, res.status)
	}
	res := s.do(t, call{method: fiber.MethodGet, path: "/api/health"})
	assert.Equal(t, fiber.StatusTooManyRequests, res.status)
	assert.Equal(t, "RATE_LIMIT", errorCode(res))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, 100)
	res := s.do(t, call{method: fiber.MethodGet, path: "/api/nope"})
	assert.Equal(t, fiber.StatusNotFound, res.status)
	assert.Equal(t, "NOT_FOUND", errorCode(res))
}

func TestServiceEndpoints(t *testing.T) {
	s := newTestServer(t, 100)

	res := s.do(t, call{method: fiber.MethodGet, path: "/api/health"})
	assert.Equal(t, "OK", res.body["status"])
	assert.Equal(t, "2024-03-01T09:00:00Z", res.body["timestamp"])

	res = s.do(t, call{method: fiber.MethodGet, path: "/api/_meta"})
	assert.Equal(t, "helpdesk-test", res.body["name"])
	assert.Len(t, res.body["endpoints"], len(handlers.Endpoints))

	res = s.do(t, call{method: fiber.MethodGet, path: "/health/ready"})
	assert.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, "ready", res.body["status"])

	s.do(t, call{method: fiber.MethodGet, path: "/api/tickets"})
	res = s.do(t, call{method: fiber.MethodGet, path: "/metrics"})
	assert.Equal(t, fiber.StatusOK, res.status)
	assert.Contains(t, string(res.raw), "http_requests_total")
}
