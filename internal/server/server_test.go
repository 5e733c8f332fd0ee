package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/papertrade/internal/cache/memory"
	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/notify"
	"github.com/alanyoungcy/papertrade/internal/portfolio"
	"github.com/alanyoungcy/papertrade/internal/server"
	"github.com/alanyoungcy/papertrade/internal/server/handler"
	"github.com/alanyoungcy/papertrade/internal/service"
)

const testKey = "secret"

type memJournal struct {
	orders []domain.Order
}

func (j *memJournal) Append(_ context.Context, o domain.Order) error {
	j.orders = append(j.orders, o)
	return nil
}

func (j *memJournal) List(_ context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(j.orders))
	for i := len(j.orders) - 1; i >= 0; i-- {
		out = append(out, j.orders[i])
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

type APITestSuite struct {
	suite.Suite
	svc     *service.SessionService
	handler http.Handler
	journal *memJournal
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := memory.NewBus()
	notifier := notify.NewNotifier(nil, nil, bus, logger)
	s.journal = &memJournal{}

	s.svc = service.NewSessionService(
		portfolio.NewBook(portfolio.Options{}),
		memory.NewStateStore(), bus, notifier, "USD", logger,
	).WithJournal(s.journal)
	s.svc.SetQuotes(context.Background(), []domain.Quote{
		{Symbol: "AAPL", Price: decimal.NewFromInt(150)},
		{Symbol: "GOOGL", Price: decimal.NewFromInt(2800)},
		{Symbol: "AMZN", Price: decimal.NewFromInt(3300)},
		{Symbol: "MSFT", Price: decimal.NewFromInt(300)},
		{Symbol: "TSLA", Price: decimal.NewFromInt(250)},
	})

	s.handler = server.NewHandler(
		server.Config{APIKey: testKey, CORSOrigins: []string{"*"}},
		server.Handlers{
			Health:  handler.NewHealthHandler("api", time.Now()),
			Session: handler.NewSessionHandler(s.svc, logger),
			History: handler.NewHistoryHandler(s.journal, nil, notifier, logger),
		},
		nil, nil, logger,
	)
}

func (s *APITestSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *APITestSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *APITestSuite) TestHealthIsOpen() {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	s.Equal(http.StatusOK, rec.Code)
	var body map[string]any
	s.decode(rec, &body)
	s.Equal("ok", body["status"])
	s.Equal("api", body["mode"])
}

func (s *APITestSuite) TestRequiresAuth() {
	req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *APITestSuite) TestQuotes() {
	rec := s.do(http.MethodGet, "/api/quotes", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Stocks []domain.Quote `json:"stocks"`
	}
	s.decode(rec, &body)
	s.Len(body.Stocks, 5)
}

func (s *APITestSuite) TestPlaceOrderAndPortfolio() {
	rec := s.do(http.MethodPost, "/api/orders", `{"symbol":"aapl","action":"buy","quantity":10}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var res domain.OrderResult
	s.decode(rec, &res)
	s.True(res.Success)
	s.Require().NotNil(res.Order)
	s.Equal("AAPL", res.Order.Symbol)

	rec = s.do(http.MethodGet, "/api/portfolio", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var p domain.Portfolio
	s.decode(rec, &p)
	s.True(p.Cash.Equal(decimal.NewFromInt(98500)), p.Cash.String())
	s.Equal(int64(10), p.Holdings["AAPL"])
	s.Equal(1, p.OrderCount)

	rec = s.do(http.MethodGet, "/api/orders", "")
	var orders struct {
		Orders []domain.Order `json:"orders"`
	}
	s.decode(rec, &orders)
	s.Len(orders.Orders, 1)
}

func (s *APITestSuite) TestPlaceOrderInsufficientFunds() {
	rec := s.do(http.MethodPost, "/api/orders", `{"symbol":"AAPL","action":"buy","quantity":1000}`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	var res domain.OrderResult
	s.decode(rec, &res)
	s.False(res.Success)
	s.Contains(res.Message, "insufficient cash")
}

func (s *APITestSuite) TestPlaceOrderInsufficientHoldings() {
	rec := s.do(http.MethodPost, "/api/orders", `{"symbol":"TSLA","action":"sell","quantity":1}`)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *APITestSuite) TestPlaceOrderValidation() {
	cases := map[string]string{
		"bad action":    `{"symbol":"AAPL","action":"hold","quantity":1}`,
		"zero quantity": `{"symbol":"AAPL","action":"buy","quantity":0}`,
		"missing":       `{"action":"buy"}`,
		"unknown field": `{"symbol":"AAPL","action":"buy","price":1}`,
		"not json":      `buy AAPL`,
	}
	for name, body := range cases {
		rec := s.do(http.MethodPost, "/api/orders", body)
		s.Equal(http.StatusBadRequest, rec.Code, name)
	}
}

func (s *APITestSuite) TestPlaceOrderUnknownSymbol() {
	rec := s.do(http.MethodPost, "/api/orders", `{"symbol":"NFLX","action":"buy","quantity":1}`)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *APITestSuite) TestInputsDrivePendingQuantity() {
	rec := s.do(http.MethodPut, "/api/inputs/msft", `{"buy":3}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var p domain.Portfolio
	s.decode(rec, &p)
	s.Equal(int64(3), p.BuyInputs["MSFT"])

	rec = s.do(http.MethodPost, "/api/orders", `{"symbol":"MSFT","action":"buy"}`)
	s.Require().Equal(http.StatusCreated, rec.Code)
	var res domain.OrderResult
	s.decode(rec, &res)
	s.Equal(int64(3), res.Order.Quantity)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/api/inputs/MSFT", `{}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/api/inputs/MSFT", `{"sell":-1}`).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodPut, "/api/inputs/NFLX", `{"buy":1}`).Code)
}

func (s *APITestSuite) TestStopLossLifecycle() {
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/api/orders", `{"symbol":"AAPL","action":"buy","quantity":2}`).Code)

	rec := s.do(http.MethodPut, "/api/stoploss/AAPL", `{"price":"140"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var p domain.Portfolio
	s.decode(rec, &p)
	s.True(p.StopLoss["AAPL"].Equal(decimal.NewFromInt(140)))
	s.Equal(int64(2), p.Holdings["AAPL"])

	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/api/stoploss/AAPL", `{"price":"0"}`).Code)

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/api/stoploss/AAPL", "").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodDelete, "/api/stoploss/AAPL", "").Code)
}

func (s *APITestSuite) TestStopLossTriggersImmediately() {
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/api/orders", `{"symbol":"AAPL","action":"buy","quantity":2}`).Code)

	rec := s.do(http.MethodPut, "/api/stoploss/AAPL", `{"price":"160"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	var p domain.Portfolio
	s.decode(rec, &p)
	s.Zero(p.Holdings["AAPL"])
	s.NotContains(p.StopLoss, "AAPL")
	s.True(p.Cash.Equal(decimal.NewFromInt(100000)))
}

func (s *APITestSuite) TestReset() {
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/api/orders", `{"symbol":"TSLA","action":"buy","quantity":4}`).Code)

	rec := s.do(http.MethodPost, "/api/reset", "")
	s.Require().Equal(http.StatusOK, rec.Code)

	var p domain.Portfolio
	s.decode(rec, &p)
	s.True(p.Cash.Equal(decimal.NewFromInt(100000)))
	s.Zero(p.OrderCount)
	s.Empty(p.Holdings)
}

func (s *APITestSuite) TestOrderHistorySurvivesReset() {
	s.do(http.MethodPost, "/api/orders", `{"symbol":"TSLA","action":"buy","quantity":1}`)
	s.do(http.MethodPost, "/api/reset", "")
	s.do(http.MethodPost, "/api/orders", `{"symbol":"MSFT","action":"buy","quantity":1}`)

	rec := s.do(http.MethodGet, "/api/orders/history?limit=10", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var body struct {
		Orders []domain.Order `json:"orders"`
	}
	s.decode(rec, &body)
	s.Require().Len(body.Orders, 2)
	s.Equal("MSFT", body.Orders[0].Symbol)
	s.Equal("TSLA", body.Orders[1].Symbol)
}

func (s *APITestSuite) TestNotifications() {
	s.do(http.MethodPost, "/api/orders", `{"symbol":"TSLA","action":"buy","quantity":1}`)
	s.do(http.MethodPost, "/api/orders", `{"symbol":"TSLA","action":"sell","quantity":5}`)

	rec := s.do(http.MethodGet, "/api/notifications?limit=5", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var body struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	s.decode(rec, &body)
	s.Require().Len(body.Notifications, 2)
	s.Equal(domain.NotificationSuccess, body.Notifications[0].Kind)
	s.Equal(domain.NotificationError, body.Notifications[1].Kind)
}

func (s *APITestSuite) TestAuditNotConfigured() {
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/audit", "").Code)
}

func (s *APITestSuite) TestWebSocketRouteAbsentWithoutHub() {
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/ws", "").Code)
}

func TestRateLimitedHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := server.NewHandler(
		server.Config{RateLimit: 1, RateWindow: time.Minute},
		server.Handlers{Health: handler.NewHealthHandler("full", time.Now())},
		nil, memory.NewRateLimiter(), logger,
	)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestHealthReportsDegradedDependency(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	health := handler.NewHealthHandler("full", time.Now()).
		WithCheck("redis", func(context.Context) error { return nil }).
		WithCheck("postgres", func(context.Context) error { return errors.New("postgres: ping: refused") })
	h := server.NewHandler(server.Config{}, server.Handlers{Health: health}, nil, nil, logger)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Components["redis"])
	assert.Contains(t, body.Components["postgres"], "refused")
}
