package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emberandwick/storefront-backend/api/middleware"
	"github.com/emberandwick/storefront-backend/internal/basket"
	checkoutsvc "github.com/emberandwick/storefront-backend/internal/checkout"
	"github.com/emberandwick/storefront-backend/internal/pricing"
	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

const testSession = "5b3f8f0e-2f5c-4b8a-9d7e-0c9f7d1a2b3c"

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if dest != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func withSession(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithBasketSession(req.Context(), testSession))
}

func withParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{err: errors.New("refused")}}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	env := decode(t, rec, nil)
	if env.Error == nil || env.Error.Details["redis"] != "refused" {
		t.Fatalf("expected redis failure detail, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Storefront-Env") != "dev" {
		t.Fatalf("unexpected live response %d", rec.Code)
	}
}

type stubBasketService struct {
	added   map[uuid.UUID]int
	session string
	addErr  error
	quote   pricing.Snapshot
}

func (s *stubBasketService) Quote(ctx context.Context, sessionID string) (*basket.Quote, error) {
	s.session = sessionID
	return &basket.Quote{Basket: basket.Basket(s.added), Pricing: s.quote}, nil
}

func (s *stubBasketService) Add(ctx context.Context, sessionID string, productID uuid.UUID, qty int) (basket.Basket, error) {
	if s.addErr != nil {
		return nil, s.addErr
	}
	if s.added == nil {
		s.added = map[uuid.UUID]int{}
	}
	s.added[productID] += qty
	return basket.Basket(s.added), nil
}

func (s *stubBasketService) Update(ctx context.Context, sessionID string, productID uuid.UUID, qty int) (basket.Basket, error) {
	if s.added == nil {
		s.added = map[uuid.UUID]int{}
	}
	if qty <= 0 {
		delete(s.added, productID)
	} else {
		s.added[productID] = qty
	}
	return basket.Basket(s.added), nil
}

func (s *stubBasketService) Remove(ctx context.Context, sessionID string, productID uuid.UUID) (basket.Basket, error) {
	delete(s.added, productID)
	return basket.Basket(s.added), nil
}

func (s *stubBasketService) Get(ctx context.Context, sessionID string) (basket.Basket, error) {
	return basket.Basket(s.added), nil
}

func sampleSnapshot(productID uuid.UUID) pricing.Snapshot {
	remaining := decimal.RequireFromString("30.00")
	return pricing.Snapshot{
		LineItems: []pricing.LineItem{{
			ProductID: productID,
			Title:     "Fig & Cedar Candle",
			UnitPrice: decimal.RequireFromString("10"),
			Quantity:  2,
			LineTotal: decimal.RequireFromString("20"),
		}},
		Subtotal:                 decimal.RequireFromString("20"),
		DeliveryFee:              decimal.RequireFromString("3.95"),
		FinalTotal:               decimal.RequireFromString("23.95"),
		RemainingForFreeDelivery: &remaining,
		ItemCount:                2,
	}
}

func TestAddBasketItem(t *testing.T) {
	productID := uuid.New()
	svc := &stubBasketService{quote: sampleSnapshot(productID)}

	body := `{"product_id":"` + productID.String() + `","quantity":2}`
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/basket/items", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	AddBasketItem(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.added[productID] != 2 || svc.session != testSession {
		t.Fatalf("unexpected basket state %+v session %q", svc.added, svc.session)
	}

	var resp pricingResponse
	decode(t, rec, &resp)
	if resp.Total != "23.95" || resp.Subtotal != "20.00" || resp.ItemCount != 2 {
		t.Fatalf("unexpected pricing %+v", resp)
	}
	if resp.RemainingForFreeDelivery == nil || *resp.RemainingForFreeDelivery != "30.00" {
		t.Fatalf("expected remaining 30.00")
	}
	if len(resp.Items) != 1 || resp.Items[0].UnitPrice != "10.00" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
}

func TestAddBasketItemValidation(t *testing.T) {
	svc := &stubBasketService{}
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/basket/items", strings.NewReader(`{"product_id":"`+uuid.NewString()+`","quantity":0}`)))
	rec := httptest.NewRecorder()
	AddBasketItem(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	svc.addErr = pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	req = withSession(httptest.NewRequest(http.MethodPost, "/api/v1/basket/items", strings.NewReader(`{"product_id":"`+uuid.NewString()+`","quantity":1}`)))
	rec = httptest.NewRecorder()
	AddBasketItem(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestUpdateAndRemoveBasketItem(t *testing.T) {
	productID := uuid.New()
	svc := &stubBasketService{added: map[uuid.UUID]int{productID: 3}}

	req := withParams(withSession(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"quantity":5}`))), map[string]string{"productId": productID.String()})
	rec := httptest.NewRecorder()
	UpdateBasketItem(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || svc.added[productID] != 5 {
		t.Fatalf("update failed: %d %+v", rec.Code, svc.added)
	}

	req = withParams(withSession(httptest.NewRequest(http.MethodDelete, "/", nil)), map[string]string{"productId": productID.String()})
	rec = httptest.NewRecorder()
	RemoveBasketItem(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove failed: %d", rec.Code)
	}
	if _, ok := svc.added[productID]; ok {
		t.Fatalf("product should be removed")
	}

	req = withParams(withSession(httptest.NewRequest(http.MethodDelete, "/", nil)), map[string]string{"productId": "bad"})
	rec = httptest.NewRecorder()
	RemoveBasketItem(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id got %d", rec.Code)
	}
}

type stubCheckoutService struct {
	gotSession  string
	gotItems    basket.Basket
	gotCustomer checkoutsvc.CustomerInfo
	result      *checkoutsvc.Result
	err         error
	order       *models.Order
}

func (s *stubCheckoutService) Start(ctx context.Context, sessionID string, items basket.Basket, customer checkoutsvc.CustomerInfo) (*checkoutsvc.Result, error) {
	s.gotSession = sessionID
	s.gotItems = items
	s.gotCustomer = customer
	return s.result, s.err
}

func (s *stubCheckoutService) Status(ctx context.Context, sessionID string) (*models.Order, error) {
	if s.order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no checkout for this session")
	}
	return s.order, nil
}

const validCustomer = `{"email":"jo@example.com","full_name":"Jo Bloggs","address_line1":"1 High St","city":"York","postal_code":"YO1 7HH","country":"GB"}`

func TestCheckoutCreatesSession(t *testing.T) {
	productID := uuid.New()
	baskets := &stubBasketService{added: map[uuid.UUID]int{productID: 2}}
	svc := &stubCheckoutService{result: &checkoutsvc.Result{
		OrderID:        uuid.New(),
		Reference:      "A1B2C3D4E5",
		SessionID:      "cs_test_1",
		CheckoutURL:    "https://checkout.stripe.test/cs_test_1",
		PublishableKey: "pk_test_1",
		Pricing:        sampleSnapshot(productID),
	}}

	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(validCustomer)))
	rec := httptest.NewRecorder()
	Checkout(svc, baskets, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.gotSession != testSession || svc.gotItems[productID] != 2 || svc.gotCustomer.Email != "jo@example.com" {
		t.Fatalf("unexpected service input %q %+v %+v", svc.gotSession, svc.gotItems, svc.gotCustomer)
	}

	var resp checkoutResponse
	decode(t, rec, &resp)
	if resp.Reference != "A1B2C3D4E5" || resp.CheckoutURL == "" || resp.Totals.Total != "23.95" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCheckoutRejectsInvalidCustomer(t *testing.T) {
	svc := &stubCheckoutService{}
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"email":"nope","full_name":"Jo"}`)))
	rec := httptest.NewRecorder()
	Checkout(svc, &stubBasketService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	env := decode(t, rec, nil)
	if env.Error.Details["email"] == nil || env.Error.Details["city"] == nil {
		t.Fatalf("expected field details, got %+v", env.Error.Details)
	}
	if svc.gotSession != "" {
		t.Fatalf("service must not be called")
	}
}

func TestCheckoutGatewayFailureIs503(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("stripe down"), "create payment session")}
	req := withSession(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(validCustomer)))
	rec := httptest.NewRecorder()
	Checkout(svc, &stubBasketService{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestCheckoutStatus(t *testing.T) {
	svc := &stubCheckoutService{}
	rec := httptest.NewRecorder()
	CheckoutStatus(svc, nil).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/status", nil)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}

	svc.order = &models.Order{
		ID:        uuid.New(),
		Reference: "A1B2C3D4E5",
		Status:    enums.OrderStatusPaid,
		Email:     "jo@example.com",
		Total:     decimal.RequireFromString("23.95"),
		Items:     []models.OrderItem{{Quantity: 2}, {Quantity: 1}},
	}
	rec = httptest.NewRecorder()
	CheckoutStatus(svc, nil).ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/status", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp checkoutStatusResponse
	decode(t, rec, &resp)
	if resp.Status != "paid" || resp.ItemCount != 3 || resp.Total != "23.95" {
		t.Fatalf("unexpected status response %+v", resp)
	}
}
