package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalorders "github.com/emberandwick/storefront-backend/internal/orders"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

type stubAdminService struct {
	order     *models.Order
	shipment  internalorders.ShipmentInput
	applied   internalorders.Action
	applyErr  error
	batchIDs  []uuid.UUID
	batchDone internalorders.Action
}

func (s *stubAdminService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubAdminService) UpsertShipment(ctx context.Context, orderID uuid.UUID, input internalorders.ShipmentInput) (*models.Shipment, error) {
	s.shipment = input
	shipment := &models.Shipment{OrderID: orderID, Carrier: input.Carrier, TrackingNumber: input.TrackingNumber, EstimatedDelivery: input.EstimatedDelivery}
	s.order.Shipment = shipment
	return shipment, nil
}

func (s *stubAdminService) Apply(ctx context.Context, action internalorders.Action, orderID uuid.UUID) (internalorders.ActionResult, error) {
	s.applied = action
	if s.applyErr != nil {
		return internalorders.ActionResult{}, s.applyErr
	}
	return internalorders.ActionResult{OrderID: orderID, Outcome: internalorders.ResultSucceeded}, nil
}

func (s *stubAdminService) RunBatch(ctx context.Context, action internalorders.Action, orderIDs []uuid.UUID) (internalorders.BatchResult, error) {
	s.batchDone = action
	s.batchIDs = orderIDs
	out := internalorders.BatchResult{Action: action}
	for _, id := range orderIDs {
		out.Results = append(out.Results, internalorders.ActionResult{OrderID: id, Outcome: internalorders.ResultSkipped, Reason: "order has no shipment"})
		out.Skipped++
	}
	return out, nil
}

func paidOrder() *models.Order {
	return &models.Order{
		ID:        uuid.New(),
		Reference: "0A1B2C3D4E",
		Status:    enums.OrderStatusPaid,
		Email:     "jo@example.com",
		Total:     decimal.RequireFromString("28.95"),
	}
}

func TestAdminOrderDetail(t *testing.T) {
	svc := &stubAdminService{order: paidOrder()}

	req := withParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"orderId": svc.order.ID.String()})
	rec := httptest.NewRecorder()
	AdminOrderDetail(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var view internalorders.OrderView
	decode(t, rec, &view)
	if view.Reference != "0A1B2C3D4E" || view.Total != "28.95" || view.Status != "paid" {
		t.Fatalf("unexpected view %+v", view)
	}

	req = withParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"orderId": uuid.NewString()})
	rec = httptest.NewRecorder()
	AdminOrderDetail(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestAdminUpsertShipment(t *testing.T) {
	svc := &stubAdminService{order: paidOrder()}
	body := `{"carrier":"  Royal   Mail ","tracking_number":"RM123","estimated_delivery":"2025-03-18"}`
	req := withParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), map[string]string{"orderId": svc.order.ID.String()})
	rec := httptest.NewRecorder()
	AdminUpsertShipment(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.shipment.Carrier != "Royal Mail" {
		t.Fatalf("carrier not sanitized: %q", svc.shipment.Carrier)
	}
	want := time.Date(2025, 3, 18, 0, 0, 0, 0, time.UTC)
	if svc.shipment.EstimatedDelivery == nil || !svc.shipment.EstimatedDelivery.Equal(want) {
		t.Fatalf("unexpected eta %v", svc.shipment.EstimatedDelivery)
	}
	var view internalorders.OrderView
	decode(t, rec, &view)
	if view.Shipment == nil || view.Shipment.EstimatedDelivery == nil || *view.Shipment.EstimatedDelivery != "2025-03-18" {
		t.Fatalf("unexpected shipment view %+v", view.Shipment)
	}

	req = withParams(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"carrier":"DPD","estimated_delivery":"18/03/2025"}`)), map[string]string{"orderId": svc.order.ID.String()})
	rec = httptest.NewRecorder()
	AdminUpsertShipment(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date got %d", rec.Code)
	}
}

func TestAdminOrderAction(t *testing.T) {
	svc := &stubAdminService{order: paidOrder()}
	params := map[string]string{"orderId": svc.order.ID.String(), "action": "mark-refunded"}

	rec := httptest.NewRecorder()
	AdminOrderAction(svc, nil).ServeHTTP(rec, withParams(httptest.NewRequest(http.MethodPost, "/", nil), params))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.applied != internalorders.ActionMarkRefunded {
		t.Fatalf("unexpected action %q", svc.applied)
	}
	var resp actionResponse
	decode(t, rec, &resp)
	if resp.Result.Outcome != internalorders.ResultSucceeded || resp.Order.ID != svc.order.ID {
		t.Fatalf("unexpected response %+v", resp)
	}

	params["action"] = "explode"
	rec = httptest.NewRecorder()
	AdminOrderAction(svc, nil).ServeHTTP(rec, withParams(httptest.NewRequest(http.MethodPost, "/", nil), params))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action got %d", rec.Code)
	}

	params["action"] = "mark-failed"
	svc.applyErr = pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be marked failed")
	rec = httptest.NewRecorder()
	AdminOrderAction(svc, nil).ServeHTTP(rec, withParams(httptest.NewRequest(http.MethodPost, "/", nil), params))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestAdminBulkOrders(t *testing.T) {
	svc := &stubAdminService{}
	a, b := uuid.New(), uuid.New()
	body := `{"action":"mark-shipped","order_ids":["` + a.String() + `","` + b.String() + `"]}`

	rec := httptest.NewRecorder()
	AdminBulkOrders(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.batchDone != internalorders.ActionMarkShipped || len(svc.batchIDs) != 2 {
		t.Fatalf("unexpected batch call %q %v", svc.batchDone, svc.batchIDs)
	}
	var result internalorders.BatchResult
	decode(t, rec, &result)
	if result.Skipped != 2 || len(result.Results) != 2 || result.Results[0].Reason == "" {
		t.Fatalf("unexpected batch result %+v", result)
	}

	for _, bad := range []string{
		`{"action":"mark-shipped","order_ids":[]}`,
		`{"action":"mark-shipped","order_ids":["not-a-uuid"]}`,
		`{"action":"teleport","order_ids":["` + a.String() + `"]}`,
	} {
		rec = httptest.NewRecorder()
		AdminBulkOrders(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(bad)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s got %d", bad, rec.Code)
		}
	}
}

type stubProductDeleter struct{ err error }

func (s stubProductDeleter) Delete(context.Context, uuid.UUID) error { return s.err }

func TestAdminDeleteProduct(t *testing.T) {
	params := map[string]string{"productId": uuid.NewString()}

	rec := httptest.NewRecorder()
	AdminDeleteProduct(stubProductDeleter{}, nil).ServeHTTP(rec, withParams(httptest.NewRequest(http.MethodDelete, "/", nil), params))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	conflict := pkgerrors.New(pkgerrors.CodeConflict, "product is referenced by existing orders")
	AdminDeleteProduct(stubProductDeleter{err: conflict}, nil).ServeHTTP(rec, withParams(httptest.NewRequest(http.MethodDelete, "/", nil), params))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}
