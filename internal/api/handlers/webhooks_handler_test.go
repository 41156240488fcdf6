package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/hcmerrors"
	"github.com/OfekItzhaki/horizon-hcm-sub003/internal/models"
)

type mockWebhooksService struct {
	createResult *models.WebhookResponse
	createErr    error
	getResult    *models.WebhookDetail
	getErr       error
	updateErr    error
	deleteErr    error
	listResult   *models.ListWebhooksResponse
}

func (m *mockWebhooksService) CreateWebhook(_ context.Context, _ *models.CreateWebhookRequest) (*models.WebhookResponse, error) {
	return m.createResult, m.createErr
}

func (m *mockWebhooksService) GetWebhook(_ context.Context, _ uuid.UUID, _ int) (*models.WebhookDetail, error) {
	return m.getResult, m.getErr
}

func (m *mockWebhooksService) ListWebhooks(_ context.Context, _ *models.ListWebhooksFilters) (*models.ListWebhooksResponse, error) {
	return m.listResult, nil
}

func (m *mockWebhooksService) UpdateWebhook(_ context.Context, _ uuid.UUID, _ *models.UpdateWebhookRequest) (*models.WebhookResponse, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}

	return &models.WebhookResponse{}, nil
}

func (m *mockWebhooksService) DeleteWebhook(_ context.Context, _ uuid.UUID) error {
	return m.deleteErr
}

type mockDeliveriesReader struct {
	deliveries []models.WebhookDelivery
	stats      *models.DeliveryStats
	listErr    error
}

func (m *mockDeliveriesReader) ListDeliveries(_ context.Context, _ uuid.UUID, _ *models.ListDeliveriesFilters) ([]models.WebhookDelivery, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	return m.deliveries, nil
}

func (m *mockDeliveriesReader) GetStats(_ context.Context, _ uuid.UUID) (*models.DeliveryStats, error) {
	return m.stats, nil
}

func TestWebhooksHandler_Create(t *testing.T) {
	created := &models.WebhookResponse{
		ID:     uuid.New(),
		URL:    "https://example.com/hook",
		Events: []string{models.EventPollCreated},
	}
	handler := NewWebhooksHandler(&mockWebhooksService{createResult: created}, &mockDeliveriesReader{})

	body := `{"url":"https://example.com/hook","events":["poll.created"],"created_by":"admin"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}

	// Secret must never appear in API responses.
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("response leaks secret field: %s", rec.Body.String())
	}
}

func TestWebhooksHandler_Create_InvalidBody(t *testing.T) {
	handler := NewWebhooksHandler(&mockWebhooksService{}, &mockDeliveriesReader{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"unknown field", `{"url":"https://x.example.com","events":["poll.created"],"created_by":"a","bogus":1}`},
		{"missing events", `{"url":"https://x.example.com","created_by":"a"}`},
		{"empty events", `{"url":"https://x.example.com","events":[],"created_by":"a"}`},
		{"bad event type", `{"url":"https://x.example.com","events":["poll created"],"created_by":"a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handler.Create(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestWebhooksHandler_Create_ServiceValidationError(t *testing.T) {
	svc := &mockWebhooksService{createErr: hcmerrors.NewValidationError("url", "url host must not be localhost")}
	handler := NewWebhooksHandler(svc, &mockDeliveriesReader{})

	body := `{"url":"http://localhost/hook","events":["poll.created"],"created_by":"admin"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhooksHandler_Get_NotFound(t *testing.T) {
	svc := &mockWebhooksService{getErr: hcmerrors.NewNotFoundError("webhook", "webhook not found")}
	handler := NewWebhooksHandler(svc, &mockDeliveriesReader{})

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/"+uuid.NewString(), nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestWebhooksHandler_Get_BadID(t *testing.T) {
	handler := NewWebhooksHandler(&mockWebhooksService{}, &mockDeliveriesReader{})

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()

	handler.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhooksHandler_Delete(t *testing.T) {
	handler := NewWebhooksHandler(&mockWebhooksService{}, &mockDeliveriesReader{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/webhooks/"+uuid.NewString(), nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()

	handler.Delete(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestWebhooksHandler_Stats(t *testing.T) {
	reader := &mockDeliveriesReader{stats: &models.DeliveryStats{
		Total: 4, Success: 3, Failed: 1, SuccessRate: "75.00",
	}}
	handler := NewWebhooksHandler(&mockWebhooksService{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/"+uuid.NewString()+"/stats", nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()

	handler.Stats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats models.DeliveryStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.SuccessRate != "75.00" {
		t.Errorf("success_rate = %q, want \"75.00\"", stats.SuccessRate)
	}
}

func TestWebhooksHandler_ListDeliveries(t *testing.T) {
	reader := &mockDeliveriesReader{deliveries: []models.WebhookDelivery{
		{ID: uuid.New(), Status: models.DeliveryPending},
	}}
	handler := NewWebhooksHandler(&mockWebhooksService{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/"+uuid.NewString()+"/deliveries", nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()

	handler.ListDeliveries(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestWebhooksHandler_ListDeliveries_InvalidStatus(t *testing.T) {
	reader := &mockDeliveriesReader{listErr: hcmerrors.NewValidationError("status", "invalid delivery status: delivered")}
	handler := NewWebhooksHandler(&mockWebhooksService{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/"+uuid.NewString()+"/deliveries?status=delivered", nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()

	handler.ListDeliveries(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", rec.Code, rec.Body.String())
	}
}
