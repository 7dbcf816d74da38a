package ticket_api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-tickets/internal/models"
	"ms-tickets/internal/shopify"
	tickets "ms-tickets/internal/tickets/service"
	"ms-tickets/internal/tickets/ticket_api"
)

const webhookSecret = "test-webhook-secret"

// memoryTicketDB backs the service with an in-memory map for handler tests.
type memoryTicketDB struct {
	mu        sync.Mutex
	tickets   map[string]*models.Ticket
	insertErr error
}

func newMemoryTicketDB() *memoryTicketDB {
	return &memoryTicketDB{tickets: make(map[string]*models.Ticket)}
}

func (m *memoryTicketDB) InsertTicket(ctx context.Context, ticket models.Ticket) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if _, exists := m.tickets[ticket.TicketID]; exists {
		return false, nil
	}
	m.tickets[ticket.TicketID] = &ticket
	return true, nil
}

func (m *memoryTicketDB) setInsertErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

func (m *memoryTicketDB) GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, exists := m.tickets[ticketID]
	if !exists {
		return nil, sql.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (m *memoryTicketDB) ConsumeTicket(ctx context.Context, ticketID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, exists := m.tickets[ticketID]
	if !exists || ticket.Used {
		return false, nil
	}
	ticket.Used = true
	return true, nil
}

func (m *memoryTicketDB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Ticket
	for _, ticket := range m.tickets {
		if ticket.OrderID == orderID {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

func (m *memoryTicketDB) GetTotalTicketsCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickets), nil
}

// memoryDeduper is a map-backed stand-in for the Redis delivery cache.
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: make(map[string]bool)}
}

func (d *memoryDeduper) MarkSeen(ctx context.Context, deliveryID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[deliveryID] {
		return true, nil
	}
	d.seen[deliveryID] = true
	return false, nil
}

func (d *memoryDeduper) Forget(ctx context.Context, deliveryID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, deliveryID)
	return nil
}

func (d *memoryDeduper) contains(deliveryID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[deliveryID]
}

func setupRouter() (*chi.Mux, *memoryTicketDB) {
	r, store, _ := setupRouterWithDedup()
	return r, store
}

func setupRouterWithDedup() (*chi.Mux, *memoryTicketDB, *memoryDeduper) {
	store := newMemoryTicketDB()
	service := tickets.NewTicketService(store)
	dedup := newMemoryDeduper()

	handler := &ticket_api.Handler{
		TicketService: service,
		Verifier:      shopify.NewVerifier(webhookSecret),
		Deliveries:    dedup,
	}

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store, dedup
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(r http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	return postWebhookDelivery(r, body, signature, "")
}

func postWebhookDelivery(r http.Handler, body []byte, signature, deliveryID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/shopify/webhook/orden_pagada", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(shopify.HMACHeader, signature)
	}
	if deliveryID != "" {
		req.Header.Set(shopify.DeliveryIDHeader, deliveryID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func orderBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":    "O1",
		"email": "buyer@example.com",
		"line_items": []map[string]interface{}{
			{"id": "L1", "sku": "EVT1", "quantity": 2, "title": "Entrada General"},
		},
	})
	require.NoError(t, err)
	return body
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "funcionando correctamente")
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	r, store := setupRouter()

	rec := postWebhook(r, orderBody(t), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	count, _ := store.GetTotalTicketsCount(context.Background())
	assert.Equal(t, 0, count, "rejected webhook must not mutate state")
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r, store := setupRouter()

	rec := postWebhook(r, orderBody(t), "bm90LWEtcmVhbC1zaWduYXR1cmU=")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	count, _ := store.GetTotalTicketsCount(context.Background())
	assert.Equal(t, 0, count)
}

func TestWebhookIssuesTickets(t *testing.T) {
	r, store := setupRouter()
	body := orderBody(t)

	rec := postWebhook(r, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status         string `json:"status"`
		TicketsCreated int    `json:"tickets_created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 2, resp.TicketsCreated)

	issued, err := store.GetTicketsByOrder(context.Background(), "O1")
	require.NoError(t, err)
	assert.Len(t, issued, 2)
	for _, ticket := range issued {
		assert.False(t, ticket.Used)
		assert.Equal(t, "EVT1", ticket.EventSKU)
	}
}

func TestWebhookRedeliveryCreatesNothing(t *testing.T) {
	r, store := setupRouter()
	body := orderBody(t)

	rec := postWebhook(r, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhook(r, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TicketsCreated int `json:"tickets_created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.TicketsCreated)

	count, _ := store.GetTotalTicketsCount(context.Background())
	assert.Equal(t, 2, count)
}

func TestWebhookRejectsPayloadWithoutOrderID(t *testing.T) {
	r, _ := setupRouter()

	body := []byte(`{"email":"buyer@example.com","line_items":[]}`)
	rec := postWebhook(r, body, signWebhook(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyTicketLifecycle(t *testing.T) {
	r, _ := setupRouter()
	body := orderBody(t)
	rec := postWebhook(r, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)

	// First scan is granted.
	req := httptest.NewRequest(http.MethodGet, "/verificar_ticket/TICKET-O1-L1-1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, true, outcome["valido"])
	assert.Contains(t, outcome["mensaje"], "ACCESO PERMITIDO")

	// Second scan of the same ticket is rejected.
	req = httptest.NewRequest(http.MethodGet, "/verificar_ticket/TICKET-O1-L1-1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, false, outcome["valido"])
	assert.Contains(t, outcome["mensaje"], "YA FUE USADO")
	assert.Contains(t, outcome["mensaje"], "EVT1")
}

func TestVerifyTicketNotFound(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/verificar_ticket/TICKET-NEVER-ISSUED-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, false, outcome["valido"])
	assert.Contains(t, outcome["mensaje"], "NO ENCONTRADO")
}

func TestGenerateQRWithoutExistenceCheck(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/generar_qr/TICKET-NEVER-ISSUED-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte{0x89, 'P', 'N', 'G'}))
}

func TestWebhookDeliveryDedupShortCircuits(t *testing.T) {
	r, store, _ := setupRouterWithDedup()
	body := orderBody(t)

	rec := postWebhookDelivery(r, body, signWebhook(body), "delivery-1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postWebhookDelivery(r, body, signWebhook(body), "delivery-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TicketsCreated int `json:"tickets_created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.TicketsCreated)

	count, _ := store.GetTotalTicketsCount(context.Background())
	assert.Equal(t, 2, count)
}

func TestWebhookRetryAfterFailureReprocesses(t *testing.T) {
	r, store, dedup := setupRouterWithDedup()
	body := orderBody(t)

	// A store outage fails the first delivery with a 500.
	store.setInsertErr(errors.New("connection refused"))
	rec := postWebhookDelivery(r, body, signWebhook(body), "delivery-1")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// The failed delivery id must not stay remembered, or the platform's
	// retry would be acknowledged without ever creating the tickets.
	assert.False(t, dedup.contains("delivery-1"), "failed delivery should be forgotten")

	// The retry of the same delivery id succeeds once the store recovers.
	store.setInsertErr(nil)
	rec = postWebhookDelivery(r, body, signWebhook(body), "delivery-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TicketsCreated int `json:"tickets_created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TicketsCreated)

	count, _ := store.GetTotalTicketsCount(context.Background())
	assert.Equal(t, 2, count)
}

func TestWebhookInvalidPayloadReleasesDelivery(t *testing.T) {
	r, _, _ := setupRouterWithDedup()
	malformed := []byte(`{"id":"O1",`)

	rec := postWebhookDelivery(r, malformed, signWebhook(malformed), "delivery-2")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// A corrected redelivery under the same id must still be processed.
	body := orderBody(t)
	rec = postWebhookDelivery(r, body, signWebhook(body), "delivery-2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TicketsCreated int `json:"tickets_created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TicketsCreated)
}

func TestCrossOriginScannerRequests(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/verificar_ticket/TICKET-O1-L1-1", nil)
	req.Header.Set("Origin", "https://scanner.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetTotalTicketsCount(t *testing.T) {
	r, _ := setupRouter()
	body := orderBody(t)
	rec := postWebhook(r, body, signWebhook(body))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/count", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TotalTickets int `json:"total_tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalTickets)
}
