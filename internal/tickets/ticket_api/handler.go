package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	"ms-tickets/internal/shopify"
	"ms-tickets/internal/tickets/qr"
	tickets "ms-tickets/internal/tickets/service"
)

// DeliveryDeduper short-circuits redelivered webhooks. It is best effort;
// store-level idempotence is what guarantees correctness.
type DeliveryDeduper interface {
	MarkSeen(ctx context.Context, deliveryID string) (bool, error)
	Forget(ctx context.Context, deliveryID string) error
}

type Handler struct {
	TicketService *tickets.TicketService
	Verifier      *shopify.Verifier
	Deliveries    DeliveryDeduper // optional
	Logger        *logger.Logger  // optional
}

// RegisterRoutes mounts the service's public surface on r. The scanner page
// is hosted on a different origin, so the API answers cross-origin requests.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", shopify.HMACHeader},
		MaxAge:         300,
	}))

	r.Get("/", h.Health)
	r.Post("/shopify/webhook/orden_pagada", h.OrderPaidWebhook)
	r.Get("/verificar_ticket/*", h.VerifyTicket)
	r.Get("/generar_qr/{ticketID}", h.GenerateQR)
	r.Get("/api/tickets/count", h.GetTotalTicketsCount)
}

// Health is the liveness endpoint polled by the scanner UI.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("El servidor de tickets está funcionando correctamente."))
}

// OrderPaidWebhook receives the paid-order notification. The raw body is
// verified against the HMAC header before it is interpreted in any way, and
// every insert is idempotent, so Shopify retries and redeliveries are safe.
func (h *Handler) OrderPaidWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if !h.Verifier.Verify(rawBody, r.Header.Get(shopify.HMACHeader)) {
		h.logSecurity("WEBHOOK_HMAC", "Rejected webhook with invalid or missing signature")
		h.writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	deliveryID := r.Header.Get(shopify.DeliveryIDHeader)
	marked := false
	if deliveryID == "" {
		// No delivery id from the platform; mint one for log correlation.
		deliveryID = uuid.NewString()
	} else if h.Deliveries != nil {
		seen, err := h.Deliveries.MarkSeen(r.Context(), deliveryID)
		if err != nil {
			// Dedup is best effort; the store-level idempotence covers us.
			h.logWarn("WEBHOOK", fmt.Sprintf("Delivery cache unavailable: %v", err))
		} else if seen {
			h.logInfo("WEBHOOK", fmt.Sprintf("Delivery %s already processed, acknowledging", deliveryID))
			h.writeJSON(w, http.StatusOK, map[string]interface{}{
				"status":          "success",
				"tickets_created": 0,
			})
			return
		} else {
			marked = true
		}
	}

	var order models.OrderPayload
	if err := json.Unmarshal(rawBody, &order); err != nil {
		h.releaseDelivery(r.Context(), deliveryID, marked)
		h.writeError(w, http.StatusBadRequest, "invalid order payload: "+err.Error())
		return
	}

	h.logInfo("WEBHOOK", fmt.Sprintf("Processing delivery %s for order %s", deliveryID, order.ID))

	result, err := h.TicketService.IssueFromOrder(r.Context(), order)
	if err != nil {
		// The delivery id may only stay remembered once issuance succeeded;
		// otherwise the platform's retry would be swallowed by the seen branch.
		h.releaseDelivery(r.Context(), deliveryID, marked)
		if errors.Is(err, tickets.ErrMissingOrderID) {
			h.writeError(w, http.StatusBadRequest, "order payload has no id")
			return
		}
		h.logErr("WEBHOOK", fmt.Sprintf("Failed to process order %s: %v", order.ID, err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logInfo("WEBHOOK", fmt.Sprintf("Order %s processed, %d new tickets", result.OrderID, result.TicketsCreated))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"tickets_created": result.TicketsCreated,
	})
}

// VerifyTicket is the scanner's check-in endpoint. The wildcard route keeps
// working when a scanner sends a full URL instead of a bare identifier;
// normalization inside the service extracts the id.
func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")

	outcome, err := h.TicketService.Redeem(r.Context(), raw)
	if err != nil {
		h.logErr("REDEMPTION", fmt.Sprintf("Store failure verifying %q: %v", raw, err))
		h.writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	h.writeJSON(w, http.StatusOK, outcome)
}

// GenerateQR renders the identifier as a PNG, with no existence check, so the
// confirmation email always shows an image even while issuance is in flight.
func (h *Handler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	png, err := qr.PNG(ticketID)
	if err != nil {
		h.logErr("QR", fmt.Sprintf("Failed to encode QR for %s: %v", ticketID, err))
		h.writeError(w, http.StatusInternalServerError, "failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// GetTotalTicketsCount returns the total number of issued tickets.
func (h *Handler) GetTotalTicketsCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.TicketService.GetTotalTicketsCount(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to count tickets")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"total_tickets": count})
}

// releaseDelivery undoes MarkSeen after a failed delivery so the retry can
// reprocess it.
func (h *Handler) releaseDelivery(ctx context.Context, deliveryID string, marked bool) {
	if !marked || h.Deliveries == nil {
		return
	}
	if err := h.Deliveries.Forget(ctx, deliveryID); err != nil {
		h.logWarn("WEBHOOK", fmt.Sprintf("Failed to release delivery %s: %v", deliveryID, err))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"status":  "error",
		"message": message,
	})
}

func (h *Handler) logInfo(category, message string) {
	if h.Logger != nil {
		h.Logger.Info(category, message)
	}
}

func (h *Handler) logWarn(category, message string) {
	if h.Logger != nil {
		h.Logger.Warn(category, message)
	}
}

func (h *Handler) logErr(category, message string) {
	if h.Logger != nil {
		h.Logger.Error(category, message)
	}
}

func (h *Handler) logSecurity(event, message string) {
	if h.Logger != nil {
		h.Logger.LogSecurity(event, message)
	}
}
