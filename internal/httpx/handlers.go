package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	kafkax "github.com/campuscoop/store-reserve/internal/kafka"
	"github.com/campuscoop/store-reserve/internal/redisx"
	"github.com/campuscoop/store-reserve/internal/reserve"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type Handler struct {
	Engine  *reserve.Engine
	Redis   *redis.Client
	Orders  *kafkax.Producer // store.order.reserved
	Stock   *kafkax.Producer // store.stock.changed
	Settle  *kafkax.Producer // store.order.verified
	Service string
}

type holdReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type checkoutReq struct {
	UserID string              `json:"user_id"`
	Items  []reserve.ItemInput `json:"items"`
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/cart/hold", h.hold)
	r.Post("/cart/release", h.release)
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/users/{id}/orders", h.listUserOrders)
	r.Get("/products", h.listProducts)
	r.Get("/redeem/{code}", h.resolve)
	r.Post("/redeem/{code}/verify", h.verify)
	r.Put("/admin/products/{id}", h.putProduct)
	r.Put("/admin/accounts/{id}", h.putAccount)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the engine taxonomy to status codes and tells the caller
// whether plain retry can help (contention) or their input/state must change
// first (funds, stock).
func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, reserve.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, reserve.ErrNotAuthenticated):
		code = http.StatusUnauthorized
	case errors.Is(err, reserve.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, reserve.ErrInsufficientFunds):
		code = http.StatusPaymentRequired
	case errors.Is(err, reserve.ErrOutOfStock):
		code = http.StatusConflict
	case errors.Is(err, reserve.ErrContention), errors.Is(err, reserve.ErrCodeExhausted):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"error":     err.Error(),
		"retryable": reserve.Retryable(err),
	})
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	var req holdReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.Hold(ctx, req.ProductID, req.Qty); err != nil {
		writeErr(w, err)
		return
	}
	h.publishStockChanged(ctx, r, req.ProductID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	var req holdReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.Release(ctx, req.ProductID, req.Qty); err != nil {
		writeErr(w, err)
		return
	}
	h.publishStockChanged(ctx, r, req.ProductID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Engine.Checkout(ctx, req.UserID, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}

	if h.Orders != nil {
		ev := reserve.Envelope{
			EventID:       uuid.NewString(),
			EventType:     reserve.EventOrderReserved,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       r.Header.Get("X-Request-Id"),
			CorrelationID: res.OrderID,
		}
		ev.Payload = kafkax.MustMarshal(reserve.OrderReservedPayload{
			OrderID:    res.OrderID,
			UserID:     req.UserID,
			Items:      res.Items,
			TotalCents: res.TotalCents,
			ExpiresAt:  res.ExpiresAt,
		})
		h.Orders.Publish(reserve.PartitionKey(res.OrderID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(reserve.EventOrderReserved)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}
	for _, it := range req.Items {
		h.publishStockChanged(ctx, r, it.ProductID)
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// Terminal orders are immutable, so those cache hits are always valid.
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Engine.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if h.Redis != nil && o.Status != reserve.StatusReserved {
		b, _ := json.Marshal(o)
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	writeJSON(w, http.StatusOK, o)
}

// listUserOrders serves the shopper's own reservation and pickup-history
// pages. ?status=reserved|verified|expired narrows the list, ?limit caps it.
func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := reserve.Status(r.URL.Query().Get("status"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := h.Engine.ListOrdersByUser(ctx, userID, status, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if orders == nil {
		orders = []reserve.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Engine.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Engine.ResolveByCode(ctx, code)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.Verify(ctx, code)
	if err != nil {
		writeErr(w, err)
		return
	}

	if h.Settle != nil {
		ev := reserve.Envelope{
			EventID:       uuid.NewString(),
			EventType:     reserve.EventOrderVerified,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       r.Header.Get("X-Request-Id"),
			CorrelationID: o.ID,
		}
		ev.Payload = kafkax.MustMarshal(reserve.OrderVerifiedPayload{
			OrderID:    o.ID,
			UserID:     o.UserID,
			VerifiedAt: *o.VerifiedAt,
		})
		h.Settle.Publish(reserve.PartitionKey(o.ID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(reserve.EventOrderVerified)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) putProduct(w http.ResponseWriter, r *http.Request) {
	var p reserve.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	p.ID = chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.PutProduct(ctx, p); err != nil {
		writeErr(w, err)
		return
	}
	h.publishStockChanged(ctx, r, p.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) putAccount(w http.ResponseWriter, r *http.Request) {
	var a reserve.Account
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	a.ID = chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Engine.PutAccount(ctx, a); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// publishStockChanged emits the post-commit product snapshot for the catalog
// read model. Best effort: a missed event only delays the next snapshot.
func (h *Handler) publishStockChanged(ctx context.Context, r *http.Request, productID string) {
	if h.Stock == nil {
		return
	}
	p, err := h.Engine.GetProduct(ctx, productID)
	if err != nil {
		return
	}
	ev := reserve.Envelope{
		EventID:       uuid.NewString(),
		EventType:     reserve.EventStockChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: productID,
	}
	ev.Payload = kafkax.MustMarshal(reserve.StockChangedPayload{
		ProductID: p.ID,
		Name:      p.Name,
		Stock:     p.Stock,
		Reserved:  p.Reserved,
		Available: p.Available(),
	})
	h.Stock.Publish(reserve.PartitionKey(productID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(reserve.EventStockChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
