package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/saga-system/order-service/application"
)

// OrderHandlers contains order HTTP handlers
type OrderHandlers struct {
	createOrder  *application.CreateOrder
	confirmOrder *application.ConfirmOrder
	cancelOrder  *application.CancelOrder
	getOrder     *application.GetOrder
	listOrders   *application.ListOrders
}

// NewOrderHandlers creates new order handlers
func NewOrderHandlers(
	createOrder *application.CreateOrder,
	confirmOrder *application.ConfirmOrder,
	cancelOrder *application.CancelOrder,
	getOrder *application.GetOrder,
	listOrders *application.ListOrders,
) *OrderHandlers {
	return &OrderHandlers{
		createOrder:  createOrder,
		confirmOrder: confirmOrder,
		cancelOrder:  cancelOrder,
		getOrder:     getOrder,
		listOrders:   listOrders,
	}
}

// CreateOrder handles order creation requests
func (h *OrderHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.createOrder.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// GetOrder handles order retrieval requests
func (h *OrderHandlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	query := &application.GetOrderQuery{
		OrderID:   chi.URLParam(r, "id"),
		Reference: r.URL.Query().Get("reference"),
	}

	order, err := h.getOrder.Execute(r.Context(), query)
	if err != nil {
		if err.Error() == "order not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(order)
}

// ListOrders handles order listing requests
func (h *OrderHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	orders, err := h.listOrders.Execute(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

// ConfirmOrder handles order confirmation requests
func (h *OrderHandlers) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	cmd := &application.ConfirmOrderCommand{OrderID: chi.URLParam(r, "id")}

	response, err := h.confirmOrder.Execute(r.Context(), cmd)
	if err != nil {
		if err.Error() == "order not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// CancelOrder handles order cancellation requests
func (h *OrderHandlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var cmd application.CancelOrderCommand
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&cmd)
	}
	cmd.OrderID = chi.URLParam(r, "id")

	response, err := h.cancelOrder.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// RegisterRoutes registers order routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Post("/confirm", h.ConfirmOrder)
			r.Post("/cancel", h.CancelOrder)
		})
	})
}
