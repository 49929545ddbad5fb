package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/payment-service/application"
	"github.com/orderflow/saga-system/payment-service/domain"
)

// PaymentHandlers contains payment HTTP handlers
type PaymentHandlers struct {
	processPayment *application.ProcessPayment
	refundPayment  *application.RefundPayment
	getPayment     *application.GetPayment
	getBalance     *application.GetBalance
}

// NewPaymentHandlers creates new payment handlers
func NewPaymentHandlers(
	processPayment *application.ProcessPayment,
	refundPayment *application.RefundPayment,
	getPayment *application.GetPayment,
	getBalance *application.GetBalance,
) *PaymentHandlers {
	return &PaymentHandlers{
		processPayment: processPayment,
		refundPayment:  refundPayment,
		getPayment:     getPayment,
		getBalance:     getBalance,
	}
}

// ProcessPayment handles charge requests
func (h *PaymentHandlers) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var cmd application.ProcessPaymentCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.processPayment.Execute(r.Context(), &cmd)
	if err != nil {
		if errors.Cause(err) == domain.ErrInsufficientFunds {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// RefundPayment handles refund requests
func (h *PaymentHandlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var cmd application.RefundPaymentCommand
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&cmd)
	}
	if id := chi.URLParam(r, "id"); id != "" {
		cmd.PaymentID = id
	}

	response, err := h.refundPayment.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetPayment handles payment retrieval requests
func (h *PaymentHandlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	query := &application.GetPaymentQuery{
		PaymentID: chi.URLParam(r, "id"),
		Reference: r.URL.Query().Get("reference"),
	}

	payment, err := h.getPayment.Execute(r.Context(), query)
	if err != nil {
		if err.Error() == "payment not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payment)
}

// GetBalance handles balance retrieval requests
func (h *PaymentHandlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := h.getBalance.Execute(r.Context(), chi.URLParam(r, "customer_id"))
	if err != nil {
		if err.Error() == "account not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// RegisterRoutes registers payment routes
func (h *PaymentHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.ProcessPayment)
			r.Get("/{id}", h.GetPayment)
			r.Post("/{id}/refund", h.RefundPayment)
		})
		r.Get("/accounts/{customer_id}", h.GetBalance)
	})
}
