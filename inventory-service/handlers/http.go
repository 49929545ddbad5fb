package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/inventory-service/application"
	"github.com/orderflow/saga-system/inventory-service/domain"
)

// InventoryHandlers contains inventory HTTP handlers
type InventoryHandlers struct {
	reserveStock       *application.ReserveStock
	releaseStock       *application.ReleaseStock
	confirmReservation *application.ConfirmReservation
	getStock           *application.GetStock
	listStock          *application.ListStock
}

// NewInventoryHandlers creates new inventory handlers
func NewInventoryHandlers(
	reserveStock *application.ReserveStock,
	releaseStock *application.ReleaseStock,
	confirmReservation *application.ConfirmReservation,
	getStock *application.GetStock,
	listStock *application.ListStock,
) *InventoryHandlers {
	return &InventoryHandlers{
		reserveStock:       reserveStock,
		releaseStock:       releaseStock,
		confirmReservation: confirmReservation,
		getStock:           getStock,
		listStock:          listStock,
	}
}

// ReserveStock handles reservation requests
func (h *InventoryHandlers) ReserveStock(w http.ResponseWriter, r *http.Request) {
	var cmd application.ReserveStockCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.reserveStock.Execute(r.Context(), &cmd)
	if err != nil {
		if errors.Cause(err) == domain.ErrInsufficientStock {
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

// ReleaseStock handles reservation release requests
func (h *InventoryHandlers) ReleaseStock(w http.ResponseWriter, r *http.Request) {
	var cmd application.ReleaseStockCommand
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&cmd)
	}
	if id := chi.URLParam(r, "id"); id != "" {
		cmd.ReservationID = id
	}

	response, err := h.releaseStock.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ConfirmReservation handles reservation confirmation requests
func (h *InventoryHandlers) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	cmd := &application.ConfirmReservationCommand{ReservationID: chi.URLParam(r, "id")}

	response, err := h.confirmReservation.Execute(r.Context(), cmd)
	if err != nil {
		if err.Error() == "reservation not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetStock handles stock retrieval requests
func (h *InventoryHandlers) GetStock(w http.ResponseWriter, r *http.Request) {
	item, err := h.getStock.Execute(r.Context(), chi.URLParam(r, "product_id"))
	if err != nil {
		if err.Error() == "product not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// ListStock handles stock listing requests
func (h *InventoryHandlers) ListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.listStock.Execute(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// RegisterRoutes registers inventory routes
func (h *InventoryHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Get("/", h.ListStock)
		r.Get("/{product_id}", h.GetStock)
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.ReserveStock)
			r.Post("/{id}/release", h.ReleaseStock)
			r.Post("/{id}/confirm", h.ConfirmReservation)
		})
	})
}
