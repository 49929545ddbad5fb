package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/saga-system/saga-service/application"
)

// SagaHandlers contains saga HTTP handlers
type SagaHandlers struct {
	startSaga        *application.StartSaga
	getTransaction   *application.GetTransaction
	listTransactions *application.ListTransactions
}

// NewSagaHandlers creates new saga handlers
func NewSagaHandlers(
	startSaga *application.StartSaga,
	getTransaction *application.GetTransaction,
	listTransactions *application.ListTransactions,
) *SagaHandlers {
	return &SagaHandlers{
		startSaga:        startSaga,
		getTransaction:   getTransaction,
		listTransactions: listTransactions,
	}
}

// StartSaga handles saga start requests. The request is synchronous: the
// response carries the terminal transaction record, completed or
// compensated.
func (h *SagaHandlers) StartSaga(w http.ResponseWriter, r *http.Request) {
	var cmd application.StartSagaCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	txn, err := h.startSaga.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(txn)
}

// GetTransaction handles transaction retrieval requests
func (h *SagaHandlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.getTransaction.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if err.Error() == "transaction not found" {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txn)
}

// ListTransactions handles transaction listing requests
func (h *SagaHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := &application.ListTransactionsQuery{
		Phase:        r.URL.Query().Get("phase"),
		DefinitionID: r.URL.Query().Get("definition"),
	}

	transactions, err := h.listTransactions.Execute(r.Context(), query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// RegisterRoutes registers saga routes
func (h *SagaHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/sagas", func(r chi.Router) {
		r.Post("/", h.StartSaga)
		r.Get("/", h.ListTransactions)
		r.Get("/{id}", h.GetTransaction)
	})
}
