package handler

import (
	"net/http"

	"workbridge/internal/model"
	"workbridge/internal/service"
)

type EscrowHandler struct {
	service *service.EscrowService
}

func NewEscrowHandler(service *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{service: service}
}

// ListMine returns transactions where the caller is the client or the
// freelancer.
func (h *EscrowHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListFor(r.Context(), actorFromRequest(r).UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, list, nil)
}

func (h *EscrowHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, list, nil)
}

func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	txnID, err := pathID(r, model.ErrTransactionNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	txn, err := h.service.Release(r.Context(), actorFromRequest(r), txnID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, txn, nil)
}

func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	txnID, err := pathID(r, model.ErrTransactionNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	txn, err := h.service.Refund(r.Context(), actorFromRequest(r), txnID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, txn, nil)
}
