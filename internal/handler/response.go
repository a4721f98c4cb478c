package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"workbridge/internal/model"
	"workbridge/pkg/apierror"
)

type sentinel struct {
	err     error
	status  int
	code    string
	message string
}

var sentinels = []sentinel{
	{model.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND", "User not found"},
	{model.ErrUserAlreadyExists, http.StatusConflict, "ALREADY_EXISTS", "User already exists"},
	{model.ErrInvalidCredentials, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials"},
	{model.ErrAccountLocked, http.StatusLocked, "ACCOUNT_LOCKED", "Account temporarily locked"},
	{model.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated"},
	{model.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Access denied"},
	{model.ErrProjectNotFound, http.StatusNotFound, "NOT_FOUND", "Project not found"},
	{model.ErrProjectNotOpen, http.StatusConflict, "CONFLICT", "Project is not open"},
	{model.ErrProposalNotFound, http.StatusNotFound, "NOT_FOUND", "Proposal not found"},
	{model.ErrDuplicateProposal, http.StatusConflict, "ALREADY_EXISTS", "Proposal already submitted"},
	{model.ErrTransactionNotFound, http.StatusNotFound, "NOT_FOUND", "Transaction not found"},
	{model.ErrInvalidTransition, http.StatusConflict, "CONFLICT", "Invalid status transition"},
	{model.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST", "Invalid input"},
}

func writeJSON(w http.ResponseWriter, status int, body model.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	writeJSON(w, status, model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := model.APIResponse{
		Success: false,
		Error:   "Unexpected server error",
		Code:    "INTERNAL_ERROR",
	}

	var apiErr *apierror.APIError
	matched := false
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Error = apiErr.Message
		body.Details = apiErr.Details
		matched = true
	} else {
		for _, s := range sentinels {
			if errors.Is(err, s.err) {
				status = s.status
				body.Code = s.code
				body.Error = s.message
				matched = true
				break
			}
		}
	}

	if !matched {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	writeJSON(w, status, body)
}

// maxJSONBody caps request bodies; every JSON payload this API accepts is a
// few short fields.
const maxJSONBody = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return apierror.New("PAYLOAD_TOO_LARGE", "request body too large", "", http.StatusRequestEntityTooLarge)
		}
		return apierror.BadRequest("invalid JSON body", "")
	}
	return nil
}
