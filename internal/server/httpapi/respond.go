package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/filedrop/internal/common"
)

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
	// Details carries machine-readable repair hints (e.g. missing part
	// numbers) when the failure is safe to describe.
	Details any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message, Code: status})
}

// writeDomainError maps service errors to HTTP responses. Token and
// signature failures deliberately collapse into one generic message.
func writeDomainError(w http.ResponseWriter, err error) {
	var quotaErr *common.QuotaExceededError
	if errors.As(err, &quotaErr) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Success: false,
			Error:   quotaErr.Error(),
			Code:    http.StatusRequestEntityTooLarge,
			Details: map[string]int64{
				"requested_bytes": quotaErr.RequestedBytes,
				"remaining_bytes": quotaErr.RemainingBytes,
			},
		})
		return
	}

	var partsErr *common.IncompletePartSetError
	if errors.As(err, &partsErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Success: false,
			Error:   "incomplete part set",
			Code:    http.StatusBadRequest,
			Details: map[string][]int32{
				"missing":   partsErr.Missing,
				"duplicate": partsErr.Duplicate,
			},
		})
		return
	}

	switch {
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrSessionClosed):
		writeError(w, http.StatusConflict, "upload session closed")
	case errors.Is(err, common.ErrAssemblyFailed):
		writeError(w, http.StatusBadGateway, "assembly failed, retry with the same parts")
	case errors.Is(err, common.ErrInvalidSignature),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrMalformedToken),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusForbidden, "access denied")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
