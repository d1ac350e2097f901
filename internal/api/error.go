package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/merkelview/merkel-server/internal/model"
)

// errorResponse is the unified error body.
type errorResponse struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps service failures to HTTP statuses. Auth failures are 401
// except for throttling (429) and duplicate registration (409); anything
// unclassified is a 500 with a generic body.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "not found"})
		return
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    "INTERNAL",
			Message: "internal server error",
		})
		return
	}

	status := http.StatusInternalServerError
	switch apiErr.Kind {
	case model.KindValidation, model.KindUpload:
		status = http.StatusBadRequest
	case model.KindAuth:
		switch apiErr.Code {
		case model.CodeRateLimited:
			status = http.StatusTooManyRequests
		case model.CodeEmailTaken:
			status = http.StatusConflict
		default:
			status = http.StatusUnauthorized
		}
	case model.KindPermission:
		status = http.StatusForbidden
	case model.KindGeocode:
		status = http.StatusNotFound
	case model.KindPersistence:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, errorResponse{
		Code:    apiErr.Code,
		Kind:    string(apiErr.Kind),
		Message: apiErr.Message,
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{
		Code:    "UNAUTHORIZED",
		Message: "authentication required",
	})
}
