package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/restclient"
	"storefront/pkg/session"
	"storefront/pkg/storage"
	"storefront/services/storefront/internal/app"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeImage(w http.ResponseWriter, img storage.Image) {
	contentType := img.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(img.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeAppError maps an app or backend error onto a response.
func writeAppError(w http.ResponseWriter, err error) {
	var verr *restclient.ValidationError
	var apiErr *restclient.APIError
	switch {
	case errors.Is(err, app.ErrSessionPending):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "session check in progress")
	case errors.Is(err, app.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Code: string(restclient.KindValidation), Field: verr.Field})
	case errors.Is(err, restclient.ErrAuthRejected):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: string(restclient.KindAuthRejected)})
	case errors.As(err, &apiErr):
		status := apiErr.Status
		switch {
		case status < 400:
			status = http.StatusConflict
		case status >= 500:
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorResponse{Error: apiErr.Message, Code: apiErr.Code})
	case errors.Is(err, restclient.ErrNetwork):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "backend unavailable", Code: string(restclient.KindNetwork)})
	case errors.Is(err, restclient.ErrMalformed), errors.Is(err, session.ErrInvalidLogin):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "unexpected backend response", Code: string(restclient.KindMalformed)})
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
