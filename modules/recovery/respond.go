package recovery

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// jsonResponse is the standard envelope for recovery endpoints.
type jsonResponse struct {
	Data  any          `json:"data,omitempty"`
	Error *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Service) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(jsonResponse{Data: data}); err != nil {
		s.log.Error("failed to encode response", logger.Error(err))
	}
}

func (s *Service) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), message,
			logger.RequestID(middleware.GetReqID(r.Context())),
		)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonResponse{Error: &errorDetail{Code: code, Message: message}})
}
