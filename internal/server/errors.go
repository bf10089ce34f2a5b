package server

import (
	"net/http"

	"github.com/maaquib/djl-serving/internal/ratelimit"
)

// WriteError writes a JSON error response for an observed failure in the
// given category. The admission gate is consulted once per observed error;
// when the category's rate has tripped the response degrades to the
// configured throttle status code instead of the caller's status.
func (s *Server) WriteError(w http.ResponseWriter, r *http.Request, category string, status int, message string) {
	if s.exceeded(category) {
		status = s.cfg.ThrottleErrorHTTPCode()
		message = "Request throttled"
		s.log.Warn().
			Str("category", category).
			Str("request_id", RequestIDFromContext(r.Context())).
			Msg("error rate exceeded, throttling")
	}

	writeJSON(w, status, map[string]any{
		"code":    status,
		"message": message,
	})
}

func (s *Server) exceeded(category string) bool {
	switch category {
	case ratelimit.CategoryWlm:
		return s.gate.OnWlmError()
	case ratelimit.CategoryServer:
		return s.gate.OnServerError()
	case ratelimit.CategoryModel:
		return s.gate.OnModelError()
	default:
		return false
	}
}
