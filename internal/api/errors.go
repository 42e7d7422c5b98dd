package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	writeError(w, statusCode, types.ServiceError{
		Code:    code,
		Message: message,
		Details: details,
	})
}

func writeError(w http.ResponseWriter, statusCode int, svcErr types.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: svcErr})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// respondServiceError maps a service error to its HTTP status. Server-side
// failures are logged and reported without their cause.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)
	if !apperrors.IsUserError(catErr) {
		logging.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"path":     r.URL.Path,
			"category": string(catErr.Category),
		}).Error("request failed")

		message := "An internal error occurred"
		if catErr.Category == apperrors.CategoryProvider {
			message = "An upstream data provider failed"
		}
		respondError(w, catErr.StatusCode, catErr.Code, message, nil)
		return
	}
	writeError(w, catErr.StatusCode, *catErr.ToServiceError())
}
