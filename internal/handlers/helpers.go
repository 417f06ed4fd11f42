package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/orbital/internal/models"
	"github.com/ternarybob/orbital/internal/orders"
	"github.com/ternarybob/orbital/internal/services/config"
	"github.com/ternarybob/orbital/internal/workflows"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"detail": message,
	})
}

// WriteDomainError maps the service error taxonomy onto HTTP status codes.
func WriteDomainError(w http.ResponseWriter, err error) {
	var requestErr *orders.RequestError
	var wfRequestErr *workflows.RequestError
	var forbiddenErr *orders.ForbiddenError
	var quotaErr *orders.QuotaExceededError
	var configErr *config.ConfigurationError

	switch {
	case errors.As(err, &requestErr), errors.As(err, &wfRequestErr):
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case orders.IsNotFound(err):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &forbiddenErr):
		WriteError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &quotaErr):
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &configErr):
		WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// UserFromRequest builds the caller identity from the X-Username and
// X-Roles headers.
func UserFromRequest(r *http.Request) models.User {
	username := r.Header.Get("X-Username")
	if username == "" {
		username = models.DefaultUser
	}
	var roles []string
	if raw := r.Header.Get("X-Roles"); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}
	return models.User{Username: username, Roles: roles}
}
