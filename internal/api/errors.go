package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"gmbdash/server/internal/broker"
	"gmbdash/server/internal/db"
	"gmbdash/server/internal/gmb"
	"gmbdash/server/internal/google"
	"gmbdash/server/internal/middleware"
	"gmbdash/server/internal/observability"
	"gmbdash/server/pkg/googleapi"
	"gmbdash/server/pkg/youtubeapi"
)

const maxJSONBody = 1 << 20

// Error is an HTTP error response. It renders as
// {"error": Code, "message": Message, "details": Details}.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func badRequest(message string, details any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message, Details: details}
}

// toError classifies err into the response the client sees. Unknown errors
// become a generic 500 so internals do not leak.
func toError(err error) *Error {
	var (
		apiErr *Error
		verrs  validation.Errors
		upErr  *googleapi.APIError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &verrs):
		return &Error{Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "Request validation failed", Details: verrs}
	case errors.Is(err, db.ErrNotFound):
		return &Error{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	case errors.Is(err, gmb.ErrAccountDisabled):
		return &Error{Status: http.StatusForbidden, Code: "ACCOUNT_DISABLED", Message: "The Google Business Profile account is disconnected"}
	case errors.Is(err, gmb.ErrPostNotEditable):
		return &Error{Status: http.StatusConflict, Code: "POST_PUBLISHED", Message: err.Error()}
	case errors.Is(err, google.ErrInvalidState):
		return &Error{Status: http.StatusBadRequest, Code: "INVALID_STATE", Message: "The authorization request expired. Please try again"}
	case errors.Is(err, google.ErrUnknownProvider):
		return &Error{Status: http.StatusBadRequest, Code: "UNKNOWN_PROVIDER", Message: err.Error()}
	case errors.Is(err, broker.ErrNotConnected):
		return &Error{Status: http.StatusBadRequest, Code: "NOT_CONNECTED", Message: "Connect the account first"}
	case errors.Is(err, broker.ErrReauthRequired), errors.Is(err, googleapi.ErrUnauthorized):
		return &Error{Status: http.StatusConflict, Code: "REAUTH_REQUIRED", Message: "Google authorization expired. Please reconnect"}
	case errors.Is(err, youtubeapi.ErrNoChannel):
		return &Error{Status: http.StatusNotFound, Code: "NO_CHANNEL", Message: "The Google account has no YouTube channel"}
	case db.IsUniqueViolation(err):
		return &Error{Status: http.StatusConflict, Code: "CONFLICT", Message: "Resource already exists"}
	case errors.As(err, &upErr):
		return &Error{Status: http.StatusBadGateway, Code: "UPSTREAM_ERROR", Message: "Google rejected the request", Details: map[string]any{
			"status":  upErr.Status,
			"message": upErr.Message,
		}}
	}
	return &Error{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := toError(err)
	if e.Status >= http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
		observability.LogError(r.Method+" "+r.URL.Path, err)
	}
	writeJSON(w, e.Status, e)
}

// recoverPanic turns a handler panic into the generic 500 envelope.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			log.Printf("[api] panic on %s %s: %v\n%s", r.Method, r.URL.Path, v, debug.Stack())
			observability.LogSecurityEvent(middleware.GetRequestID(r.Context()), userID(r), "panic_recovered", map[string]any{
				"error": fmt.Sprint(v),
				"path":  r.URL.Path,
			})
			writeError(w, r, errors.Errorf("panic: %v", v))
		}()
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return badRequest("Invalid JSON body", err.Error())
	}
	return nil
}

func userID(r *http.Request) string {
	if ac := middleware.GetAuthContext(r.Context()); ac != nil {
		return ac.UserID
	}
	return ""
}
