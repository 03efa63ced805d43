package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gmbdash/server/internal/auth"
	"gmbdash/server/internal/observability"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// AuthContextKey is the context key for auth context
	AuthContextKey ContextKey = "authContext"
	// RequestIDKey is the context key for request tracing ID
	RequestIDKey ContextKey = "requestID"
)

// SessionCookie is the cookie the dashboard sets with the Supabase access token.
const SessionCookie = "sb-access-token"

// AuthContext identifies the signed-in dashboard user.
type AuthContext struct {
	UserID    string
	Email     string
	Role      string
	SessionID string
}

// SessionVerifier validates an access token.
type SessionVerifier interface {
	Verify(token string) (*auth.SessionClaims, error)
}

// Authorizer gates routes on a valid Supabase session.
type Authorizer struct {
	verifier SessionVerifier
}

func NewAuthorizer(verifier SessionVerifier) *Authorizer {
	return &Authorizer{verifier: verifier}
}

// Authorize is HTTP middleware that rejects requests without a valid session.
func (a *Authorizer) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if GetRequestID(ctx) == "" {
			ctx = context.WithValue(ctx, RequestIDKey, generateRequestID())
		}

		authCtx, err := a.ValidateRequest(r.WithContext(ctx))
		if err != nil {
			writeErrorResponse(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAuthContext(ctx, authCtx)))
	})
}

// ValidateRequest resolves the session from the Authorization header or cookie.
func (a *Authorizer) ValidateRequest(r *http.Request) (*AuthContext, error) {
	requestID := GetRequestID(r.Context())

	token := sessionToken(r)
	if token == "" {
		return nil, &AuthError{
			Code:    "UNAUTHORIZED",
			Message: "Authentication required",
			Status:  http.StatusUnauthorized,
		}
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		observability.LogSecurityEvent(requestID, "", "invalid_session", map[string]any{
			"remote_addr": r.RemoteAddr,
			"error":       err.Error(),
		})
		return nil, &AuthError{
			Code:    "INVALID_SESSION",
			Message: "Session is invalid or expired",
			Status:  http.StatusUnauthorized,
		}
	}

	if claims.Role != "" && claims.Role != "authenticated" {
		observability.LogSecurityEvent(requestID, claims.Subject, "forbidden_role", map[string]any{
			"role": claims.Role,
		})
		return nil, &AuthError{
			Code:    "FORBIDDEN",
			Message: fmt.Sprintf("Role %q may not use the dashboard API", claims.Role),
			Status:  http.StatusForbidden,
		}
	}

	return &AuthContext{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// AuthError represents an authorization error
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *AuthError) Error() string {
	return e.Message
}

func writeErrorResponse(w http.ResponseWriter, err error) {
	authErr, ok := err.(*AuthError)
	if !ok {
		authErr = &AuthError{
			Code:    "AUTHORIZATION_ERROR",
			Message: err.Error(),
			Status:  http.StatusInternalServerError,
		}
	}
	writeJSONError(w, authErr.Status, authErr.Code, authErr.Message)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error":   code,
		"message": message,
	})
}

// WithAuthContext stores the auth context; handlers read it with GetAuthContext.
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, ac)
}

// GetAuthContext extracts auth context from request context
func GetAuthContext(ctx context.Context) *AuthContext {
	authCtx, _ := ctx.Value(AuthContextKey).(*AuthContext)
	return authCtx
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// RequestID propagates X-Request-ID or assigns a fresh one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
	})
}

// generateRequestID creates a random 16-byte hex request ID
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", os.Getpid())
	}
	return hex.EncodeToString(b)
}
