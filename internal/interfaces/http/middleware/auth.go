// Package middleware holds the gin middleware chain of the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/pkg/errors"
)

const (
	bearerPrefix = "Bearer "

	// UserIDHeader carries the caller identity when token validation is
	// disabled and an upstream gateway has already authenticated the user.
	UserIDHeader = "X-User-ID"

	userIDKey = "user_id"
)

type userIDContextKey struct{}

// Claims are the token claims the server relies on.  The user id is the
// standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the caller of a request into an explicit user id.
type AuthMiddleware struct {
	enabled bool
	secret  []byte
	issuer  string
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewAuthMiddleware creates an AuthMiddleware.  metrics may be nil.
func NewAuthMiddleware(cfg config.AuthConfig, metrics *prometheus.AppMetrics, logger logging.Logger) *AuthMiddleware {
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	return &AuthMiddleware{
		enabled: cfg.Enabled,
		secret:  []byte(cfg.JWTSecret),
		issuer:  cfg.Issuer,
		metrics: metrics,
		logger:  logger.Named("auth"),
	}
}

// RequireAuth rejects requests that carry no valid identity with 401.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, reason := m.resolve(c)
		if userID == "" {
			prometheus.RecordAuthAttempt(m.metrics, false, reason)
			m.logger.WithContext(c.Request.Context()).Debug("request rejected",
				logging.String("reason", reason),
				logging.String("path", c.Request.URL.Path))
			AbortWithError(c, errors.Unauthorized("authentication required"))
			return
		}
		prometheus.RecordAuthAttempt(m.metrics, true, "")
		setUserID(c, userID)
		c.Next()
	}
}

// OptionalAuth attaches the identity when one is presented and lets
// anonymous requests through.  An invalid token is treated as absent.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, _ := m.resolve(c); userID != "" {
			setUserID(c, userID)
		}
		c.Next()
	}
}

// resolve returns the caller's user id, or an empty id and the reason it
// could not be established.
func (m *AuthMiddleware) resolve(c *gin.Context) (string, string) {
	if !m.enabled {
		id := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if id == "" {
			return "", "missing_identity"
		}
		return id, ""
	}

	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", "missing_token"
	}
	claims, err := m.ParseToken(strings.TrimSpace(header[len(bearerPrefix):]))
	if err != nil {
		return "", "invalid_token"
	}
	if claims.Subject == "" {
		return "", "missing_subject"
	}
	return claims.Subject, ""
}

// ParseToken validates an HS256 token against the configured secret and
// issuer.
func (m *AuthMiddleware) ParseToken(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, errors.Unauthorized("invalid token")
	}
	return claims, nil
}

func setUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.Scope().SetUser(sentry.User{ID: userID})
	}
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), userIDContextKey{}, userID))
}

// ContextGetUserID returns the user id attached by the auth middleware, or
// an empty string for anonymous requests.
func ContextGetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// UserIDFromContext is ContextGetUserID for code holding only the request
// context.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey{}).(string)
	return id
}

// ErrorResponse is the error body of the /api/v1 routes.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AbortWithError writes err as {code, message} with the status mapped from
// its code.  Messages of server errors are masked.
func AbortWithError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)
	msg := errors.DefaultMessageForCode(code)
	var appErr *errors.AppError
	if status < http.StatusInternalServerError && errors.As(err, &appErr) {
		msg = appErr.Message
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: string(code), Message: msg})
}
