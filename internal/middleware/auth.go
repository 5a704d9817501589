package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/service"
)

// UserClaims is the bearer token payload. The user id travels in "id";
// "sub" is accepted as a fallback.
type UserClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id carried by the claims.
func (c *UserClaims) UserID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Subject
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret []byte, tokenString string) (*UserClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*UserClaims)
	if !ok || !parsed.Valid || claims.UserID() == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// bearerToken reads the token from the Authorization header, falling back
// to the "token" query parameter that browser websocket clients use.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the user id in the request context.
func AuthMiddleware(secret []byte, tr *i18n.Translator, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, errors.NewAuthError("missing bearer token").WithUserMessage(tr.T(i18n.KeyAccessTokenMissing)))
				return
			}

			claims, err := ParseToken(secret, token)
			if err != nil {
				logger.WithFields(logrus.Fields{
					service.LogFieldRemoteIP: ClientIP(r),
					service.LogFieldRoute:    routeLabel(r),
				}).WithError(err).Debug("Rejected bearer token")
				writeAuthError(w, errors.NewAuthError(err.Error()).WithUserMessage(tr.T(i18n.KeyAccessTokenInvalid)))
				return
			}

			ctx := errors.ContextWithUserID(r.Context(), claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatusCode(err))
	_ = json.NewEncoder(w).Encode(errors.ToEnvelope(err))
}
