package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vexguard/api/pkg/apierror"
	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/apikey"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/jwt"
	"github.com/vexguard/api/pkg/logger"
)

type contextKey string

const (
	claimsContextKey contextKey = "jwt_claims"
	apiKeyContextKey contextKey = "api_key"
)

// APIKeyHeader carries the IDE plugin credential.
const APIKeyHeader = "X-API-Key"

// TeamHeader selects the acting team for users who belong to several.
const TeamHeader = "X-Team-ID"

// APIKeyAuthenticator validates a raw API key and returns its record.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*apikey.APIKey, error)
}

// GetClaims extracts the validated JWT claims from context.
func GetClaims(ctx context.Context) *jwt.Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*jwt.Claims); ok {
		return claims
	}
	return nil
}

// GetAPIKey extracts the authenticated API key from context.
func GetAPIKey(ctx context.Context) *apikey.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(*apikey.APIKey); ok {
		return key
	}
	return nil
}

// JWTAuth authenticates dashboard requests with a Bearer token and
// scopes them to a team. Users in several teams pick one with the
// X-Team-ID header; single-team users get theirs by default.
func JWTAuth(generator *jwt.Generator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, r, apierror.Unauthorized(""))
				return
			}

			claims, err := generator.Validate(token)
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					writeAuthError(w, r, apierror.Unauthorized("Token has expired"))
					return
				}
				log.Warn("token validation failed",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, r, apierror.Unauthorized(""))
				return
			}

			teamID := r.Header.Get(TeamHeader)
			switch {
			case teamID != "":
				if !claims.HasTeamAccess(teamID) {
					writeAuthError(w, r, apierror.Forbidden("No access to the requested team"))
					return
				}
			case len(claims.Teams) == 1:
				teamID = claims.Teams[0].TeamID
			default:
				writeAuthError(w, r, apierror.BadRequest("X-Team-ID header is required"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			ctx = context.WithValue(ctx, TeamIDKey, teamID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyAuth authenticates IDE requests with an API key from the
// X-API-Key header, falling back to a Bearer token carrying the issued
// key prefix. The key's team scopes the request.
func APIKeyAuth(keys APIKeyAuthenticator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(APIKeyHeader)
			if rawKey == "" {
				if token := bearerToken(r); strings.HasPrefix(token, crypto.APIKeyPrefix) {
					rawKey = token
				}
			}
			if rawKey == "" {
				writeAuthError(w, r, apierror.InvalidAPIKey())
				return
			}

			key, err := keys.Authenticate(r.Context(), rawKey)
			if err != nil {
				switch {
				case errors.Is(err, apikey.ErrAPIKeyDisabled):
					writeAuthError(w, r, apierror.APIKeyDisabled())
				case errors.Is(err, apikey.ErrAPIKeyExpired):
					writeAuthError(w, r, apierror.Unauthorized("API key has expired"))
				case shared.IsNotFound(err):
					writeAuthError(w, r, apierror.InvalidAPIKey())
				default:
					log.Error("api key authentication failed",
						"error", err,
						"request_id", GetRequestID(r.Context()),
					)
					apierror.InternalError(err).WriteJSON(w)
				}
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			ctx = context.WithValue(ctx, TeamIDKey, key.TeamID().String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, r *http.Request, apiErr *apierror.Error) {
	apiErr.WriteJSONWithRequestID(w, GetRequestID(r.Context()))
}
