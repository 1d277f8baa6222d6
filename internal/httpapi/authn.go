package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token into a principal. Routes behind it never
// see an anonymous request.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.svc.Auth == nil {
			a.fail(w, r, apperr.Unauthenticated("authentication is not configured"))
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			a.fail(w, r, apperr.Unauthenticated("%v", err))
			return
		}

		principal, err := a.svc.Auth.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUnknownRole) {
				a.fail(w, r, apperr.Unauthenticated("invalid token"))
				return
			}
			a.logger.Error("token resolution failed", zap.Error(err))
			a.fail(w, r, apperr.Internal(err, "authentication error"))
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
