package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/2beens/coachprogress/internal/auth"
	"github.com/2beens/coachprogress/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:generate mockgen -source=$GOFILE -destination=auth_mocks_test.go -package=middleware_test

type revocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type AuthMiddlewareHandler struct {
	authConfig           auth.Config
	revocationChecker    revocationChecker
	allowedPaths         map[string]bool
	allowedPathsPrefixes []string
}

// NewAuthMiddlewareHandler creates the bearer token check. revocationChecker may be nil.
func NewAuthMiddlewareHandler(
	authConfig auth.Config,
	revocationChecker revocationChecker,
) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		authConfig:        authConfig,
		revocationChecker: revocationChecker,
		allowedPaths: map[string]bool{
			"/":         true,
			"/version":  true,
			"/plan/day": true,
		},
		allowedPathsPrefixes: []string{
			"/health",
		},
	}
}

func (h *AuthMiddlewareHandler) pathIsAlwaysAllowed(path string) bool {
	if h.allowedPaths[path] {
		return true
	}
	for _, prefix := range h.allowedPathsPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			// preflight requests are answered by the cors middleware
			if r.Method == http.MethodOptions {
				span.SetStatus(codes.Ok, "options-ok")
				next.ServeHTTP(w, r)
				return
			}

			if h.pathIsAlwaysAllowed(r.URL.Path) {
				span.SetStatus(codes.Ok, "ok")
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.Parse(bearerToken(r), h.authConfig)
			if err != nil {
				if errors.Is(err, auth.ErrMissingToken) {
					log.Tracef("[missing token] [auth middleware] unauthorized => %s", r.URL.Path)
					span.SetStatus(codes.Error, "missing-auth-token")
				} else {
					log.Debugf("[invalid token] [auth middleware] unauthorized => %s: %s", r.URL.Path, err)
					span.SetStatus(codes.Error, "invalid-auth-token")
				}
				http.Error(w, "no can do", http.StatusUnauthorized)
				return
			}

			if h.revocationChecker != nil {
				revoked, err := h.revocationChecker.IsRevoked(ctx, claims.TokenID)
				if err != nil {
					log.Errorf("[failed revocation check] => %s: %s", r.URL.Path, err)
					http.Error(w, "no can do", http.StatusUnauthorized)
					span.SetStatus(codes.Error, "check-revoked-err")
					span.RecordError(err)
					return
				}
				if revoked {
					log.Tracef("[revoked token] [auth middleware] unauthorized => %s", r.URL.Path)
					http.Error(w, "no can do", http.StatusUnauthorized)
					span.SetStatus(codes.Error, "revoked")
					return
				}
			}

			span.SetAttributes(attribute.String("user.id", claims.Subject))
			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
