package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/2beens/coachprogress/pkg"

	log "github.com/sirupsen/logrus"
)

type revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

type Handler struct {
	revoker revoker
	now     func() time.Time
}

func NewHandler(revoker revoker) *Handler {
	return &Handler{
		revoker: revoker,
		now:     time.Now,
	}
}

// HandleRevoke revokes the token the request was authenticated with, until it expires.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := FromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}
	if claims.TokenID == "" {
		http.Error(w, "token has no id, cannot be revoked", http.StatusBadRequest)
		return
	}

	ttl := claims.ExpiresAt.Sub(h.now())
	if err := h.revoker.Revoke(r.Context(), claims.TokenID, ttl); err != nil {
		log.Errorf("revoke token [%s] of user [%s]: %s", claims.TokenID, claims.Subject, err)
		http.Error(w, "failed to revoke token", http.StatusInternalServerError)
		return
	}

	log.Debugf("user [%s] revoked token [%s]", claims.Subject, claims.TokenID)
	pkg.WriteTextResponseOK(w, "revoked")
}
