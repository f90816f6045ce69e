package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/authservice/internal/handlers/render"
	"github.com/nkiryanov/authservice/internal/handlers/userctx"
)

func handleUserMe() http.Handler {
	type response struct {
		Username  string    `json:"username"`
		Issuer    string    `json:"issuer"`
		IssuedAt  time.Time `json:"issuedAt"`
		ExpiresAt time.Time `json:"expiresAt"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			Username:  claims.Subject,
			Issuer:    claims.Issuer,
			IssuedAt:  claims.IssuedAt,
			ExpiresAt: claims.ExpiresAt,
		})
	})
}
