package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/authservice/internal/handlers/render"
	"github.com/nkiryanov/authservice/internal/logger"
)

const healthCheckTimeout = 2 * time.Second

func handleHealth(storage storagePinger, l logger.Logger) http.Handler {
	type response struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := storage.Ping(ctx); err != nil {
			l.Error("Health check failed", "error", err)
			render.JSONWithStatus(w, response{Status: "Unhealthy", Database: "Disconnected"}, http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Status: "Healthy", Database: "Connected"})
	})
}
