package main

import (
	"context"
	"net/http"
	"time"
)

func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	data := map[string]string{
		"status":  "ok",
		"env":     app.config.env,
		"version": version,
	}

	if app.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.store.Ping(ctx); err != nil {
			app.logger.Errorw("health check database ping failed", "error", err)
			data["status"] = "degraded"
			app.jsonResponse(w, http.StatusServiceUnavailable, data)
			return
		}
	}

	app.jsonResponse(w, http.StatusOK, data)
}
