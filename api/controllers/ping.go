package controllers

import (
	"net/http"

	"github.com/angelmondragon/spoolhub-backend/api/middleware"
	"github.com/angelmondragon/spoolhub-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if user, ok := middleware.UserIDFromContext(r.Context()); ok {
			payload["user_id"] = user.String()
		}
		responses.WriteSuccess(w, payload)
	}
}
