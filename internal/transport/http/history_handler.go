package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"studyguide-quiz/internal/app"
	"studyguide-quiz/internal/auth"
	"studyguide-quiz/internal/domain"
)

// HistoryHandler serves GET /history[?limit=n] for the subject of the bearer token.
func HistoryHandler(service *app.QuizService, verifier *auth.Verifier, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, errorPayload{Message: "method not allowed"})
			return
		}
		creds, err := verifier.FromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorPayload{Message: domain.ErrUnauthenticated.Error()})
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid limit"})
				return
			}
			limit = n
		}

		attempts, err := service.History(r.Context(), creds, limit)
		if err != nil {
			log.Error("list attempts", zap.String("subject", creds.Subject), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorPayload{Message: "history unavailable", Retryable: true})
			return
		}
		if attempts == nil {
			attempts = []domain.Attempt{}
		}
		writeJSON(w, http.StatusOK, attempts)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
