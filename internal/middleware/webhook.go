package middleware

import (
	"crypto/subtle"
	"net/http"
)

// WebhookSecretHeader: заголовок с общим секретом вебхука продаж.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret пропускает запрос, только если заголовок совпадает с секретом.
// Пустой секрет закрывает вебхук целиком.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	expected := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(WebhookSecretHeader))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
