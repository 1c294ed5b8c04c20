package middleware

import (
	"crypto/subtle"
	"net/http"
)

// CronSecret gates the internal cron endpoints behind a shared secret sent
// in the X-Cron-Secret header. An empty configured secret disables the
// endpoints entirely rather than leaving them open.
func CronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "cron endpoints disabled", http.StatusUnauthorized)
				return
			}
			got := r.Header.Get("X-Cron-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "invalid cron secret", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
