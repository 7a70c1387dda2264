package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit ограничивает частоту мутирующих запросов к движку.
// Лимитер общий на процесс: движок один владеет матчами, шторм ретраев
// с клиента не должен его заваливать.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	// Нулевой burst отклонял бы каждый запрос; при дробном RPS меньше
	// единицы пропускаем хотя бы один запрос.
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
