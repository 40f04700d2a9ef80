package middleware

import (
	"net/http"

	"archie-shopify-session-store/internal/application"
)

// BindingMiddleware delivers the environment binding to the manager on every
// request before the request is handled. The manager keeps the first values
// it sees and ignores the rest.
func BindingMiddleware(manager *application.Manager, binding func(r *http.Request) application.Binding) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			manager.Setup(binding(r))
			next.ServeHTTP(w, r)
		})
	}
}
