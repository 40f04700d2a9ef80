package middleware

import (
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// UnexpectedErrorMessage is the body returned for unhandled failures
const UnexpectedErrorMessage = "An unexpected error occurred"

// Recoverer turns a panic into a 500 response and logs the stack
func Recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error().
					Interface("panic", rec).
					Str("requestId", chimiddleware.GetReqID(r.Context())).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Unhandled panic")
				http.Error(w, UnexpectedErrorMessage, http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
