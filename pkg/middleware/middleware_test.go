package middleware

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// routed mounts h at pattern behind mw so chi's RouteContext is populated.
func routed(mw func(http.Handler) http.Handler, pattern string, h http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get(pattern, h)
	return r
}
