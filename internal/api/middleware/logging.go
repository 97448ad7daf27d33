package middleware

import (
	"log/slog"
	"net/http"

	"github.com/thefall/sessionserver/internal/middleware"
)

// Logging logs every API request under the http component
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Logging(logger.With(slog.String("component", "http")))
}
