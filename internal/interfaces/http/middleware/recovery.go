package middleware

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/errors"
)

// Sentry attaches a per-request hub that reports panics and re-panics them
// for Recovery.  It must be registered after Recovery.
func Sentry() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{Repanic: true})
}

// Recovery turns a panic into a 500 {code, message} answer.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.WithContext(c.Request.Context()).Error("panic recovered",
				logging.Any("panic", rec),
				logging.String("path", c.Request.URL.Path))
			AbortWithError(c, errors.Internal("internal server error"))
		}()
		c.Next()
	}
}
