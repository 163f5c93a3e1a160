// Package handlers holds the gin handlers of the API server.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/MolForge/internal/interfaces/http/middleware"
	"github.com/turtacn/MolForge/pkg/errors"
)

// writeAppError maps an application error to {code, message}.  Server
// errors are recorded on the context so the request log carries the cause.
func writeAppError(c *gin.Context, err error) {
	if errors.IsServerError(errors.GetCode(err)) || errors.GetCode(err) == errors.CodeUnknown {
		_ = c.Error(err)
	}
	middleware.AbortWithError(c, err)
}

// requireUser returns the authenticated caller.  The routes using it sit
// behind RequireAuth, so an empty id is a wiring bug and answered with 401.
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.ContextGetUserID(c)
	if userID == "" {
		middleware.AbortWithError(c, errors.Unauthorized("authentication required"))
		return "", false
	}
	return userID, true
}
