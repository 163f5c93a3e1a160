package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/upstream/molmim"
	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// ProxyHandler serves POST /api/generate-molecules.  The request body is
// relayed unchanged; the credential for the generation service is added by
// the relay and never reaches the caller.
type ProxyHandler struct {
	relay   molmim.Relay
	maxBody int64
	logger  logging.Logger
}

// NewProxyHandler creates a ProxyHandler.  maxBody bounds the accepted
// request body; zero means 1 MiB.
func NewProxyHandler(relay molmim.Relay, maxBody int64, logger logging.Logger) *ProxyHandler {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &ProxyHandler{relay: relay, maxBody: maxBody, logger: logger.Named("proxy")}
}

// Generate relays one generation request.
//
//	upstream 2xx      -> 200 with the upstream document
//	upstream non-2xx  -> same status, {"error": "<upstream body>"}
//	local failure     -> 500, {"error": "<message>"}
func (h *ProxyHandler) Generate(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context())

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody))
	if err != nil {
		h.fail(c, log, err)
		return
	}
	if !json.Valid(body) {
		h.fail(c, log, errors.New(errors.ErrCodeBadRequest, "request body is not valid JSON"))
		return
	}

	resp, err := h.relay.Generate(c.Request.Context(), body)
	if err != nil {
		h.fail(c, log, err)
		return
	}
	if !resp.OK() {
		c.JSON(resp.StatusCode, gentypes.ProxyError{Error: string(resp.Body)})
		return
	}
	c.Data(http.StatusOK, "application/json", resp.Body)
}

func (h *ProxyHandler) fail(c *gin.Context, log logging.Logger, err error) {
	log.Error("generation proxy failed", logging.Err(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gentypes.ProxyError{Error: messageOf(err)})
}

// messageOf returns the human-readable part of err without the code prefix.
func messageOf(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
