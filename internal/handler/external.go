package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/server/middleware"
	"github.com/leadrelay/keygate/internal/service"
)

// ExternalHandler serves gateway endpoints that describe the calling key.
type ExternalHandler struct {
	limiter *service.RateLimiter
	logger  *logrus.Logger
}

// NewExternalHandler creates the handler.
func NewExternalHandler(limiter *service.RateLimiter, logger *logrus.Logger) *ExternalHandler {
	return &ExternalHandler{limiter: limiter, logger: logger}
}

type rateLimitView struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Window    string `json:"window"`
}

type meView struct {
	*model.KeyContext
	RateLimitStatus rateLimitView `json:"rate_limit_status"`
}

// Me returns the calling key's context and remaining quota.
// GET /api/v1/external/me
func (h *ExternalHandler) Me(w http.ResponseWriter, r *http.Request) {
	kc := middleware.GetKeyContext(r.Context())
	if kc == nil {
		writeError(w, http.StatusUnauthorized, middleware.CodeUnauthorized, "Authentication required")
		return
	}
	remaining, err := h.limiter.Remaining(r.Context(), kc.KeyID, kc.RateLimit)
	if err != nil {
		h.logger.WithError(err).WithField("key_id", kc.KeyID).Error("read remaining quota")
		writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
		return
	}
	writeData(w, http.StatusOK, meView{
		KeyContext: kc,
		RateLimitStatus: rateLimitView{
			Limit:     kc.RateLimit,
			Remaining: remaining,
			Window:    "1h",
		},
	}, "")
}
