package server

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	apperrors "github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/signal"
	"github.com/Angleito/BluefinAIAgentTrader/internal/trading"
)

// WebhookHandler processes TradingView alert webhooks.
type WebhookHandler struct {
	pipeline *trading.Pipeline
	secret   string
	logger   zerolog.Logger
}

// WebhookResponse is the JSON body returned for every webhook request.
type WebhookResponse struct {
	Status string `json:"status"`
	Action string `json:"action,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HandleWebhook receives an alert, checks the shared passphrase and
// runs the signal through the pipeline. Rejections return 200 with the
// rejection reason; only malformed payloads and auth failures are HTTP
// errors.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	var alert signal.WebhookAlert
	if err := c.Bind(&alert); err != nil {
		return c.JSON(http.StatusBadRequest, WebhookResponse{
			Status: "error",
			Error:  "malformed payload",
		})
	}

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(alert.Passphrase), []byte(h.secret)) != 1 {
		h.logger.Warn().Str("symbol", alert.Symbol).Msg("Webhook rejected: bad passphrase")
		return c.JSON(http.StatusUnauthorized, WebhookResponse{
			Status: "error",
			Error:  "invalid passphrase",
		})
	}

	decision, err := h.pipeline.ProcessWebhook(c.Request().Context(), &alert)
	if err != nil {
		var valErr *apperrors.ValidationError
		if apperrors.Is(err, apperrors.ErrInvalidSignal) || apperrors.As(err, &valErr) {
			return c.JSON(http.StatusBadRequest, WebhookResponse{
				Status: "error",
				Error:  err.Error(),
			})
		}
		h.logger.Error().Err(err).Str("symbol", alert.Symbol).Msg("Webhook processing failed")
		return c.JSON(http.StatusInternalServerError, WebhookResponse{
			Status: "error",
			Error:  "internal error",
		})
	}

	if decision.Rejected() {
		return c.JSON(http.StatusOK, WebhookResponse{
			Status: "rejected",
			Symbol: decision.Signal.Symbol,
			Reason: decision.RejectionReason,
		})
	}

	return c.JSON(http.StatusOK, WebhookResponse{
		Status: "executed",
		Action: string(decision.Action),
		Symbol: decision.Signal.Symbol,
	})
}

// HandleHealth reports liveness.
func (h *WebhookHandler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
