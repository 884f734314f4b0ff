package api

import (
	"errors"
	"io"
	"net/http"
)

// GitHubWebhook принимает доставку GitHub.
//
// Ответ отправляется сразу после проверки и постановки в очередь;
// обработчик события выполняется в фоне.
// POST /api/v1/webhooks/github
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "payload too large")
			return
		}
		BadRequest(w, "failed to read body")
		return
	}

	ack, err := h.webhooks.Handle(r.Context(), body, r.Header)
	if HandleError(w, h.logger, err) {
		return
	}

	JSON(w, http.StatusOK, ack)
}
