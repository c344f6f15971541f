package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/dvloznov/finko-backend/internal/api/middleware"
	"github.com/dvloznov/finko-backend/internal/cloudevent"
	"github.com/dvloznov/finko-backend/internal/gmail"
	"github.com/dvloznov/finko-backend/internal/identity"
	"github.com/dvloznov/finko-backend/internal/ingest"
	"github.com/dvloznov/finko-backend/internal/jobs"
	"github.com/rs/zerolog"
)

// maxWebhookBody caps inbound webhook payloads.
const maxWebhookBody = 1 << 20

// WebhookIngester handles a banking webhook event.
type WebhookIngester interface {
	HandleWebhook(ctx context.Context, ev *cloudevent.CloudEvent, rc identity.RequestContext) (*ingest.WebhookResult, error)
}

// WebhooksHandler receives the banking webhook and Gmail push deliveries.
type WebhooksHandler struct {
	ingest    WebhookIngester
	publisher jobs.Publisher
	log       zerolog.Logger
}

func NewWebhooksHandler(ing WebhookIngester, publisher jobs.Publisher, log zerolog.Logger) *WebhooksHandler {
	return &WebhooksHandler{ingest: ing, publisher: publisher, log: log}
}

// BancoChile handles POST /webhooks/bancochile
func (h *WebhooksHandler) BancoChile(w http.ResponseWriter, r *http.Request) {
	ev, err := cloudevent.Decode(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid format: body is not a CloudEvent")
		return
	}

	result, err := h.ingest.HandleWebhook(r.Context(), ev, identity.RequestContext{
		QueryEmail: r.URL.Query().Get("email"),
	})
	switch {
	case errors.Is(err, ingest.ErrInvalidEnvelope):
		middleware.WriteError(w, http.StatusBadRequest, "Invalid format: CloudEvent data is required")
	case errors.Is(err, ingest.ErrIncompleteEnvelope):
		middleware.WriteError(w, http.StatusBadRequest, "Incomplete CloudEvent: id, type and source are required")
	case errors.Is(err, ingest.ErrUserNotFound):
		middleware.WriteError(w, http.StatusNotFound, "User not found: associate your publicKey or email first")
	case errors.Is(err, ingest.ErrUnparseable):
		middleware.WriteError(w, http.StatusBadRequest, "Could not parse a transaction from the event")
	case err != nil:
		requestLogger(r, h.log).Error().Err(err).Str("event_id", ev.ID).Msg("Failed to process banking webhook")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	default:
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"message":  "Event processed",
			"entryId":  result.EntryID,
			"category": result.Category,
		})
	}
}

// Gmail handles POST /webhooks/gmail. It always answers 200 so Pub/Sub does
// not redeliver; work is handed to the per-mailbox queue.
func (h *WebhooksHandler) Gmail(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.log)

	n, err := gmail.DecodePush(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	var sk *gmail.SkipError
	if errors.As(err, &sk) {
		log.Warn().Err(err).Str("reason", sk.Reason).Msg("Skipping Gmail push")
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "skipped": sk.Reason})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to decode Gmail push")
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "error": "internal"})
		return
	}

	job := &jobs.GmailNotificationJob{
		GmailAddress:    n.EmailAddress,
		HistoryID:       n.HistoryID,
		PubSubMessageID: n.MessageID,
	}
	err = h.publisher.PublishGmailNotification(r.Context(), job)
	if errors.Is(err, jobs.ErrQueueFull) {
		// The cursor has not moved, so the next notification walks these messages too.
		log.Warn().Str("gmail_address", n.EmailAddress).Uint64("history_id", n.HistoryID).Msg("Mailbox lane full, dropping Gmail notification")
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "skipped": "queue full"})
		return
	}
	if err != nil {
		// The cursor has not moved, so the next notification walks these messages too.
		log.Error().Err(err).Str("gmail_address", n.EmailAddress).Msg("Failed to enqueue Gmail notification")
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "error": "internal"})
		return
	}

	log.Info().
		Str("job_id", job.JobID).
		Str("gmail_address", n.EmailAddress).
		Uint64("history_id", n.HistoryID).
		Msg("Gmail notification enqueued")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "job_id": job.JobID})
}
