package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/common/logging"
)

// Envelope is the asynchronous-message wrapper both inbound endpoints
// accept. A SubscriptionConfirmation carries a callback URL to confirm the
// subscription; a Notification carries the actual message as nested JSON.
type Envelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
	Timestamp    string `json:"Timestamp"`
}

const (
	envelopeSubscriptionConfirmation = "SubscriptionConfirmation"
	envelopeNotification             = "Notification"
)

// decodeMessage reads the request body and extracts the business message
// into out. Enveloped notifications have their nested Message decoded; a
// body without a Type discriminator is treated as a bare message, which
// keeps direct posts usable in development.
//
// The returned bool is false when the request was fully handled here (a
// subscription confirmation) and the caller should not proceed.
func (h *Handlers) decodeMessage(w http.ResponseWriter, r *http.Request, out interface{}) (bool, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false, errors.ValidationError("failed to read request body")
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false, errors.ValidationError("request body is not valid JSON")
	}

	switch envelope.Type {
	case envelopeSubscriptionConfirmation:
		h.confirmSubscription(envelope)
		writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
		return false, nil
	case envelopeNotification:
		if err := json.Unmarshal([]byte(envelope.Message), out); err != nil {
			return false, errors.ValidationError("notification message is not valid JSON")
		}
		return true, nil
	default:
		if err := json.Unmarshal(body, out); err != nil {
			return false, errors.ValidationError("request body is not valid JSON")
		}
		return true, nil
	}
}

// confirmSubscription completes the one-time topic subscription handshake
// by fetching the provided callback URL.
func (h *Handlers) confirmSubscription(envelope Envelope) {
	if envelope.SubscribeURL == "" {
		h.logger.Warn("Subscription confirmation without a SubscribeURL",
			logging.Field{Key: "topic", Value: envelope.TopicArn})
		return
	}

	resp, err := h.httpClient.Get(envelope.SubscribeURL)
	if err != nil {
		h.logger.Warn("Failed to confirm subscription",
			logging.Field{Key: "topic", Value: envelope.TopicArn},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer resp.Body.Close()

	h.logger.Info("Subscription confirmed",
		logging.Field{Key: "topic", Value: envelope.TopicArn},
		logging.Field{Key: "status", Value: resp.StatusCode})
}
