// Package alerts delivers dispatcher follow-up notifications out of band.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Webhook posts verification mismatch alerts to a configured endpoint.
// Fire-and-forget: delivery failures are logged, never surfaced.
type Webhook struct {
	Endpoint string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewWebhook(endpoint string, logger *slog.Logger) *Webhook {
	return &Webhook{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, Logger: logger}
}

func (w *Webhook) MismatchAlert(ctx context.Context, tripID string, customerAmt, driverAmt float64) {
	if w.Endpoint == "" {
		return
	}
	body := map[string]any{
		"kind":            "verification_mismatch",
		"trip_id":         tripID,
		"customer_amount": customerAmt,
		"driver_amount":   driverAmt,
	}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		if w.Logger != nil {
			w.Logger.Warn("mismatch alert delivery failed", "trip_id", tripID, "error", err)
		}
		return
	}
	_ = resp.Body.Close()
}
