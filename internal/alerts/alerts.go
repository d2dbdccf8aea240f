// Package alerts fans consensus notifications out to human channels.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

// Alert is one notification message
type Alert struct {
	Title     string
	Message   string
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans one alert out to every configured channel
type Manager struct {
	alerters []Alerter
}

// NewManager creates an alert manager
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{alerters: alerters}
}

// Send sends an alert to all configured alerters. Per-channel failures
// are logged; the last one is returned.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}
	return lastErr
}

// ConsensusDetected formats and sends the notification for a freshly
// detected consensus event. Delivery failures are logged and dropped so
// detection never fails on a notification path.
func (m *Manager) ConsensusDetected(ctx context.Context, event *db.ConsensusEvent) {
	arrow := "📈"
	if event.Direction == db.DirectionShort {
		arrow = "📉"
	}

	alert := Alert{
		Title: fmt.Sprintf("%s Consensus: %s %s", arrow, event.Ticker, strings.ToUpper(string(event.Direction))),
		Message: fmt.Sprintf(
			"%d traders agree on %s %s within %d minutes (strength %d/100)",
			event.TradersCount, event.Ticker, event.Direction,
			event.WindowMinutes, event.ConsensusStrength,
		),
		Timestamp: event.DetectedAt,
		Metadata: map[string]interface{}{
			"event_id": event.ID.String(),
			"authors":  strings.Join(event.Metadata.Authors, ", "),
		},
	}
	if event.AvgEntryPrice != nil {
		alert.Metadata["avg_entry_price"] = *event.AvgEntryPrice
	}

	if err := m.Send(ctx, alert); err != nil {
		log.Error().Err(err).Str("event_id", event.ID.String()).
			Msg("Consensus alert delivery incomplete")
	}
}

// LogAlerter logs alerts using zerolog
type LogAlerter struct{}

// NewLogAlerter creates a log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send sends an alert by logging it
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Info()
	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}
	event.
		Str("alert_title", alert.Title).
		Time("alert_time", alert.Timestamp).
		Msg(alert.Message)
	return nil
}
