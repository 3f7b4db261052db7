// Package notify delivers escalation alerts to the command channel.
//
// The transport is an external collaborator; this package provides the slog
// fallback used in development plus a Twilio SMS implementation for the
// national command center.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/QuickReach/QuickReach/internal/models"
)

// LogNotifier writes escalation alerts to the structured log. It stands in
// for the real command-center transport when Twilio is not configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyEscalation logs the alert that would be delivered.
func (n *LogNotifier) NotifyEscalation(ctx context.Context, inc models.Incident) error {
	slog.Warn("ESCALATION: alerting National Command Center",
		"incidentID", inc.ID, "type", inc.Type, "reporter", inc.ReporterPhone,
		"lat", inc.Lat, "lng", inc.Lng)
	return nil
}

// escalationBody renders the SMS text for an escalated incident.
func escalationBody(inc models.Incident) string {
	return fmt.Sprintf("QuickReach ESCALATION %s: %s incident unacknowledged at (%.4f, %.4f). Reporter: %s",
		models.ShortRef(inc.ID), inc.Type, inc.Lat, inc.Lng, inc.ReporterPhone)
}
