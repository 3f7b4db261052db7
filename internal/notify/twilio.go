// Package notify delivers escalation alerts to the command channel.
//
// This file implements the Twilio SMS transport.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/QuickReach/QuickReach/internal/models"
)

// Opts holds configuration options for the Twilio notifier.
type Opts struct {
	AccountSID    string
	AuthToken     string
	FromNumber    string
	CommandCenter string
}

// Option defines a configuration option for the Twilio notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithCommandCenter sets the command-center phone number alerts go to.
func WithCommandCenter(to string) Option {
	return func(o *Opts) { o.CommandCenter = to }
}

// TwilioNotifier delivers escalation alerts by SMS to the command center.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
	to     string
}

// NewTwilioNotifier creates a Twilio-backed notifier. Options fall back to
// the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER and
// COMMAND_CENTER_NUMBER environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.CommandCenter == "" {
		cfg.CommandCenter = os.Getenv("COMMAND_CENTER_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"CommandCenter_set", cfg.CommandCenter != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" || cfg.CommandCenter == "" {
		return nil, fmt.Errorf("from number and command center number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioNotifier{client: client, from: cfg.FromNumber, to: cfg.CommandCenter}, nil
}

// NotifyEscalation sends the escalation SMS to the command center.
func (n *TwilioNotifier) NotifyEscalation(ctx context.Context, inc models.Incident) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(n.to)
	params.SetFrom(n.from)
	params.SetBody(escalationBody(inc))

	if _, err := n.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioNotifier send failed", "incidentID", inc.ID, "error", err)
		return fmt.Errorf("failed to send escalation SMS: %w", err)
	}
	slog.Info("TwilioNotifier escalation sent", "incidentID", inc.ID, "to", n.to)
	return nil
}
