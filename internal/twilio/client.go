package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/pathakanu/ashx/internal/model"
)

// ErrClientNotInitialised is returned when the client has no credentials.
var ErrClientNotInitialised = errors.New("twilio client not initialised")

// MessageCreator is the subset of the Twilio REST API the client needs.
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client delivers fired reminders as WhatsApp messages.
type Client struct {
	api          MessageCreator
	fromWhatsApp string
	toWhatsApp   string
	log          zerolog.Logger
}

// New creates a Twilio client bound to the configured WhatsApp sender and
// reminder recipient.
func New(accountSID, authToken, fromWhatsApp, toWhatsApp string, log zerolog.Logger) *Client {
	c := &Client{fromWhatsApp: fromWhatsApp, toWhatsApp: toWhatsApp, log: log}
	if accountSID != "" && authToken != "" {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
		c.api = rest.Api
	}
	return c
}

// NewWithAPI is New with an explicit message API.
func NewWithAPI(api MessageCreator, fromWhatsApp, toWhatsApp string, log zerolog.Logger) *Client {
	return &Client{api: api, fromWhatsApp: fromWhatsApp, toWhatsApp: toWhatsApp, log: log}
}

// Fire sends the reminder to the configured recipient.
func (c *Client) Fire(_ context.Context, r model.Reminder) error {
	return c.SendWhatsAppMessage(c.toWhatsApp, "Reminder: "+r.Task)
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio's API.
func (c *Client) SendWhatsAppMessage(to, body string) error {
	if c.api == nil {
		return ErrClientNotInitialised
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send message error: %w", err)
	}

	ev := c.log.Debug().Str("to", recipient)
	if resp != nil && resp.Sid != nil {
		ev = ev.Str("sid", *resp.Sid)
	}
	ev.Msg("twilio message sent")
	return nil
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}
