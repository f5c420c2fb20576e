package bot

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pathakanu/ashx/internal/model"
	"github.com/pathakanu/ashx/internal/reminder"
)

const (
	reminderSavedReply       = "✅ Got it. I’ll remind you to **%s** at **%s**."
	databaseUnavailableReply = "Database error: Database connection is unavailable."
	badTimeReply             = "⚠️ I couldn't understand the time. Try: *remind me to study at 21:30*"
	offlineReply             = "I am operating in offline fallback mode right now because I could not reach my AI brain (internet or API issue). Your message was received, but I cannot generate a deep AI response until the connection is restored."
	emptyMessageReply        = "I need a message to work with. Please try again."
)

// Intake stores reminder requests.
type Intake interface {
	Submit(ctx context.Context, raw string) (*model.Reminder, error)
}

// Completer answers free-form chat messages.
type Completer interface {
	Complete(ctx context.Context, history []model.ChatMessage, prompt string) (string, error)
}

// Assistant routes each message either to reminder intake or to the chat model.
type Assistant struct {
	intake Intake
	chat   Completer
	logger zerolog.Logger
}

// New creates an Assistant. chat may be nil, in which case every chat
// message gets the offline reply.
func New(intake Intake, chat Completer, logger zerolog.Logger) *Assistant {
	return &Assistant{intake: intake, chat: chat, logger: logger}
}

// Ask returns the reply for message. It never fails; errors become replies.
func (a *Assistant) Ask(ctx context.Context, message string, history []model.ChatMessage) string {
	if strings.TrimSpace(message) == "" {
		return emptyMessageReply
	}
	if reminder.IsReminderRequest(message) {
		return a.remember(ctx, message)
	}
	return a.converse(ctx, message, history)
}

func (a *Assistant) remember(ctx context.Context, message string) string {
	r, err := a.intake.Submit(ctx, message)
	if err == nil {
		return fmt.Sprintf(reminderSavedReply, r.Task, r.RemindAt)
	}

	var perr *reminder.ParseError
	switch {
	case errors.Is(err, reminder.ErrStoreUnavailable):
		a.logger.Warn().Err(err).Msg("reminder intake: store unavailable")
		return databaseUnavailableReply
	case errors.As(err, &perr):
		a.logger.Info().Str("input", perr.Input).Str("reason", perr.Reason).Msg("reminder intake: parse error")
		return badTimeReply
	default:
		a.logger.Error().Err(err).Msg("reminder intake failed")
		return badTimeReply
	}
}

func (a *Assistant) converse(ctx context.Context, message string, history []model.ChatMessage) string {
	if a.chat == nil {
		return offlineReply
	}
	reply, err := a.chat.Complete(ctx, history, message)
	if err != nil {
		a.logger.Warn().Err(err).Msg("chat completion failed")
		return offlineReply
	}
	if strings.TrimSpace(reply) == "" {
		return offlineReply
	}
	return reply
}

// Handler returns the HTTP handler for incoming Twilio messages.
func (a *Assistant) Handler() http.HandlerFunc {
	return a.handleIncomingMessage
}

// handleIncomingMessage answers Twilio webhook POST requests with TwiML.
func (a *Assistant) handleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.logger.Warn().Err(err).Msg("webhook: parse error")
		a.writeTwilioResponse(w, "Sorry, I couldn't understand that request.")
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" || body == "" {
		a.writeTwilioResponse(w, emptyMessageReply)
		return
	}

	a.logger.Debug().Str("from", sanitizeWhatsAppNumber(from)).Msg("webhook: message received")
	a.writeTwilioResponse(w, a.Ask(r.Context(), body, nil))
}

func (a *Assistant) writeTwilioResponse(w http.ResponseWriter, message string) {
	twiml := struct {
		XMLName xml.Name `xml:"Response"`
		Message string   `xml:"Message"`
	}{
		Message: message,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := xml.NewEncoder(w).Encode(twiml); err != nil {
		a.logger.Error().Err(err).Msg("twilio response encode")
	}
}

func sanitizeWhatsAppNumber(from string) string {
	// Twilio prepends whatsapp: to the number.
	return strings.TrimPrefix(from, "whatsapp:")
}
