// Package notify tells people how a run ended
package notify

import (
	"fmt"
	"strings"
	"time"

	tgapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/threefoldtech/shipgate/pkg/pipeline"
)

// Notifier sends the outcome of a run somewhere
type Notifier interface {
	Notify(report pipeline.Report) error
}

// Nop notifier used when nothing is configured
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(pipeline.Report) error {
	return nil
}

// Telegram sends the outcome of a run to a chat
type Telegram struct {
	bot    *tgapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram creates a notifier for the bot with token
func NewTelegram(token string, chatID int64, logger zerolog.Logger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgapi.APIEndpoint, chatID, logger)
}

// NewTelegramWithEndpoint creates a notifier talking to another bot api server
func NewTelegramWithEndpoint(token, endpoint string, chatID int64, logger zerolog.Logger) (*Telegram, error) {
	bot, err := tgapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't connect to telegram bot")
	}

	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}, nil
}

// Notify implements Notifier
func (t *Telegram) Notify(report pipeline.Report) error {
	msg := tgapi.NewMessage(t.chatID, Message(report))
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return errors.Wrapf(err, "couldn't send message to chat %d", t.chatID)
	}

	t.logger.Debug().Int64("chat", t.chatID).Str("run", report.ID.String()).Msg("notification sent")
	return nil
}

// Message describes a run in a few lines
func Message(report pipeline.Report) string {
	var b strings.Builder

	icon := "✅"
	if report.Status != pipeline.StatusSucceeded {
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s %s: run %s (%s)\n", icon, report.Project, report.Status, report.Duration().Round(time.Second))

	if commit := report.Detail("commit"); commit != "" {
		fmt.Fprintf(&b, "commit: %s\n", commit)
	}

	if stage, ok := report.FailedStage(); ok {
		fmt.Fprintf(&b, "%s %s: %s\n", stage.Name, stage.Status, stage.Error)
	}

	if dashboard := report.Detail("dashboard"); dashboard != "" {
		fmt.Fprintf(&b, "%s\n", dashboard)
	}

	fmt.Fprintf(&b, "id: %s", report.ID)
	return b.String()
}
