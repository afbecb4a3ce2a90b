package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	perrors "github.com/vinayprograms/pulse/errors"
)

// telegramMaxLen stays under Telegram's 4096 character message limit.
const telegramMaxLen = 4000

// TelegramBot is the subset of tgbotapi.BotAPI used for delivery.
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers notifications to a user chat and alerts to an
// optional separate operator chat.
type Telegram struct {
	bot         TelegramBot
	chatID      int64
	alertChatID int64
}

// NewTelegram connects to the bot API with token.
// alertChatID of 0 sends alerts to chatID.
func NewTelegram(token string, chatID, alertChatID int64) (*Telegram, error) {
	if token == "" {
		return nil, perrors.InvalidConfig("notify.telegram.token", "required")
	}
	if chatID == 0 {
		return nil, perrors.InvalidConfig("notify.telegram.chat_id", "required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, perrors.WrapWithCode(err, perrors.ErrCodeNotifyFailed, "connect telegram bot")
	}
	return NewTelegramWithBot(bot, chatID, alertChatID), nil
}

// NewTelegramWithBot wraps an existing bot client.
func NewTelegramWithBot(bot TelegramBot, chatID, alertChatID int64) *Telegram {
	if alertChatID == 0 {
		alertChatID = chatID
	}
	return &Telegram{bot: bot, chatID: chatID, alertChatID: alertChatID}
}

func (t *Telegram) Notify(ctx context.Context, message, action string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, perrors.Wrap(err, "telegram notify")
	}
	body := html.EscapeString(message)
	plain := message
	if action != "" {
		body += "\n\n<i>" + html.EscapeString(action) + "</i>"
		plain += "\n\n" + action
	}
	if err := t.send(t.chatID, body, plain); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Telegram) Alert(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return perrors.Wrap(err, "telegram alert")
	}
	header := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	body := "<b>" + html.EscapeString(header) + "</b>\n" + html.EscapeString(alert.Message)
	plain := header + "\n" + alert.Message
	if alert.CheckID != "" {
		body += "\ncheck: <code>" + html.EscapeString(alert.CheckID) + "</code>"
		plain += "\ncheck: " + alert.CheckID
	}
	return t.send(t.alertChatID, body, plain)
}

// send posts body as HTML, retrying once as plain text when Telegram
// rejects the markup.
func (t *Telegram) send(chatID int64, body, plain string) error {
	for _, chunk := range splitMessage(body, telegramMaxLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(msg); err != nil {
			msg.ParseMode = ""
			msg.Text = truncate(plain, telegramMaxLen)
			if _, err2 := t.bot.Send(msg); err2 != nil {
				return perrors.WrapWithCode(err2, perrors.ErrCodeNotifyFailed, "send telegram message")
			}
			return nil
		}
	}
	return nil
}

// splitMessage cuts s into chunks of at most max bytes, preferring newlines.
func splitMessage(s string, max int) []string {
	var chunks []string
	for len(s) > max {
		cut := strings.LastIndex(s[:max], "\n")
		if cut <= 0 {
			cut = max
		}
		chunks = append(chunks, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" || len(chunks) == 0 {
		chunks = append(chunks, s)
	}
	return chunks
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
