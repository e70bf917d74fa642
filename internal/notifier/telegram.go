package notifier

import (
	"fmt"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MessageSender is the part of tgbotapi.BotAPI used to deliver messages.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts a short message to one chat per finished download.
type TelegramNotifier struct {
	bot    MessageSender
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, utils.WrapError(utils.ErrExternalServiceError, "failed to create telegram bot", map[string]any{
			"error": err.Error(),
		})
	}
	logutils.Log.WithField("bot", bot.Self.UserName).Info("Initialized telegram notifier")
	return NewTelegramNotifierWithSender(bot, chatID), nil
}

func NewTelegramNotifierWithSender(bot MessageSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (t *TelegramNotifier) OnCompleted(videoID, title string) {
	t.send(fmt.Sprintf("Download complete: %s", displayName(videoID, title)))
}

func (t *TelegramNotifier) OnCanceled(videoID, title string) {
	t.send(fmt.Sprintf("Download canceled: %s", displayName(videoID, title)))
}

func (t *TelegramNotifier) OnFailed(videoID, title string, err error) {
	msg := fmt.Sprintf("Download failed: %s", displayName(videoID, title))
	if reason := utils.ErrorMessage(err); reason != "" {
		msg += "\n" + reason
	}
	t.send(msg)
}

func (t *TelegramNotifier) send(text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		logutils.Log.WithError(err).WithField("chat_id", t.chatID).Warn("Failed to send telegram notification")
	}
}

func displayName(videoID, title string) string {
	if title == "" {
		return videoID
	}
	return fmt.Sprintf("%s (%s)", title, videoID)
}
