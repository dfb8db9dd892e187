package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rentwatch/golang_services/internal/search_service/domain"
)

// maxCaption is Telegram's caption limit for photos.
const maxCaption = 1024

// BotAPI is the part of *tgbotapi.BotAPI used for sending.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// TelegramChannel implements Channel on the Telegram Bot API.
type TelegramChannel struct {
	bot    BotAPI
	logger *slog.Logger
}

func NewTelegramChannel(bot BotAPI, logger *slog.Logger) *TelegramChannel {
	return &TelegramChannel{bot: bot, logger: logger.With("channel", "telegram")}
}

func (c *TelegramChannel) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := c.bot.Send(msg)
	return c.wrap(ctx, "send text", chatID, err)
}

func (c *TelegramChannel) SendMenu(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if len(kb) > 0 {
		msg.ReplyMarkup = toMarkup(kb)
	}
	_, err := c.bot.Send(msg)
	return c.wrap(ctx, "send menu", chatID, err)
}

func (c *TelegramChannel) UpdateMenu(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, toMarkup(kb))
	_, err := c.bot.Send(edit)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return c.wrap(ctx, "update menu", chatID, err)
}

func (c *TelegramChannel) SendPhoto(ctx context.Context, chatID int64, caption, photoURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = truncateCaption(caption)
	_, err := c.bot.Send(photo)
	return c.wrap(ctx, "send photo", chatID, err)
}

func (c *TelegramChannel) SendPhotoGroup(ctx context.Context, chatID int64, caption string, photoURLs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(photoURLs) > domain.MaxPhotos {
		photoURLs = photoURLs[:domain.MaxPhotos]
	}
	media := make([]interface{}, 0, len(photoURLs))
	for i, u := range photoURLs {
		p := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(u))
		if i == 0 {
			p.Caption = truncateCaption(caption)
		}
		media = append(media, p)
	}
	_, err := c.bot.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
	return c.wrap(ctx, "send photo group", chatID, err)
}

func (c *TelegramChannel) Acknowledge(ctx context.Context, eventID, alertText string) error {
	if eventID == "" {
		return nil
	}
	cb := tgbotapi.NewCallback(eventID, "")
	if alertText != "" {
		cb = tgbotapi.NewCallbackWithAlert(eventID, alertText)
	}
	if _, err := c.bot.Request(cb); err != nil {
		c.logger.WarnContext(ctx, "Failed to answer callback", "callback_id", eventID, "error", err)
		return fmt.Errorf("%w: answer callback: %w", domain.ErrDeliveryFailure, err)
	}
	return nil
}

func (c *TelegramChannel) wrap(ctx context.Context, op string, chatID int64, err error) error {
	if err == nil {
		return nil
	}
	c.logger.WarnContext(ctx, "Telegram call failed", "op", op, "chat_id", chatID, "error", err)
	return fmt.Errorf("%w: %s: %w", domain.ErrDeliveryFailure, op, err)
}

func toMarkup(kb Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func truncateCaption(s string) string {
	r := []rune(s)
	if len(r) <= maxCaption {
		return s
	}
	return string(r[:maxCaption-3]) + "..."
}
