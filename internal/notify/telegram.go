package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramSender delivers notifications to one Telegram chat.
type TelegramSender struct {
	bot    *telego.Bot
	chatID telego.ChatID
}

// NewTelegramSender builds the sender. chatID accepts a numeric id or an
// @channel username.
func NewTelegramSender(token, chatID string) (*TelegramSender, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	var cid telego.ChatID
	if n, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		cid = tu.ID(n)
	} else {
		cid = tu.Username(chatID)
	}
	return &TelegramSender{bot: bot, chatID: cid}, nil
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, text string) (string, error) {
	params := tu.Message(s.chatID, text)
	params.ParseMode = telego.ModeMarkdown
	msg, err := s.bot.SendMessage(ctx, params)
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return strconv.Itoa(msg.MessageID), nil
}
