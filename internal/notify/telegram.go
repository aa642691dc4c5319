package notify

import (
	"context"
	"strconv"

	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	opTelegramNew  = "notify.telegram.new"
	opTelegramPush = "notify.telegram.push"
)

// TelegramGateway delivers messages over the Telegram bot API. Identity ids
// on this platform are numeric chat ids rendered as strings.
type TelegramGateway struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewTelegramGateway authenticates the bot token against the Telegram API.
func NewTelegramGateway(token string, logger *zap.Logger) (*TelegramGateway, error) {
	if token == "" {
		return nil, fault.New(fault.KindValidation, opTelegramNew, "missing_token", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fault.New(fault.KindUpstream, opTelegramNew, "bot_auth_failed", err)
	}
	logger.Info("telegram gateway ready", zap.String("bot", bot.Self.UserName))
	return &TelegramGateway{bot: bot, logger: logger}, nil
}

// Push sends one message to the chat behind the identity id.
func (g *TelegramGateway) Push(_ context.Context, identityID string, message Message) error {
	if message.Text == "" {
		return nil
	}
	chatID, err := strconv.ParseInt(identityID, 10, 64)
	if err != nil {
		return fault.New(fault.KindValidation, opTelegramPush, "invalid_chat_id", err)
	}
	outbound := tgbotapi.NewMessage(chatID, message.Text)
	if _, err := g.bot.Send(outbound); err != nil {
		return fault.New(fault.KindUpstream, opTelegramPush, "send_failed", err)
	}
	return nil
}
