package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Handler *Handler
	log     *zap.Logger
}

func NewTelegramGateway(token string, h *Handler, z *zap.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	if z == nil {
		z = zap.NewNop()
	}
	log := z.With(zap.String("gateway", "telegram"))
	log.Info("authorized", zap.String("account", bot.Self.UserName))

	return &TelegramGateway{Bot: bot, Handler: h, log: log}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			var from string
			if update.Message.From != nil {
				from = update.Message.From.UserName
			}
			tg.log.Info("message received", zap.String("chat_id", chatID), zap.String("from", from))

			// Goals run for minutes; /cancel must still get through.
			go func(text string) {
				reply := tg.Handler.Handle(ctx, SessionID("telegram", chatID), text)
				if err := tg.Send(chatID, reply); err != nil {
					tg.log.Warn("send failed", zap.String("chat_id", chatID), zap.Error(err))
				}
			}(update.Message.Text)
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
