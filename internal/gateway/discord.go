package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// discordLimit is the longest message Discord accepts.
const discordLimit = 2000

type DiscordGateway struct {
	Session *discordgo.Session
	Handler *Handler
	log     *zap.Logger
}

func NewDiscordGateway(token string, h *Handler, z *zap.Logger) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	if z == nil {
		z = zap.NewNop()
	}
	return &DiscordGateway{Session: s, Handler: h, log: z.With(zap.String("gateway", "discord"))}, nil
}

func (dg *DiscordGateway) Start(ctx context.Context) error {
	remove := dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
			return
		}
		dg.log.Info("message received", zap.String("chat_id", m.ChannelID), zap.String("from", m.Author.Username))
		go func() {
			reply := dg.Handler.Handle(ctx, SessionID("discord", m.ChannelID), m.Content)
			if err := dg.Send(m.ChannelID, reply); err != nil {
				dg.log.Warn("send failed", zap.String("chat_id", m.ChannelID), zap.Error(err))
			}
		}()
	})
	defer remove()

	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	if u := dg.Session.State.User; u != nil {
		dg.log.Info("authorized", zap.String("account", u.Username))
	}

	<-ctx.Done()
	return nil
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, part := range chunk(text, discordLimit) {
		if _, err := dg.Session.ChannelMessageSend(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}

// chunk splits text into pieces of at most n runes, preferring line breaks.
func chunk(text string, n int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 || len(out) == 0 {
		out = append(out, string(runes))
	}
	return out
}
