package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordSender delivers notifications to one Discord channel. The session
// uses plain REST; no gateway connection is opened for outbound-only use.
type DiscordSender struct {
	session   *discordgo.Session
	channelID string
}

func NewDiscordSender(token, channelID string) (*DiscordSender, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordSender{session: session, channelID: channelID}, nil
}

func (s *DiscordSender) Name() string { return "discord" }

func (s *DiscordSender) Send(ctx context.Context, text string) (string, error) {
	msg, err := s.session.ChannelMessageSend(s.channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return msg.ID, nil
}
