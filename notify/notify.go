// Package notify tells league players about match events that need their attention.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"card-league-system/models"

	"github.com/bwmarrin/discordgo"
)

type Notifier interface {
	WinnerMismatch(ctx context.Context, m *models.Match) error
	MatchCompleted(ctx context.Context, m *models.Match) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) WinnerMismatch(context.Context, *models.Match) error { return nil }
func (Nop) MatchCompleted(context.Context, *models.Match) error { return nil }

// MessageSender is the part of *discordgo.Session the notifier uses.
type MessageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts match events to a league channel. Player ids are the
// gateway user ids, which for this league are Discord user ids.
type DiscordNotifier struct {
	Session   MessageSender
	ChannelID string
	Logger    *slog.Logger
}

// NewDiscordNotifier opens a bot session for token.
func NewDiscordNotifier(token, channelID string, logger *slog.Logger) (*DiscordNotifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &DiscordNotifier{Session: session, ChannelID: channelID, Logger: logger}, nil
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func pick(s models.MatchSlot) string {
	if s.WinnerSelection == nil || *s.WinnerSelection == "" {
		return "nobody yet"
	}
	return mention(*s.WinnerSelection)
}

func (n *DiscordNotifier) send(ctx context.Context, content string) error {
	if _, err := n.Session.ChannelMessageSend(n.ChannelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

func (n *DiscordNotifier) WinnerMismatch(ctx context.Context, m *models.Match) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s your results for match `%s` disagree.\n", mention(m.Player1ID), mention(m.Player2ID), m.ID)
	fmt.Fprintf(&b, "%s picked %s, %s picked %s. Please resubmit.",
		mention(m.Player1ID), pick(m.Player1Slot), mention(m.Player2ID), pick(m.Player2Slot))
	return n.send(ctx, b.String())
}

func (n *DiscordNotifier) MatchCompleted(ctx context.Context, m *models.Match) error {
	if m.WinnerID == nil {
		return nil
	}
	loser := m.Player1ID
	if *m.WinnerID == m.Player1ID {
		loser = m.Player2ID
	}
	return n.send(ctx, fmt.Sprintf("Match `%s` confirmed: %s beat %s.", m.ID, mention(*m.WinnerID), mention(loser)))
}
