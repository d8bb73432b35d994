package server

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// ResponseEditor edits the original response of a deferred interaction.
type ResponseEditor interface {
	EditOriginal(ctx context.Context, appID, token string, edit *discordgo.WebhookEdit) error
}

// DiscordEditor edits responses through the Discord REST API.
type DiscordEditor struct {
	Session *discordgo.Session
}

// NewDiscordEditor wraps a discordgo session authenticated with the bot token.
func NewDiscordEditor(s *discordgo.Session) *DiscordEditor {
	return &DiscordEditor{Session: s}
}

// EditOriginal PATCHes /webhooks/{appID}/{token}/messages/@original.
func (e *DiscordEditor) EditOriginal(ctx context.Context, appID, token string, edit *discordgo.WebhookEdit) error {
	_, err := e.Session.InteractionResponseEdit(&discordgo.Interaction{AppID: appID, Token: token}, edit, discordgo.WithContext(ctx))
	return err
}
