// Package commands defines the bot's slash commands and the custom ids of the
// components they produce.
package commands

import "github.com/bwmarrin/discordgo"

// Command and option names.
const (
	Poke         = "poke"
	Inspect      = "inspect"
	SignIn       = "signin"
	PublicOption = "public"
)

// Component and modal custom ids.
const (
	PasteLinkButtonID = "signIn.button.pasteLink"
	PasteLinkModalID  = "signIn.modal.pasteLink"
	PasteLinkInputID  = "signIn.modal.pasteLink.textInput"
)

// All returns the global command set.
func All() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        Poke,
			Description: "Check that the bot is alive",
		},
		{
			Name:        Inspect,
			Description: "Rank the players of your latest Salmon Run shift",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        PublicOption,
					Description: "Show the result to everyone in the channel",
				},
			},
		},
		{
			Name:        SignIn,
			Description: "Sign in with your Nintendo Account",
		},
	}
}
