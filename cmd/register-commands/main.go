// Command register-commands publishes the bot's global slash commands to Discord.
// It overwrites the full command set, so commands removed from the bot disappear too.
//
// Requires DISCORD_TOKEN, DISCORD_APP_ID and DISCORD_PUBLIC_KEY.
package main

import (
	"log/slog"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	"github.com/onnwee/grizzpector/commands"
	"github.com/onnwee/grizzpector/config"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		slog.Error("discord session setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	dg.UserAgent = cfg.UserAgent

	registered, err := dg.ApplicationCommandBulkOverwrite(cfg.DiscordAppID, "", commands.All())
	if err != nil {
		slog.Error("command registration failed", slog.Any("err", err))
		os.Exit(1)
	}
	for _, c := range registered {
		slog.Info("registered command", slog.String("name", c.Name), slog.String("id", c.ID))
	}
}
