package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/grizzpector/session"
	"github.com/onnwee/grizzpector/telemetry"
)

// tagSpan labels the request span with the interaction route.
func tagSpan(r *http.Request, kind, route string) {
	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.InteractionAttr(kind, route)...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.String("component", "http"), slog.Any("err", err))
	}
}

func writeResponse(w http.ResponseWriter, resp *discordgo.InteractionResponse) {
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// message builds an immediate channel message response.
func message(content string, flags discordgo.MessageFlags) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: flags},
	}
}

// deferred acknowledges an interaction whose message will be edited in later.
func deferred(flags discordgo.MessageFlags) *discordgo.InteractionResponse {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if flags != 0 {
		resp.Data = &discordgo.InteractionResponseData{Flags: flags}
	}
	return resp
}

// identityFrom returns the invoking user: the guild member's user in guilds, the
// plain user in DMs.
func identityFrom(i *discordgo.Interaction) (session.Identity, bool) {
	var u *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		u = i.Member.User
	case i.User != nil:
		u = i.User
	default:
		return session.Identity{}, false
	}
	if u.ID == "" {
		return session.Identity{}, false
	}
	return session.Identity{ID: u.ID, Username: u.Username}, true
}

// boolOption returns the value of a boolean option, false when absent.
func boolOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	for _, o := range opts {
		if o == nil || o.Name != name || o.Type != discordgo.ApplicationCommandOptionBoolean {
			continue
		}
		v, _ := o.Value.(bool)
		return v
	}
	return false
}

// textInputValue finds the value of the text input with customID in a modal submission.
func textInputValue(components []discordgo.MessageComponent, customID string) string {
	for _, c := range components {
		var children []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			children = row.Components
		case discordgo.ActionsRow:
			children = row.Components
		}
		for _, child := range children {
			switch in := child.(type) {
			case *discordgo.TextInput:
				if in.CustomID == customID {
					return in.Value
				}
			case discordgo.TextInput:
				if in.CustomID == customID {
					return in.Value
				}
			}
		}
	}
	return ""
}
