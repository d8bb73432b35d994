package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/grizzpector/commands"
	"github.com/onnwee/grizzpector/scoring"
	"github.com/onnwee/grizzpector/session"
	"github.com/onnwee/grizzpector/telemetry"
)

// ErrUnsupportedInteraction is returned for interaction types, command names and
// custom ids the bot does not handle.
var ErrUnsupportedInteraction = errors.New("unsupported interaction")

const (
	pokeText        = "Hey, I'm working!"
	notSignedInText = "💡 Looks like you haven't signed in yet. Please use /" + commands.SignIn + " to sign in 😊"
	badLinkText     = "That doesn't look like a sign-in link. Please use /" + commands.SignIn + " to get a new one and paste the \"Select this account\" link."
	signInBusyText  = "Sign-in is temporarily unavailable. Please try again in a few minutes."
)

// HandleInteractions decodes a verified interaction and dispatches it by type.
func (h *Handlers) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	var i discordgo.Interaction
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		telemetry.RecordInteraction("unknown", "bad_request")
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid interaction payload: %v", err))
		return
	}

	switch i.Type {
	case discordgo.InteractionPing:
		telemetry.RecordInteraction("ping", "ok")
		writeResponse(w, &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(w, r, &i)
	case discordgo.InteractionMessageComponent:
		h.handleComponent(w, r, &i)
	case discordgo.InteractionModalSubmit:
		h.handleModalSubmit(w, r, &i)
	default:
		h.unsupported(w, r, "unknown", fmt.Errorf("%w: type %d", ErrUnsupportedInteraction, i.Type))
	}
}

func (h *Handlers) handleCommand(w http.ResponseWriter, r *http.Request, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	tagSpan(r, "command", data.Name)
	switch data.Name {
	case commands.Poke:
		telemetry.RecordInteraction("command", "ok")
		writeResponse(w, message(pokeText, 0))
	case commands.Inspect:
		h.handleInspect(w, r, i, data)
	case commands.SignIn:
		h.handleSignIn(w, r)
	default:
		h.unsupported(w, r, "command", fmt.Errorf("%w: application command name %q", ErrUnsupportedInteraction, data.Name))
	}
}

func (h *Handlers) handleInspect(w http.ResponseWriter, r *http.Request, i *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	id, ok := identityFrom(i)
	if !ok {
		h.unsupported(w, r, "command", fmt.Errorf("%w: application command not invoked by a user", ErrUnsupportedInteraction))
		return
	}
	sess, ok := h.store.Get(r.Context(), id)
	if !ok {
		telemetry.RecordInteraction("command", "not_signed_in")
		writeResponse(w, message(notSignedInText, discordgo.MessageFlagsEphemeral))
		return
	}

	var flags discordgo.MessageFlags
	if !boolOption(data.Options, commands.PublicOption) {
		flags = discordgo.MessageFlagsEphemeral
	}
	appID, token := i.AppID, i.Token
	h.runner.Go(r.Context(), commands.Inspect, func(ctx context.Context) error {
		detail, err := h.manager.Client(sess).LatestShift(ctx)
		if err != nil {
			return fmt.Errorf("fetch latest shift: %w", err)
		}
		content := scoring.Markdown(scoring.Rank(detail.Results()))
		return h.editor.EditOriginal(ctx, appID, token, &discordgo.WebhookEdit{Content: &content})
	})
	telemetry.RecordInteraction("command", "deferred")
	writeResponse(w, deferred(flags))
}

func (h *Handlers) handleSignIn(w http.ResponseWriter, r *http.Request) {
	authURL, _, err := h.manager.BeginAuthorization()
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("failed to begin authorization",
			slog.String("component", "signin"), slog.Any("err", err))
		telemetry.RecordInteraction("command", "error")
		writeResponse(w, message(signInBusyText, discordgo.MessageFlagsEphemeral))
		return
	}

	resp := message(signInInstructions(authURL), discordgo.MessageFlagsEphemeral|discordgo.MessageFlagsSuppressEmbeds)
	resp.Data.Components = []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Sign In via NSO", Style: discordgo.LinkButton, URL: authURL},
			discordgo.Button{Label: "Paste link", Style: discordgo.PrimaryButton, CustomID: commands.PasteLinkButtonID},
		}},
	}
	telemetry.RecordInteraction("command", "ok")
	writeResponse(w, resp)
}

func (h *Handlers) handleComponent(w http.ResponseWriter, r *http.Request, i *discordgo.Interaction) {
	data := i.MessageComponentData()
	tagSpan(r, "component", data.CustomID)
	switch data.CustomID {
	case commands.PasteLinkButtonID:
		telemetry.RecordInteraction("component", "ok")
		writeResponse(w, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: commands.PasteLinkModalID,
				Title:    "Paste Link",
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    commands.PasteLinkInputID,
							Label:       `Your NSO "Select this account" link`,
							Style:       discordgo.TextInputShort,
							Placeholder: "npf71b963c1b7b6d119://auth...",
						},
					}},
				},
			},
		})
	default:
		h.unsupported(w, r, "component", fmt.Errorf("%w: message component id %q", ErrUnsupportedInteraction, data.CustomID))
	}
}

func (h *Handlers) handleModalSubmit(w http.ResponseWriter, r *http.Request, i *discordgo.Interaction) {
	data := i.ModalSubmitData()
	tagSpan(r, "modal", data.CustomID)
	if data.CustomID != commands.PasteLinkModalID {
		h.unsupported(w, r, "modal", fmt.Errorf("%w: modal id %q", ErrUnsupportedInteraction, data.CustomID))
		return
	}
	id, ok := identityFrom(i)
	if !ok {
		h.unsupported(w, r, "modal", fmt.Errorf("%w: modal not submitted by a user", ErrUnsupportedInteraction))
		return
	}
	params, err := h.manager.ParseRedirectLink(textInputValue(data.Components, commands.PasteLinkInputID))
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Info("rejected pasted sign-in link",
			slog.String("component", "signin"), slog.String("user", id.Key()), slog.Any("err", err))
		telemetry.RecordInteraction("modal", "bad_link")
		writeResponse(w, message(badLinkText, discordgo.MessageFlagsEphemeral))
		return
	}

	appID, token := i.AppID, i.Token
	h.runner.Go(r.Context(), "signin", func(ctx context.Context) error {
		outer, err := h.manager.CompleteAuthorization(ctx, params)
		if err != nil {
			return err
		}
		sess, err := h.manager.CreateSession(ctx, id, outer, session.Options{})
		if err != nil {
			return err
		}
		h.store.Put(id, sess)
		telemetry.LoggerWithCorr(ctx).Info("user signed in",
			slog.String("component", "signin"), slog.String("user", id.Key()))

		content := fmt.Sprintf("You've signed in as **%s**!", outer.Account.Name)
		edit := &discordgo.WebhookEdit{Content: &content}
		if outer.Account.ImageURI != "" {
			edit.Embeds = &[]*discordgo.MessageEmbed{{Image: &discordgo.MessageEmbedImage{URL: outer.Account.ImageURI}}}
		}
		return h.editor.EditOriginal(ctx, appID, token, edit)
	})
	telemetry.RecordInteraction("modal", "deferred")
	writeResponse(w, deferred(discordgo.MessageFlagsEphemeral))
}

func (h *Handlers) unsupported(w http.ResponseWriter, r *http.Request, kind string, err error) {
	telemetry.LoggerWithCorr(r.Context()).Warn("unsupported interaction",
		slog.String("component", "interactions"), slog.Any("err", err))
	telemetry.RecordInteraction(kind, "unsupported")
	writeError(w, http.StatusBadRequest, err.Error())
}

func signInInstructions(authURL string) string {
	return "Please follow the steps below to sign in:\n" +
		"1. **Click on the \"Sign In via NSO\" button, or copy [this sign in link](" + authURL + ") and open it in your browser.**\n" +
		"2. **In the web page that opens, sign in to Nintendo Switch Online.**\n" +
		"3. **After signing in you will see the \"Link an account\" page. Copy the link of the \"Select this account\" button.**\n" +
		"   > - PC/Mac: right click the \"Select this account\" button and select \"Copy link address\"\n" +
		"   > - Mobile: long press the \"Select this account\" button and select \"Copy link address\"\n" +
		"       > 💡 If you cannot long press or do not see a \"Copy link address\" option, try a different browser.\n" +
		"4. **Click on the \"Paste link\" button, paste the link in the text input and submit.**\n" +
		"If sign in is successful, Grizzpector will show your NSO username."
}
