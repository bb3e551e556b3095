package spartanbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// Embed accent colors, matching the discord brand palette.
const (
	embedColorSuccess = 0x57F287
	embedColorError   = 0xED4245
	embedColorInfo    = 0x5865F2
	embedColorWarning = 0xFEE75C
)

func ephemeralEmbedResponse(
	embeds ...*discordgo.MessageEmbed,
) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags:  discordgo.MessageFlagsEphemeral,
			Embeds: embeds,
		},
	}
}

func deferredUpdateResponse() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}
}

// editEmbeds replaces the interaction response's embeds and components.
// Passing an empty component slice clears any existing rows.
func editEmbeds(
	ctx context.Context,
	handler InteractionHandler,
	embeds []*discordgo.MessageEmbed,
	components []discordgo.MessageComponent,
) {
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	_, _ = handler.Edit(
		ctx, &discordgo.WebhookEdit{
			Embeds:     &embeds,
			Components: &components,
		},
	)
}

func errorEmbed(title string, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       embedColorError,
	}
}

func guildOnlyEmbed() *discordgo.MessageEmbed {
	return errorEmbed(
		"Server Only",
		"This command can only be used in a server.",
	)
}

func permissionDeniedEmbed() *discordgo.MessageEmbed {
	return errorEmbed(
		"Permission Denied",
		"You need a synced admin panel role to use this command. "+
			"Run `/syncdiscord` if your panel account has admin access.",
	)
}

func notConfiguredEmbed() *discordgo.MessageEmbed {
	return errorEmbed(
		"Panel Not Linked",
		"This server isn't linked to a billing panel yet. "+
			"An administrator needs to run `/link` first.",
	)
}

// panelErrorEmbed translates a panel client error into a user-facing
// embed, without leaking URLs or keys.
func panelErrorEmbed(err error) *discordgo.MessageEmbed {
	if errors.Is(err, ErrGuildNotConfigured) {
		return notConfiguredEmbed()
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return errorEmbed(
			"Not Found",
			fmt.Sprintf("No match found for `%s`.", notFound.Identifier),
		)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errorEmbed(
				"Authentication Failed",
				"The panel rejected the stored API key. "+
					"Re-run `/link` with a valid key.",
			)
		case http.StatusNotFound:
			return errorEmbed(
				"Not Found",
				"The panel couldn't find the requested record.",
			)
		default:
			return errorEmbed(
				"Panel Error",
				fmt.Sprintf(
					"The panel returned an unexpected response (HTTP %d).",
					statusErr.StatusCode,
				),
			)
		}
	}

	var panelErr *PanelError
	if errors.As(err, &panelErr) {
		description := panelErr.Message
		if description == "" {
			description = "The panel reported a failure without details."
		}
		return errorEmbed("Panel Error", description)
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return errorEmbed(
			"Connection Failed",
			"Couldn't reach the billing panel. Check the panel URL "+
				"and try again.",
		)
	}

	return errorEmbed("Error", "Something went wrong handling the request.")
}

// textInputRow wraps a single text input in its own action row, which is
// how discord requires modal inputs to be laid out.
func textInputRow(input discordgo.TextInput) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{input},
	}
}

// modalInputValue extracts the submitted value of a text input by custom
// ID. Missing inputs return an empty string.
func modalInputValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actionsRow.Components {
			input, ok := component.(*discordgo.TextInput)
			if ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}
