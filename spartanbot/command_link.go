package spartanbot

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	configModalInputAPIURL = "api_url"
	configModalInputAPIKey = "api_key"
)

// handleLinkCommand opens the panel credential modal. The command is
// answered with the modal directly, so it is never deferred.
func (d *SpartanBot) handleLinkCommand(
	ctx context.Context,
	handler InteractionHandler,
) {
	i := handler.GetInteraction()

	if !d.linkAllowed(ctx, i) {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(permissionDeniedEmbed()))
		return
	}

	// pre-fill the URL from any existing link, so re-linking only needs
	// a fresh key
	var existingURL string
	if config, err := d.db.GuildConfig(ctx, i.GuildID); err == nil {
		existingURL = config.APIURL
	}

	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: customIDConfigModal,
				Title:    "Link Billing Panel",
				Components: []discordgo.MessageComponent{
					textInputRow(
						discordgo.TextInput{
							CustomID:    configModalInputAPIURL,
							Label:       "Panel URL",
							Style:       discordgo.TextInputShort,
							Placeholder: "https://billing.example.com",
							Value:       existingURL,
							Required:    true,
							MaxLength:   200,
						},
					),
					textInputRow(
						discordgo.TextInput{
							CustomID:  configModalInputAPIKey,
							Label:     "API Key",
							Style:     discordgo.TextInputShort,
							Required:  true,
							MaxLength: 200,
						},
					),
				},
			},
		},
	)
}

// handleConfigModalSubmit saves the submitted panel credentials and
// replies with a connection test button.
func (d *SpartanBot) handleConfigModalSubmit(
	ctx context.Context,
	handler InteractionHandler,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()

	if !d.linkAllowed(ctx, i) {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(permissionDeniedEmbed()))
		return
	}

	data := i.ModalSubmitData()
	apiURL := strings.TrimSpace(modalInputValue(data, configModalInputAPIURL))
	apiKey := strings.TrimSpace(modalInputValue(data, configModalInputAPIKey))

	parsed, err := url.Parse(apiURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") ||
		parsed.Host == "" {
		_ = handler.Respond(
			ctx, ephemeralEmbedResponse(
				errorEmbed(
					"Invalid URL",
					"The panel URL must start with `http://` or `https://`.",
				),
			),
		)
		return
	}
	if apiKey == "" {
		_ = handler.Respond(
			ctx, ephemeralEmbedResponse(
				errorEmbed("Invalid Key", "The API key can't be empty."),
			),
		)
		return
	}

	config, err := d.db.SaveGuildConfig(ctx, i.GuildID, apiURL, apiKey)
	if err != nil {
		logger.ErrorContext(ctx, "error saving guild config", tint.Err(err))
		_ = handler.Respond(
			ctx, ephemeralEmbedResponse(
				errorEmbed("Error", "Couldn't save the panel configuration."),
			),
		)
		return
	}

	if d.dbNotifier != nil {
		notifyCtx, notifyCancel := context.WithTimeout(
			context.WithoutCancel(ctx),
			dbNotifierSendTimeout,
		)
		defer notifyCancel()
		d.dbNotifier.GuildConfigUpdated(notifyCtx, i.GuildID)
	}

	embed := &discordgo.MessageEmbed{
		Title: "Panel Linked",
		Description: "Saved the panel configuration for this server. " +
			"Use the button below to verify the connection.",
		Color: embedColorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Panel URL", Value: config.APIURL},
		},
	}

	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags:  discordgo.MessageFlagsEphemeral,
				Embeds: []*discordgo.MessageEmbed{embed},
				Components: []discordgo.MessageComponent{
					testConnectionRow(i.GuildID),
				},
			},
		},
	)
}

// testConnectionRow returns a fresh connection test button. The custom
// ID carries a timestamp so repeated tests never collide on discord's
// per-message component IDs.
func testConnectionRow(guildID string) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Test Connection",
				Style:    discordgo.PrimaryButton,
				CustomID: testConnectionCustomID(guildID, time.Now().UnixMilli()),
			},
		},
	}
}

// handleTestConnection probes the panel with the stored credentials and
// edits the result into the link message.
func (d *SpartanBot) handleTestConnection(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()

	suffix, found := strings.CutPrefix(customID, customIDPrefixTestConn)
	if !found {
		return
	}
	guildID, _, _ := strings.Cut(suffix, "_")
	if guildID == "" {
		guildID = i.GuildID
	}

	if !d.linkAllowed(ctx, i) {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(permissionDeniedEmbed()))
		return
	}

	if err := handler.Respond(ctx, deferredUpdateResponse()); err != nil {
		return
	}

	config, err := d.db.GuildConfig(ctx, guildID)
	if err != nil {
		editEmbeds(
			ctx,
			handler,
			[]*discordgo.MessageEmbed{panelErrorEmbed(err)},
			[]discordgo.MessageComponent{testConnectionRow(guildID)},
		)
		return
	}

	total, elapsed, err := d.panel.TestConnection(ctx, config.Credentials())
	if err != nil {
		logger.WarnContext(ctx, "connection test failed", tint.Err(err))
		failure := panelErrorEmbed(err)
		failure.Title = "Connection Test Failed"
		editEmbeds(
			ctx,
			handler,
			[]*discordgo.MessageEmbed{failure},
			[]discordgo.MessageComponent{testConnectionRow(guildID)},
		)
		return
	}

	success := &discordgo.MessageEmbed{
		Title: "Connection Test Passed",
		Color: embedColorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Panel Users",
				Value:  fmt.Sprintf("%d", total),
				Inline: true,
			},
			{
				Name:   "Response Time",
				Value:  fmt.Sprintf("%dms", elapsed.Milliseconds()),
				Inline: true,
			},
			{
				Name:   "API Key",
				Value:  fmt.Sprintf("%d characters", len(config.APIKey)),
				Inline: true,
			},
		},
	}
	editEmbeds(
		ctx,
		handler,
		[]*discordgo.MessageEmbed{success},
		[]discordgo.MessageComponent{testConnectionRow(guildID)},
	)
}
