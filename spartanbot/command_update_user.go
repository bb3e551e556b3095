package spartanbot

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	userModalInputName     = "name"
	userModalInputEmail    = "email"
	userModalInputRole     = "role"
	userModalInputPassword = "password"
	userModalInputNotes    = "notes"

	// userModalPrefillTimeout caps the panel fetch used to pre-fill the
	// edit modal. The modal has to be the initial interaction response,
	// so a slow panel can't be allowed to eat the response window; on
	// timeout the modal opens with blank inputs instead.
	userModalPrefillTimeout = 2 * time.Second
)

// handleUpdateUserCommand resolves a user by ID or email and shows their
// details with an edit button.
func (d *SpartanBot) handleUpdateUserCommand(
	ctx context.Context,
	handler InteractionHandler,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	config, denied := d.requirePrivileged(ctx, i.GuildID, discordUser.ID)
	if denied != nil {
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{denied}, nil)
		return
	}

	identifier := ""
	if option, ok := discordInteractionOptions(i)[updateUserIdentifierOption]; ok {
		identifier = strings.TrimSpace(option.StringValue())
	}

	user, err := d.panel.FindUser(ctx, config.Credentials(), identifier)
	if err != nil {
		logger.WarnContext(ctx, "user lookup failed", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	editEmbeds(
		ctx,
		handler,
		[]*discordgo.MessageEmbed{userDetailEmbed(user, "User Details")},
		[]discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Edit User",
						Style:    discordgo.PrimaryButton,
						CustomID: editUserCustomID(user.ID, i.GuildID),
					},
				},
			},
		},
	)
}

func userDetailEmbed(user *PanelUser, title string) *discordgo.MessageEmbed {
	linked := "not linked"
	if user.DiscordID != "" {
		linked = "<@" + user.DiscordID + ">"
	}
	return &discordgo.MessageEmbed{
		Title: title,
		Color: embedColorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "ID", Value: stringOrDash(intToString(user.ID)), Inline: true},
			{Name: "Name", Value: stringOrDash(user.Name), Inline: true},
			{Name: "Email", Value: stringOrDash(user.Email), Inline: true},
			{Name: "Role", Value: stringOrDash(user.RoleName()), Inline: true},
			{Name: "Discord", Value: linked, Inline: true},
		},
	}
}

// handleEditUserButton opens the user edit modal, pre-filled from the
// panel when it answers quickly enough.
func (d *SpartanBot) handleEditUserButton(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	userID, guildID, err := parseIDGuildSuffix(customID, customIDPrefixEditUser)
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad edit button", tint.Err(err))
		return
	}

	config, denied := d.requirePrivileged(ctx, guildID, discordUser.ID)
	if denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	var current PanelUser
	prefillCtx, prefillCancel := context.WithTimeout(ctx, userModalPrefillTimeout)
	if user, fetchErr := d.panel.GetUser(
		prefillCtx, config.Credentials(), userID,
	); fetchErr == nil {
		current = *user
	} else {
		logger.DebugContext(
			ctx, "skipping modal pre-fill", tint.Err(fetchErr),
		)
	}
	prefillCancel()

	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: updateUserModalCustomID(userID, guildID),
				Title:    "Update User",
				Components: []discordgo.MessageComponent{
					textInputRow(
						discordgo.TextInput{
							CustomID:  userModalInputName,
							Label:     "Name",
							Style:     discordgo.TextInputShort,
							Value:     current.Name,
							MaxLength: 100,
						},
					),
					textInputRow(
						discordgo.TextInput{
							CustomID:  userModalInputEmail,
							Label:     "Email",
							Style:     discordgo.TextInputShort,
							Value:     current.Email,
							MaxLength: 200,
						},
					),
					textInputRow(
						discordgo.TextInput{
							CustomID:  userModalInputRole,
							Label:     "Role",
							Style:     discordgo.TextInputShort,
							Value:     current.Role,
							MaxLength: 50,
						},
					),
					textInputRow(
						discordgo.TextInput{
							CustomID:    userModalInputPassword,
							Label:       "New Password",
							Style:       discordgo.TextInputShort,
							Placeholder: "Leave blank to keep current",
							MaxLength:   100,
						},
					),
					textInputRow(
						discordgo.TextInput{
							CustomID:    userModalInputNotes,
							Label:       "Notes",
							Style:       discordgo.TextInputParagraph,
							Placeholder: "Leave blank to keep current",
							MaxLength:   500,
						},
					),
				},
			},
		},
	)
}

// handleUserModalSubmit applies the submitted changes. Only filled
// inputs are sent to the panel.
func (d *SpartanBot) handleUserModalSubmit(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	userID, guildID, err := parseIDGuildSuffix(customID, customIDPrefixUserModal)
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad user modal", tint.Err(err))
		return
	}

	config, denied := d.requirePrivileged(ctx, guildID, discordUser.ID)
	if denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	data := i.ModalSubmitData()
	update := UserUpdate{
		Name:     strings.TrimSpace(modalInputValue(data, userModalInputName)),
		Email:    strings.TrimSpace(modalInputValue(data, userModalInputEmail)),
		Role:     strings.TrimSpace(modalInputValue(data, userModalInputRole)),
		Password: modalInputValue(data, userModalInputPassword),
		Notes:    strings.TrimSpace(modalInputValue(data, userModalInputNotes)),
	}

	if update.isEmpty() {
		_ = handler.Respond(
			ctx, ephemeralEmbedResponse(
				errorEmbed("Nothing to Update", "All inputs were left blank."),
			),
		)
		return
	}

	if ackErr := handler.Respond(ctx, d.discord.ackResponse()); ackErr != nil {
		return
	}

	user, err := d.panel.UpdateUser(ctx, config.Credentials(), userID, update)
	if err != nil {
		logger.ErrorContext(ctx, "error updating user", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	embed := userDetailEmbed(user, "User Updated")
	embed.Color = embedColorSuccess
	editEmbeds(ctx, handler, []*discordgo.MessageEmbed{embed}, nil)
}
