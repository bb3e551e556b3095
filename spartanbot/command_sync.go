package spartanbot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// handleSyncDiscordCommand links the calling Discord account to its
// panel account. The panel stores discord IDs per user, so the whole
// user collection is walked looking for the caller.
func (d *SpartanBot) handleSyncDiscordCommand(
	ctx context.Context,
	handler InteractionHandler,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	config, denied := d.requireConfigured(ctx, i.GuildID)
	if denied != nil {
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{denied}, nil)
		return
	}

	users, err := d.panel.ListAllUsers(ctx, config.Credentials())
	if err != nil {
		logger.ErrorContext(ctx, "error listing panel users", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	var matched *PanelUser
	for idx := range users {
		if users[idx].DiscordID == discordUser.ID {
			matched = &users[idx]
			break
		}
	}

	if matched == nil {
		embed := &discordgo.MessageEmbed{
			Title: "Not Linked",
			Description: "No panel account has this Discord account linked. " +
				"Link your Discord ID in your panel profile, then run " +
				"`/syncdiscord` again.",
			Color: embedColorWarning,
		}
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{embed}, nil)
		return
	}

	role := matched.RoleName()
	synced, err := d.db.UpsertSyncedRole(
		ctx, i.GuildID, discordUser.ID, matched.ID, role,
	)
	if err != nil {
		logger.ErrorContext(ctx, "error saving synced role", tint.Err(err))
		editEmbeds(
			ctx,
			handler,
			[]*discordgo.MessageEmbed{
				errorEmbed("Error", "Couldn't save your synced role."),
			},
			nil,
		)
		return
	}

	access := "standard access"
	if isPrivilegedRole(synced.Role) {
		access = "admin access"
	}
	embed := &discordgo.MessageEmbed{
		Title: "Account Synced",
		Description: fmt.Sprintf(
			"Linked to panel account `%s` with role `%s` (%s).",
			matched.Email, synced.Role, access,
		),
		Color: embedColorSuccess,
	}
	editEmbeds(ctx, handler, []*discordgo.MessageEmbed{embed}, nil)
}
