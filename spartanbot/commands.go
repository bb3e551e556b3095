package spartanbot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// requirePrivileged checks that the guild is linked to a panel and that
// the member has a synced admin role. On failure it returns a denial
// embed for the caller to send, and a nil config.
func (d *SpartanBot) requirePrivileged(
	ctx context.Context,
	guildID string,
	discordID string,
) (*GuildConfig, *discordgo.MessageEmbed) {
	_, logger := d.getLogger(ctx)

	config, err := d.db.GuildConfig(ctx, guildID)
	if err != nil {
		if err == ErrGuildNotConfigured {
			return nil, notConfiguredEmbed()
		}
		logger.ErrorContext(ctx, "error loading guild config", tint.Err(err))
		return nil, errorEmbed("Error", "Couldn't load this server's panel link.")
	}

	privileged, err := d.db.IsPrivileged(ctx, guildID, discordID)
	if err != nil {
		logger.ErrorContext(ctx, "error checking synced role", tint.Err(err))
		return nil, errorEmbed("Error", "Couldn't verify your panel role.")
	}
	if !privileged {
		return nil, permissionDeniedEmbed()
	}
	return config, nil
}

// requireConfigured only checks that the guild is linked, with no role
// requirement. Used by /syncdiscord, which is how members first sync.
func (d *SpartanBot) requireConfigured(
	ctx context.Context,
	guildID string,
) (*GuildConfig, *discordgo.MessageEmbed) {
	_, logger := d.getLogger(ctx)

	config, err := d.db.GuildConfig(ctx, guildID)
	if err != nil {
		if err == ErrGuildNotConfigured {
			return nil, notConfiguredEmbed()
		}
		logger.ErrorContext(ctx, "error loading guild config", tint.Err(err))
		return nil, errorEmbed("Error", "Couldn't load this server's panel link.")
	}
	return config, nil
}

// memberIsDiscordAdmin reports whether the interaction member carries
// the Administrator permission in the guild.
func memberIsDiscordAdmin(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	return i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// linkAllowed gates /link and its config modal: a synced admin role
// always qualifies, and the Discord Administrator permission qualifies
// while the guild has no panel link yet (the bootstrap case) or for the
// connection test that follows a fresh link.
func (d *SpartanBot) linkAllowed(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) bool {
	discordUser := getDiscordUser(i)
	if discordUser == nil {
		return false
	}
	privileged, err := d.db.IsPrivileged(ctx, i.GuildID, discordUser.ID)
	if err == nil && privileged {
		return true
	}
	return memberIsDiscordAdmin(i)
}
