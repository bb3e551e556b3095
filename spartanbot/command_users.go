package spartanbot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// showAllUsersPerEmbed caps the user lines packed into one embed in the
// flattened view, keeping embed descriptions well under discord's limit.
const showAllUsersPerEmbed = 20

// usersFetcher adapts the panel user listing to the browser's fetch
// signature, fixing the search filter from the navigation state.
func (d *SpartanBot) usersFetcher(
	creds PanelCredentials,
	search string,
) PageFetcher[PanelUser] {
	return func(ctx context.Context, page int, perPage int) (
		*RemotePage[PanelUser],
		error,
	) {
		return d.panel.ListUsers(ctx, creds, page, perPage, search)
	}
}

// handleUsersCommand opens the paginated user browser.
func (d *SpartanBot) handleUsersCommand(
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

	var search string
	if option, ok := discordInteractionOptions(i)[usersSearchOption]; ok {
		search = strings.TrimSpace(option.StringValue())
	}

	state := NavigationState{
		Kind:     ResourceUsers,
		Mode:     BrowseModePaged,
		Page:     1,
		PageSize: usersPageSize,
		GuildID:  i.GuildID,
		Search:   search,
	}

	result, err := Browse(
		ctx, state, BrowseActionFirst,
		d.usersFetcher(config.Credentials(), search),
	)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching users", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	embeds, components := renderUsersBrowse(result)
	editEmbeds(ctx, handler, embeds, components)
}

// handleUsersNavigation handles the user browser's pagination buttons.
func (d *SpartanBot) handleUsersNavigation(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	state, action, err := DecodeNavigationToken(customID)
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad navigation token", tint.Err(err))
		_ = handler.Respond(ctx, deferredUpdateResponse())
		return
	}

	config, denied := d.requirePrivileged(ctx, state.GuildID, discordUser.ID)
	if denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	if respondErr := handler.Respond(ctx, deferredUpdateResponse()); respondErr != nil {
		return
	}

	result, err := Browse(
		ctx, state, action,
		d.usersFetcher(config.Credentials(), state.Search),
	)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching users", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	embeds, components := renderUsersBrowse(result)
	editEmbeds(ctx, handler, embeds, components)
}

func renderUsersBrowse(result *BrowseResult[PanelUser]) (
	[]*discordgo.MessageEmbed,
	[]discordgo.MessageComponent,
) {
	if result.State.Mode == BrowseModeAll {
		return renderAllUsers(result)
	}
	return renderUsersPage(result)
}

func renderUsersPage(result *BrowseResult[PanelUser]) (
	[]*discordgo.MessageEmbed,
	[]discordgo.MessageComponent,
) {
	state := result.State
	page := result.Page

	title := "Panel Users"
	if state.Search != "" {
		title = fmt.Sprintf("Panel Users matching %q", state.Search)
	}
	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: embedColorInfo,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf(
				"Page %d of %d • %d users total",
				state.Page, page.LastPage, page.Total,
			),
		},
	}

	if len(page.Data) == 0 {
		embed.Description = "No users found."
		return []*discordgo.MessageEmbed{embed}, []discordgo.MessageComponent{}
	}

	for _, user := range page.Data {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("%s (#%d)", user.Name, user.ID),
				Value: userFieldValue(user),
			},
		)
	}

	components := []discordgo.MessageComponent{}
	if page.LastPage > 1 {
		components = append(
			components, paginationRow(state, true), showAllRow(state),
		)
	}
	return []*discordgo.MessageEmbed{embed}, components
}

func userFieldValue(user PanelUser) string {
	linked := "not linked"
	if user.DiscordID != "" {
		linked = fmt.Sprintf("<@%s>", user.DiscordID)
	}
	return fmt.Sprintf(
		"**Email:** %s\n**Role:** %s\n**Discord:** %s",
		user.Email, user.RoleName(), linked,
	)
}

// renderAllUsers renders the flattened one-line-per-user view, split
// across embeds as needed.
func renderAllUsers(result *BrowseResult[PanelUser]) (
	[]*discordgo.MessageEmbed,
	[]discordgo.MessageComponent,
) {
	state := result.State
	page := result.Page

	lines := make([]string, 0, len(page.Data))
	for _, user := range page.Data {
		lines = append(
			lines, fmt.Sprintf(
				"`#%d` **%s** - %s (%s)",
				user.ID, user.Name, user.Email, user.RoleName(),
			),
		)
	}

	components := []discordgo.MessageComponent{backToPagedRow(state)}
	if len(lines) == 0 {
		embed := &discordgo.MessageEmbed{
			Title:       "All Panel Users",
			Description: "No users found.",
			Color:       embedColorInfo,
		}
		return []*discordgo.MessageEmbed{embed}, components
	}

	var embeds []*discordgo.MessageEmbed
	for idx, chunk := range chunkItems(showAllUsersPerEmbed, lines...) {
		embed := &discordgo.MessageEmbed{
			Description: strings.Join(chunk, "\n"),
			Color:       embedColorInfo,
		}
		if idx == 0 {
			embed.Title = "All Panel Users"
		}
		embeds = append(embeds, embed)
	}
	embeds[len(embeds)-1].Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("%d users total", page.Total),
	}
	return embeds, components
}
