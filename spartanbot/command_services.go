package spartanbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	priceModalInput   = "price"
	dueDateModalInput = "due_date"
)

// servicesRefreshDelay is how long to wait after a mutation before
// replacing the message with a fresh service list. The delay gives
// the panel time to settle the new status.
var servicesRefreshDelay = 2 * time.Second

// servicesFetcher adapts the panel service listing to the browser's
// fetch signature, fixing the filters from the navigation state.
func (d *SpartanBot) servicesFetcher(
	creds PanelCredentials,
	userEmail string,
	status string,
) PageFetcher[PanelService] {
	return func(ctx context.Context, page int, perPage int) (
		*RemotePage[PanelService],
		error,
	) {
		return d.panel.ListServices(ctx, creds, page, perPage, userEmail, status)
	}
}

// handleManageServicesCommand opens the paginated service browser.
func (d *SpartanBot) handleManageServicesCommand(
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

	options := discordInteractionOptions(i)
	var userEmail, status string
	if option, ok := options[manageServicesEmailOption]; ok {
		userEmail = strings.TrimSpace(option.StringValue())
	}
	if option, ok := options[manageServicesStatusOption]; ok {
		status = option.StringValue()
	}

	state := NavigationState{
		Kind:     ResourceServices,
		Mode:     BrowseModePaged,
		Page:     1,
		PageSize: servicesPageSize,
		GuildID:  i.GuildID,
		Email:    userEmail,
		Status:   status,
	}

	result, err := Browse(
		ctx, state, BrowseActionFirst,
		d.servicesFetcher(config.Credentials(), userEmail, status),
	)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching services", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	embeds, components := renderServicesBrowse(result)
	editEmbeds(ctx, handler, embeds, components)
}

// handleServicesNavigation handles the service browser's pagination
// buttons.
func (d *SpartanBot) handleServicesNavigation(
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
		d.servicesFetcher(config.Credentials(), state.Email, state.Status),
	)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching services", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	embeds, components := renderServicesBrowse(result)
	editEmbeds(ctx, handler, embeds, components)
}

func renderServicesBrowse(result *BrowseResult[PanelService]) (
	[]*discordgo.MessageEmbed,
	[]discordgo.MessageComponent,
) {
	state := result.State
	page := result.Page

	title := "Panel Services"
	var filters []string
	if state.Email != "" {
		filters = append(filters, fmt.Sprintf("owner `%s`", state.Email))
	}
	if state.Status != "" {
		filters = append(filters, fmt.Sprintf("status `%s`", state.Status))
	}
	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: embedColorInfo,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf(
				"Page %d of %d • %d services total",
				state.Page, page.LastPage, page.Total,
			),
		},
	}
	if len(filters) > 0 {
		embed.Description = "Filtered by " + strings.Join(filters, ", ")
	}

	if len(page.Data) == 0 {
		embed.Description = "No services found."
		return []*discordgo.MessageEmbed{embed}, []discordgo.MessageComponent{}
	}

	for _, service := range page.Data {
		embed.Fields = append(
			embed.Fields, &discordgo.MessageEmbedField{
				Name: fmt.Sprintf(
					"%s %s (#%d)",
					serviceStatusEmoji(service.Status),
					service.ServiceName,
					service.ID,
				),
				Value: serviceFieldValue(service),
			},
		)
	}

	components := []discordgo.MessageComponent{
		serviceSelectRow(state.GuildID, page.Data),
	}
	if page.LastPage > 1 {
		components = append(components, paginationRow(state, true))
	}
	return []*discordgo.MessageEmbed{embed}, components
}

func serviceFieldValue(service PanelService) string {
	product := "-"
	if service.Product != nil && service.Product.Name != "" {
		product = service.Product.Name
	}
	return fmt.Sprintf(
		"**Owner:** %s\n**Product:** %s\n**Price:** $%s / %s\n**Due:** %s",
		service.OwnerLabel(),
		product,
		stringOrDash(service.Price.String()),
		stringOrDash(service.BillingCycle),
		stringOrDash(service.DueDate),
	)
}

// serviceSelectRow builds the action select menu. Option values carry
// `<id>_<status>` so the per-status action rows can be built without
// another fetch.
func serviceSelectRow(
	guildID string,
	services []PanelService,
) discordgo.ActionsRow {
	options := make([]discordgo.SelectMenuOption, 0, len(services))
	for _, service := range services {
		options = append(
			options, discordgo.SelectMenuOption{
				Label: truncate(
					fmt.Sprintf("%s (#%d)", service.ServiceName, service.ID),
					100,
				),
				Value: fmt.Sprintf("%d_%s", service.ID, service.Status),
				Description: truncate(
					fmt.Sprintf(
						"%s • %s", service.OwnerLabel(), service.Status,
					),
					100,
				),
				Emoji: &discordgo.ComponentEmoji{
					Name: serviceStatusEmoji(service.Status),
				},
			},
		)
	}
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    serviceSelectCustomID(guildID),
				Placeholder: "Select a service to manage",
				Options:     options,
			},
		},
	}
}

// serviceActionRows builds the action buttons offered for a service,
// which depend on its current status.
func serviceActionRows(
	serviceID int64,
	guildID string,
	status string,
) []discordgo.MessageComponent {
	cancel := discordgo.Button{
		Label:    "Cancel",
		Style:    discordgo.SecondaryButton,
		CustomID: customIDCancelServiceAction,
	}
	opButton := func(label string, style discordgo.ButtonStyle, op ServiceOperation) discordgo.Button {
		return discordgo.Button{
			Label:    label,
			Style:    style,
			CustomID: serviceOpCustomID(op, serviceID, guildID),
		}
	}
	billingRow := func(withDueDate bool) discordgo.ActionsRow {
		buttons := []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Change Price",
				Style:    discordgo.PrimaryButton,
				CustomID: changePriceCustomID(serviceID, guildID),
			},
		}
		if withDueDate {
			buttons = append(
				buttons, discordgo.Button{
					Label:    "Change Due Date",
					Style:    discordgo.PrimaryButton,
					CustomID: changeDueDateCustomID(serviceID, guildID),
				},
			)
		}
		return discordgo.ActionsRow{Components: buttons}
	}

	switch status {
	case "active":
		return []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					opButton("Suspend", discordgo.PrimaryButton, ServiceOpSuspend),
					opButton("Terminate", discordgo.DangerButton, ServiceOpTerminate),
					cancel,
				},
			},
			billingRow(true),
		}
	case "suspended":
		return []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					opButton("Unsuspend", discordgo.SuccessButton, ServiceOpUnsuspend),
					opButton("Terminate", discordgo.DangerButton, ServiceOpTerminate),
					cancel,
				},
			},
		}
	case "terminated":
		return []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					opButton(
						"Delete Permanently",
						discordgo.DangerButton,
						ServiceOpDelete,
					),
					cancel,
				},
			},
		}
	case "pending":
		return []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					opButton("Activate", discordgo.SuccessButton, ServiceOpActivate),
					opButton("Terminate", discordgo.DangerButton, ServiceOpTerminate),
					cancel,
				},
			},
			billingRow(false),
		}
	default:
		return []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{cancel},
			},
		}
	}
}

// handleServiceSelected replaces the list with the per-status action
// menu for the chosen service.
func (d *SpartanBot) handleServiceSelected(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	guildID := strings.TrimPrefix(customID, customIDPrefixServiceSelect)

	data := i.MessageComponentData()
	if len(data.Values) == 0 {
		_ = handler.Respond(ctx, deferredUpdateResponse())
		return
	}
	serviceID, status, err := parseServiceSelectValue(data.Values[0])
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad select value", tint.Err(err))
		_ = handler.Respond(ctx, deferredUpdateResponse())
		return
	}

	if _, denied := d.requirePrivileged(ctx, guildID, discordUser.ID); denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	if respondErr := handler.Respond(ctx, deferredUpdateResponse()); respondErr != nil {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf(
			"%s Manage Service #%d", serviceStatusEmoji(status), serviceID,
		),
		Description: fmt.Sprintf(
			"Current status: `%s`. Choose an action below.", status,
		),
		Color: embedColorInfo,
	}
	editEmbeds(
		ctx,
		handler,
		[]*discordgo.MessageEmbed{embed},
		serviceActionRows(serviceID, guildID, status),
	)
}

// handleCancelServiceAction leaves the action menu, restoring an
// unfiltered first page of the service list.
func (d *SpartanBot) handleCancelServiceAction(
	ctx context.Context,
	handler InteractionHandler,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	config, denied := d.requirePrivileged(ctx, i.GuildID, discordUser.ID)
	if denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	if respondErr := handler.Respond(ctx, deferredUpdateResponse()); respondErr != nil {
		return
	}

	state := NavigationState{
		Kind:     ResourceServices,
		Mode:     BrowseModePaged,
		Page:     1,
		PageSize: servicesPageSize,
		GuildID:  i.GuildID,
	}
	result, err := Browse(
		ctx, state, BrowseActionFirst,
		d.servicesFetcher(config.Credentials(), "", ""),
	)
	if err != nil {
		logger.ErrorContext(ctx, "error fetching services", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}
	embeds, components := renderServicesBrowse(result)
	editEmbeds(ctx, handler, embeds, components)
}

var serviceOpPastTense = map[ServiceOperation]string{
	ServiceOpSuspend:   "suspended",
	ServiceOpUnsuspend: "unsuspended",
	ServiceOpTerminate: "terminated",
	ServiceOpActivate:  "activated",
	ServiceOpDelete:    "deleted",
}

// handleServiceOperation applies a lifecycle mutation and schedules a
// deferred list refresh.
func (d *SpartanBot) handleServiceOperation(
	ctx context.Context,
	handler InteractionHandler,
	op ServiceOperation,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	discordUser := getDiscordUser(handler.GetInteraction())

	serviceID, guildID, err := parseIDGuildSuffix(
		customID, string(op)+"_service_",
	)
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad service button", tint.Err(err))
		return
	}

	config, denied := d.requirePrivileged(ctx, guildID, discordUser.ID)
	if denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	if respondErr := handler.Respond(ctx, deferredUpdateResponse()); respondErr != nil {
		return
	}

	_, err = d.panel.MutateService(ctx, config.Credentials(), serviceID, op)
	if err != nil {
		logger.ErrorContext(
			ctx,
			"service operation failed",
			tint.Err(err),
			"operation", string(op),
			"service_id", serviceID,
		)
		// No refresh on failure, or it would replace the error embed.
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Service Updated",
		Description: fmt.Sprintf(
			"Service #%d has been %s.", serviceID, serviceOpPastTense[op],
		),
		Color: embedColorSuccess,
	}
	editEmbeds(ctx, handler, []*discordgo.MessageEmbed{embed}, nil)
	d.scheduleServicesRefresh(ctx, handler, config.Credentials())
}

// handleChangePriceButton opens the price modal.
func (d *SpartanBot) handleChangePriceButton(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	discordUser := getDiscordUser(handler.GetInteraction())

	serviceID, guildID, err := parseIDGuildSuffix(
		customID, customIDPrefixChangePrice,
	)
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad price button", tint.Err(err))
		return
	}

	if _, denied := d.requirePrivileged(ctx, guildID, discordUser.ID); denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: priceModalCustomID(serviceID, guildID),
				Title:    fmt.Sprintf("Change Price for Service #%d", serviceID),
				Components: []discordgo.MessageComponent{
					textInputRow(
						discordgo.TextInput{
							CustomID:    priceModalInput,
							Label:       "New Price",
							Style:       discordgo.TextInputShort,
							Placeholder: "19.99",
							Required:    true,
							MaxLength:   20,
						},
					),
				},
			},
		},
	)
}

// handleChangeDueDateButton opens the due date modal.
func (d *SpartanBot) handleChangeDueDateButton(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	discordUser := getDiscordUser(handler.GetInteraction())

	serviceID, guildID, err := parseIDGuildSuffix(
		customID, customIDPrefixChangeDueDate,
	)
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad due date button", tint.Err(err))
		return
	}

	if _, denied := d.requirePrivileged(ctx, guildID, discordUser.ID); denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	_ = handler.Respond(
		ctx, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID: dueDateModalCustomID(serviceID, guildID),
				Title: fmt.Sprintf(
					"Change Due Date for Service #%d", serviceID,
				),
				Components: []discordgo.MessageComponent{
					textInputRow(
						discordgo.TextInput{
							CustomID:    dueDateModalInput,
							Label:       "New Due Date (YYYY-MM-DD)",
							Style:       discordgo.TextInputShort,
							Placeholder: "2026-12-31",
							Required:    true,
							MaxLength:   10,
						},
					),
				},
			},
		},
	)
}

// handlePriceModalSubmit validates and applies a price change.
func (d *SpartanBot) handlePriceModalSubmit(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	serviceID, guildID, err := parseIDGuildSuffix(
		customID, customIDPrefixPriceModal,
	)
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad price modal", tint.Err(err))
		return
	}

	config, denied := d.requirePrivileged(ctx, guildID, discordUser.ID)
	if denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	price, err := parsePriceInput(modalInputValue(i.ModalSubmitData(), priceModalInput))
	if err != nil {
		_ = handler.Respond(
			ctx, ephemeralEmbedResponse(
				errorEmbed(
					"Invalid Price",
					"Enter a non-negative number, like `19.99`.",
				),
			),
		)
		return
	}

	if respondErr := handler.Respond(ctx, deferredUpdateResponse()); respondErr != nil {
		return
	}

	_, err = d.panel.SetServicePrice(ctx, config.Credentials(), serviceID, price)
	if err != nil {
		logger.ErrorContext(ctx, "error setting price", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Price Updated",
		Description: fmt.Sprintf(
			"Service #%d price set to $%.2f.", serviceID, price,
		),
		Color: embedColorSuccess,
	}
	editEmbeds(ctx, handler, []*discordgo.MessageEmbed{embed}, nil)
	d.scheduleServicesRefresh(ctx, handler, config.Credentials())
}

// handleDueDateModalSubmit validates and applies a due date change.
func (d *SpartanBot) handleDueDateModalSubmit(
	ctx context.Context,
	handler InteractionHandler,
	customID string,
) {
	ctx, logger := d.getLogger(ctx)
	i := handler.GetInteraction()
	discordUser := getDiscordUser(i)

	serviceID, guildID, err := parseIDGuildSuffix(
		customID, customIDPrefixDueDateModal,
	)
	if err != nil {
		logger.WarnContext(ctx, "ignoring bad due date modal", tint.Err(err))
		return
	}

	config, denied := d.requirePrivileged(ctx, guildID, discordUser.ID)
	if denied != nil {
		_ = handler.Respond(ctx, ephemeralEmbedResponse(denied))
		return
	}

	rawDate := strings.TrimSpace(modalInputValue(i.ModalSubmitData(), dueDateModalInput))
	dueDate, err := normalizeDueDate(rawDate)
	if err != nil {
		_ = handler.Respond(
			ctx, ephemeralEmbedResponse(
				errorEmbed(
					"Invalid Date",
					"Enter the date as `YYYY-MM-DD`, like `2026-12-31`.",
				),
			),
		)
		return
	}

	if respondErr := handler.Respond(ctx, deferredUpdateResponse()); respondErr != nil {
		return
	}

	_, err = d.panel.SetServiceDueDate(
		ctx, config.Credentials(), serviceID, dueDate,
	)
	if err != nil {
		logger.ErrorContext(ctx, "error setting due date", tint.Err(err))
		editEmbeds(ctx, handler, []*discordgo.MessageEmbed{panelErrorEmbed(err)}, nil)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "Due Date Updated",
		Description: fmt.Sprintf(
			"Service #%d due date set to `%s`.", serviceID, rawDate,
		),
		Color: embedColorSuccess,
	}
	editEmbeds(ctx, handler, []*discordgo.MessageEmbed{embed}, nil)
	d.scheduleServicesRefresh(ctx, handler, config.Credentials())
}

// scheduleServicesRefresh replaces the interaction response with a
// fresh, unfiltered first page of the service list after a short delay.
// Failures are logged and dropped: the success or error embed already
// shown is more useful than a refresh error.
func (d *SpartanBot) scheduleServicesRefresh(
	ctx context.Context,
	handler InteractionHandler,
	creds PanelCredentials,
) {
	d.refreshTimersRunning.Add(1)
	refreshCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.refreshTimersRunning.Add(-1)
		time.Sleep(servicesRefreshDelay)

		guildID := handler.GetInteraction().GuildID
		state := NavigationState{
			Kind:     ResourceServices,
			Mode:     BrowseModePaged,
			Page:     1,
			PageSize: servicesPageSize,
			GuildID:  guildID,
		}
		result, err := Browse(
			refreshCtx, state, BrowseActionFirst,
			d.servicesFetcher(creds, "", ""),
		)
		if err != nil {
			handler.Logger().DebugContext(
				refreshCtx, "deferred refresh failed", tint.Err(err),
			)
			return
		}
		embeds, components := renderServicesBrowse(result)
		editEmbeds(refreshCtx, handler, embeds, components)
	}()
}
