package spartanbot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	usersPageSize    = 4
	servicesPageSize = 10

	// showAllPageSize is used for the flattened show-all view, and is
	// the largest page the panel will serve.
	showAllPageSize = 100
)

func defaultPageSize(kind ResourceKind) int {
	if kind == ResourceServices {
		return servicesPageSize
	}
	return usersPageSize
}

// PageFetcher retrieves one page of a remote collection. The browser
// never sees credentials or filters; the closure carries them.
type PageFetcher[T any] func(
	ctx context.Context,
	page int,
	perPage int,
) (*RemotePage[T], error)

// BrowseResult is the fetched page plus the state to encode into the
// next round of navigation components.
type BrowseResult[T any] struct {
	Page  *RemotePage[T]
	State NavigationState
}

// Browse resolves a navigation action against the remote collection.
// Page numbers are clamped to the collection's real bounds: backing up
// from page 1 stays on page 1, and advancing past the final page lands
// on the final page (shrunk collections included). The 'last' action
// runs a discovery fetch when the token doesn't already carry the final
// page number.
func Browse[T any](
	ctx context.Context,
	state NavigationState,
	action BrowseAction,
	fetch PageFetcher[T],
) (*BrowseResult[T], error) {
	if state.PageSize <= 0 {
		state.PageSize = defaultPageSize(state.Kind)
	}

	target := state.Page
	switch action {
	case BrowseActionFirst:
		target = 1
	case BrowseActionPrev:
		target = state.Page - 1
	case BrowseActionNext:
		target = state.Page + 1
	case BrowseActionLast:
		if state.LastPage > 0 {
			target = state.LastPage
		} else {
			probe, err := fetch(ctx, 1, state.PageSize)
			if err != nil {
				return nil, err
			}
			if probe.LastPage <= 1 {
				return finishBrowse(state, probe), nil
			}
			target = probe.LastPage
		}
	case BrowseActionShowAll:
		state.Mode = BrowseModeAll
		state.PageSize = showAllPageSize
		target = 1
	case BrowseActionPage:
		// absolute page carried by the legacy token layout
	default:
		return nil, fmt.Errorf("unknown browse action %q", action)
	}
	if target < 1 {
		target = 1
	}

	page, err := fetch(ctx, target, state.PageSize)
	if err != nil {
		return nil, err
	}

	// The collection may have shrunk since the token was issued. Land on
	// the real final page rather than an empty one.
	if page.LastPage >= 1 && target > page.LastPage {
		page, err = fetch(ctx, page.LastPage, state.PageSize)
		if err != nil {
			return nil, err
		}
	}
	return finishBrowse(state, page), nil
}

func finishBrowse[T any](
	state NavigationState,
	page *RemotePage[T],
) *BrowseResult[T] {
	if page.CurrentPage > 0 {
		state.Page = page.CurrentPage
	}
	state.LastPage = page.LastPage
	return &BrowseResult[T]{Page: page, State: state}
}

// paginationRow builds the First/Previous/Next/Last button row, with a
// disabled page-indicator button in the middle when withIndicator is
// set. Boundary buttons are disabled in place rather than hidden.
func paginationRow(
	state NavigationState,
	withIndicator bool,
) discordgo.ActionsRow {
	atFirst := state.Page <= 1
	atLast := state.Page >= state.LastPage

	// Four nav buttons plus the optional indicator fill discord's row cap.
	buttons := make(
		[]discordgo.MessageComponent, 0, discordMaxButtonsPerActionRow,
	)
	buttons = append(
		buttons,
		discordgo.Button{
			Label:    "First",
			Style:    discordgo.SecondaryButton,
			CustomID: state.Token(BrowseActionFirst),
			Disabled: atFirst,
		},
		discordgo.Button{
			Label:    "Previous",
			Style:    discordgo.PrimaryButton,
			CustomID: state.Token(BrowseActionPrev),
			Disabled: atFirst,
		},
	)
	if withIndicator {
		buttons = append(buttons, discordgo.Button{
			Label:    fmt.Sprintf("%d / %d", state.Page, state.LastPage),
			Style:    discordgo.SecondaryButton,
			CustomID: fmt.Sprintf("%s%d", pageIndicatorPrefix, state.Page),
			Disabled: true,
		})
	}
	buttons = append(
		buttons,
		discordgo.Button{
			Label:    "Next",
			Style:    discordgo.PrimaryButton,
			CustomID: state.Token(BrowseActionNext),
			Disabled: atLast,
		},
		discordgo.Button{
			Label:    "Last",
			Style:    discordgo.SecondaryButton,
			CustomID: state.Token(BrowseActionLast),
			Disabled: atLast,
		},
	)
	return discordgo.ActionsRow{Components: buttons}
}

// showAllRow is the button switching a paged user list into the
// flattened view.
func showAllRow(state NavigationState) discordgo.ActionsRow {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Show All Users",
				Style:    discordgo.SuccessButton,
				CustomID: state.Token(BrowseActionShowAll),
			},
		},
	}
}

// backToPagedRow is the button leaving the flattened view. It re-enters
// paged mode at page 1 with the kind's default page size.
func backToPagedRow(state NavigationState) discordgo.ActionsRow {
	paged := state
	paged.Mode = BrowseModePaged
	paged.Page = 1
	paged.PageSize = defaultPageSize(state.Kind)
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Back to Paginated View",
				Style:    discordgo.SecondaryButton,
				CustomID: paged.Token(BrowseActionFirst),
			},
		},
	}
}

// serviceStatusEmoji maps panel service statuses to a display emoji.
func serviceStatusEmoji(status string) string {
	switch status {
	case "active":
		return "✅"
	case "suspended":
		return "⏸️"
	case "terminated":
		return "🗑️"
	case "pending":
		return "⏳"
	default:
		return "❓"
	}
}
