package spartanbot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ResourceKind identifies which remote collection a browser is paging over.
type ResourceKind string

const (
	ResourceUsers    ResourceKind = "users"
	ResourceServices ResourceKind = "services"
)

// BrowseMode distinguishes normal pagination from the flattened
// show-all view.
type BrowseMode string

const (
	BrowseModePaged BrowseMode = "paged"
	BrowseModeAll   BrowseMode = "all"
)

// BrowseAction is the navigation action a component token requests.
type BrowseAction string

const (
	BrowseActionFirst   BrowseAction = "first"
	BrowseActionPrev    BrowseAction = "prev"
	BrowseActionNext    BrowseAction = "next"
	BrowseActionLast    BrowseAction = "last"
	BrowseActionShowAll BrowseAction = "showall"

	// BrowseActionPage is the absolute-page layout emitted by older
	// releases. Still accepted on decode.
	BrowseActionPage BrowseAction = "page"
)

const navTokenNone = "none"

// NavigationState is the full pagination state carried through component
// custom IDs, so any bot instance can resume a browser without local state.
type NavigationState struct {
	Kind     ResourceKind
	Mode     BrowseMode
	Page     int
	PageSize int

	// LastPage is only carried by the services 'last' token. Zero means
	// unknown, and a discovery fetch is needed to find the final page.
	LastPage int

	GuildID string

	// Search filters the user list (users browser only)
	Search string

	// Email and Status filter the service list (services browser only)
	Email  string
	Status string
}

// TokenError indicates a component custom ID that could not be decoded.
// These are logged and dropped rather than surfaced to the user, since
// an unknown token usually belongs to a stale message or another bot.
type TokenError struct {
	Token  string
	Reason string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("bad navigation token %q: %s", e.Token, e.Reason)
}

func newTokenError(token string, format string, args ...any) *TokenError {
	return &TokenError{Token: token, Reason: fmt.Sprintf(format, args...)}
}

// escapeTokenField percent-escapes free text so an embedded underscore
// can't shift field boundaries. Empty fields become the 'none' sentinel.
func escapeTokenField(s string) string {
	if s == "" {
		return navTokenNone
	}
	return strings.ReplaceAll(url.QueryEscape(s), "_", "%5F")
}

func unescapeTokenField(s string) (string, error) {
	if s == navTokenNone {
		return "", nil
	}
	return url.QueryUnescape(s)
}

// Token encodes the state into the custom ID for the given action.
func (s NavigationState) Token(action BrowseAction) string {
	switch s.Kind {
	case ResourceServices:
		email := escapeTokenField(s.Email)
		status := escapeTokenField(s.Status)
		switch action {
		case BrowseActionFirst:
			return fmt.Sprintf("services_first_%s_%s_%s", s.GuildID, email, status)
		case BrowseActionLast:
			return fmt.Sprintf(
				"services_last_%d_%s_%s_%s",
				s.LastPage, s.GuildID, email, status,
			)
		default:
			return fmt.Sprintf(
				"services_%s_%d_%s_%s_%s",
				action, s.Page, s.GuildID, email, status,
			)
		}
	default:
		search := escapeTokenField(s.Search)
		switch action {
		case BrowseActionFirst, BrowseActionLast:
			return fmt.Sprintf(
				"users_%s_%d_%s_%s",
				action, s.PageSize, s.GuildID, search,
			)
		case BrowseActionShowAll:
			return fmt.Sprintf("users_showall_%s_%s", s.GuildID, search)
		default:
			return fmt.Sprintf(
				"users_%s_%d_%d_%s_%s",
				action, s.Page, s.PageSize, s.GuildID, search,
			)
		}
	}
}

// DecodeNavigationToken parses a pagination custom ID back into its
// navigation state and requested action. The action name is dispatched
// before any positional parsing, because the field layouts differ per
// action (and older releases emitted a now-retired 'page' layout).
func DecodeNavigationToken(customID string) (
	NavigationState,
	BrowseAction,
	error,
) {
	parts := strings.Split(customID, "_")
	if len(parts) < 2 {
		return NavigationState{}, "", newTokenError(customID, "too few fields")
	}

	switch parts[0] {
	case "users":
		return decodeUsersToken(customID, parts)
	case "services":
		return decodeServicesToken(customID, parts)
	default:
		return NavigationState{}, "", newTokenError(
			customID, "unknown token family %q", parts[0],
		)
	}
}

func decodeUsersToken(customID string, parts []string) (
	NavigationState,
	BrowseAction,
	error,
) {
	state := NavigationState{Kind: ResourceUsers, Mode: BrowseModePaged}
	action := BrowseAction(parts[1])

	switch action {
	case BrowseActionShowAll:
		// users_showall_<guild>_<search>
		if len(parts) != 4 {
			return state, action, newTokenError(customID, "expected 4 fields")
		}
		search, err := unescapeTokenField(parts[3])
		if err != nil {
			return state, action, newTokenError(customID, "bad search field")
		}
		state.Mode = BrowseModeAll
		state.Page = 1
		state.PageSize = showAllPageSize
		state.GuildID = parts[2]
		state.Search = search
		return state, action, nil
	case BrowseActionFirst, BrowseActionLast:
		// users_first_<per>_<guild>_<search>
		if len(parts) != 5 {
			return state, action, newTokenError(customID, "expected 5 fields")
		}
		perPage, err := strconv.Atoi(parts[2])
		if err != nil {
			return state, action, newTokenError(customID, "bad page size")
		}
		search, err := unescapeTokenField(parts[4])
		if err != nil {
			return state, action, newTokenError(customID, "bad search field")
		}
		state.Page = 1
		state.PageSize = perPage
		state.GuildID = parts[3]
		state.Search = search
		return state, action, nil
	case BrowseActionPrev, BrowseActionNext, BrowseActionPage:
		// users_prev_<page>_<per>_<guild>_<search>
		if len(parts) != 6 {
			return state, action, newTokenError(customID, "expected 6 fields")
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			return state, action, newTokenError(customID, "bad page number")
		}
		perPage, err := strconv.Atoi(parts[3])
		if err != nil {
			return state, action, newTokenError(customID, "bad page size")
		}
		search, err := unescapeTokenField(parts[5])
		if err != nil {
			return state, action, newTokenError(customID, "bad search field")
		}
		state.Page = page
		state.PageSize = perPage
		state.GuildID = parts[4]
		state.Search = search
		return state, action, nil
	default:
		return state, action, newTokenError(
			customID, "unknown users action %q", parts[1],
		)
	}
}

func decodeServicesToken(customID string, parts []string) (
	NavigationState,
	BrowseAction,
	error,
) {
	state := NavigationState{
		Kind:     ResourceServices,
		Mode:     BrowseModePaged,
		PageSize: servicesPageSize,
	}
	action := BrowseAction(parts[1])

	switch action {
	case BrowseActionFirst:
		// services_first_<guild>_<email>_<status>
		if len(parts) != 5 {
			return state, action, newTokenError(customID, "expected 5 fields")
		}
		email, err := unescapeTokenField(parts[3])
		if err != nil {
			return state, action, newTokenError(customID, "bad email field")
		}
		status, err := unescapeTokenField(parts[4])
		if err != nil {
			return state, action, newTokenError(customID, "bad status field")
		}
		state.Page = 1
		state.GuildID = parts[2]
		state.Email = email
		state.Status = status
		return state, action, nil
	case BrowseActionLast:
		// services_last_<last>_<guild>_<email>_<status>
		if len(parts) != 6 {
			return state, action, newTokenError(customID, "expected 6 fields")
		}
		lastPage, err := strconv.Atoi(parts[2])
		if err != nil {
			return state, action, newTokenError(customID, "bad page number")
		}
		email, err := unescapeTokenField(parts[4])
		if err != nil {
			return state, action, newTokenError(customID, "bad email field")
		}
		status, err := unescapeTokenField(parts[5])
		if err != nil {
			return state, action, newTokenError(customID, "bad status field")
		}
		state.Page = lastPage
		state.LastPage = lastPage
		state.GuildID = parts[3]
		state.Email = email
		state.Status = status
		return state, action, nil
	case BrowseActionPrev, BrowseActionNext, BrowseActionPage:
		// services_prev_<page>_<guild>_<email>_<status>
		if len(parts) != 6 {
			return state, action, newTokenError(customID, "expected 6 fields")
		}
		page, err := strconv.Atoi(parts[2])
		if err != nil {
			return state, action, newTokenError(customID, "bad page number")
		}
		email, err := unescapeTokenField(parts[4])
		if err != nil {
			return state, action, newTokenError(customID, "bad email field")
		}
		status, err := unescapeTokenField(parts[5])
		if err != nil {
			return state, action, newTokenError(customID, "bad status field")
		}
		state.Page = page
		state.GuildID = parts[3]
		state.Email = email
		state.Status = status
		return state, action, nil
	default:
		return state, action, newTokenError(
			customID, "unknown services action %q", parts[1],
		)
	}
}

// Fixed-layout custom IDs for single-target components. Guild and service
// IDs are discord snowflakes and numeric panel IDs, so they never contain
// an underscore and are carried unescaped, matching the wire format the
// original component messages already use.
const (
	customIDCancelServiceAction = "cancel_service_action"
	customIDConfigModal         = "spartan_config_modal"

	// pageIndicatorPrefix is the disabled mid-row page counter button.
	pageIndicatorPrefix = "page_indicator_"

	customIDPrefixEditUser      = "edit_user_"
	customIDPrefixUserModal     = "update_user_modal_"
	customIDPrefixPriceModal    = "price_modal_"
	customIDPrefixDueDateModal  = "due_date_modal_"
	customIDPrefixTestConn      = "test_connection_"
	customIDPrefixServiceSelect = "service_action_"
	customIDPrefixChangePrice   = "change_price_"
	customIDPrefixChangeDueDate = "change_due_date_"
)

func editUserCustomID(userID int64, guildID string) string {
	return fmt.Sprintf("edit_user_%d_%s", userID, guildID)
}

func updateUserModalCustomID(userID int64, guildID string) string {
	return fmt.Sprintf("update_user_modal_%d_%s", userID, guildID)
}

func priceModalCustomID(serviceID int64, guildID string) string {
	return fmt.Sprintf("price_modal_%d_%s", serviceID, guildID)
}

func dueDateModalCustomID(serviceID int64, guildID string) string {
	return fmt.Sprintf("due_date_modal_%d_%s", serviceID, guildID)
}

func changePriceCustomID(serviceID int64, guildID string) string {
	return fmt.Sprintf("change_price_%d_%s", serviceID, guildID)
}

func changeDueDateCustomID(serviceID int64, guildID string) string {
	return fmt.Sprintf("change_due_date_%d_%s", serviceID, guildID)
}

func testConnectionCustomID(guildID string, unixMilli int64) string {
	return fmt.Sprintf("test_connection_%s_%d", guildID, unixMilli)
}

func serviceSelectCustomID(guildID string) string {
	return fmt.Sprintf("service_action_%s", guildID)
}

func serviceOpCustomID(op ServiceOperation, serviceID int64, guildID string) string {
	return fmt.Sprintf("%s_service_%d_%s", op, serviceID, guildID)
}

// parseIDGuildSuffix extracts `<id>_<guild>` from the end of a
// fixed-layout custom ID, given its prefix.
func parseIDGuildSuffix(customID string, prefix string) (
	int64,
	string,
	error,
) {
	suffix, found := strings.CutPrefix(customID, prefix)
	if !found {
		return 0, "", newTokenError(customID, "missing prefix %q", prefix)
	}
	idField, guildID, found := strings.Cut(suffix, "_")
	if !found {
		return 0, "", newTokenError(customID, "expected <id>_<guild> suffix")
	}
	id, err := strconv.ParseInt(idField, 10, 64)
	if err != nil {
		return 0, "", newTokenError(customID, "bad numeric id %q", idField)
	}
	return id, guildID, nil
}

// parseServiceSelectValue splits a `<id>_<status>` select menu value.
// The status is everything after the first underscore, since some panel
// statuses contain underscores themselves.
func parseServiceSelectValue(value string) (int64, string, error) {
	idField, status, found := strings.Cut(value, "_")
	if !found {
		return 0, "", newTokenError(value, "expected <id>_<status> value")
	}
	id, err := strconv.ParseInt(idField, 10, 64)
	if err != nil {
		return 0, "", newTokenError(value, "bad numeric id %q", idField)
	}
	return id, status, nil
}
