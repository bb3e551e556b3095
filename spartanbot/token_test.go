package spartanbot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersTokenRoundTrip(t *testing.T) {
	t.Parallel()

	state := NavigationState{
		Kind:     ResourceUsers,
		Mode:     BrowseModePaged,
		Page:     3,
		PageSize: usersPageSize,
		GuildID:  "123456789012345678",
		Search:   "foo_bar@example.com",
	}

	for _, action := range []BrowseAction{
		BrowseActionPrev,
		BrowseActionNext,
	} {
		token := state.Token(action)
		decoded, decodedAction, err := DecodeNavigationToken(token)
		require.NoError(t, err, "token: %s", token)
		assert.Equal(t, action, decodedAction)
		assert.Equal(t, state.Page, decoded.Page)
		assert.Equal(t, state.PageSize, decoded.PageSize)
		assert.Equal(t, state.GuildID, decoded.GuildID)
		assert.Equal(t, state.Search, decoded.Search)
	}

	// First and last tokens drop the current page
	token := state.Token(BrowseActionFirst)
	decoded, action, err := DecodeNavigationToken(token)
	require.NoError(t, err)
	assert.Equal(t, BrowseActionFirst, action)
	assert.Equal(t, 1, decoded.Page)
	assert.Equal(t, state.PageSize, decoded.PageSize)
	assert.Equal(t, state.Search, decoded.Search)
}

func TestUsersTokenEmptySearch(t *testing.T) {
	t.Parallel()

	state := NavigationState{
		Kind:     ResourceUsers,
		Mode:     BrowseModePaged,
		Page:     1,
		PageSize: usersPageSize,
		GuildID:  "1234",
	}
	token := state.Token(BrowseActionNext)
	assert.Contains(t, token, "_none")

	decoded, _, err := DecodeNavigationToken(token)
	require.NoError(t, err)
	assert.Equal(t, "", decoded.Search)
}

func TestUsersShowAllToken(t *testing.T) {
	t.Parallel()

	state := NavigationState{
		Kind:    ResourceUsers,
		Mode:    BrowseModePaged,
		GuildID: "1234",
		Search:  "some_search %value",
	}
	token := state.Token(BrowseActionShowAll)
	decoded, action, err := DecodeNavigationToken(token)
	require.NoError(t, err)
	assert.Equal(t, BrowseActionShowAll, action)
	assert.Equal(t, BrowseModeAll, decoded.Mode)
	assert.Equal(t, showAllPageSize, decoded.PageSize)
	assert.Equal(t, "some_search %value", decoded.Search)
}

func TestUsersLegacyPageToken(t *testing.T) {
	t.Parallel()

	decoded, action, err := DecodeNavigationToken("users_page_2_4_1234_none")
	require.NoError(t, err)
	assert.Equal(t, BrowseActionPage, action)
	assert.Equal(t, 2, decoded.Page)
	assert.Equal(t, 4, decoded.PageSize)
	assert.Equal(t, "1234", decoded.GuildID)
	assert.Equal(t, "", decoded.Search)
}

func TestServicesTokenRoundTrip(t *testing.T) {
	t.Parallel()

	state := NavigationState{
		Kind:     ResourceServices,
		Mode:     BrowseModePaged,
		Page:     2,
		PageSize: servicesPageSize,
		GuildID:  "987654321",
		Email:    "owner_name@example.com",
		Status:   "active",
	}

	token := state.Token(BrowseActionNext)
	decoded, action, err := DecodeNavigationToken(token)
	require.NoError(t, err)
	assert.Equal(t, BrowseActionNext, action)
	assert.Equal(t, 2, decoded.Page)
	assert.Equal(t, servicesPageSize, decoded.PageSize)
	assert.Equal(t, "owner_name@example.com", decoded.Email)
	assert.Equal(t, "active", decoded.Status)

	// The services 'last' token carries the final page directly
	state.LastPage = 7
	token = state.Token(BrowseActionLast)
	decoded, action, err = DecodeNavigationToken(token)
	require.NoError(t, err)
	assert.Equal(t, BrowseActionLast, action)
	assert.Equal(t, 7, decoded.Page)
	assert.Equal(t, 7, decoded.LastPage)

	// The 'first' token has no page field at all
	token = state.Token(BrowseActionFirst)
	decoded, action, err = DecodeNavigationToken(token)
	require.NoError(t, err)
	assert.Equal(t, BrowseActionFirst, action)
	assert.Equal(t, 1, decoded.Page)
	assert.Equal(t, 0, decoded.LastPage)
}

func TestDecodeNavigationTokenErrors(t *testing.T) {
	t.Parallel()

	for _, customID := range []string{
		"",
		"users",
		"bogus_next_1_2_3_4",
		"users_sideways_1_2_3_4",
		"users_next_x_4_1234_none",
		"users_next_1_4_1234",
		"services_next_x_1234_none_none",
		"services_first_1234_none",
		"services_warp_1_1234_none_none",
	} {
		_, _, err := DecodeNavigationToken(customID)
		require.Error(t, err, "customID: %q", customID)

		var tokenErr *TokenError
		assert.True(
			t,
			errors.As(err, &tokenErr),
			"expected TokenError for %q, got %T", customID, err,
		)
	}
}

func TestParseIDGuildSuffix(t *testing.T) {
	t.Parallel()

	id, guildID, err := parseIDGuildSuffix(
		editUserCustomID(42, "123456789"), customIDPrefixEditUser,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "123456789", guildID)

	_, _, err = parseIDGuildSuffix("edit_user_x_123", customIDPrefixEditUser)
	assert.Error(t, err)

	_, _, err = parseIDGuildSuffix("other_thing_42_123", customIDPrefixEditUser)
	assert.Error(t, err)
}

func TestParseServiceSelectValue(t *testing.T) {
	t.Parallel()

	id, status, err := parseServiceSelectValue("17_active")
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
	assert.Equal(t, "active", status)

	// Status keeps everything after the first underscore
	id, status, err = parseServiceSelectValue("8_pending_review")
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)
	assert.Equal(t, "pending_review", status)

	_, _, err = parseServiceSelectValue("noseparator")
	assert.Error(t, err)

	_, _, err = parseServiceSelectValue("x_active")
	assert.Error(t, err)
}

func TestServiceOpCustomID(t *testing.T) {
	t.Parallel()

	customID := serviceOpCustomID(ServiceOpSuspend, 9, "1234")
	assert.Equal(t, "suspend_service_9_1234", customID)

	id, guildID, err := parseIDGuildSuffix(customID, "suspend_service_")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, "1234", guildID)
}
