package spartanbot

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderUsersPage(t *testing.T) {
	t.Parallel()

	result := &BrowseResult[PanelUser]{
		State: NavigationState{
			Kind:     ResourceUsers,
			Mode:     BrowseModePaged,
			Page:     2,
			PageSize: usersPageSize,
			GuildID:  "1234",
			Search:   "example.com",
		},
		Page: &RemotePage[PanelUser]{
			CurrentPage: 2,
			LastPage:    5,
			Total:       18,
			Data: []PanelUser{
				{
					ID:        5,
					Name:      "Alice",
					Email:     "alice@example.com",
					Role:      "admin",
					DiscordID: "111",
				},
				{ID: 6, Name: "Bob", Email: "bob@example.com", Role: "user"},
			},
		},
	}

	embeds, components := renderUsersBrowse(result)
	require.Len(t, embeds, 1)
	assert.Equal(t, `Panel Users matching "example.com"`, embeds[0].Title)
	require.NotNil(t, embeds[0].Footer)
	assert.Equal(t, "Page 2 of 5 • 18 users total", embeds[0].Footer.Text)
	require.Len(t, embeds[0].Fields, 2)
	assert.Equal(t, "Alice (#5)", embeds[0].Fields[0].Name)

	// Pagination row plus the show-all row.
	assert.Len(t, components, 2)
}

func TestRenderUsersPageSinglePageHidesPagination(t *testing.T) {
	t.Parallel()

	result := &BrowseResult[PanelUser]{
		State: NavigationState{
			Kind:     ResourceUsers,
			Mode:     BrowseModePaged,
			Page:     1,
			PageSize: usersPageSize,
			GuildID:  "1234",
		},
		Page: &RemotePage[PanelUser]{
			CurrentPage: 1,
			LastPage:    1,
			Total:       2,
			Data: []PanelUser{
				{ID: 5, Name: "Alice", Email: "alice@example.com"},
				{ID: 6, Name: "Bob", Email: "bob@example.com"},
			},
		},
	}

	embeds, components := renderUsersBrowse(result)
	require.Len(t, embeds, 1)
	require.Len(t, embeds[0].Fields, 2)
	assert.Empty(t, components)
}

func TestRenderUsersPageEmpty(t *testing.T) {
	t.Parallel()

	result := &BrowseResult[PanelUser]{
		State: NavigationState{
			Kind:     ResourceUsers,
			Mode:     BrowseModePaged,
			Page:     1,
			PageSize: usersPageSize,
			GuildID:  "1234",
		},
		Page: &RemotePage[PanelUser]{CurrentPage: 1, LastPage: 1},
	}

	embeds, components := renderUsersBrowse(result)
	require.Len(t, embeds, 1)
	assert.Equal(t, "Panel Users", embeds[0].Title)
	assert.Equal(t, "No users found.", embeds[0].Description)
	assert.Empty(t, components)
}

func TestUserFieldValue(t *testing.T) {
	t.Parallel()

	user := PanelUser{
		ID:        5,
		Name:      "Alice",
		Email:     "alice@example.com",
		Role:      "user",
		DiscordID: "111",
		AdminRole: &PanelAdminRole{Name: "superadmin"},
	}
	assert.Equal(
		t,
		"**Email:** alice@example.com\n**Role:** superadmin\n"+
			"**Discord:** <@111>",
		userFieldValue(user),
	)

	user.DiscordID = ""
	assert.Contains(t, userFieldValue(user), "**Discord:** not linked")
}

func TestRenderAllUsersChunking(t *testing.T) {
	t.Parallel()

	users := make([]PanelUser, 0, showAllUsersPerEmbed+5)
	for i := 1; i <= showAllUsersPerEmbed+5; i++ {
		users = append(users, PanelUser{
			ID:    int64(i),
			Name:  fmt.Sprintf("User %d", i),
			Email: fmt.Sprintf("user%d@example.com", i),
			Role:  "user",
		})
	}
	result := &BrowseResult[PanelUser]{
		State: NavigationState{
			Kind:     ResourceUsers,
			Mode:     BrowseModeAll,
			Page:     1,
			PageSize: showAllPageSize,
			GuildID:  "1234",
		},
		Page: &RemotePage[PanelUser]{
			CurrentPage: 1,
			LastPage:    1,
			Total:       len(users),
			Data:        users,
		},
	}

	embeds, components := renderUsersBrowse(result)
	require.Len(t, embeds, 2)
	assert.Equal(t, "All Panel Users", embeds[0].Title)
	assert.Empty(t, embeds[1].Title)
	assert.Equal(
		t, showAllUsersPerEmbed,
		len(strings.Split(embeds[0].Description, "\n")),
	)
	require.NotNil(t, embeds[1].Footer)
	assert.Equal(
		t,
		fmt.Sprintf("%d users total", len(users)),
		embeds[1].Footer.Text,
	)
	assert.Nil(t, embeds[0].Footer)

	require.Len(t, components, 1)
}

func TestRenderAllUsersEmpty(t *testing.T) {
	t.Parallel()

	result := &BrowseResult[PanelUser]{
		State: NavigationState{
			Kind:     ResourceUsers,
			Mode:     BrowseModeAll,
			Page:     1,
			PageSize: showAllPageSize,
			GuildID:  "1234",
		},
		Page: &RemotePage[PanelUser]{CurrentPage: 1, LastPage: 1},
	}

	embeds, components := renderUsersBrowse(result)
	require.Len(t, embeds, 1)
	assert.Equal(t, "No users found.", embeds[0].Description)
	require.Len(t, components, 1)
}

func TestUserDetailEmbed(t *testing.T) {
	t.Parallel()

	user := &PanelUser{
		ID:        5,
		Name:      "Alice",
		Email:     "alice@example.com",
		Role:      "admin",
		DiscordID: "111",
	}
	embed := userDetailEmbed(user, "User Found")
	assert.Equal(t, "User Found", embed.Title)
	require.Len(t, embed.Fields, 5)
	assert.Equal(t, "5", embed.Fields[0].Value)
	assert.Equal(t, "Alice", embed.Fields[1].Value)
	assert.Equal(t, "<@111>", embed.Fields[4].Value)

	bare := &PanelUser{ID: 6}
	embed = userDetailEmbed(bare, "User Found")
	assert.Equal(t, "-", embed.Fields[1].Value)
	assert.Equal(t, "not linked", embed.Fields[4].Value)
}
