package spartanbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t testing.TB, cacheTTL time.Duration) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), fmt.Sprintf("%s.sqlite3", t.Name()))
	db, err := CreateDB(context.Background(), dbTypeSQLite, dbPath)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(db, logger, false, cacheTTL)
}

func TestSaveGuildConfigUpsert(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)
	ctx := context.Background()

	first, err := store.SaveGuildConfig(
		ctx, "1234", "https://panel.example.com/", "key-one",
	)
	require.NoError(t, err)
	assert.Equal(
		t,
		"https://panel.example.com",
		first.APIURL,
		"trailing slash should be trimmed",
	)
	assert.Equal(t, "key-one", first.APIKey)

	second, err := store.SaveGuildConfig(
		ctx, "1234", "https://other.example.com", "key-two",
	)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", second.APIURL)
	assert.Equal(t, "key-two", second.APIKey)

	var count int64
	require.NoError(
		t,
		store.DB().Model(&GuildConfig{}).Where(
			"guild_id = ?", "1234",
		).Count(&count).Error,
	)
	assert.Equal(t, int64(1), count)

	configs, err := store.GuildConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "key-two", configs[0].APIKey)
}

func TestGuildConfigNotConfigured(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)

	_, err := store.GuildConfig(context.Background(), "9999")
	assert.ErrorIs(t, err, ErrGuildNotConfigured)
}

func TestGuildConfigCacheInvalidation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)
	ctx := context.Background()

	_, err := store.SaveGuildConfig(
		ctx, "1234", "https://panel.example.com", "key-one",
	)
	require.NoError(t, err)

	// Bypass the store so the cache goes stale.
	require.NoError(
		t,
		store.DB().Model(&GuildConfig{}).Where(
			"guild_id = ?", "1234",
		).Update("api_key", "key-rotated").Error,
	)

	cached, err := store.GuildConfig(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, "key-one", cached.APIKey)

	store.InvalidateGuildConfig("1234")

	fresh, err := store.GuildConfig(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, "key-rotated", fresh.APIKey)
}

func TestGuildConfigCredentials(t *testing.T) {
	t.Parallel()

	config := GuildConfig{
		GuildID: "1234",
		APIURL:  "https://panel.example.com",
		APIKey:  "secret",
	}
	creds := config.Credentials()
	assert.Equal(t, "https://panel.example.com", creds.BaseURL)
	assert.Equal(t, "secret", creds.APIKey)
}

func TestUpsertSyncedRole(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)
	ctx := context.Background()

	first, err := store.UpsertSyncedRole(ctx, "1234", "5678", 42, "admin")
	require.NoError(t, err)
	assert.Equal(t, int64(42), first.PanelUserID)
	assert.Greater(t, first.SyncedAt, int64(0))

	second, err := store.UpsertSyncedRole(ctx, "1234", "5678", 99, "user")
	require.NoError(t, err)
	assert.Equal(t, int64(99), second.PanelUserID)
	assert.Equal(t, "user", second.Role)

	var count int64
	require.NoError(
		t,
		store.DB().Model(&SyncedRole{}).Count(&count).Error,
	)
	assert.Equal(t, int64(1), count)

	stored, err := store.SyncedRole(ctx, "1234", "5678")
	require.NoError(t, err)
	assert.Equal(t, "user", stored.Role)
}

func TestSyncedRolesForGuild(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)
	ctx := context.Background()

	_, err := store.UpsertSyncedRole(ctx, "1234", "200", 2, "user")
	require.NoError(t, err)
	_, err = store.UpsertSyncedRole(ctx, "1234", "100", 1, "admin")
	require.NoError(t, err)
	_, err = store.UpsertSyncedRole(ctx, "9999", "300", 3, "user")
	require.NoError(t, err)

	roles, err := store.SyncedRolesForGuild(ctx, "1234")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "100", roles[0].DiscordID)
	assert.Equal(t, "200", roles[1].DiscordID)
}

func TestIsPrivileged(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)
	ctx := context.Background()

	tests := []struct {
		discordID string
		role      string
		want      bool
	}{
		{"100", "admin", true},
		{"200", "superadmin", true},
		{"300", "Admin", true},
		{"400", " SUPERADMIN ", true},
		{"500", "user", false},
		{"600", "", false},
	}
	for _, tc := range tests {
		_, err := store.UpsertSyncedRole(
			ctx, "1234", tc.discordID, 1, tc.role,
		)
		require.NoError(t, err)
	}
	for _, tc := range tests {
		got, err := store.IsPrivileged(ctx, "1234", tc.discordID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "role: %q", tc.role)
	}

	// Never synced at all.
	got, err := store.IsPrivileged(ctx, "1234", "777")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestAPICredentialReturnsLatest(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, 0)
	ctx := context.Background()

	_, err := store.APICredential(ctx)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	hash, err := HashPassword("first-password")
	require.NoError(t, err)
	_, err = store.Create(
		ctx, &APICredential{Username: "old", PasswordHash: hash},
	)
	require.NoError(t, err)

	hash, err = HashPassword("second-password")
	require.NoError(t, err)
	_, err = store.Create(
		ctx, &APICredential{Username: "current", PasswordHash: hash},
	)
	require.NoError(t, err)

	cred, err := store.APICredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "current", cred.Username)

	ok, err := VerifyPassword(cred.PasswordHash, "second-password")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsPrivilegedRole(t *testing.T) {
	t.Parallel()

	assert.True(t, isPrivilegedRole("admin"))
	assert.True(t, isPrivilegedRole("superadmin"))
	assert.True(t, isPrivilegedRole("  Admin  "))
	assert.False(t, isPrivilegedRole("moderator"))
	assert.False(t, isPrivilegedRole(""))
}
