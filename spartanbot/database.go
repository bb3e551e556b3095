package spartanbot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dbTypeSQLite   = "sqlite"
	dbTypePostgres = "postgres"

	postgresNotifyChannelGuildConfigUpdated = "spartanbot_guild_config_updated"
	postgresNotifyChannelStop               = "spartanbot_stop"
	recordSeparator                         = string(rune(30))

	sqliteMaxOpenConns    = 1
	sqliteMaxIdleConns    = 1
	sqliteMaxConnLifetime = 5 * time.Minute
)

var (
	dbOperationTimeout    = 30 * time.Second
	dbNotifierSendTimeout = 15 * time.Second
)

// ModelUnixTime is an embeddable model with Unix timestamps for
// creation, update, and deletion.
type ModelUnixTime struct {
	CreatedAt int64          `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
	UpdatedAt int64          `gorm:"autoUpdateTime:milli" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type ModelUintID struct {
	ID uint `gorm:"primaryKey" json:"id"`
}

// GuildConfig holds the panel endpoint and API key linked to a guild.
// One row per guild; /link replaces both fields in place.
type GuildConfig struct {
	GuildID string `gorm:"primaryKey" json:"guild_id"`
	APIURL  string `gorm:"not null" json:"api_url"`
	APIKey  string `gorm:"not null" json:"api_key" log:"[redacted]"`
	ModelUnixTime
}

// Credentials returns the per-call credentials for the panel client.
func (g GuildConfig) Credentials() PanelCredentials {
	return PanelCredentials{BaseURL: g.APIURL, APIKey: g.APIKey}
}

func (g GuildConfig) LogValue() slog.Value {
	return structToSlogValue(g)
}

// SyncedRole maps a Discord member to the panel account and role they
// matched during /syncdiscord.
type SyncedRole struct {
	GuildID     string `gorm:"primaryKey" json:"guild_id"`
	DiscordID   string `gorm:"primaryKey" json:"discord_id"`
	PanelUserID int64  `json:"panel_user_id"`
	Role        string `json:"role"`
	SyncedAt    int64  `json:"synced_at"`
	ModelUnixTime
}

// privilegedRoles are the panel roles allowed to run administrative
// commands. Both admin tiers qualify.
var privilegedRoles = map[string]bool{
	"admin":      true,
	"superadmin": true,
}

func isPrivilegedRole(role string) bool {
	return privilegedRoles[strings.ToLower(strings.TrimSpace(role))]
}

// APICredential is the basic-auth identity for the status API, created
// by the `init` subcommand. The password is stored as an argon2id hash.
type APICredential struct {
	ModelUintID
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash" log:"[redacted]"`
	ModelUnixTime
}

// Store defines the database operations the bot uses. It exists
// primarily to enable mocking in tests; [store] implements it for
// 'real' DB operations.
type Store interface {
	Lock()
	Unlock()
	DB() *gorm.DB

	// GuildConfig returns the linked panel credentials for a guild, or
	// ErrGuildNotConfigured when the guild has never run /link.
	GuildConfig(ctx context.Context, guildID string) (*GuildConfig, error)

	// SaveGuildConfig idempotently creates or replaces a guild's panel
	// credentials.
	SaveGuildConfig(
		ctx context.Context,
		guildID string,
		apiURL string,
		apiKey string,
	) (*GuildConfig, error)

	GuildConfigs(ctx context.Context) ([]GuildConfig, error)

	// InvalidateGuildConfig drops a guild's cached credentials, forcing
	// the next read through to the database.
	InvalidateGuildConfig(guildID string)

	SyncedRole(
		ctx context.Context,
		guildID string,
		discordID string,
	) (*SyncedRole, error)

	// UpsertSyncedRole idempotently records the panel account and role a
	// Discord member synced to.
	UpsertSyncedRole(
		ctx context.Context,
		guildID string,
		discordID string,
		panelUserID int64,
		role string,
	) (*SyncedRole, error)

	SyncedRolesForGuild(ctx context.Context, guildID string) ([]SyncedRole, error)

	// IsPrivileged reports whether the member has synced an admin or
	// superadmin panel role in this guild. Missing rows are not errors.
	IsPrivileged(
		ctx context.Context,
		guildID string,
		discordID string,
	) (bool, error)

	APICredential(ctx context.Context) (*APICredential, error)

	Create(ctx context.Context, value any, omit ...string) (
		rowsAffected int64,
		err error,
	)
	Save(ctx context.Context, value any, omit ...string) (
		rowsAffected int64,
		err error,
	)
	Transaction(
		ctx context.Context,
		fc func(tx *gorm.DB) error,
		opts ...*sql.TxOptions,
	) (err error)
}

type guildConfigCacheEntry struct {
	config   *GuildConfig
	loadedAt time.Time
}

// store wraps the GORM connection with write serialization (SQLite
// allows a single writer) and an in-memory guild credential cache so hot
// interaction paths don't hit the database per event.
type store struct {
	db                     *gorm.DB
	mu                     sync.Mutex
	logger                 *slog.Logger
	enableConcurrentWrites bool

	guildCache   map[string]guildConfigCacheEntry
	guildCacheMu sync.Mutex
	cacheTTL     time.Duration
}

// NewStore initializes a Store over the given GORM connection.
// enableConcurrentWrites should be false for SQLite.
func NewStore(
	db *gorm.DB,
	log *slog.Logger,
	enableConcurrentWrites bool,
	cacheTTL time.Duration,
) Store {
	if log == nil {
		log = slog.Default()
	}
	return &store{
		db:                     db,
		logger:                 log.With(loggerNameKey, "store"),
		enableConcurrentWrites: enableConcurrentWrites,
		guildCache:             map[string]guildConfigCacheEntry{},
		cacheTTL:               cacheTTL,
	}
}

func (s *store) DB() *gorm.DB {
	return s.db
}

func (s *store) Lock() {
	if s.enableConcurrentWrites {
		return
	}
	s.mu.Lock()
}

func (s *store) Unlock() {
	if s.enableConcurrentWrites {
		return
	}
	s.mu.Unlock()
}

func (s *store) GuildConfig(ctx context.Context, guildID string) (
	*GuildConfig,
	error,
) {
	s.guildCacheMu.Lock()
	entry, cached := s.guildCache[guildID]
	s.guildCacheMu.Unlock()
	if cached {
		if s.cacheTTL <= 0 || time.Since(entry.loadedAt) < s.cacheTTL {
			return entry.config, nil
		}
	}

	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	var config GuildConfig
	err := s.db.WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGuildNotConfigured
		}
		return nil, err
	}

	s.guildCacheMu.Lock()
	s.guildCache[guildID] = guildConfigCacheEntry{
		config:   &config,
		loadedAt: time.Now(),
	}
	s.guildCacheMu.Unlock()
	return &config, nil
}

func (s *store) SaveGuildConfig(
	ctx context.Context,
	guildID string,
	apiURL string,
	apiKey string,
) (*GuildConfig, error) {
	if !s.enableConcurrentWrites {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	config := GuildConfig{
		GuildID: guildID,
		APIURL:  strings.TrimRight(strings.TrimSpace(apiURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
	}
	err := s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "guild_id"}},
			DoUpdates: clause.AssignmentColumns(
				[]string{"api_url", "api_key", "updated_at"},
			),
		},
	).Create(&config).Error
	if err != nil {
		return nil, err
	}

	s.guildCacheMu.Lock()
	s.guildCache[guildID] = guildConfigCacheEntry{
		config:   &config,
		loadedAt: time.Now(),
	}
	s.guildCacheMu.Unlock()
	return &config, nil
}

func (s *store) GuildConfigs(ctx context.Context) ([]GuildConfig, error) {
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	var configs []GuildConfig
	err := s.db.WithContext(ctx).Order("guild_id").Find(&configs).Error
	return configs, err
}

func (s *store) InvalidateGuildConfig(guildID string) {
	s.guildCacheMu.Lock()
	delete(s.guildCache, guildID)
	s.guildCacheMu.Unlock()
}

func (s *store) SyncedRole(
	ctx context.Context,
	guildID string,
	discordID string,
) (*SyncedRole, error) {
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	var role SyncedRole
	err := s.db.WithContext(ctx).Where(
		"guild_id = ? AND discord_id = ?", guildID, discordID,
	).First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *store) UpsertSyncedRole(
	ctx context.Context,
	guildID string,
	discordID string,
	panelUserID int64,
	role string,
) (*SyncedRole, error) {
	if !s.enableConcurrentWrites {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	synced := SyncedRole{
		GuildID:     guildID,
		DiscordID:   discordID,
		PanelUserID: panelUserID,
		Role:        role,
		SyncedAt:    time.Now().UTC().UnixMilli(),
	}
	err := s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{
				{Name: "guild_id"},
				{Name: "discord_id"},
			},
			DoUpdates: clause.AssignmentColumns(
				[]string{"panel_user_id", "role", "synced_at", "updated_at"},
			),
		},
	).Create(&synced).Error
	if err != nil {
		return nil, err
	}
	return &synced, nil
}

func (s *store) SyncedRolesForGuild(
	ctx context.Context,
	guildID string,
) ([]SyncedRole, error) {
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	var roles []SyncedRole
	err := s.db.WithContext(ctx).Where(
		"guild_id = ?", guildID,
	).Order("discord_id").Find(&roles).Error
	return roles, err
}

func (s *store) IsPrivileged(
	ctx context.Context,
	guildID string,
	discordID string,
) (bool, error) {
	role, err := s.SyncedRole(ctx, guildID, discordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return isPrivilegedRole(role.Role), nil
}

func (s *store) APICredential(ctx context.Context) (*APICredential, error) {
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	var cred APICredential
	if err := s.db.WithContext(ctx).Last(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *store) Create(ctx context.Context, value any, omit ...string) (
	rowsAffected int64,
	err error,
) {
	if !s.enableConcurrentWrites {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	db := s.db.WithContext(ctx)
	if len(omit) > 0 {
		rv := db.Omit(omit...).Create(value)
		return rv.RowsAffected, rv.Error
	}
	rv := db.Create(value)
	return rv.RowsAffected, rv.Error
}

func (s *store) Save(ctx context.Context, value any, omit ...string) (
	rowsAffected int64,
	err error,
) {
	if !s.enableConcurrentWrites {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()

	db := s.db.WithContext(ctx)
	if len(omit) > 0 {
		rv := db.Omit(omit...).Save(value)
		return rv.RowsAffected, rv.Error
	}
	rv := db.Save(value)
	return rv.RowsAffected, rv.Error
}

func (s *store) Transaction(
	ctx context.Context,
	fc func(tx *gorm.DB) error,
	opts ...*sql.TxOptions,
) error {
	if !s.enableConcurrentWrites {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	ctx, cancel := s.boundedContext(ctx)
	defer cancel()
	return s.db.WithContext(ctx).Transaction(fc, opts...)
}

// boundedContext caps database operations that arrive without a
// deadline of their own.
func (s *store) boundedContext(ctx context.Context) (
	context.Context,
	context.CancelFunc,
) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dbOperationTimeout)
}

// CreateDB initializes and returns a GORM database connection based on
// the specified database type, and runs migrations.
func CreateDB(
	ctx context.Context,
	databaseType string,
	database string,
) (*gorm.DB, error) {
	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{
			Level:     slog.LevelWarn,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, 500*time.Millisecond)
	dbLogger := slog.New(handler)

	dbLogger.InfoContext(
		ctx,
		"Initializing database",
		"database_type", databaseType,
	)
	db, err := getDB(databaseType, database, gormLogger)
	if err != nil {
		return db, err
	}

	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&GuildConfig{},
		&SyncedRole{},
		&APICredential{},
		&InteractionLog{},
	)
	if err != nil {
		return db, err
	}

	commitErr := txn.Commit().Error
	if commitErr != nil {
		return db, commitErr
	}

	return db, nil
}

var sqliteExecPragma = []string{
	"pragma journal_mode=WAL;",
	"pragma synchronous = normal;",
	"pragma temp_store = memory;",
	"pragma foreign_keys = ON;",
}

// getDB opens a GORM connection for the given database type.
func getDB(
	databaseType string,
	database string,
	gormLogger *gormStructuredLogger,
) (*gorm.DB, error) {
	switch databaseType {
	case dbTypeSQLite:
		parentDir := filepath.Dir(database)
		if parentDir != "" {
			if err := os.MkdirAll(parentDir, 0755); err != nil {
				if !errors.Is(err, os.ErrExist) {
					return nil, err
				}
			}
		}
		db, err := gorm.Open(
			sqlite.Open(database),
			&gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
		if err != nil {
			return nil, err
		}
		for _, pragma := range sqliteExecPragma {
			if err = db.Exec(pragma).Error; err != nil {
				return nil, err
			}
		}
		return db, nil
	case dbTypePostgres:
		return gorm.Open(
			postgres.Open(database), &gorm.Config{
				Logger: gormLogger,
				NowFunc: func() time.Time {
					return time.Now().UTC()
				},
			},
		)
	default:
		return nil, fmt.Errorf(
			"unsupported database type: %s (must be %q or %q)",
			databaseType, dbTypeSQLite, dbTypePostgres,
		)
	}
}

// DBNotifier propagates guild credential updates and shutdown signals
// between bot instances sharing a database.
type DBNotifier interface {
	GuildConfigChannelName() string

	// GuildConfigUpdated announces that a guild's panel credentials
	// changed, so other instances drop their cached copy.
	GuildConfigUpdated(ctx context.Context, guildID string) bool

	StopChannelName() string

	// Stop sends a shutdown signal to all bot instances.
	Stop(context.Context) bool

	// ID identifies this notifier, so instances can ignore their own
	// notifications.
	ID() string

	Listen(ctx context.Context, channel string) error
}

func newDBNotifier(b *SpartanBot) (DBNotifier, error) {
	notifyID, err := generateRandomHexString(16)
	if err != nil {
		return nil, err
	}
	log := b.logger.With(loggerNameKey, "db_notifier")
	switch b.config.DatabaseType {
	case dbTypeSQLite:
		return &sqliteNotifier{
			logger:   log,
			bot:      b,
			notifyID: notifyID,
		}, nil
	case dbTypePostgres:
		return &postgresNotifier{
			bot:      b,
			logger:   log,
			notifyID: notifyID,
		}, nil
	default:
		return nil, errors.New("invalid database type")
	}
}

// sqliteNotifier short-circuits notifications within the single process
// a SQLite deployment can have.
type sqliteNotifier struct {
	logger   *slog.Logger
	bot      *SpartanBot
	notifyID string
}

func (s *sqliteNotifier) Listen(_ context.Context, channel string) error {
	s.logger.Debug("listener called", "channel", channel)
	return nil
}

func (sqliteNotifier) GuildConfigChannelName() string {
	return ""
}

func (sqliteNotifier) StopChannelName() string {
	return ""
}

func (s *sqliteNotifier) ID() string {
	return s.notifyID
}

func (s *sqliteNotifier) Stop(ctx context.Context) bool {
	s.logger.Info("notifying stop signal")
	select {
	case s.bot.signalStop <- struct{}{}:
	//
	case <-ctx.Done():
		s.logger.Warn("timeout sending stop signal")
		return false
	}
	return true
}

func (s *sqliteNotifier) GuildConfigUpdated(
	ctx context.Context,
	guildID string,
) bool {
	s.logger.Info("got guild config update notification", "guild_id", guildID)
	select {
	case s.bot.triggerGuildConfigRefreshCh <- guildID:
	//
	case <-ctx.Done():
		s.logger.Warn(
			"timeout sending guild config refresh", "guild_id", guildID,
		)
		return false
	}
	return true
}

type postgresNotifier struct {
	bot      *SpartanBot
	logger   *slog.Logger
	notifyID string
}

func (postgresNotifier) GuildConfigChannelName() string {
	return postgresNotifyChannelGuildConfigUpdated
}

func (postgresNotifier) StopChannelName() string {
	return postgresNotifyChannelStop
}

func (p *postgresNotifier) ID() string {
	return p.notifyID
}

func (p *postgresNotifier) Stop(ctx context.Context) bool {
	var sent bool

	notifyErr := p.bot.db.DB().WithContext(ctx).Exec(
		"SELECT pg_notify(?, ?)",
		p.StopChannelName(),
		p.ID(),
	).Error
	if notifyErr != nil {
		p.logger.ErrorContext(
			ctx, "Error sending NOTIFY to stop bot", tint.Err(notifyErr),
		)
	} else {
		p.logger.Info("sent stop signal", "pg_notify_id", p.ID())
		sent = true
	}

	return sent
}

func (p *postgresNotifier) GuildConfigUpdated(
	ctx context.Context,
	guildID string,
) bool {
	var sent bool

	msg := strings.Join([]string{p.ID(), guildID}, recordSeparator)
	notifyErr := p.bot.db.DB().WithContext(ctx).Exec(
		"SELECT pg_notify(?, ?)",
		p.GuildConfigChannelName(),
		msg,
	).Error
	if notifyErr != nil {
		p.logger.ErrorContext(
			ctx,
			"Error sending NOTIFY for guild config update",
			tint.Err(notifyErr),
			"guild_id", guildID,
		)
	} else {
		p.logger.Info(
			"sent guild config update notification",
			"pg_notify_id", p.ID(),
			"guild_id", guildID,
		)
		sent = true
	}

	return sent
}

func parseGuildConfigNotification(s string) (notifierID, guildID string) {
	before, after, _ := strings.Cut(s, recordSeparator)
	return before, after
}

func (p *postgresNotifier) Listen(ctx context.Context, channel string) error {
	p.logger.Info("starting db listener", "channel", channel)

	config, err := pgxpool.ParseConfig(p.bot.config.Database)
	if err != nil {
		p.logger.ErrorContext(
			ctx, "Error parsing database config", tint.Err(err),
		)
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		p.logger.ErrorContext(
			ctx, "Error creating connection pool", tint.Err(err),
		)
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error acquiring connection", tint.Err(err))
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, fmt.Sprintf("LISTEN %s", channel))
	if err != nil {
		p.logger.ErrorContext(ctx, "Error setting up listener", tint.Err(err))
		return err
	}
	logger := p.logger.With("channel", channel)
	logger.InfoContext(ctx, "Started listening on channel")

	for ctx.Err() == nil {
		notification, e := conn.Conn().WaitForNotification(ctx)
		if e != nil {
			logger.ErrorContext(ctx, "Error waiting for notification", tint.Err(e))
			time.Sleep(5 * time.Second)
			continue
		}

		switch channel {
		case p.GuildConfigChannelName():
			notifierID, guildID := parseGuildConfigNotification(
				notification.Payload,
			)
			if notifierID == p.ID() {
				logger.Info("Received notification from self, ignoring")
				continue
			}
			select {
			case p.bot.triggerGuildConfigRefreshCh <- guildID:
				logger.Info(
					"sent guild config refresh signal", "guild_id", guildID,
				)
			case <-time.After(dbNotifierSendTimeout):
				logger.Warn("timed out sending guild config refresh signal")
			}
		case p.StopChannelName():
			if notification.Payload == p.ID() {
				logger.Info("Received stop from self, ignoring")
				continue
			}
			logger.InfoContext(ctx, "received stop signal via NOTIFY")
			select {
			case p.bot.signalStop <- struct{}{}:
				logger.Info("forwarded stop signal")
			case <-time.After(dbNotifierSendTimeout):
				logger.Warn("timed out forwarding stop signal")
			}
		default:
			logger.Warn(
				"Received unknown notification",
				"channel", notification.Channel,
			)
		}
	}

	return nil
}
