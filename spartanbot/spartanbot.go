package spartanbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/dezerx-spartan/Spartan-Bot/spartanbot.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	defaultLogWriter io.Writer = os.Stdout
)

// SpartanBot is the main application struct. It wires the Discord
// gateway, the per-guild panel credential store, the panel API client,
// and the optional status API together.
type SpartanBot struct {
	config *Config

	// Pointer to a read-only GORM connection. This is from an
	// overabundance of caution for using SQLite.
	gormDB *gorm.DB

	// Store wrapper for write/update/delete operations. When using
	// sqlite, a mutex serializes writes.
	db Store

	dbNotifier DBNotifier

	// Standard logger. Missing loggers will try to use this,
	// and fall back to slog.Default()
	logger *slog.Logger

	// Handler to use for the above
	logHandler slog.Handler

	// Handles discord integration, sessions
	discord *Discord

	// Stateless billing panel API client. Credentials are passed
	// per-call from each guild's stored config.
	panel *PanelClient

	// Provides the back-end status/admin API
	api *API

	// signalStop enables an explicit stop signal to be sent to the bot,
	// such as by the `/api/quit` endpoint
	signalStop chan struct{}

	// signalReady has a value sent on it when Run finishes initializing:
	// database opened and migrated, discord session connected, and slash
	// commands registered
	signalReady chan struct{}

	// A signal is sent on this channel when the
	// [SpartanBot.shutdown] function finishes
	eventShutdown chan struct{}

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// The time Run was called
	startedAt time.Time

	// getInteractionHandlerFunc should be a callable to be used
	// when an interaction is received, which returns an appropriate
	// InteractionHandler. Swappable for tests.
	getInteractionHandlerFunc func(
		ctx context.Context,
		i *discordgo.InteractionCreate,
	) InteractionHandler

	// commandsInProgress counts slash commands actively being handled
	commandsInProgress atomic.Int64

	// componentsInProgress counts component/modal interactions actively
	// being handled
	componentsInProgress atomic.Int64

	// refreshTimersRunning counts pending deferred service list refreshes
	// ([SpartanBot.scheduleServicesRefresh] goroutines)
	refreshTimersRunning atomic.Int64

	// triggerGuildConfigRefreshCh receives guild IDs whose cached panel
	// credentials should be dropped (from LISTEN/NOTIFY or local saves)
	triggerGuildConfigRefreshCh chan string
}

func (d *SpartanBot) getLogger(ctx context.Context) (
	context.Context,
	*slog.Logger,
) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = d.logger
		ctx = WithLogger(ctx, logger)
	}
	return ctx, logger
}

func New(config *Config) (*SpartanBot, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres'"),
		)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	d := &SpartanBot{
		config:                      config,
		signalReady:                 make(chan struct{}, 1),
		eventShutdown:               make(chan struct{}, 1),
		triggerGuildConfigRefreshCh: make(chan string, 1),
	}

	d.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     d.config.LogLevel,
			AddSource: true,
		},
	)

	d.logger = slog.New(d.logHandler)
	slog.SetDefault(d.logger)

	d.panel = NewPanelClient(
		d.config.Panel,
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     d.config.Panel.LogLevel,
				AddSource: true,
			},
		),
	)

	d.config.Discord.httpClient = d.config.HTTPClient

	disc, err := newDiscord(d.config.Discord)
	if err != nil {
		errs = append(errs, err)
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     d.config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	disc.logger = slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     d.config.Discord.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "discord")

	d.discord = disc
	disc.bot = d

	api, err := newAPI(d, config.API)
	errs = append(errs, err)
	d.api = api

	return d, errors.Join(errs...)
}

func (d *SpartanBot) ValidateConfig() error {
	err := structValidator.Struct(d.config)
	if err != nil {
		return err
	}

	return nil
}

// RegisterSlashCommands sends a bulk overwrite of the bot's application
// commands to Discord.
func (d *SpartanBot) RegisterSlashCommands(options ...discordgo.RequestOption) (
	[]*discordgo.ApplicationCommand,
	error,
) {
	return d.discord.registerCommands(options...)
}

// Run starts the bot and blocks until the given context is canceled, a
// stop signal arrives, or startup fails.
func (d *SpartanBot) Run(ctx context.Context) error {
	// prevents concurrent runs
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.signalStop = make(chan struct{}, 1)
	d.startedAt = time.Now()
	logger := d.logger

	if err := d.ValidateConfig(); err != nil {
		logger.Error("invalid config", tint.Err(err))
		return err
	}

	notifier, err := newDBNotifier(d)
	if err != nil {
		logger.Error("error creating db notifier", tint.Err(err))
		return err
	}
	d.dbNotifier = notifier

	ctx = WithLogger(ctx, logger)

	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", d.config))
	if d.signalReady == nil {
		d.signalReady = make(chan struct{}, 1)
	}

	// this is the 'runtime' context, which triggers a graceful shutdown
	// when canceled
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-d.signalStop:
			d.logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
			d.logger.Warn("context canceled, sending stop signal")
			d.signalStop <- struct{}{}
			return
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, d.config.StartupTimeout)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		logger.Debug("initializing run...")
		initErr <- d.initRun(startCtx)
	}()

	select {
	case <-startCtx.Done():
		return fmt.Errorf("startup cancelled or timed out")
	case err := <-initErr:
		if err != nil {
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			return err
		}
		logger.InfoContext(ctx, "init complete")
	}

	// runtimeWG tracks in-flight interaction handlers, so shutdown can
	// wait on them
	runtimeWG := &sync.WaitGroup{}

	if discErr := d.initDiscordSession(ctx, runtimeWG); discErr != nil {
		d.logger.ErrorContext(ctx, "error creating discord session", tint.Err(discErr))
		return discErr
	}

	if err := d.discordInit(ctx, logger); err != nil {
		return err
	}

	// long-running background tasks: the status API, the guild config
	// cache refresher, and (on postgres) the NOTIFY listeners
	background, bgCtx := errgroup.WithContext(ctx)

	if d.config.API.Enabled {
		background.Go(
			func() error {
				httpErr := d.api.Serve(bgCtx)
				if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
					d.logger.ErrorContext(
						bgCtx, "error serving api HTTP", tint.Err(httpErr),
					)
					return httpErr
				}
				return nil
			},
		)
	}

	background.Go(
		func() error {
			d.watchGuildConfigRefresh(bgCtx)
			return nil
		},
	)

	if channel := d.dbNotifier.GuildConfigChannelName(); channel != "" {
		background.Go(
			func() error {
				if e := d.dbNotifier.Listen(bgCtx, channel); e != nil {
					d.logger.ErrorContext(
						bgCtx, "error listening to guild config channel", tint.Err(e),
					)
				}
				return nil
			},
		)
	}

	if channel := d.dbNotifier.StopChannelName(); channel != "" {
		background.Go(
			func() error {
				if e := d.dbNotifier.Listen(bgCtx, channel); e != nil {
					d.logger.ErrorContext(
						bgCtx, "error listening to stop channel", tint.Err(e),
					)
				}
				return nil
			},
		)
	}

	d.signalReady <- struct{}{}
	d.logger.InfoContext(ctx, "sent ready signal")

	// block until something cancels the main runtime context - generally
	// from an interrupt, or the `/api/quit` endpoint
	<-ctx.Done()

	// Commence shutdown
	shutdownErr := d.shutdown(ctx, runtimeWG)
	if waitErr := background.Wait(); waitErr != nil &&
		!errors.Is(waitErr, context.Canceled) {
		d.logger.Warn("background task error", tint.Err(waitErr))
	}
	return shutdownErr
}

// watchGuildConfigRefresh drains the guild config refresh channel,
// dropping cached credentials for each announced guild.
func (d *SpartanBot) watchGuildConfigRefresh(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case guildID := <-d.triggerGuildConfigRefreshCh:
			d.logger.InfoContext(
				ctx,
				"invalidating cached guild config",
				"guild_id", guildID,
			)
			d.db.InvalidateGuildConfig(guildID)
		}
	}
}

func (d *SpartanBot) initRun(startCtx context.Context) error {
	d.logger.Debug("initializing DB...")
	if err := d.initDB(startCtx); err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	d.logger.Debug("finished initializing DB")

	if d.config.API.Enabled {
		if _, err := d.db.APICredential(startCtx); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				d.logger.Warn(
					"api enabled but no credentials set - run the " +
						"`init` command to create them; authenticated " +
						"endpoints will reject all requests until then",
				)
			} else {
				return fmt.Errorf("error checking api credentials: %w", err)
			}
		}
	}

	return nil
}

func (d *SpartanBot) initDB(ctx context.Context) error {
	logger, ok := ContextLogger(ctx)
	if !ok || logger == nil {
		logger = d.logger
	}

	handler := tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     d.config.DatabaseLogLevel,
			AddSource: true,
		},
	)

	gormLogger := newGORMLogger(handler, d.config.DatabaseSlowThreshold)
	db, err := getDB(d.config.DatabaseType, d.config.Database, gormLogger)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}

	d.gormDB = db
	d.db = NewStore(
		db,
		d.logger,
		d.config.DatabaseType == dbTypePostgres,
		d.config.GuildConfigCacheTTL,
	)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("error getting database connection: %w", err)
	}

	if d.config.DatabaseType == dbTypeSQLite {
		sqlDB.SetMaxOpenConns(sqliteMaxOpenConns)
		sqlDB.SetMaxIdleConns(sqliteMaxIdleConns)
		sqlDB.SetConnMaxLifetime(sqliteMaxConnLifetime)
	}

	logger.Debug("migrating database...")
	txn := db.WithContext(ctx).Begin()

	mg := txn.Migrator()
	err = mg.AutoMigrate(
		&GuildConfig{},
		&SyncedRole{},
		&APICredential{},
		&InteractionLog{},
	)
	if err != nil {
		logger.Error("error migrating database", tint.Err(err))
		return fmt.Errorf("error migrating database: %w", err)
	}
	logger.Debug("finished migrating database")

	commitErr := txn.Commit().Error
	if commitErr != nil {
		return fmt.Errorf("error committing transaction: %w", commitErr)
	}
	return nil
}

// discordInit opens the discord websocket connection and registers commands
func (d *SpartanBot) discordInit(
	ctx context.Context,
	logger *slog.Logger,
) error {
	d.logger.InfoContext(ctx, "connecting to discord")
	if err := d.discord.session.Open(); err != nil {
		logger.ErrorContext(ctx, "error connecting to discord!", tint.Err(err))
		return fmt.Errorf("error connecting to discord: %w", err)
	}

	if _, err := d.RegisterSlashCommands(); err != nil {
		return fmt.Errorf("error registering slash commands: %w", err)
	}

	if d.config.Discord.CustomStatus != "" {
		go func() {
			if statusErr := d.discord.session.UpdateCustomStatus(
				d.config.Discord.CustomStatus,
			); statusErr != nil {
				logger.Error("error updating discord status", tint.Err(statusErr))
			}
		}()
	}
	return nil
}

func (d *SpartanBot) initDiscordSession(
	ctx context.Context,
	runtimeWG *sync.WaitGroup,
) error {
	logger := d.logger.With(loggerNameKey, "discord_session")

	if d.discord.session == nil {
		disc, discErr := d.discord.newSession()
		if discErr != nil {
			return fmt.Errorf("error creating discord session: %w", discErr)
		}
		d.discord.session = disc
	}

	ctx = WithLogger(ctx, logger)

	if len(d.discord.discordgoRemoveHandlerFuncs) > 0 {
		for _, h := range d.discord.discordgoRemoveHandlerFuncs {
			h()
		}
	}

	identify := discordgo.Identify{Intents: d.config.Discord.GatewayIntents}
	identify.Presence = discordgo.GatewayStatusUpdate{
		Status: d.config.Discord.CustomStatus,
	}
	d.discord.session.SetIdentify(identify)

	d.discord.discordgoRemoveHandlerFuncs = []func(){
		d.discord.session.AddHandler(d.discord.handlerConnect()),
		d.discord.session.AddHandler(d.discord.handlerDisconnect()),
		d.discord.session.AddHandler(d.discord.handlerReady()),
		d.discord.session.AddHandler(
			func(
				_ *discordgo.Session,
				i *discordgo.InteractionCreate,
			) {
				handler := d.getInteractionHandlerFunc(ctx, i)
				runtimeWG.Add(1)
				go func() {
					defer runtimeWG.Done()
					d.handleInteraction(ctx, handler)
				}()
			},
		),
	}

	if d.getInteractionHandlerFunc == nil {
		d.getInteractionHandlerFunc = func(
			_ context.Context,
			i *discordgo.InteractionCreate,
		) InteractionHandler {
			handler := GatewayHandler{
				session:     d.discord.session,
				interaction: i,
				mu:          &sync.RWMutex{},
				logger: d.logger.With(
					slog.Group(
						"interaction",
						interactionLogAttrs(*i)...,
					),
				),
			}
			return handler
		}
	}
	return nil
}

func (d *SpartanBot) shutdown(
	ctx context.Context,
	runtimeWG *sync.WaitGroup,
) error {
	d.logger.WarnContext(ctx, "shutting down")
	defer func() {
		if d.eventShutdown != nil {
			go func() {
				d.eventShutdown <- struct{}{}
			}()
		}
	}()
	shutdownStart := time.Now()
	shutdownTimeout := d.config.ShutdownTimeout
	if shutdownTimeout.Seconds() == 0 {
		d.logger.Warn("immediate shutdown")
		if d.api != nil && d.api.httpServer != nil {
			go func() {
				_ = d.api.httpServer.Close()
			}()
		}
		return fmt.Errorf("interaction handlers did not stop in time")
	}
	shutdownDeadline := shutdownStart.Add(shutdownTimeout)

	announcementTicker := time.NewTicker(10 * time.Second)
	defer announcementTicker.Stop()

	d.logger.InfoContext(
		ctx,
		"exiting!",
		"shutdown_timeout", d.config.ShutdownTimeout,
		"shutdown_started", shutdownStart,
		"shutdown_deadline", shutdownDeadline,
	)

	closeCtx, closeCancel := context.WithDeadline(
		context.Background(),
		shutdownDeadline,
	)
	defer closeCancel()

	// Graceful shutdown - at least until closeCtx is closed
	gracefulShutdownCh := make(chan struct{}, 1)
	go func() {
		runtimeWG.Wait() // wait for in-flight interaction handlers
		runtimeStopEnd := time.Now()
		d.logger.InfoContext(
			ctx,
			"finished handling in-flight requests",
			"shutdown_started", shutdownStart,
			"runtime_stopped", runtimeStopEnd,
			"runtime_stop_duration", runtimeStopEnd.Sub(shutdownStart),
		)
		stopWG := &sync.WaitGroup{}

		if d.api != nil && d.api.httpServer != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				d.logger.InfoContext(ctx, "stopping http server")
				_ = d.api.httpServer.Shutdown(closeCtx)
				d.logger.InfoContext(ctx, "http server stopped")
			}()
		}

		if d.discord.session != nil {
			stopWG.Add(1)
			go func() {
				defer stopWG.Done()
				d.logger.InfoContext(ctx, "closing discord session")
				_ = d.discord.session.Close()
				d.logger.InfoContext(ctx, "discord session closed")
				if len(d.discord.discordgoRemoveHandlerFuncs) > 0 {
					for _, h := range d.discord.discordgoRemoveHandlerFuncs {
						h()
					}
					d.logger.InfoContext(ctx, "finished removing handlers")
				}
			}()
		}

		// wait on the above, then send a signal that we're done
		go func() {
			d.logger.InfoContext(ctx, "waiting graceful shutdown")
			stopWG.Wait()
			gracefulShutdownCh <- struct{}{}
			d.logger.InfoContext(ctx, "stopped http/discord")
		}()
	}()

	// if we get a signal on gracefulShutdownCh, everything stopped and
	// cleaned up normally. otherwise, burn it all down!
	for {
		select {
		case <-gracefulShutdownCh:
			closeCancel()
			shutdownEnded := time.Now()
			d.logger.InfoContext(
				ctx,
				"shutdown complete",
				"shutdown_ended", shutdownEnded,
				"shutdown_duration", shutdownEnded.Sub(shutdownStart),
			)
			return nil
		case <-announcementTicker.C:
			remaining := time.Until(shutdownDeadline)
			d.logger.Warn(
				fmt.Sprintf(
					"time until hard shutdown: %s",
					remaining.String(),
				),
			)
		case <-closeCtx.Done(): // timed out, enqueue closing stuff
			d.logger.Warn("handlers did not stop in time, forcing close")
			if d.api != nil && d.api.httpServer != nil {
				go func() {
					_ = d.api.httpServer.Close()
				}()
			}
			return fmt.Errorf("interaction handlers did not stop in time")
		}
	}
}

// handleRecover handles the recovery from a panic in an interaction
// handler goroutine.
func (*SpartanBot) handleRecover(ctx context.Context, rc any) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = slog.Default()
	}
	stackTrace := string(debug.Stack())
	if nerr, ok := rc.(error); ok {
		logger.ErrorContext(
			ctx,
			"recovered from panic",
			tint.Err(nerr),
			"stack_trace", stackTrace,
		)
		return
	}
	if nerr, ok := rc.(string); ok {
		logger.ErrorContext(
			ctx,
			"recovered from panic",
			tint.Err(errors.New(nerr)),
			"stack_trace", stackTrace,
		)
		return
	}
	logger.ErrorContext(
		ctx,
		"recovered from panic",
		"panic_arg", rc,
		"stack_trace", stackTrace,
	)
}

// handleInteraction processes an incoming Discord interaction: it logs
// an audit record, then routes slash commands, message components, and
// modal submissions to their handlers.
func (d *SpartanBot) handleInteraction(
	ctx context.Context,
	handler InteractionHandler,
) {
	defer func() {
		if rc := recover(); rc != nil {
			d.handleRecover(ctx, rc)
		}
	}()

	i := handler.GetInteraction()
	logger := handler.Logger()

	discordUser := getDiscordUser(i)
	if discordUser == nil {
		logger.ErrorContext(
			ctx,
			"no user found in interaction",
			"interaction", structToSlogValue(i),
		)
		return
	}

	logger = logger.With(slog.Group("interaction", interactionLogAttrs(*i)...))
	ctx = WithLogger(ctx, logger)
	logger.InfoContext(
		ctx,
		"received new interaction",
		"user", structToSlogValue(discordUser),
	)

	interactionLog, err := newInteractionLog(i, discordUser, handler)
	if err != nil {
		logger.ErrorContext(ctx, "error marshaling interaction", tint.Err(err))
	}

	wg := &sync.WaitGroup{}
	defer wg.Wait()

	if interactionLog != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, createErr := d.db.Create(ctx, interactionLog); createErr != nil {
				logger.ErrorContext(ctx, "error logging interaction", tint.Err(createErr))
			}
		}()
	}

	if discordUser.Bot {
		logger.WarnContext(ctx, "user is bot, ignoring", "user", discordUser)
		return
	}

	switch i.Type {
	case discordgo.InteractionPing:
		_ = handler.Respond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponsePong,
			},
		)
	case discordgo.InteractionModalSubmit:
		d.componentsInProgress.Add(1)
		defer d.componentsInProgress.Add(-1)
		d.handleModalSubmit(ctx, handler)
	case discordgo.InteractionMessageComponent:
		d.componentsInProgress.Add(1)
		defer d.componentsInProgress.Add(-1)
		d.handleMessageComponent(ctx, handler)
	case discordgo.InteractionApplicationCommand:
		d.commandsInProgress.Add(1)
		defer d.commandsInProgress.Add(-1)
		d.handleApplicationCommand(ctx, handler)
	default:
		logger.WarnContext(
			ctx,
			"unhandled interaction type",
			"interaction_type", i.Type.String(),
		)
	}
}

func (d *SpartanBot) handleApplicationCommand(
	ctx context.Context,
	handler InteractionHandler,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	commandName := i.ApplicationCommandData().Name

	if i.GuildID == "" {
		// commands are guild-install only, but a stale global command
		// could still arrive from a DM
		_ = handler.Respond(ctx, ephemeralEmbedResponse(guildOnlyEmbed()))
		return
	}

	switch commandName {
	case DiscordSlashCommandLink:
		// responds with a modal, so no deferred ack here
		d.handleLinkCommand(ctx, handler)
	case DiscordSlashCommandSyncDiscord:
		if ackErr := handler.Respond(ctx, d.discord.ackResponse()); ackErr != nil {
			return
		}
		d.handleSyncDiscordCommand(ctx, handler)
	case DiscordSlashCommandUsers:
		if ackErr := handler.Respond(ctx, d.discord.ackResponse()); ackErr != nil {
			return
		}
		d.handleUsersCommand(ctx, handler)
	case DiscordSlashCommandUpdateUser:
		if ackErr := handler.Respond(ctx, d.discord.ackResponse()); ackErr != nil {
			return
		}
		d.handleUpdateUserCommand(ctx, handler)
	case DiscordSlashCommandManageServices:
		if ackErr := handler.Respond(ctx, d.discord.ackResponse()); ackErr != nil {
			return
		}
		d.handleManageServicesCommand(ctx, handler)
	default:
		logger.WarnContext(ctx, "unknown command", "command_name", commandName)
	}
}

// handleMessageComponent routes button and select menu interactions by
// custom ID. Unknown or undecodable custom IDs are logged and dropped,
// since they usually belong to a stale message.
func (d *SpartanBot) handleMessageComponent(
	ctx context.Context,
	handler InteractionHandler,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	customID := i.MessageComponentData().CustomID

	switch {
	case customID == customIDCancelServiceAction:
		d.handleCancelServiceAction(ctx, handler)
	case strings.HasPrefix(customID, pageIndicatorPrefix):
		// indicator buttons are disabled, but acknowledge just in case
		_ = handler.Respond(
			ctx, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredMessageUpdate,
			},
		)
	case strings.HasPrefix(customID, "users_"):
		d.handleUsersNavigation(ctx, handler, customID)
	case strings.HasPrefix(customID, "services_"):
		d.handleServicesNavigation(ctx, handler, customID)
	case strings.HasPrefix(customID, customIDPrefixServiceSelect):
		d.handleServiceSelected(ctx, handler, customID)
	case strings.HasPrefix(customID, customIDPrefixTestConn):
		d.handleTestConnection(ctx, handler, customID)
	case strings.HasPrefix(customID, customIDPrefixEditUser):
		d.handleEditUserButton(ctx, handler, customID)
	case strings.HasPrefix(customID, customIDPrefixChangePrice):
		d.handleChangePriceButton(ctx, handler, customID)
	case strings.HasPrefix(customID, customIDPrefixChangeDueDate):
		d.handleChangeDueDateButton(ctx, handler, customID)
	default:
		if op, ok := serviceOpFromCustomID(customID); ok {
			d.handleServiceOperation(ctx, handler, op, customID)
			return
		}
		logger.WarnContext(
			ctx,
			"unknown component custom id",
			"custom_id", customID,
		)
	}
}

// serviceOpFromCustomID matches `<op>_service_<id>_<guild>` button IDs.
func serviceOpFromCustomID(customID string) (ServiceOperation, bool) {
	for op := range serviceOpRoutes {
		if strings.HasPrefix(customID, string(op)+"_service_") {
			return op, true
		}
	}
	return "", false
}

func (d *SpartanBot) handleModalSubmit(
	ctx context.Context,
	handler InteractionHandler,
) {
	i := handler.GetInteraction()
	logger := handler.Logger()
	customID := i.ModalSubmitData().CustomID

	switch {
	case customID == customIDConfigModal:
		d.handleConfigModalSubmit(ctx, handler)
	case strings.HasPrefix(customID, customIDPrefixUserModal):
		d.handleUserModalSubmit(ctx, handler, customID)
	case strings.HasPrefix(customID, customIDPrefixPriceModal):
		d.handlePriceModalSubmit(ctx, handler, customID)
	case strings.HasPrefix(customID, customIDPrefixDueDateModal):
		d.handleDueDateModalSubmit(ctx, handler, customID)
	default:
		logger.WarnContext(ctx, "unknown modal custom id", "custom_id", customID)
	}
}
