package spartanbot

import (
	"context"
	cryprand "crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	ginPprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

const (
	apiPrefix         = "/api"
	apiHealthCheck    = "/healthz"
	apiPathState      = "/state"
	apiPathGuilds     = "/guilds"
	apiPathGuildRoles = "/guilds/:guild_id/roles"
	apiPathQuit       = "/quit"
	apiPathMetrics    = "/metrics"

	pprofPrefix = "/debug/pprof"

	xRequestIDHeader = "X-Request-ID"
)

var structValidator = validator.New()

// API is the status and control server that runs alongside the
// Discord gateway connection. It is read-mostly: the only mutating
// endpoint is /api/quit, which triggers a bot shutdown. Authentication
// is HTTP basic auth against the credential seeded by the `init`
// subcommand.
type API struct {
	config           *APIConfig
	httpServer       *http.Server
	listener         net.Listener
	engine           *gin.Engine
	authLimiter      *rate.Limiter
	requestMetrics   map[string]int
	requestMetricsMu sync.Mutex
	logger           *slog.Logger
	d                *SpartanBot
}

type httpReply struct {
	Message string `json:"message"`
}

type httpError struct {
	Error string `json:"error"`
}

// guildSummary is the /api/guilds row. The panel API key never leaves
// the process; only its length is reported.
type guildSummary struct {
	GuildID      string `json:"guild_id"`
	APIURL       string `json:"api_url"`
	APIKeyLength int    `json:"api_key_length"`
	UpdatedAt    int64  `json:"updated_at"`
}

type stateResponse struct {
	Version                 string `json:"version"`
	UptimeSeconds           int64  `json:"uptime_seconds"`
	DiscordGatewayConnected bool   `json:"discord_gateway_connected"`
	CommandsInProgress      int64  `json:"commands_in_progress"`
	ComponentsInProgress    int64  `json:"components_in_progress"`
	RefreshTimersRunning    int64  `json:"refresh_timers_running"`
}

func newAPI(d *SpartanBot, config *APIConfig) (*API, error) {
	setupLogger := slog.New(
		tint.NewHandler(
			os.Stdout, &tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	)

	r := gin.New()

	api := &API{
		config:         config,
		engine:         r,
		requestMetrics: map[string]int{},
		authLimiter:    rate.NewLimiter(rate.Limit(1), 3),
		d:              d,
	}

	var tlsCfg *tls.Config
	if config.Enabled {
		var e error
		tlsCfg, e = tlsConfig(
			config.SSL.Cert,
			config.SSL.Key,
			config.SSL.TLSMinVersion,
		)
		if e != nil {
			return nil, fmt.Errorf("error loading SSL certs: %w", e)
		}
	}

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		TLSConfig:         tlsCfg,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	api.logger = setupLogger.With(loggerNameKey, "api")

	corsConfig := config.CORS.GINConfig()
	if len(corsConfig.AllowOrigins) == 0 && d.config.Development {
		corsConfig.AllowOrigins = []string{"*"}
	}

	if !d.config.Development {
		r.Use(gin.Recovery())
	}
	r.Use(
		requestIDMiddleware(),
		ginLoggingMiddleware(api.logger),
		metricMiddleware(api),
		cors.New(corsConfig),
	)

	r.GET(apiHealthCheck, api.healthCheck)

	if d.config.Development {
		ginPprof.Register(r, pprofPrefix)
	}

	protected := r.Group(apiPrefix)
	protected.Use(api.basicAuthMiddleware())

	protected.GET(apiPathState, api.getState)
	protected.GET(apiPathGuilds, api.getGuilds)
	protected.GET(apiPathGuildRoles, api.getGuildRoles)
	protected.GET(apiPathMetrics, api.getMetrics)
	protected.POST(apiPathQuit, api.botQuit)

	return api, nil
}

func (a *API) Serve(ctx context.Context) error {
	if a.listener != nil {
		return a.httpServer.Serve(a.listener)
	}
	listenCfg := &net.ListenConfig{}
	ln, e := listenCfg.Listen(ctx, a.config.ListenNetwork, a.config.Listen)
	if e != nil {
		return fmt.Errorf("error listening on %s: %w", a.config.Listen, e)
	}
	ln = tls.NewListener(ln, a.httpServer.TLSConfig)
	a.listener = ln
	return a.httpServer.Serve(a.listener)
}

// basicAuthMiddleware validates HTTP basic auth against the stored
// argon2id credential. Attempts are rate limited to slow down
// credential guessing.
func (a *API) basicAuthMiddleware() gin.HandlerFunc {
	unauthorized := func(c *gin.Context) {
		c.Header("WWW-Authenticate", `Basic realm="spartanbot"`)
		c.AbortWithStatusJSON(
			http.StatusUnauthorized, httpError{Error: "unauthorized"},
		)
	}
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			unauthorized(c)
			return
		}
		if !a.authLimiter.Allow() {
			c.AbortWithStatusJSON(
				http.StatusTooManyRequests,
				httpError{Error: "too many authentication attempts"},
			)
			return
		}
		cred, err := a.d.db.APICredential(c.Request.Context())
		if err != nil || cred == nil {
			ginContextLogger(c).Warn(
				"no API credential found, rejecting request",
			)
			unauthorized(c)
			return
		}
		if username != cred.Username {
			unauthorized(c)
			return
		}
		valid, err := VerifyPassword(cred.PasswordHash, password)
		if err != nil || !valid {
			unauthorized(c)
			return
		}
		c.Next()
	}
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK, gin.H{
			"discord_gateway_connected": a.d.discord.connected.Load(),
		},
	)
}

func (a *API) getState(c *gin.Context) {
	c.JSON(
		http.StatusOK, stateResponse{
			Version:                 Version,
			UptimeSeconds:           int64(time.Since(a.d.startedAt).Seconds()),
			DiscordGatewayConnected: a.d.discord.connected.Load(),
			CommandsInProgress:      a.d.commandsInProgress.Load(),
			ComponentsInProgress:    a.d.componentsInProgress.Load(),
			RefreshTimersRunning:    a.d.refreshTimersRunning.Load(),
		},
	)
}

func (a *API) getGuilds(c *gin.Context) {
	configs, err := a.d.db.GuildConfigs(c.Request.Context())
	if err != nil {
		ginContextLogger(c).Error("error listing guild configs", tint.Err(err))
		ginReplyError(c, "error listing guild configs")
		return
	}
	summaries := make([]guildSummary, 0, len(configs))
	for _, config := range configs {
		summaries = append(
			summaries, guildSummary{
				GuildID:      config.GuildID,
				APIURL:       config.APIURL,
				APIKeyLength: len(config.APIKey),
				UpdatedAt:    config.UpdatedAt,
			},
		)
	}
	c.JSON(http.StatusOK, summaries)
}

func (a *API) getGuildRoles(c *gin.Context) {
	guildID := c.Param("guild_id")
	roles, err := a.d.db.SyncedRolesForGuild(c.Request.Context(), guildID)
	if err != nil {
		ginContextLogger(c).Error("error listing synced roles", tint.Err(err))
		ginReplyError(c, "error listing synced roles")
		return
	}
	c.JSON(http.StatusOK, roles)
}

func (a *API) getMetrics(c *gin.Context) {
	a.requestMetricsMu.Lock()
	metrics := make(map[string]int, len(a.requestMetrics))
	for k, v := range a.requestMetrics {
		metrics[k] = v
	}
	a.requestMetricsMu.Unlock()
	c.JSON(http.StatusOK, metrics)
}

// botQuit sends a stop signal to the bot, initiating shutdown. With a
// postgres-backed deployment the signal fans out to every instance
// listening on the stop channel.
func (a *API) botQuit(c *gin.Context) {
	log := ginContextLogger(c)
	log.Warn("sending stop signal")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	doneCh := make(chan struct{}, 1)
	go func() {
		a.d.dbNotifier.Stop(ctx)
		doneCh <- struct{}{}
		close(doneCh)
	}()
	select {
	case <-doneCh:
		ginReplyMessage(c, "quitting")
	case <-ctx.Done():
		log.Warn("timeout sending stop signal")
		c.JSON(
			http.StatusGatewayTimeout,
			httpError{Error: "timeout sending stop signal"},
		)
	}
}

// requestIDMiddleware assigns a random hex request ID to each incoming
// request, set both in the gin context and the response headers.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := generateRandomHexString(16)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

// ginContextLogger returns the slog.Logger from the given gin context,
// or, if it doesn't exist, creates a logger with request details
// included and caches it in the context.
func ginContextLogger(c *gin.Context) *slog.Logger {
	logger, ok := c.Get(string(loggerContextKey))
	if ok {
		if requestLogger, isLogger := logger.(*slog.Logger); isLogger {
			return requestLogger
		}
	}
	requestLogger := slog.Default()
	requestID, _ := c.Get(xRequestIDHeader)
	path := c.Request.URL.Path
	raw := c.Request.URL.RawQuery
	if raw != "" {
		path = path + "?" + raw
	}

	requestLogger = requestLogger.With(
		slog.Group(
			"request",
			"method", c.Request.Method,
			"path", path,
			"remote_addr", c.Request.RemoteAddr,
			"remote_ip", c.RemoteIP(),
			"user_agent", c.Request.UserAgent(),
			"referer", c.Request.Referer(),
		),
		slog.Any(xRequestIDHeader, requestID),
	)
	c.Set(string(loggerContextKey), requestLogger)
	return requestLogger
}

// ginLoggingMiddleware logs each request's method, path and duration,
// and any accumulated gin errors.
func ginLoggingMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if _, ok := c.Get(string(loggerContextKey)); !ok && base != nil {
			c.Set(string(loggerContextKey), base)
		}
		requestLogger := ginContextLogger(c)
		c.Next()
		latency := time.Since(start)

		var errs []error
		for _, e := range c.Errors.ByType(gin.ErrorTypePrivate) {
			errs = append(errs, *e)
		}
		if len(errs) > 0 {
			requestLogger.Error(
				fmt.Sprintf(
					"%s %s finished with errors",
					c.Request.Method,
					c.Request.URL,
				),
				"duration", latency,
				"errors", errs,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		} else {
			requestLogger.Info(
				fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL),
				"duration", latency,
				slog.Group(
					"response",
					"status_code", c.Writer.Status(),
					"body_size", c.Writer.Size(),
				),
			)
		}
	}
}

// metricMiddleware counts requests per method and path.
func metricMiddleware(a *API) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Next()

		a.requestMetricsMu.Lock()
		defer a.requestMetricsMu.Unlock()

		key := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		a.requestMetrics[key]++
	}
}

func ginReplyMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, httpReply{Message: message})
}

func ginReplyError(c *gin.Context, err string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, httpError{Error: err})
}

// generateSelfSignedCert generates a self-signed TLS certificate and
// private key, valid from the current time for 1 year.
func generateSelfSignedCert(
	certFile string,
	keyFile string,
) (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(cryprand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	certTemplate := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"SpartanBot"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	derBytes, err := x509.CreateCertificate(
		cryprand.Reader,
		&certTemplate,
		&certTemplate,
		&priv.PublicKey,
		priv,
	)
	if err != nil {
		return tls.Certificate{}, err
	}

	certOut, err := os.Create(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	defer func() {
		_ = certOut.Close()
	}()

	if err = pem.Encode(
		certOut,
		&pem.Block{Type: "CERTIFICATE", Bytes: derBytes},
	); err != nil {
		return tls.Certificate{}, err
	}

	keyOut, err := os.Create(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	defer func() {
		_ = keyOut.Close()
	}()

	privBytes := x509.MarshalPKCS1PrivateKey(priv)
	if err = pem.Encode(
		keyOut,
		&pem.Block{Type: "RSA PRIVATE KEY", Bytes: privBytes},
	); err != nil {
		return tls.Certificate{}, err
	}

	return tls.LoadX509KeyPair(certFile, keyFile)
}

func init() {
	structValidator.SetTagName("binding")
}
