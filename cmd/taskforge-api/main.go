package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/taskforge-io/taskforge/internal/auth"
	"github.com/taskforge-io/taskforge/internal/cache"
	"github.com/taskforge-io/taskforge/internal/config"
	"github.com/taskforge-io/taskforge/internal/content"
	"github.com/taskforge-io/taskforge/internal/database"
	"github.com/taskforge-io/taskforge/internal/logging"
	"github.com/taskforge-io/taskforge/internal/notifications"
	"github.com/taskforge-io/taskforge/internal/pages"
	"github.com/taskforge-io/taskforge/internal/realtime"
	"github.com/taskforge-io/taskforge/internal/server"
	"github.com/taskforge-io/taskforge/internal/todos"
	"github.com/taskforge-io/taskforge/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskforge-api",
		Short: "Taskforge collaborative todo backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringSlice("cors-origins", defaults.GetStringSlice("cors.origins"), "Allowed CORS origins")
	cmd.PersistentFlags().Int("access-ttl-minutes", defaults.GetInt("auth.access_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().Int("refresh-ttl-hours", defaults.GetInt("auth.refresh_ttl_hours"), "Refresh token TTL in hours")
	cmd.PersistentFlags().Int("cache-ttl-seconds", defaults.GetInt("cache.ttl_seconds"), "Response cache TTL in seconds")
	cmd.PersistentFlags().String("access-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().String("refresh-secret", "", "Refresh token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "cors.origins", "cors-origins")
	bindFlag(cmd, "auth.access_ttl_minutes", "access-ttl-minutes")
	bindFlag(cmd, "auth.refresh_ttl_hours", "refresh-ttl-hours")
	bindFlag(cmd, "cache.ttl_seconds", "cache-ttl-seconds")
	bindFlag(cmd, "auth.access_secret", "access-secret")
	bindFlag(cmd, "auth.refresh_secret", "refresh-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	accessTokens := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AccessSecret),
		Issuer:        "taskforge",
		Audience:      "taskforge-api",
		TokenTTL:      appConfig.AccessTTL,
	})
	refreshTokens := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.RefreshSecret),
		Issuer:        "taskforge",
		Audience:      "taskforge-refresh",
		TokenTTL:      appConfig.RefreshTTL,
	})

	usersService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	todosService, err := todos.NewService(todos.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	notificationStore, err := notifications.NewStore(notifications.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	contentService, err := content.NewService(content.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	pagesService, err := pages.NewService(pages.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	registry, err := realtime.NewRegistry(db)
	if err != nil {
		return err
	}
	gateway, err := realtime.NewGateway(realtime.GatewayConfig{
		Registry: registry,
		Resolver: todosService,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:             usersService,
		Todos:             todosService,
		Notifications:     notificationStore,
		Content:           contentService,
		Pages:             pagesService,
		AccessTokens:      accessTokens,
		RefreshTokens:     refreshTokens,
		Gateway:           gateway,
		Cache:             cache.New(cache.Config{TTL: appConfig.CacheTTL}),
		Logger:            logger,
		CORSOrigins:       appConfig.CORSOrigins,
		RefreshTTL:        appConfig.RefreshTTL,
		APIRatePerMinute:  appConfig.APIRatePerMinute,
		AuthRatePerMinute: appConfig.AuthRatePerMinute,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
