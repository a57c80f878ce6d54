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

	"github.com/mprlab/colist/internal/auth"
	"github.com/mprlab/colist/internal/config"
	"github.com/mprlab/colist/internal/database"
	"github.com/mprlab/colist/internal/logging"
	"github.com/mprlab/colist/internal/notification"
	"github.com/mprlab/colist/internal/realtime"
	"github.com/mprlab/colist/internal/server"
	"github.com/mprlab/colist/internal/task"
	"github.com/mprlab/colist/internal/todolist"
	"github.com/mprlab/colist/internal/users"
	"github.com/mprlab/colist/internal/worker/cleanup"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "colist-api",
		Short: "Collaborative todo list backend service",
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
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().Int("stats-interval-minutes", defaults.GetInt("realtime.stats_interval_minutes"), "Server stats broadcast interval in minutes")
	cmd.PersistentFlags().Int("purge-interval-minutes", defaults.GetInt("realtime.purge_interval_minutes"), "Expired notification purge interval in minutes")
	cmd.PersistentFlags().Int("retention-days", defaults.GetInt("cleanup.retention_days"), "Deleted task retention in days")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "realtime.stats_interval_minutes", "stats-interval-minutes")
	bindFlag(cmd, "realtime.purge_interval_minutes", "purge-interval-minutes")
	bindFlag(cmd, "cleanup.retention_days", "retention-days")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "colist-auth",
		Audience:      "colist-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	notificationEngine, err := notification.NewEngine(notification.EngineConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	listsService, err := todolist.NewService(todolist.ServiceConfig{
		Database: db,
		Notifier: notificationEngine,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tasksService, err := task.NewService(task.ServiceConfig{
		Database: db,
		Notifier: notificationEngine,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	hub, err := realtime.NewHub(realtime.HubConfig{
		Logger:        logger,
		Clock:         time.Now,
		Access:        listsService,
		Notifications: notificationEngine,
		StatsInterval: appConfig.StatsInterval,
		PurgeInterval: appConfig.PurgeInterval,
	})
	if err != nil {
		return err
	}
	notificationEngine.AttachPusher(hub)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  tokenManager,
		UsersService:  usersService,
		ListsService:  listsService,
		TasksService:  tasksService,
		Notifications: notificationEngine,
		Hub:           hub,
		Logger:        logger,
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

	go hub.Run(signalCtx)

	sweep := cleanup.NewJob(db, time.Now, logger)
	sweep.RetentionDays = appConfig.RetentionDays
	go sweep.RunPeriodically(signalCtx, 24*time.Hour)

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
