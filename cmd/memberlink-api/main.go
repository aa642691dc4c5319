package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
	"github.com/NovaLinkLabs/memberlink/backend/internal/auth"
	"github.com/NovaLinkLabs/memberlink/backend/internal/config"
	"github.com/NovaLinkLabs/memberlink/backend/internal/database"
	"github.com/NovaLinkLabs/memberlink/backend/internal/identity"
	"github.com/NovaLinkLabs/memberlink/backend/internal/ledger"
	"github.com/NovaLinkLabs/memberlink/backend/internal/linking"
	"github.com/NovaLinkLabs/memberlink/backend/internal/logging"
	"github.com/NovaLinkLabs/memberlink/backend/internal/notify"
	"github.com/NovaLinkLabs/memberlink/backend/internal/presentation"
	"github.com/NovaLinkLabs/memberlink/backend/internal/server"
	"github.com/NovaLinkLabs/memberlink/backend/internal/syncing"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	// Local development reads secrets from a .env file; absence is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "memberlink-api",
		Short: "Account linking and sync bridge service",
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
	cmd.PersistentFlags().Duration("sweep-interval", defaults.GetDuration("sessions.sweep_interval"), "Sync session sweep interval")
	cmd.PersistentFlags().Duration("session-ttl", defaults.GetDuration("sessions.ttl"), "Sync session time to live")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")
	cmd.PersistentFlags().String("webhook-secret", "", "Webhook shared secret (overrides env)")
	cmd.PersistentFlags().String("telegram-token", "", "Telegram bot token (optional)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "sessions.sweep_interval", "sweep-interval")
	bindFlag(cmd, "sessions.ttl", "session-ttl")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "webhook.secret", "webhook-secret")
	bindFlag(cmd, "telegram.token", "telegram-token")
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

	logger, err := logging.NewLogger("memberlink-api", appConfig.LogLevel)
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
		ClientID:      appConfig.ClientID,
		ClientSecret:  appConfig.ClientSecret,
		Issuer:        "memberlink-auth",
		Audience:      "memberlink-api",
	})

	ids := account.NewUUIDProvider()

	identityService, err := identity.NewService(identity.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	resolver, err := linking.NewResolver(linking.ResolverConfig{
		Database:   db,
		IDProvider: ids,
		Logger:     logger,
		SessionTTL: appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	reconciler, err := syncing.NewReconciler(syncing.ReconcilerConfig{
		Database:   db,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	presenter, err := presentation.NewService(presentation.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	ledgerService, err := ledger.NewService(ledger.ServiceConfig{
		Database:   db,
		IDProvider: ids,
		Secret:     appConfig.WebhookSecret,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var notifier notify.Gateway = notify.NewNopGateway()
	if appConfig.TelegramToken != "" {
		telegramGateway, gatewayErr := notify.NewTelegramGateway(appConfig.TelegramToken, logger)
		if gatewayErr != nil {
			return gatewayErr
		}
		notifier = telegramGateway
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Identities:   identityService,
		Resolver:     resolver,
		Reconciler:   reconciler,
		Presenter:    presenter,
		Ledger:       ledgerService,
		Notifier:     notifier,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper, err := linking.NewSweeper(linking.SweeperConfig{
		Database: db,
		Interval: appConfig.SweepInterval,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	go sweeper.Run(signalCtx)

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

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
