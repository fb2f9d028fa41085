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
	"gorm.io/gorm"

	"github.com/pinboardly/pinboardly/internal/auth"
	"github.com/pinboardly/pinboardly/internal/billing"
	"github.com/pinboardly/pinboardly/internal/board"
	"github.com/pinboardly/pinboardly/internal/config"
	"github.com/pinboardly/pinboardly/internal/content"
	"github.com/pinboardly/pinboardly/internal/database"
	"github.com/pinboardly/pinboardly/internal/logging"
	"github.com/pinboardly/pinboardly/internal/markdown"
	"github.com/pinboardly/pinboardly/internal/pinboard"
	"github.com/pinboardly/pinboardly/internal/server"
	"github.com/pinboardly/pinboardly/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pinboardly-api",
		Short: "Pinboardly backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newBootstrapCommand(), newSuspendCommand(), newUnsuspendCommand(), newExemptCommand())

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
	cmd.PersistentFlags().String("session-cookie", defaults.GetString("session.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Int("trial-days", defaults.GetInt("trial.days"), "Trial period in days for new pinboards")
	cmd.PersistentFlags().String("billing-base-url", defaults.GetString("billing.base_url"), "Payment processor API base URL")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.cookie_name", "session-cookie")
	bindFlag(cmd, "trial.days", "trial-days")
	bindFlag(cmd, "billing.base_url", "billing-base-url")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
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

// appContext carries the handles shared by the serve and admin commands.
type appContext struct {
	config    config.AppConfig
	logger    *zap.Logger
	db        *gorm.DB
	pinboards *pinboard.Service
}

func openApp() (*appContext, func(), error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	pinboards, err := pinboard.NewService(pinboard.ServiceConfig{
		Database:    db,
		Clock:       time.Now,
		IDProvider:  pinboard.NewUUIDProvider(),
		Logger:      logger,
		TrialPeriod: time.Duration(appConfig.TrialDays) * 24 * time.Hour,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		sqlDB.Close() //nolint:errcheck
		logger.Sync()  //nolint:errcheck
	}
	return &appContext{config: appConfig, logger: logger, db: db, pinboards: pinboards}, cleanup, nil
}

func runServer(ctx context.Context) error {
	app, cleanup, err := openApp()
	if err != nil {
		return err
	}
	defer cleanup()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(app.config.SessionSigningKey),
		CookieName:    app.config.SessionCookieName,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database:   app.db,
		Clock:      time.Now,
		IDProvider: pinboard.NewUUIDProvider(),
	})
	if err != nil {
		return err
	}

	contentService, err := content.NewService(content.ServiceConfig{
		Database:   app.db,
		Clock:      time.Now,
		IDProvider: pinboard.NewUUIDProvider(),
		Logger:     app.logger,
	})
	if err != nil {
		return err
	}

	boardService, err := board.NewService(board.ServiceConfig{
		Database:   app.db,
		Clock:      time.Now,
		IDProvider: pinboard.NewUUIDProvider(),
		Logger:     app.logger,
	})
	if err != nil {
		return err
	}

	webhookVerifier, err := billing.NewSignatureVerifier(billing.SignatureVerifierConfig{
		Secret: []byte(app.config.WebhookSecret),
	})
	if err != nil {
		return err
	}

	checkoutClient, err := billing.NewCheckoutClient(billing.CheckoutClientConfig{
		BaseURL: app.config.BillingBaseURL,
		APIKey:  app.config.BillingAPIKey,
		Logger:  app.logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		TenantResolver:   usersService,
		PinboardService:  app.pinboards,
		ContentService:   contentService,
		BoardService:     boardService,
		WebhookVerifier:  webhookVerifier,
		CheckoutGateway:  checkoutClient,
		Markdown:         markdown.NewRenderer(),
		CheckoutURLs: server.CheckoutURLs{
			SuccessURL: app.config.CheckoutSuccessURL,
			CancelURL:  app.config.CheckoutCancelURL,
		},
		Logger: app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    app.config.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
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

// newBootstrapCommand provisions a pinboard without going through checkout,
// for operator-managed boards.
func newBootstrapCommand() *cobra.Command {
	var ownerValue, slugValue, title string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Provision a pinboard administratively",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp()
			if err != nil {
				return err
			}
			defer cleanup()

			owner, err := pinboard.NewOwnerID(ownerValue)
			if err != nil {
				return err
			}
			slug, err := pinboard.NewSlug(slugValue)
			if err != nil {
				return err
			}
			created, err := app.pinboards.Bootstrap(cmd.Context(), owner, slug, title)
			if err != nil {
				return err
			}
			app.logger.Info("pinboard bootstrapped",
				zap.String("pinboard_id", created.PinboardID),
				zap.String("slug", created.Slug))
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerValue, "owner", "", "Owning organisation id")
	cmd.Flags().StringVar(&slugValue, "slug", "", "Public slug")
	cmd.Flags().StringVar(&title, "title", "", "Pinboard title")
	return cmd
}

func newSuspendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suspend <pinboard-id>",
		Short: "Apply an operator lock to a pinboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp()
			if err != nil {
				return err
			}
			defer cleanup()

			suspended, err := app.pinboards.Suspend(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			app.logger.Info("pinboard suspended", zap.String("slug", suspended.Slug))
			return nil
		},
	}
	return cmd
}

func newUnsuspendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsuspend <pinboard-id>",
		Short: "Lift an operator lock from a pinboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp()
			if err != nil {
				return err
			}
			defer cleanup()

			restored, err := app.pinboards.Unsuspend(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			app.logger.Info("pinboard unsuspended", zap.String("slug", restored.Slug))
			return nil
		},
	}
	return cmd
}

func newExemptCommand() *cobra.Command {
	var exempt bool
	cmd := &cobra.Command{
		Use:   "exempt <pinboard-id>",
		Short: "Toggle the billing exemption flag on a pinboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := openApp()
			if err != nil {
				return err
			}
			defer cleanup()

			updated, err := app.pinboards.SetOwnerExempt(cmd.Context(), args[0], exempt)
			if err != nil {
				return err
			}
			app.logger.Info("pinboard exemption updated",
				zap.String("slug", updated.Slug),
				zap.Bool("exempt", updated.OwnerExempt))
			return nil
		},
	}
	cmd.Flags().BoolVar(&exempt, "on", true, "Enable (true) or disable (false) the exemption")
	return cmd
}
