package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carehub/pharmacy-portal/internal/config"
	"github.com/carehub/pharmacy-portal/internal/domain"
	"github.com/carehub/pharmacy-portal/internal/domain/medicine"
	"github.com/carehub/pharmacy-portal/internal/domain/order"
	"github.com/carehub/pharmacy-portal/internal/domain/patient"
	"github.com/carehub/pharmacy-portal/internal/domain/pharmacyservice"
	"github.com/carehub/pharmacy-portal/internal/domain/profile"
	"github.com/carehub/pharmacy-portal/internal/domain/requestorder"
	"github.com/carehub/pharmacy-portal/internal/domain/support"
	"github.com/carehub/pharmacy-portal/internal/domain/wallet"
	"github.com/carehub/pharmacy-portal/internal/platform/apiclient"
	"github.com/carehub/pharmacy-portal/internal/platform/db"
	"github.com/carehub/pharmacy-portal/internal/platform/livefeed"
	"github.com/carehub/pharmacy-portal/internal/platform/metrics"
	"github.com/carehub/pharmacy-portal/internal/platform/notification"
	"github.com/carehub/pharmacy-portal/internal/platform/tokenstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pharmacy-portal",
		Short:         "Pharmacy portal for the healthcare marketplace",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("format", "table", "Output format: table, json or yaml")
	rootCmd.PersistentFlags().Bool("json", false, "Shorthand for --format json")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log API calls to stderr")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(loginCmd(), logoutCmd(), whoamiCmd())
	rootCmd.AddCommand(medicinesCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(requestOrdersCmd())
	rootCmd.AddCommand(patientsCmd())
	rootCmd.AddCommand(servicesCmd())
	rootCmd.AddCommand(supportCmd())
	rootCmd.AddCommand(walletCmd())
	return rootCmd
}

// newLogger builds the process logger: JSON with timestamps, or a console
// writer in development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

// app holds the process-wide collaborators shared by the server and the
// CLI commands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	tokens   tokenstore.Store
	metrics  *metrics.Collector
	api      *apiclient.Client
	notifier *notification.Notifier
	feed     *livefeed.Hub
}

// fanout sends status and notification events out to metrics and the
// live feed.
type fanout struct {
	metrics *metrics.Collector
	feed    *livefeed.Hub
}

func (o fanout) ObserveStatusChange(kind, status string) {
	o.metrics.ObserveStatusChange(kind, status)
	o.feed.ObserveStatusChange(kind, status)
}

func (o fanout) ObserveNotification(templateID string) {
	o.metrics.ObserveNotification(templateID)
	o.feed.ObserveNotification(templateID)
}

func (a *app) observers() fanout {
	return fanout{metrics: a.metrics, feed: a.feed}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(),
		feed:    livefeed.NewHub(logger.With().Str("component", "livefeed").Logger()),
	}

	if cfg.NeedsDatabase() {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.pool = pool
	}

	switch cfg.TokenStore {
	case "postgres":
		a.tokens = tokenstore.NewPGStore(a.pool)
	case "memory":
		a.tokens = tokenstore.NewMemory()
	default:
		a.tokens = tokenstore.NewFile(cfg.TokenFile)
	}

	var log notification.Log
	if cfg.NotificationStore == "postgres" {
		log = notification.NewPGLog(a.pool)
	}
	a.notifier = notification.NewNotifier(notification.NewTemplateEngine(), log, logger.With().Str("component", "notification").Logger(),
		notification.WithObserver(a.observers()))

	a.api = apiclient.New(cfg.APIBaseURL, tokenstore.NewSource(a.tokens, cfg.Role, logger),
		apiclient.WithLogger(logger.With().Str("component", "apiclient").Logger()),
		apiclient.WithObserver(a.metrics),
	)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// services are the domain services over one backend.
type services struct {
	profiles  *profile.Service
	medicines *medicine.Service
	orders    *order.Service
	advancer  *order.Advancer
	requests  *requestorder.Service
	processor *requestorder.Processor
	patients  *patient.Service
	catalog   *pharmacyservice.Catalog
	support   *support.Service
	wallet    *wallet.Service
}

func newServices(api domain.Backend, a *app) *services {
	s := &services{
		profiles:  profile.NewService(api),
		medicines: medicine.NewService(api),
		orders:    order.NewService(api),
		requests:  requestorder.NewService(api),
		patients:  patient.NewService(api),
		catalog:   pharmacyservice.NewCatalog(api),
		support:   support.NewService(api),
		wallet:    wallet.NewService(api),
	}
	s.advancer = order.NewAdvancer(s.orders, a.logger,
		order.WithNotifier(a.notifier),
		order.WithStatusObserver(a.observers()),
	)
	s.processor = requestorder.NewProcessor(s.requests, a.logger,
		requestorder.WithNotifier(a.notifier),
		requestorder.WithStatusObserver(a.observers()),
	)
	return s
}

// withPharmacyName puts the signed-in pharmacy's name into patient
// notifications. A failed profile lookup keeps the default wording.
func (s *services) withPharmacyName(ctx context.Context, a *app) {
	p, err := s.profiles.Get(ctx)
	if err != nil {
		a.logger.Debug().Err(err).Msg("pharmacy profile unavailable, using default notification wording")
		return
	}
	s.advancer = order.NewAdvancer(s.orders, a.logger,
		order.WithNotifier(a.notifier),
		order.WithStatusObserver(a.observers()),
		order.WithPharmacyName(p.Name),
	)
	s.processor = requestorder.NewProcessor(s.requests, a.logger,
		requestorder.WithNotifier(a.notifier),
		requestorder.WithStatusObserver(a.observers()),
		requestorder.WithPharmacyName(p.Name),
	)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runCLI wires an app for one CLI command. Logs go to stderr and are quiet
// unless --verbose is set.
func runCLI(cmd *cobra.Command, fn func(ctx context.Context, a *app, s *services) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, newServices(a.api, a))
}
