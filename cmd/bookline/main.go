package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/voicelane/bookline/internal/api"
	"github.com/voicelane/bookline/internal/calendar"
	"github.com/voicelane/bookline/internal/flow"
	"github.com/voicelane/bookline/internal/geocode"
	"github.com/voicelane/bookline/internal/intent"
	"github.com/voicelane/bookline/internal/lockfile"
	"github.com/voicelane/bookline/internal/messaging"
	"github.com/voicelane/bookline/internal/recovery"
	"github.com/voicelane/bookline/internal/scheduler"
	"github.com/voicelane/bookline/internal/store"
	"github.com/voicelane/bookline/internal/twiliosms"
	"github.com/voicelane/bookline/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Bookline state data
	DefaultStateDir = "/var/lib/bookline"
	// DefaultAppDBFileName is the default SQLite database filename for
	// tenant configs, sessions, bookings and the outbox.
	DefaultAppDBFileName = "bookline.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for
	// the whatsmeow session store.
	DefaultWhatsAppDBFileName = "whatsmeow.db"

	// DefaultOutboxPollInterval is how often the outbox sender looks for
	// due notifications.
	DefaultOutboxPollInterval = 5 * time.Second
	// DefaultOutboxRecoverySchedule requeues notifications stuck in
	// sending after a crash.
	DefaultOutboxRecoverySchedule = "*/5 * * * *"
	// outboxStaleAfter is how long a claimed message may sit in sending
	// before recovery treats it as abandoned.
	outboxStaleAfter = 2 * time.Minute
)

// appStore is the combined persistence surface main wires together: the
// primary store plus the outbox and dedup repositories, all backed by the
// same database.
type appStore interface {
	store.Store
	store.OutboxRepo
	store.DedupRepo
}

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Bookline with configured modules")
	if err := run(ctx, flags); err != nil {
		slog.Error("Bookline failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Bookline exited successfully")
}

func run(ctx context.Context, flags Flags) error {
	// One instance per state directory; the lock clears itself if we crash.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	notifier := messaging.NewOutboxNotifier(st)

	engine := flow.NewEngine(flow.Config{}, flow.WithCollaborators(flow.Collaborators{
		Geocoder: buildGeocoder(flags),
		Calendar: buildCalendar(flags),
		Notifier: notifier,
	}))

	svc, err := buildMessagingService(flags)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()

	rec := recovery.NewManager()
	rec.Register(recovery.TaskFunc("outbox-stale-requeue", func(ctx context.Context) (int, error) {
		return st.RequeueStaleSendingMessages(time.Now())
	}))
	if err := rec.RecoverAll(ctx); err != nil {
		slog.Warn("main.run: startup recovery finished with errors", "error", err)
	}

	if svc != nil {
		defer svc.Stop()
		sender := store.NewOutboxSender(st, messaging.NewOutboxSendFunc(svc), DefaultOutboxPollInterval)
		go sender.Run(ctx)

		if err := sched.AddMaintenanceJob("outbox-stale-recovery", *flags.outboxRecoveryCron, func() (int, error) {
			return st.RequeueStaleSendingMessages(time.Now().Add(-outboxStaleAfter))
		}); err != nil {
			return err
		}
	} else {
		slog.Warn("main.run: no messaging channel configured, notifications stay queued in the outbox")
	}

	server := api.NewServer(engine, store.NewConfigResolver(st), st,
		buildAPIOptions(flags, st, notifier)...)
	return server.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	ApplicationDBDSN string
	WhatsAppDBDSN    string
	OpenAIKey        string
	APIAddr          string
	GeocodeBaseURL   string
	GeocodeAPIKey    string
	CalendarBaseURL  string
	CalendarAPIKey   string
	Channel          string
	Timezone         string
}

// Flags holds command line flag values
type Flags struct {
	stateDir           *string
	appDBDSN           *string
	whatsappDBDSN      *string
	qrOutput           *string
	numeric            *bool
	openaiKey          *string
	apiAddr            *string
	geocodeBaseURL     *string
	geocodeAPIKey      *string
	calendarBaseURL    *string
	calendarAPIKey     *string
	channel            *string
	timezone           *string
	outboxRecoveryCron *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("BOOKLINE_STATE_DIR"),
		ApplicationDBDSN: os.Getenv("DATABASE_DSN"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		GeocodeBaseURL:   os.Getenv("GEOCODE_BASE_URL"),
		GeocodeAPIKey:    os.Getenv("GEOCODE_API_KEY"),
		CalendarBaseURL:  os.Getenv("CALENDAR_BASE_URL"),
		CalendarAPIKey:   os.Getenv("CALENDAR_API_KEY"),
		Channel:          os.Getenv("MESSAGING_CHANNEL"),
		Timezone:         os.Getenv("BOOKING_TIMEZONE"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BOOKLINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// DATABASE_URL is the legacy name for the application DSN
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = os.Getenv("DATABASE_URL")
		if config.ApplicationDBDSN != "" {
			slog.Debug("Using DATABASE_URL as DATABASE_DSN", "dsn_set", true)
		}
	}

	// Default both databases to SQLite in the state directory
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No application DSN provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		slog.Debug("No WhatsApp DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDBDSN)
	}

	slog.Debug("environment variables loaded",
		"BOOKLINE_STATE_DIR", config.StateDir,
		"DATABASE_DSN_SET", config.ApplicationDBDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDBDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"GEOCODE_BASE_URL_SET", config.GeocodeBaseURL != "",
		"CALENDAR_BASE_URL_SET", config.CalendarBaseURL != "",
		"MESSAGING_CHANNEL", config.Channel,
		"BOOKING_TIMEZONE", config.Timezone)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:           flag.String("state-dir", config.StateDir, "state directory for Bookline data (overrides $BOOKLINE_STATE_DIR)"),
		appDBDSN:           flag.String("db-dsn", config.ApplicationDBDSN, "database DSN for the application store (overrides $DATABASE_DSN or $DATABASE_URL)"),
		whatsappDBDSN:      flag.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		qrOutput:           flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:            flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		openaiKey:          flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for intent classification (overrides $OPENAI_API_KEY)"),
		apiAddr:            flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		geocodeBaseURL:     flag.String("geocode-base-url", config.GeocodeBaseURL, "address validation service base URL (overrides $GEOCODE_BASE_URL)"),
		geocodeAPIKey:      flag.String("geocode-api-key", config.GeocodeAPIKey, "address validation service API key (overrides $GEOCODE_API_KEY)"),
		calendarBaseURL:    flag.String("calendar-base-url", config.CalendarBaseURL, "calendar availability service base URL (overrides $CALENDAR_BASE_URL)"),
		calendarAPIKey:     flag.String("calendar-api-key", config.CalendarAPIKey, "calendar availability service API key (overrides $CALENDAR_API_KEY)"),
		channel:            flag.String("channel", config.Channel, "confirmation delivery channel: sms, whatsapp or empty (overrides $MESSAGING_CHANNEL)"),
		timezone:           flag.String("timezone", config.Timezone, "IANA timezone for business-hours slot generation (overrides $BOOKING_TIMEZONE)"),
		outboxRecoveryCron: flag.String("outbox-recovery-cron", DefaultOutboxRecoverySchedule, "cron schedule for requeueing stale outbox messages"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"appDBDSN_set", *flags.appDBDSN != "",
		"whatsappDBDSN_set", *flags.whatsappDBDSN != "",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"channel", *flags.channel,
		"timezone", *flags.timezone)

	// Update database DSNs if not explicitly set but state directory changed
	if *flags.appDBDSN == config.ApplicationDBDSN &&
		config.ApplicationDBDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) &&
		*flags.stateDir != config.StateDir {
		*flags.appDBDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		slog.Debug("Updated application DSN based on state directory", "new_state_dir", *flags.stateDir)
	}
	if *flags.whatsappDBDSN == config.WhatsAppDBDSN &&
		config.WhatsAppDBDSN == "file:"+filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)+"?_foreign_keys=on" &&
		*flags.stateDir != config.StateDir {
		*flags.whatsappDBDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		slog.Debug("Updated WhatsApp DSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.appDBDSN, *flags.whatsappDBDSN} {
		if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
			continue
		}
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		dir := filepath.Dir(path)
		slog.Debug("Creating state directory for file-based database", "state_dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// buildStore opens the application store for the configured DSN. An empty
// DSN yields the in-memory store, which loses everything on restart.
func buildStore(flags Flags) (appStore, error) {
	dsn := *flags.appDBDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildGeocoder returns the address validation collaborator, or nil when no
// provider is configured. The engine skips validation when it is nil.
func buildGeocoder(flags Flags) flow.AddressValidator {
	if *flags.geocodeBaseURL == "" {
		slog.Debug("No geocode base URL configured, address validation disabled")
		return nil
	}
	opts := []geocode.Option{geocode.WithBaseURL(*flags.geocodeBaseURL)}
	if *flags.geocodeAPIKey != "" {
		opts = append(opts, geocode.WithAPIKey(*flags.geocodeAPIKey))
	}
	client, err := geocode.NewClient(opts...)
	if err != nil {
		slog.Warn("main.buildGeocoder: client construction failed, address validation disabled", "error", err)
		return nil
	}
	return client
}

// buildCalendar returns the availability collaborator. Without an external
// calendar service it falls back to generated business-hours windows.
func buildCalendar(flags Flags) flow.CalendarLookup {
	if *flags.calendarBaseURL != "" {
		opts := []calendar.Option{calendar.WithBaseURL(*flags.calendarBaseURL)}
		if *flags.calendarAPIKey != "" {
			opts = append(opts, calendar.WithAPIKey(*flags.calendarAPIKey))
		}
		client, err := calendar.NewClient(opts...)
		if err == nil {
			return client
		}
		slog.Warn("main.buildCalendar: client construction failed, using business-hours fallback", "error", err)
	}
	loc := time.Local
	if *flags.timezone != "" {
		parsed, err := time.LoadLocation(*flags.timezone)
		if err != nil {
			slog.Warn("main.buildCalendar: invalid timezone, using local", "timezone", *flags.timezone, "error", err)
		} else {
			loc = parsed
		}
	}
	return calendar.NewBusinessHoursLookup(loc)
}

// buildMessagingService constructs the delivery channel for queued
// notifications. Returns nil when no channel is configured.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch *flags.channel {
	case "":
		return nil, nil
	case "sms":
		client, err := twiliosms.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewSMSService(client), nil
	case "whatsapp":
		opts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.whatsappDBDSN)}
		if *flags.qrOutput != "" {
			opts = append(opts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			opts = append(opts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(opts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		slog.Warn("main.buildMessagingService: unknown channel, notifications stay queued", "channel", *flags.channel)
		return nil, nil
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, st appStore, notifier *messaging.OutboxNotifier) []api.Option {
	apiOpts := []api.Option{
		api.WithDedup(st),
		api.WithNotifier(notifier),
		api.WithIntentClassifier(intent.New(*flags.openaiKey)),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
