package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/QuickReach/QuickReach/internal/api"
	"github.com/QuickReach/QuickReach/internal/escalation"
	"github.com/QuickReach/QuickReach/internal/intake"
	"github.com/QuickReach/QuickReach/internal/models"
	"github.com/QuickReach/QuickReach/internal/notify"
	"github.com/QuickReach/QuickReach/internal/scheduler"
	"github.com/QuickReach/QuickReach/internal/session"
	"github.com/QuickReach/QuickReach/internal/store"
	"github.com/QuickReach/QuickReach/internal/ussd"
	"github.com/QuickReach/QuickReach/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for QuickReach state data
	DefaultStateDir = "/var/lib/quickreach"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "quickreach.db"
)

// seedHospitals is the Addis Ababa facility roster loaded into an empty
// database on first boot. Registration order matters: dispatch reserves the
// earliest facility with spare capacity.
var seedHospitals = []models.Hospital{
	{Name: "Black Lion Hospital", Lat: 9.0107, Lng: 38.7486, MaxCapacity: 5},
	{Name: "St. Paul's Hospital", Lat: 9.0515, Lng: 38.7262, MaxCapacity: 4},
	{Name: "Zewditu Memorial Hospital", Lat: 9.0153, Lng: 38.7522, MaxCapacity: 3},
	{Name: "Yekatit 12 Hospital", Lat: 9.0399, Lng: 38.7551, MaxCapacity: 3},
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	st, err := openStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.SeedHospitals(seedHospitals); err != nil {
		slog.Error("Failed to seed hospitals", "error", err)
		os.Exit(1)
	}

	notifier := buildNotifier()

	escalations := escalation.NewScheduler(st, notifier,
		escalation.WithWindow(*flags.escalationWindow))
	defer escalations.Stop()

	// Re-arm acknowledgment timers for incidents that were Pending when the
	// process last stopped.
	if err := escalations.RearmPending(); err != nil {
		slog.Warn("Failed to re-arm pending escalations", "error", err)
	}

	sessions := session.NewCacheStore(session.WithTTL(*flags.sessionTTL))

	jobs := scheduler.NewScheduler()
	defer jobs.Stop()
	if err := jobs.AddJob("* * * * *", sessions.Sweep); err != nil {
		slog.Error("Failed to schedule session sweep", "error", err)
		os.Exit(1)
	}
	if err := jobs.AddJob("* * * * *", escalations.SweepOverdue); err != nil {
		slog.Error("Failed to schedule escalation sweep", "error", err)
		os.Exit(1)
	}

	engine := intake.NewEngine(st, escalations)
	dialogue := ussd.NewHandler(sessions, engine, st)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, dialogue, escalations, apiOpts...)

	slog.Info("Bootstrapping QuickReach", "db_driver", *flags.dbDriver, "api_addr", *flags.apiAddr,
		"session_ttl", *flags.sessionTTL, "escalation_window", *flags.escalationWindow)
	if err := server.Run(); err != nil {
		slog.Error("QuickReach failed to run", "error", err)
		os.Exit(1)
	}
}

// Config holds environment configuration
type Config struct {
	DbDriver         string
	DatabaseURL      string
	StateDir         string
	APIAddr          string
	SessionTTL       time.Duration
	EscalationWindow time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir         *string
	dbDriver         *string
	dbDSN            *string
	apiAddr          *string
	sessionTTL       *time.Duration
	escalationWindow *time.Duration
}

// initializeLogger sets up structured logging. DEBUG=true lowers the level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DbDriver:         os.Getenv("DB_DRIVER"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("QUICKREACH_STATE_DIR"),
		APIAddr:          os.Getenv("API_ADDR"),
		SessionTTL:       util.ParseDurationEnv("SESSION_TTL", session.DefaultTTL),
		EscalationWindow: util.ParseDurationEnv("ESCALATION_WINDOW", escalation.DefaultWindow),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No QUICKREACH_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Infer the driver from the DSN shape when not set explicitly.
	if config.DbDriver == "" {
		if strings.Contains(config.DatabaseURL, "postgres://") || strings.Contains(config.DatabaseURL, "host=") {
			config.DbDriver = "postgres"
		} else {
			config.DbDriver = "sqlite"
		}
	}

	slog.Debug("environment variables loaded",
		"DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"QUICKREACH_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"SESSION_TTL", config.SessionTTL,
		"ESCALATION_WINDOW", config.EscalationWindow)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:         flag.String("state-dir", config.StateDir, "state directory for QuickReach data (overrides $QUICKREACH_STATE_DIR)"),
		dbDriver:         flag.String("db-driver", config.DbDriver, "database driver, sqlite or postgres (overrides $DB_DRIVER)"),
		dbDSN:            flag.String("db-dsn", config.DatabaseURL, "database DSN, file path for SQLite (overrides $DATABASE_URL)"),
		apiAddr:          flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sessionTTL:       flag.Duration("session-ttl", config.SessionTTL, "idle lifetime of USSD sessions (overrides $SESSION_TTL)"),
		escalationWindow: flag.Duration("escalation-window", config.EscalationWindow, "acknowledgment window before escalation (overrides $ESCALATION_WINDOW)"),
	}

	flag.Parse()

	// Default SQLite to a file inside the state directory.
	if *flags.dbDriver != "postgres" && *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", *flags.dbDSN)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDriver", *flags.dbDriver,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"sessionTTL", *flags.sessionTTL,
		"escalationWindow", *flags.escalationWindow)

	return flags
}

// openStore builds the persistent backend selected by the flags.
func openStore(flags Flags) (store.Store, error) {
	if *flags.dbDriver == "postgres" {
		slog.Debug("Configuring PostgreSQL store", "dsn_set", *flags.dbDSN != "")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildNotifier prefers Twilio SMS delivery when credentials are present and
// falls back to log-only escalation.
func buildNotifier() escalation.Notifier {
	notifier, err := notify.NewTwilioNotifier()
	if err != nil {
		slog.Warn("Twilio notifier unavailable, escalations will only be logged", "error", err)
		return notify.NewLogNotifier()
	}
	slog.Info("Twilio escalation notifier configured")
	return notifier
}
