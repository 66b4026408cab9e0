package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BTreeMap/LeadPipe/internal/albiware"
	"github.com/BTreeMap/LeadPipe/internal/api"
	"github.com/BTreeMap/LeadPipe/internal/automation"
	"github.com/BTreeMap/LeadPipe/internal/featureflag"
	"github.com/BTreeMap/LeadPipe/internal/lifecycle"
	"github.com/BTreeMap/LeadPipe/internal/lockfile"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/notify"
	"github.com/BTreeMap/LeadPipe/internal/propertylookup"
	"github.com/BTreeMap/LeadPipe/internal/scheduler"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/tasks"
	"github.com/BTreeMap/LeadPipe/internal/twiliosms"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadPipe state data
	DefaultStateDir = "/var/lib/leadpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadpipe.db"

	DefaultTaskSyncInterval     = 15 * time.Minute
	DefaultContactSyncInterval  = 10 * time.Minute
	DefaultProjectSweepInterval = 5 * time.Minute
	DefaultShutdownTimeout      = 15 * time.Second
)

// Job names registered with the scheduler.
const (
	jobTaskSync     = "task-sync"
	jobContactSync  = "contact-sync"
	jobProjectSweep = "project-sweep"
)

// Config holds environment configuration
type Config struct {
	StateDir string
	DBDSN    string
	APIAddr  string
	LogLevel string
	LogFile  string
	DryRun   bool

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	ValidateSignature bool
	WebhookBaseURL    string
	AllowedOrigins    []string

	AlbiwareAPIKey  string
	AlbiwareBaseURL string

	TechnicianPhone string
	TechnicianName  string
	StaffPhones     []string

	FollowUpDelay        time.Duration
	TaskSyncInterval     time.Duration
	ContactSyncInterval  time.Duration
	ProjectSweepInterval time.Duration
	ReminderInterval     time.Duration
	MaxReminders         int

	ReminderHoursBeforeDue int
	MaxTaskReminders       int

	AutomationURL     string
	AutomationToken   string
	AutomationTimeout time.Duration
	ProjectRetryBase  time.Duration

	RapidAPIKey        string
	LaunchDarklySDKKey string

	SendGridAPIKey    string
	SendGridFromEmail string
	OfficeEmail       string
	SendGridSandbox   bool
}

func main() {
	config := loadEnvironmentConfig()
	if err := parseCommandLineFlags(&config, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	closeLog := initializeLogger(config.LogLevel, config.LogFile)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping LeadPipe", "state_dir", config.StateDir, "dsn_type", store.DetectDSNType(config.DBDSN),
		"api_addr", config.APIAddr, "dry_run", config.DryRun)
	if err := run(ctx, config); err != nil {
		slog.Error("LeadPipe failed to run", "error", err)
		closeLog()
		os.Exit(1)
	}
	slog.Info("LeadPipe exited successfully")
}

// initializeLogger installs the default slog logger. When logFile is set, output is also
// written to a rotating file. The returned func closes that file.
func initializeLogger(level, logFile string) func() {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	var out io.Writer = os.Stdout
	closer := func() {}
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = func() { rotating.Close() }
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})))
	return closer
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir: os.Getenv("LEADPIPE_STATE_DIR"),
		DBDSN:    os.Getenv("DATABASE_URL"),
		APIAddr:  os.Getenv("API_ADDR"),
		LogLevel: os.Getenv("LOG_LEVEL"),
		LogFile:  os.Getenv("LOG_FILE"),
		DryRun:   util.ParseBoolEnv("DRY_RUN", false),

		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		ValidateSignature: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		WebhookBaseURL:    strings.TrimRight(os.Getenv("WEBHOOK_BASE_URL"), "/"),
		AllowedOrigins:    util.ParseListEnv("CORS_ALLOWED_ORIGINS"),

		AlbiwareAPIKey:  os.Getenv("ALBIWARE_API_KEY"),
		AlbiwareBaseURL: os.Getenv("ALBIWARE_BASE_URL"),

		TechnicianPhone: os.Getenv("TECHNICIAN_PHONE"),
		TechnicianName:  os.Getenv("TECHNICIAN_NAME"),
		StaffPhones:     util.ParseListEnv("STAFF_PHONES"),

		FollowUpDelay:        util.ParseDurationEnv("FOLLOW_UP_DELAY", lifecycle.DefaultFollowUpDelay),
		TaskSyncInterval:     util.ParseDurationEnv("TASK_SYNC_INTERVAL", DefaultTaskSyncInterval),
		ContactSyncInterval:  util.ParseDurationEnv("CONTACT_SYNC_INTERVAL", DefaultContactSyncInterval),
		ProjectSweepInterval: util.ParseDurationEnv("PROJECT_SWEEP_INTERVAL", DefaultProjectSweepInterval),
		ReminderInterval:     util.ParseDurationEnv("REMINDER_INTERVAL", lifecycle.DefaultReminderInterval),
		MaxReminders:         util.ParseIntEnv("MAX_REMINDERS", lifecycle.DefaultMaxReminders),

		ReminderHoursBeforeDue: util.ParseIntEnv("REMINDER_HOURS_BEFORE_DUE", int(tasks.DefaultReminderBefore/time.Hour)),
		MaxTaskReminders:       util.ParseIntEnv("MAX_TASK_REMINDERS", tasks.DefaultMaxReminders),

		AutomationURL:     os.Getenv("AUTOMATION_URL"),
		AutomationToken:   os.Getenv("AUTOMATION_TOKEN"),
		AutomationTimeout: util.ParseDurationEnv("AUTOMATION_TIMEOUT", automation.DefaultTimeout),
		ProjectRetryBase:  util.ParseDurationEnv("PROJECT_RETRY_BASE", 0),

		RapidAPIKey:        os.Getenv("RAPIDAPI_KEY"),
		LaunchDarklySDKKey: os.Getenv("LAUNCHDARKLY_SDK_KEY"),

		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: os.Getenv("SENDGRID_FROM_EMAIL"),
		OfficeEmail:       os.Getenv("OFFICE_EMAIL"),
		SendGridSandbox:   util.ParseBoolEnv("SENDGRID_SANDBOX", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return config
}

// parseCommandLineFlags overrides config with command line arguments. An unset database DSN
// defaults to SQLite in the (possibly overridden) state directory.
func parseCommandLineFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("LeadPipe", flag.ContinueOnError)
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for LeadPipe data (overrides $LEADPIPE_STATE_DIR)")
	fs.StringVar(&config.DBDSN, "db-dsn", config.DBDSN, "database DSN, a SQLite path or a Postgres URL (overrides $DATABASE_URL)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)")
	fs.StringVar(&config.LogFile, "log-file", config.LogFile, "also write logs to this rotating file (overrides $LOG_FILE)")
	fs.BoolVar(&config.DryRun, "dry-run", config.DryRun, "record outbound SMS instead of sending them (overrides $DRY_RUN)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if config.DBDSN == "" {
		config.DBDSN = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	return nil
}

// run wires every component and blocks until ctx is cancelled or the HTTP server fails.
func run(ctx context.Context, config Config) error {
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(config.DBDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	sender, err := buildSMSSender(config)
	if err != nil {
		return err
	}
	msgService := messaging.NewSMSService(sender)

	mgr, err := lifecycle.NewManager(st, msgService, buildManagerOptions(config)...)
	if err != nil {
		return fmt.Errorf("lifecycle manager: %w", err)
	}

	flags, closeFlags := buildFeatureFlags(config)
	defer closeFlags()

	trigger, err := buildTrigger(config)
	if err != nil {
		return err
	}
	var inner propertylookup.Lookup
	if config.RapidAPIKey != "" {
		client, err := propertylookup.NewRapidAPIClient(propertylookup.WithAPIKey(config.RapidAPIKey))
		if err != nil {
			return fmt.Errorf("property lookup: %w", err)
		}
		inner = client
	}
	notifier, err := buildNotifier(config)
	if err != nil {
		return err
	}
	sweeper := scheduler.NewSweeper(st, mgr, trigger, propertylookup.NewGated(flags, inner), notifier,
		buildSweepOptions(config)...)

	var crmClient *albiware.Client
	if config.AlbiwareAPIKey != "" {
		crmClient, err = albiware.NewClient(buildAlbiwareOptions(config)...)
		if err != nil {
			return fmt.Errorf("albiware client: %w", err)
		}
	} else {
		slog.Warn("ALBIWARE_API_KEY not set; contact and task sync are disabled")
	}

	sched := scheduler.NewScheduler(ctx)
	if err := registerJobs(sched, config, mgr, sweeper, crmClient, st); err != nil {
		sched.Stop()
		return err
	}
	sched.RunAll()

	server := api.NewServer(st, mgr, buildAPIOptions(config, sender)...)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Error("HTTP server shutdown failed", "error", shutdownErr)
	}
	sched.Stop()
	return err
}

func registerJobs(sched *scheduler.Scheduler, config Config, mgr *lifecycle.Manager, sweeper *scheduler.Sweeper,
	crmClient *albiware.Client, st store.Store) error {
	if crmClient != nil {
		syncer := tasks.NewSyncer(st, crmClient, mgr, config.StaffPhones, buildSyncerOptions(config)...)
		if err := sched.Every(jobTaskSync, config.TaskSyncInterval, withTimeout(config.TaskSyncInterval, syncer.Run)); err != nil {
			return err
		}
	}
	contactSync := func(ctx context.Context) error {
		var errs []error
		if crmClient != nil {
			if _, err := mgr.SyncContacts(ctx, crmClient); err != nil {
				errs = append(errs, err)
			}
		}
		if _, _, err := mgr.DispatchDue(ctx, time.Now()); err != nil {
			errs = append(errs, err)
		}
		if _, err := mgr.RemindStalled(ctx, time.Now()); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	if err := sched.Every(jobContactSync, config.ContactSyncInterval, withTimeout(config.ContactSyncInterval, contactSync)); err != nil {
		return err
	}
	sweep := func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	}
	return sched.Every(jobProjectSweep, config.ProjectSweepInterval, withTimeout(config.ProjectSweepInterval, sweep))
}

// withTimeout bounds one run of a job by its interval.
func withTimeout(d time.Duration, fn scheduler.JobFunc) scheduler.JobFunc {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return fn(ctx)
	}
}

// openStore opens the backend selected by the DSN.
func openStore(dsn string) (store.Store, error) {
	opts := buildStoreOptions(dsn)
	if store.DetectDSNType(dsn) == "postgres" {
		st, err := store.NewPostgresStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	}
	st, err := store.NewSQLiteStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return st, nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(dsn string) []store.Option {
	if store.DetectDSNType(dsn) == "postgres" {
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// buildSMSSender returns the Twilio client, or a recording mock in dry-run mode.
func buildSMSSender(config Config) (twiliosms.Sender, error) {
	if config.DryRun {
		slog.Warn("Dry-run mode: outbound SMS are recorded, not sent")
		return twiliosms.NewMockClient(), nil
	}
	client, err := twiliosms.NewClient(buildTwilioOptions(config)...)
	if err != nil {
		return nil, fmt.Errorf("twilio client: %w", err)
	}
	return client, nil
}

func buildTwilioOptions(config Config) []twiliosms.Option {
	var opts []twiliosms.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliosms.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliosms.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFromNumber != "" {
		opts = append(opts, twiliosms.WithFromNumber(config.TwilioFromNumber))
	}
	return opts
}

func buildAlbiwareOptions(config Config) []albiware.Option {
	opts := []albiware.Option{albiware.WithAPIKey(config.AlbiwareAPIKey)}
	if config.AlbiwareBaseURL != "" {
		opts = append(opts, albiware.WithBaseURL(config.AlbiwareBaseURL))
	}
	return opts
}

func buildManagerOptions(config Config) []lifecycle.Option {
	return []lifecycle.Option{
		lifecycle.WithTechnician(config.TechnicianPhone, config.TechnicianName),
		lifecycle.WithFollowUpDelay(config.FollowUpDelay),
		lifecycle.WithReminders(config.ReminderInterval, config.MaxReminders),
	}
}

func buildSyncerOptions(config Config) []tasks.Option {
	return []tasks.Option{
		tasks.WithReminderBefore(time.Duration(config.ReminderHoursBeforeDue) * time.Hour),
		tasks.WithMaxReminders(config.MaxTaskReminders),
	}
}

func buildSweepOptions(config Config) []scheduler.SweepOption {
	return []scheduler.SweepOption{
		scheduler.WithAutomationTimeout(config.AutomationTimeout),
		scheduler.WithRetryBase(config.ProjectRetryBase),
	}
}

func buildTrigger(config Config) (automation.Trigger, error) {
	if config.AutomationURL == "" {
		slog.Warn("AUTOMATION_URL not set; project creation attempts will fail and be retried")
		return automation.Disabled{}, nil
	}
	trigger, err := automation.NewHTTPTrigger(
		automation.WithURL(config.AutomationURL),
		automation.WithToken(config.AutomationToken),
		automation.WithTimeout(config.AutomationTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("automation trigger: %w", err)
	}
	return trigger, nil
}

// buildFeatureFlags prefers LaunchDarkly and falls back to environment flags.
func buildFeatureFlags(config Config) (featureflag.Provider, func()) {
	if config.LaunchDarklySDKKey == "" {
		return featureflag.EnvProvider{}, func() {}
	}
	ld, err := featureflag.NewLDProvider(config.LaunchDarklySDKKey, featureflag.DefaultLDConnectionTimeout, featureflag.EnvProvider{})
	if err != nil {
		slog.Warn("LaunchDarkly unavailable, using environment flags", "error", err)
		return featureflag.EnvProvider{}, func() {}
	}
	return ld, func() {
		if err := ld.Close(); err != nil {
			slog.Warn("LaunchDarkly close failed", "error", err)
		}
	}
}

func buildNotifier(config Config) (notify.Notifier, error) {
	if config.SendGridAPIKey == "" {
		return notify.Nop{}, nil
	}
	n, err := notify.NewSendGridNotifier(
		notify.WithAPIKey(config.SendGridAPIKey),
		notify.WithFrom(config.SendGridFromEmail, "LeadPipe"),
		notify.WithOfficeEmail(config.OfficeEmail),
		notify.WithSandbox(config.SendGridSandbox),
	)
	if err != nil {
		return nil, fmt.Errorf("sendgrid notifier: %w", err)
	}
	return n, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, sender twiliosms.Sender) []api.Option {
	opts := []api.Option{api.WithAddr(config.APIAddr)}
	if len(config.AllowedOrigins) > 0 {
		opts = append(opts, api.WithAllowedOrigins(config.AllowedOrigins...))
	}
	if config.ValidateSignature {
		if v, ok := sender.(api.SignatureValidator); ok {
			opts = append(opts, api.WithSignatureValidation(v, config.WebhookBaseURL))
		} else {
			slog.Warn("Signature validation requested but the SMS sender cannot validate; skipping")
		}
	}
	return opts
}
