package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/BTreeMap/MentionPipe/internal/api"
	"github.com/BTreeMap/MentionPipe/internal/facts"
	"github.com/BTreeMap/MentionPipe/internal/genai"
	"github.com/BTreeMap/MentionPipe/internal/lockfile"
	"github.com/BTreeMap/MentionPipe/internal/oauth"
	"github.com/BTreeMap/MentionPipe/internal/poller"
	"github.com/BTreeMap/MentionPipe/internal/scheduler"
	"github.com/BTreeMap/MentionPipe/internal/store"
	"github.com/BTreeMap/MentionPipe/internal/twitter"
	"github.com/BTreeMap/MentionPipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for MentionPipe state data
	DefaultStateDir = "/var/lib/mentionpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "mentionpipe.db"
	// identityRetryInterval paces bot-identity resolution before the first
	// authorization has completed.
	identityRetryInterval = 30 * time.Second
)

// Config holds environment configuration
type Config struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	BearerToken     string
	UserID          string
	ChatbotURL      string
	ChatbotID       string
	DatabaseURL     string
	StateDir        string
	APIAddr         string
	PostSchedule    string
	PollInterval    time.Duration
	BackoffInterval time.Duration
	Debug           bool
}

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	flags := parseCommandLineFlags(config)

	if *flags.dbDSN == "" {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}

	// One instance per state directory: a second poller would race on the
	// cursor and on credential refresh.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping MentionPipe", "state_dir", *flags.stateDir, "api_addr", *flags.apiAddr)
	if err := run(config, flags); err != nil {
		slog.Error("MentionPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("MentionPipe exited successfully")
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		ClientID:        os.Getenv("TWITTER_CLIENT_ID"),
		ClientSecret:    os.Getenv("TWITTER_CLIENT_SECRET"),
		RedirectURI:     os.Getenv("TWITTER_REDIRECT_URI"),
		BearerToken:     os.Getenv("TWITTER_BEARER_TOKEN"),
		UserID:          os.Getenv("TWITTER_USER_ID"),
		ChatbotURL:      os.Getenv("CHATBOT_URL"),
		ChatbotID:       os.Getenv("CHATBOT_ID"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.GetenvDefault("MENTIONPIPE_STATE_DIR", DefaultStateDir),
		APIAddr:         util.GetenvDefault("API_ADDR", api.DefaultAddr),
		PostSchedule:    os.Getenv("POST_SCHEDULE"),
		PollInterval:    util.ParseDurationEnv("POLL_INTERVAL", poller.DefaultPollInterval),
		BackoffInterval: util.ParseDurationEnv("BACKOFF_INTERVAL", poller.DefaultBackoffInterval),
		Debug:           util.ParseBoolEnv("MENTIONPIPE_DEBUG", false),
	}
	return config
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	userID   *string
}

// parseCommandLineFlags parses command line flags with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir: flag.String("state-dir", config.StateDir, "state directory for lock and SQLite database"),
		dbDSN:    flag.String("db-dsn", config.DatabaseURL, "database DSN (postgres:// URL or SQLite file path)"),
		apiAddr:  flag.String("api-addr", config.APIAddr, "HTTP listen address"),
		userID:   flag.String("user-id", config.UserID, "bot user ID (resolved via the platform when empty)"),
	}
	flag.Parse()
	return flags
}

// run wires the modules together and blocks until shutdown.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	creds := store.NewCredentialStore(st)
	cursors := store.NewCursorStore(st)

	coord, err := oauth.NewCoordinator(creds, config.ClientID, config.ClientSecret, config.RedirectURI)
	if err != nil {
		return err
	}

	credSource := oauth.NewStoreSource(creds, coord, config.BearerToken)
	platform := twitter.NewClient(credSource)
	generator, err := buildGenerator(config)
	if err != nil {
		return err
	}

	factSource := facts.NewClient(os.Getenv("FACTS_URL"))
	server := api.NewServer(coord, creds, cursors,
		api.WithAddr(*flags.apiAddr),
		api.WithPostAuthHook(func(ctx context.Context) {
			postFact(ctx, factSource, platform)
		}),
	)

	var sched *scheduler.Scheduler
	if config.PostSchedule != "" {
		sched = scheduler.NewScheduler()
		defer sched.Stop()
		err := sched.AddJob(config.PostSchedule, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			postFact(jobCtx, factSource, platform)
		})
		if err != nil {
			return err
		}
		slog.Info("Scheduled standalone posts", "schedule", config.PostSchedule)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			errCh <- err
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		userID, ok := resolveBotIdentity(ctx, *flags.userID, platform)
		if !ok {
			return
		}
		loop := poller.NewLoop(
			poller.NewPoller(platform, userID),
			generator,
			poller.NewDispatcher(platform),
			cursors,
			poller.WithPollInterval(config.PollInterval),
			poller.WithBackoffInterval(config.BackoffInterval),
		)
		if err := loop.Run(ctx); err != nil {
			errCh <- err
			stop()
		}
	}()

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// buildGenerator selects the completion backend: the hosted chatbot endpoint
// when configured, the OpenAI API otherwise.
func buildGenerator(config Config) (genai.ClientInterface, error) {
	if config.ChatbotURL != "" {
		slog.Info("Using chatbot completion backend", "endpoint", config.ChatbotURL)
		return genai.NewChatbotClient(config.ChatbotURL, config.ChatbotID)
	}
	slog.Info("Using OpenAI completion backend")
	return genai.NewOpenAIClient()
}

// resolveBotIdentity returns the bot user ID whose mentions are polled.
// When not configured it is resolved through the platform, retrying until a
// credential becomes available (the first authorization may not have
// happened yet). Returns false when ctx is cancelled first.
func resolveBotIdentity(ctx context.Context, configured string, platform *twitter.Client) (string, bool) {
	if configured != "" {
		return configured, true
	}
	for {
		id, handle, err := platform.Me(ctx)
		if err == nil {
			slog.Info("Resolved bot identity", "user_id", id, "handle", handle)
			return id, true
		}
		slog.Warn("Bot identity not yet resolvable, retrying", "error", err, "retry_in", identityRetryInterval)
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(identityRetryInterval):
		}
	}
}

// postFact posts a standalone fact tweet. Failures are logged only; posting
// is best effort.
func postFact(ctx context.Context, source *facts.Client, platform *twitter.Client) {
	fact, err := source.Fact(ctx)
	if err != nil {
		slog.Error("Failed to fetch fact for standalone post", "error", err)
		return
	}
	if _, err := platform.PostTweet(ctx, fact); err != nil {
		slog.Error("Failed to post standalone fact", "error", err)
		return
	}
	slog.Info("Posted standalone fact")
}
