package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/session-engine/internal/agent"
	"github.com/snarg/session-engine/internal/api"
	"github.com/snarg/session-engine/internal/chathistory"
	"github.com/snarg/session-engine/internal/chatstore"
	"github.com/snarg/session-engine/internal/config"
	"github.com/snarg/session-engine/internal/eventbus"
	"github.com/snarg/session-engine/internal/hardware"
	"github.com/snarg/session-engine/internal/lifecycle"
	"github.com/snarg/session-engine/internal/location"
	"github.com/snarg/session-engine/internal/mqttclient"
	"github.com/snarg/session-engine/internal/notifications"
	"github.com/snarg/session-engine/internal/photostore"
	"github.com/snarg/session-engine/internal/pipeline"
	"github.com/snarg/session-engine/internal/registry"
	"github.com/snarg/session-engine/internal/settingsstore"
	"github.com/snarg/session-engine/internal/user"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL connection URL (overrides DATABASE_URL)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-url", "", "MQTT broker URL (overrides MQTT_BROKER_URL)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("session-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable chat history (optional — in-memory chat history works without it).
	var chatStore *chatstore.Store
	var durable chathistory.DurableWriter
	if cfg.DatabaseURL != "" {
		csLog := log.With().Str("component", "chatstore").Logger()
		chatStore, err = chatstore.Connect(ctx, cfg.DatabaseURL, csLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to chat store database")
		}
		defer chatStore.Close()
		durable = chatStore.AsDurableWriter()
		log.Info().Msg("durable chat history enabled")
	} else {
		log.Info().Msg("DATABASE_URL not set, chat history is in-memory only")
	}

	// Photo durability backend (optional — the in-memory recents ring works
	// without one, trading durability across restarts for simplicity).
	var photoBackend photostore.Backend
	switch cfg.PhotoBackend {
	case "none", "":
	case "local":
		photoBackend = photostore.NewLocalBackend(cfg.PhotoLocalDir)
	case "s3":
		s3, err := photostore.NewS3Backend(photostore.S3Config{
			Bucket: cfg.PhotoS3Bucket,
			Region: cfg.PhotoS3Region,
			Prefix: cfg.PhotoS3Prefix,
		}, log.With().Str("component", "photostore-s3").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize S3 photo backend")
		}
		photoBackend = s3
	case "tiered":
		local := photostore.NewLocalBackend(cfg.PhotoLocalDir)
		s3, err := photostore.NewS3Backend(photostore.S3Config{
			Bucket: cfg.PhotoS3Bucket,
			Region: cfg.PhotoS3Region,
			Prefix: cfg.PhotoS3Prefix,
		}, log.With().Str("component", "photostore-s3").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize S3 photo backend")
		}
		photoBackend = photostore.NewTieredBackend(local, s3, 2, 500, log.With().Str("component", "photostore-tiered").Logger())
	default:
		log.Fatal().Str("backend", cfg.PhotoBackend).Msg("unknown PHOTO_BACKEND (valid: none, local, s3, tiered)")
	}
	log.Info().Str("backend", cfg.PhotoBackend).Msg("photo store initialized")

	settings, err := settingsstore.Open(cfg.SettingsFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open settings store")
	}
	defer settings.Close()

	// Agent (LLM) provider.
	agentProvider, err := agent.NewOpenAICompatibleProvider(agent.Config{
		Provider:    cfg.AgentProvider,
		APIKey:      cfg.AgentAPIKey,
		BaseURL:     cfg.AgentBaseURL,
		Model:       cfg.AgentModel,
		MaxTokens:   cfg.AgentMaxTokens,
		Temperature: float32(cfg.AgentTemperature),
		Deadline:    cfg.AgentDeadline,
	}, log.With().Str("component", "agent").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize agent provider")
	}

	bus := eventbus.New(eventbus.Options{Log: log})

	photos := photostore.New(photostore.Options{Backend: photoBackend, Log: log})
	locationMgr := location.New(location.Options{
		Geocoder: location.NewNominatimGeocoder("session-engine/" + version),
		Log:      log,
	})
	notificationsMgr := notifications.New(notifications.Options{})
	chatHistory := chathistory.New(chathistory.Options{Durable: durable})
	defer chatHistory.Close()

	stores := user.Stores{
		Photos:        photos,
		Location:      locationMgr,
		Notifications: notificationsMgr,
		ChatHistory:   chatHistory,
	}

	pl := pipeline.New(pipeline.Options{
		Bus:                bus,
		Agent:              agentProvider,
		Log:                log,
		ProcessingSoundURL: cfg.ProcessingSoundURL,
	})

	reg := registry.New(registry.Options{
		GracePeriod: cfg.GracePeriod,
		Log:         log,
		OnExpire:    lifecycle.OnExpire(bus),
		NewUser: func(userID string) *user.User {
			return user.New(user.Options{
				ID:             userID,
				Stores:         stores,
				Bus:            bus,
				SilenceTimeout: cfg.SilenceTimeout,
				Log:            log,
				OnQueryReady: func(u *user.User, query, speakerID string) {
					u.Enqueue(func() {
						runCtx, cancel := context.WithTimeout(context.Background(), pipeline.DefaultHardwareTimeout+cfg.AgentDeadline)
						defer cancel()
						pl.Run(runCtx, u, query, speakerID)
					})
				},
			})
		},
	})

	lc := lifecycle.New(lifecycle.Options{
		Registry:        reg,
		Bus:             bus,
		WelcomeSoundURL: cfg.WelcomeSoundURL,
		Log:             log,
	})

	// MQTT: the wearable host transport. Presence announcements drive the
	// lifecycle controller; each connected device gets its own per-user
	// MQTTSession subscribed to its own topic tree.
	mqttLog := log.With().Str("component", "mqtt").Logger()
	mqttClient, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Log:       mqttLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
	}
	defer mqttClient.Close()
	log.Info().Str("broker", cfg.MQTTBrokerURL).Str("client_id", cfg.MQTTClientID).Msg("mqtt connected")

	err = hardware.WatchPresence(mqttClient.Underlying(), hardware.PresenceHandlers{
		OnConnect: func(userID string, caps hardware.Capabilities) {
			sess, err := hardware.NewMQTTSession(hardware.MQTTSessionOptions{
				Client: mqttClient.Underlying(),
				UserID: userID,
				Caps:   caps,
				Log:    mqttLog,
			})
			if err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("failed to create hardware session")
				return
			}
			lc.OnSession(sess, userID)
		},
		OnDisconnect: func(userID string, reason string) {
			lc.OnStop(userID, reason)
		},
	}, mqttLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to presence topic")
	}

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:      cfg,
		Registry:    reg,
		Bus:         bus,
		ChatHistory: chatHistory,
		Settings:    settings,
		Photos:      photos,
		Agent:       agentProvider,
		ChatStore:   chatStore,
		MQTTClient:  mqttClient.Underlying(),
		Version:     fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
		StartTime:   startTime,
		Log:         httpLog,
	})

	if !cfg.AuthEnabled {
		log.Warn().Msg("AUTH_ENABLED=false — API authentication is disabled, all endpoints are open")
	} else if cfg.AuthTokenGenerated {
		log.Info().Str("token", cfg.AuthToken).Msg("AUTH_TOKEN auto-generated (set AUTH_TOKEN in .env for a persistent token)")
	} else {
		log.Info().Msg("AUTH_TOKEN loaded from configuration")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("listen", cfg.HTTPAddr).
		Str("version", version).
		Dur("startup_ms", time.Since(startTime)).
		Msg("session-engine ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("session-engine stopped")
}
