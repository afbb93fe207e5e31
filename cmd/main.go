package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/rs/zerolog/log"

	"voice-order-logger/internal/config"
	"voice-order-logger/internal/engine"
	enginegoogle "voice-order-logger/internal/engine/google"
	enginemock "voice-order-logger/internal/engine/mock"
	"voice-order-logger/internal/events"
	"voice-order-logger/internal/httpapi"
	"voice-order-logger/internal/normalize"
	"voice-order-logger/internal/observability"
	"voice-order-logger/internal/observability/logging"
	"voice-order-logger/internal/orders"
	"voice-order-logger/internal/session"
)

func main() {
	cfg := config.Default()

	fs := ff.NewFlagSet("voice-order-logger")
	var (
		httpAddr    = fs.StringLong("http-addr", cfg.Service.HTTPAddr, "API listen address")
		obsAddr     = fs.StringLong("obs-addr", cfg.Service.ObservabilityAddr, "Metrics/health listen address")
		provider    = fs.StringLong("engine", cfg.Engine.Provider, "Recognition engine: 'mock', 'google' or 'none'")
		language    = fs.StringLong("language", cfg.Engine.LanguageCode, "Recognition language code")
		sampleRate  = fs.IntLong("sample-rate", cfg.Engine.SampleRateHz, "Audio sample rate in Hz")
		geminiKey   = fs.StringLong("gemini-key", "", "Gemini API key (or set VOICE_ORDER_GEMINI_KEY)")
		geminiModel = fs.StringLong("gemini-model", cfg.Normalize.GeminiModel, "Gemini model name")
		storePath   = fs.StringLong("db", cfg.Store.Path, "Order database file path")
		apiBaseURL  = fs.StringLong("store-url", "", "Order store API base URL (defaults to own listener)")
		kafkaOn     = fs.BoolLong("kafka", "Enable Kafka event publishing")
		brokers     = fs.StringLong("kafka-brokers", "", "Comma-separated Kafka broker addresses")
		keepAlive   = fs.DurationLong("keep-alive", cfg.Session.KeepAliveInterval, "Forced engine restart interval")
		displayTTL  = fs.DurationLong("display-timeout", cfg.Session.DisplayTimeout, "Live display freshness timeout")
		dedupWindow = fs.DurationLong("dedup-window", cfg.Session.DedupWindow, "Duplicate utterance suppression window")
		logLevel    = fs.StringLong("log-level", cfg.Observability.LogLevel, "Log level")
		logFormat   = fs.StringLong("log-format", cfg.Observability.LogFormat, "Log format: 'json' or 'console'")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("VOICE_ORDER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg.Service.HTTPAddr = *httpAddr
	cfg.Service.ObservabilityAddr = *obsAddr
	cfg.Engine.Provider = *provider
	cfg.Engine.LanguageCode = *language
	cfg.Engine.SampleRateHz = *sampleRate
	cfg.Normalize.GeminiAPIKey = *geminiKey
	cfg.Normalize.GeminiModel = *geminiModel
	cfg.Store.Path = *storePath
	cfg.Kafka.Enabled = *kafkaOn
	if *brokers != "" {
		cfg.Kafka.Brokers = strings.Split(*brokers, ",")
	}
	cfg.Session.KeepAliveInterval = *keepAlive
	cfg.Session.DisplayTimeout = *displayTTL
	cfg.Session.DedupWindow = *dedupWindow
	cfg.Observability.LogLevel = *logLevel
	cfg.Observability.LogFormat = *logFormat
	if *apiBaseURL != "" {
		cfg.Store.APIBaseURL = *apiBaseURL
	} else {
		cfg.Store.APIBaseURL = listenURL(cfg.Service.HTTPAddr)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := orders.OpenStore(ctx, cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("Failed to open order store")
	}
	defer store.Close()

	gate := buildGate(ctx, cfg)

	publisher := events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicRecorded: cfg.Kafka.TopicRecorded,
		TopicRefresh:  cfg.Kafka.TopicRefresh,
		Principal:     cfg.Kafka.Principal,
	})
	defer publisher.Close()

	recorder := orders.NewRecorder(cfg.Store.APIBaseURL, publisher)

	sess := session.New(session.Config{
		KeepAliveInterval: cfg.Session.KeepAliveInterval,
		DisplayTimeout:    cfg.Session.DisplayTimeout,
		ConfirmTimeout:    2 * time.Second,
		DedupWindow:       cfg.Session.DedupWindow,
	}, buildFactory(ctx, cfg), gate, recorder)
	defer sess.Close()

	obsServer := observability.NewServer(cfg.Service.ObservabilityAddr)
	obsServer.Start()

	apiServer := &http.Server{
		Addr:         cfg.Service.HTTPAddr,
		Handler:      httpapi.NewRouter(store, gate, sess),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Service.HTTPAddr).Msg("Voice order logger started")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("API server error")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess.Close()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown error")
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown error")
	}
}

// buildGate wires the normalization gate, degrading to pass-through
// when no Gemini key is configured.
func buildGate(ctx context.Context, cfg *config.Config) *normalize.Gate {
	if cfg.Normalize.GeminiAPIKey == "" {
		log.Info().Msg("No Gemini API key, normalization runs in pass-through mode")
		return normalize.NewGate(nil)
	}
	corrector, err := normalize.NewGeminiCorrector(ctx, cfg.Normalize.GeminiAPIKey, cfg.Normalize.GeminiModel)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini corrector unavailable, falling back to pass-through")
		return normalize.NewGate(nil)
	}
	return normalize.NewGate(corrector)
}

// buildFactory selects the recognition engine. The google engine reads
// LINEAR16 audio from stdin; 'none' models an environment without
// speech capability.
func buildFactory(ctx context.Context, cfg *config.Config) engine.Factory {
	switch cfg.Engine.Provider {
	case "google":
		return enginegoogle.NewFactory(ctx, enginegoogle.Config{
			LanguageCode:   cfg.Engine.LanguageCode,
			SampleRateHz:   int32(cfg.Engine.SampleRateHz),
			InterimResults: true,
		}, os.Stdin)
	case "none":
		return engine.FactoryFunc(func() (engine.Engine, error) {
			return nil, engine.ErrEngineUnavailable
		})
	default:
		return enginemock.NewFactory(enginemock.DefaultConfig())
	}
}

// listenURL turns a listen address like ":8080" into a base URL the
// recorder can POST to.
func listenURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
