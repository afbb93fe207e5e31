// Package config owns the service configuration, its defaults, and
// validation. Flag and environment binding happens in cmd/main.go.
package config

import (
	"fmt"
	"time"
)

// Service holds identity and listen addresses.
type Service struct {
	Name              string
	HTTPAddr          string
	ObservabilityAddr string
}

// Engine selects and tunes the recognition engine.
type Engine struct {
	Provider      string // "mock", "google", or "none"
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
}

// Normalize configures the LLM text corrector. An empty APIKey
// disables correction; the gate then passes text through.
type Normalize struct {
	GeminiAPIKey string
	GeminiModel  string
}

// Store configures order persistence. APIBaseURL is where the recorder
// POSTs records; normally the service's own HTTP address.
type Store struct {
	Path       string
	APIBaseURL string
}

// Kafka configures event publishing.
type Kafka struct {
	Enabled       bool
	Brokers       []string
	TopicRecorded string
	TopicRefresh  string
	Principal     string
}

// Session holds capture session timings.
type Session struct {
	KeepAliveInterval time.Duration
	DisplayTimeout    time.Duration
	DedupWindow       time.Duration
}

// Observability configures logging output.
type Observability struct {
	LogLevel  string
	LogFormat string // "json" or "console"
}

type Config struct {
	Service       Service
	Engine        Engine
	Normalize     Normalize
	Store         Store
	Kafka         Kafka
	Session       Session
	Observability Observability
}

// Default returns the configuration used when no flag or environment
// override is present.
func Default() *Config {
	return &Config{
		Service: Service{
			Name:              "voice-order-logger",
			HTTPAddr:          ":8080",
			ObservabilityAddr: ":9090",
		},
		Engine: Engine{
			Provider:      "mock",
			LanguageCode:  "zh-TW",
			SampleRateHz:  16000,
			AudioEncoding: "LINEAR16",
		},
		Normalize: Normalize{
			GeminiModel: "gemini-1.5-flash",
		},
		Store: Store{
			Path:       "data/orders.db",
			APIBaseURL: "http://localhost:8080",
		},
		Kafka: Kafka{
			Enabled:       false,
			TopicRecorded: "orders.recorded",
			TopicRefresh:  "orders.refresh",
			Principal:     "voice-order-logger",
		},
		Session: Session{
			KeepAliveInterval: 10 * time.Minute,
			DisplayTimeout:    5 * time.Second,
			DedupWindow:       3 * time.Second,
		},
		Observability: Observability{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Engine.Provider {
	case "mock", "google", "none":
	default:
		return fmt.Errorf("unknown engine provider %q", c.Engine.Provider)
	}
	if c.Engine.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.Engine.SampleRateHz)
	}
	if c.Service.HTTPAddr == "" {
		return fmt.Errorf("http listen address must not be empty")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.Store.APIBaseURL == "" {
		return fmt.Errorf("store api base url must not be empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	if c.Session.KeepAliveInterval <= 0 {
		return fmt.Errorf("keep-alive interval must be positive, got %v", c.Session.KeepAliveInterval)
	}
	if c.Session.DisplayTimeout <= 0 {
		return fmt.Errorf("display timeout must be positive, got %v", c.Session.DisplayTimeout)
	}
	if c.Session.DedupWindow < 0 {
		return fmt.Errorf("dedup window must not be negative, got %v", c.Session.DedupWindow)
	}
	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Observability.LogFormat)
	}
	return nil
}
