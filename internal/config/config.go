// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/realtime-post-scraper/internal/catalog"
	"github.com/JakeFAU/realtime-post-scraper/internal/classifier"
	"github.com/JakeFAU/realtime-post-scraper/internal/handoff"
	"github.com/JakeFAU/realtime-post-scraper/internal/render"
	"github.com/JakeFAU/realtime-post-scraper/internal/storage/local"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageLocal    = "local"
	StorageGCS      = "gcs"
	StoragePostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Render     RenderConfig     `mapstructure:"render"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Verify     VerifyConfig     `mapstructure:"verify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int    `mapstructure:"port"`
	CORSOrigin             string `mapstructure:"cors_origin"`
	RequestTimeoutSeconds  int    `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// RenderConfig configures page rendering and the best-effort waits around it.
type RenderConfig struct {
	Strategy               string   `mapstructure:"strategy"`
	PageLoadTimeoutSeconds int      `mapstructure:"page_load_timeout_seconds"`
	SettleMs               int      `mapstructure:"settle_ms"`
	BlockedWaitMs          int      `mapstructure:"blocked_wait_ms"`
	ScrollPauseMs          int      `mapstructure:"scroll_pause_ms"`
	TopPauseMs             int      `mapstructure:"top_pause_ms"`
	MaxParallel            int      `mapstructure:"max_parallel"`
	UserAgent              string   `mapstructure:"user_agent"`
	PromotionThreshold     int      `mapstructure:"promotion_threshold"`
	BlockedMarkers         []string `mapstructure:"blocked_markers"`
}

// ClassifierConfig lists the domain buckets. They must be disjoint.
type ClassifierConfig struct {
	SocialDomains []string `mapstructure:"social_domains"`
	NewsDomains   []string `mapstructure:"news_domains"`
}

// CatalogConfig extends the built-in selector catalog.
type CatalogConfig struct {
	Extensions []catalog.Extension `mapstructure:"extensions"`
}

// StorageConfig selects and configures the result store.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Local    local.Config   `mapstructure:"local"`
	GCS      GCSConfig      `mapstructure:"gcs"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// GCSConfig configures the GCS result store.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PostgresConfig controls access to the results database.
type PostgresConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// DispatchConfig governs handoff and the in-process fallback.
type DispatchConfig struct {
	Handoff               string `mapstructure:"handoff"`
	QueueDepth            int    `mapstructure:"queue_depth"`
	Concurrency           int    `mapstructure:"concurrency"`
	FallbackMaxParallel   int    `mapstructure:"fallback_max_parallel"`
	HandoffTimeoutSeconds int    `mapstructure:"handoff_timeout_seconds"`
	WorkerURL             string `mapstructure:"worker_url"`
}

// PubSubConfig names the topic jobs are published to.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// NotifyConfig configures result delivery.
type NotifyConfig struct {
	WebhookURL     string `mapstructure:"webhook_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// VerifyConfig configures the verification endpoint.
type VerifyConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig names the service in traces.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "SCRAPER_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 120)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("render.strategy", string(render.StrategyHeadless))
	v.SetDefault("render.page_load_timeout_seconds", 30)
	v.SetDefault("render.settle_ms", 3000)
	v.SetDefault("render.blocked_wait_ms", 10000)
	v.SetDefault("render.scroll_pause_ms", 3000)
	v.SetDefault("render.top_pause_ms", 2000)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) "+
		"Chrome/124.0 Safari/537.36")
	v.SetDefault("render.promotion_threshold", 2048)
	v.SetDefault("render.blocked_markers", []string{})
	v.SetDefault("classifier.social_domains", classifier.DefaultSocialDomains)
	v.SetDefault("classifier.news_domains", classifier.DefaultNewsDomains)
	v.SetDefault("storage.backend", StorageMemory)
	v.SetDefault("storage.local.base_dir", "results")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "results")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "scrape_results")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.max_conn_lifetime_minutes", 30)
	v.SetDefault("dispatch.handoff", string(handoff.BackendLocal))
	v.SetDefault("dispatch.queue_depth", 64)
	v.SetDefault("dispatch.concurrency", 2)
	v.SetDefault("dispatch.fallback_max_parallel", 4)
	v.SetDefault("dispatch.handoff_timeout_seconds", 5)
	v.SetDefault("dispatch.worker_url", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout_seconds", 30)
	v.SetDefault("verify.endpoint", "")
	v.SetDefault("verify.timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "postscraper")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Render.validate(); err != nil {
		return err
	}
	if _, err := classifier.New(c.Classifier.SocialDomains, c.Classifier.NewsDomains); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if _, err := catalog.FromConfig(c.Catalog.Extensions); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if c.Notify.TimeoutSeconds <= 0 {
		return errors.New("notify.timeout_seconds must be > 0")
	}
	if c.Verify.TimeoutSeconds <= 0 {
		return errors.New("verify.timeout_seconds must be > 0")
	}
	return nil
}

func (r RenderConfig) validate() error {
	switch render.Strategy(r.Strategy) {
	case render.StrategyHeadless, render.StrategyStatic, render.StrategyAuto:
	default:
		return fmt.Errorf("render.strategy %q is not one of headless, static, auto", r.Strategy)
	}
	if r.PageLoadTimeoutSeconds <= 0 {
		return errors.New("render.page_load_timeout_seconds must be > 0")
	}
	if r.SettleMs < 0 || r.BlockedWaitMs < 0 || r.ScrollPauseMs < 0 || r.TopPauseMs < 0 {
		return errors.New("render wait durations must not be negative")
	}
	if r.MaxParallel < 0 {
		return errors.New("render.max_parallel must not be negative")
	}
	return nil
}

func (s StorageConfig) validate() error {
	switch s.Backend {
	case StorageMemory:
	case StorageLocal:
		if s.Local.BaseDir == "" {
			return errors.New("storage.local.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if s.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket must be set for the gcs backend")
		}
	case StoragePostgres:
		if s.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, local, gcs, postgres", s.Backend)
	}
	return nil
}

func (c Config) validateDispatch() error {
	d := c.Dispatch
	switch handoff.Backend(d.Handoff) {
	case handoff.BackendLocal, handoff.BackendNone:
	case handoff.BackendPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return errors.New("pubsub.project_id and pubsub.topic_name must be set for the pubsub handoff")
		}
	case handoff.BackendHTTP:
		if d.WorkerURL == "" {
			return errors.New("dispatch.worker_url must be set for the http handoff")
		}
	default:
		return fmt.Errorf("dispatch.handoff %q is not one of local, pubsub, http, none", d.Handoff)
	}
	if d.Concurrency <= 0 {
		return errors.New("dispatch.concurrency must be > 0")
	}
	if d.QueueDepth < 0 {
		return errors.New("dispatch.queue_depth must not be negative")
	}
	if d.FallbackMaxParallel <= 0 {
		return errors.New("dispatch.fallback_max_parallel must be > 0")
	}
	if d.HandoffTimeoutSeconds <= 0 {
		return errors.New("dispatch.handoff_timeout_seconds must be > 0")
	}
	return nil
}

// PageLoadTimeout is the hard render timeout.
func (r RenderConfig) PageLoadTimeout() time.Duration {
	return time.Duration(r.PageLoadTimeoutSeconds) * time.Second
}

// Settle is the post-load settle delay.
func (r RenderConfig) Settle() time.Duration { return ms(r.SettleMs) }

// BlockedWait is the wait after a login wall is detected.
func (r RenderConfig) BlockedWait() time.Duration { return ms(r.BlockedWaitMs) }

// ScrollPause is the pause after scrolling to the bottom.
func (r RenderConfig) ScrollPause() time.Duration { return ms(r.ScrollPauseMs) }

// TopPause is the pause after scrolling back to the top.
func (r RenderConfig) TopPause() time.Duration { return ms(r.TopPauseMs) }

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// HandoffTimeout bounds scheduling a job on the out-of-band worker.
func (d DispatchConfig) HandoffTimeout() time.Duration { return seconds(d.HandoffTimeoutSeconds) }

// Timeout bounds one webhook post.
func (n NotifyConfig) Timeout() time.Duration { return seconds(n.TimeoutSeconds) }

// Timeout bounds one verification call.
func (v VerifyConfig) Timeout() time.Duration { return seconds(v.TimeoutSeconds) }

// RequestTimeout bounds short API handlers.
func (s ServerConfig) RequestTimeout() time.Duration { return seconds(s.RequestTimeoutSeconds) }

// ShutdownTimeout bounds graceful shutdown, including the fallback drain.
func (s ServerConfig) ShutdownTimeout() time.Duration { return seconds(s.ShutdownTimeoutSeconds) }

// MaxConnLifetime is the pool's connection lifetime.
func (p PostgresConfig) MaxConnLifetime() time.Duration {
	return time.Duration(p.MaxConnLifetimeMinutes) * time.Minute
}
