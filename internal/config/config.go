// Package config loads the pipeline configuration.
//
// Precedence, highest first: values set by the caller before Load is applied,
// the JSON config file (path from DATENSTROM_CONFIG, falling back to
// ./config.json), environment variables with the DATENSTROM_ prefix, and
// finally the defaults below. Unknown JSON keys are kept in Extra so
// experimental toggles survive a round trip without widening the struct.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvConfigPath points at the JSON config file.
const EnvConfigPath = "DATENSTROM_CONFIG"

const envPrefix = "DATENSTROM_"

// Config is the enumerated configuration record for both services.
type Config struct {
	// Wire format on the raw lane: "thrift" or "avro".
	RecordFormat string `json:"record_format"`
	// Transport for all lanes: "kafka", "sqs", "pubsub" or "dev".
	Transport string `json:"transport"`
	// AtomicEventTransport optionally overrides the events lane transport
	// ("firehose" is only valid here and on the raw lane).
	AtomicEventTransport string `json:"atomic_event_transport"`

	// MaxBytes bounds a serialized raw frame. 190000 keeps a frame under
	// the 256 KiB SQS limit after base64.
	MaxBytes int `json:"max_bytes"`

	IgluSchemaRegistries []string `json:"iglu_schema_registries"`

	KafkaBrokers     string `json:"kafka_brokers"`
	KafkaTopicRaw    string `json:"kafka_topic_raw"`
	KafkaTopicEvents string `json:"kafka_topic_events"`
	KafkaTopicErrors string `json:"kafka_topic_errors"`

	SQSQueueRaw    string `json:"sqs_queue_raw"`
	SQSQueueEvents string `json:"sqs_queue_events"`
	SQSQueueErrors string `json:"sqs_queue_errors"`

	FirehoseStreamName string `json:"firehose_stream_name"`

	PubsubProject            string `json:"pubsub_project"`
	PubsubTopicRaw           string `json:"pubsub_topic_raw"`
	PubsubTopicEvents        string `json:"pubsub_topic_events"`
	PubsubTopicErrors        string `json:"pubsub_topic_errors"`
	PubsubSubscriptionPrefix string `json:"pubsub_subscription_prefix"`

	AssetDir        string `json:"asset_dir"`
	GeoipEnabled    bool   `json:"geoip_enabled"`
	DownloadGeoipDB bool   `json:"download_geoip_db"`
	GeoipDBURL      string `json:"geoip_db_url"`
	GeoipDBFile     string `json:"geoip_db_file"`

	TenantLookupEndpoint string `json:"tenant_lookup_endpoint"`
	RemoteConfigEndpoint string `json:"remote_config_endpoint"`

	AuthenticationPublicKey  string            `json:"authentication_public_key"`
	AuthenticationSubField   string            `json:"authentication_sub_field"`
	AuthenticationAud        string            `json:"authentication_aud"`
	AuthenticationIssJWKURLs map[string]string `json:"authentication_iss_jwk_urls"`

	CampaignEnrichmentEnabled bool `json:"campaign_enrichment_enabled"`
	DeviceEnrichmentEnabled   bool `json:"device_enrichment_enabled"`

	// Cache TTLs in seconds: one for hits, a shorter one for misses so a
	// misbehaving registry is retried without being hammered.
	DefaultCacheTTL int `json:"default_cache_ttl"`
	NoneCacheTTL    int `json:"none_cache_ttl"`

	// Collector surface.
	CollectorPort          int      `json:"collector_port"`
	AddVendorPaths         []string `json:"add_vendor_paths"`
	EnableRedirectTracking bool     `json:"enable_redirect_tracking"`

	CookieEnabled        bool     `json:"cookie_enabled"`
	CookieName           string   `json:"cookie_name"`
	CookieExpirationDays int      `json:"cookie_expiration_days"`
	CookieSecure         bool     `json:"cookie_secure"`
	CookieHTTPOnly       bool     `json:"cookie_http_only"`
	CookieSameSite       string   `json:"cookie_same_site"`
	CookieDomains        []string `json:"cookie_domains"`
	CookieFallbackDomain string   `json:"cookie_fallback_domain"`

	// Extra keeps unknown JSON keys (experimental toggles).
	Extra map[string]any `json:"-"`
}

// Default returns a Config populated with the defaults.
func Default() *Config {
	return &Config{
		RecordFormat:         "avro",
		MaxBytes:             190000,
		IgluSchemaRegistries: []string{"http://iglucentral.com/schemas/"},
		AssetDir:             "assets",
		GeoipDBURL:           "https://github.com/P3TERX/GeoLite.mmdb/raw/download/GeoLite2-City.mmdb",
		GeoipDBFile:          "GeoLite2-City.mmdb",
		AuthenticationSubField: "sub",
		DefaultCacheTTL:        3600,
		NoneCacheTTL:           60,
		CollectorPort:          8080,
		CookieName:             "sp",
		CookieExpirationDays:   365,
		CookieSecure:           true,
		CookieHTTPOnly:         true,
		CookieSameSite:         "None",
	}
}

// Load builds the configuration from defaults, the JSON file and the
// environment, in that order.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv(EnvConfigPath)
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	// Collect keys the struct does not know about.
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return err
	}
	known := knownKeys()
	for k, v := range all {
		if !known[k] {
			if c.Extra == nil {
				c.Extra = make(map[string]any)
			}
			c.Extra[k] = v
		}
	}
	return nil
}

func knownKeys() map[string]bool {
	raw, _ := json.Marshal(Default())
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	keys := make(map[string]bool, len(m))
	for k := range m {
		keys[k] = true
	}
	return keys
}

// applyEnv overrides fields from DATENSTROM_* variables. The lookup function
// is injected so tests do not have to mutate the process environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + strings.ToUpper(key)); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + strings.ToUpper(key)); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + strings.ToUpper(key)); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(envPrefix + strings.ToUpper(key)); ok {
			parts := strings.Split(v, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			*dst = out
		}
	}

	str("record_format", &c.RecordFormat)
	str("transport", &c.Transport)
	str("atomic_event_transport", &c.AtomicEventTransport)
	num("max_bytes", &c.MaxBytes)
	list("iglu_schema_registries", &c.IgluSchemaRegistries)
	str("kafka_brokers", &c.KafkaBrokers)
	str("kafka_topic_raw", &c.KafkaTopicRaw)
	str("kafka_topic_events", &c.KafkaTopicEvents)
	str("kafka_topic_errors", &c.KafkaTopicErrors)
	str("sqs_queue_raw", &c.SQSQueueRaw)
	str("sqs_queue_events", &c.SQSQueueEvents)
	str("sqs_queue_errors", &c.SQSQueueErrors)
	str("firehose_stream_name", &c.FirehoseStreamName)
	str("pubsub_project", &c.PubsubProject)
	str("pubsub_topic_raw", &c.PubsubTopicRaw)
	str("pubsub_topic_events", &c.PubsubTopicEvents)
	str("pubsub_topic_errors", &c.PubsubTopicErrors)
	str("pubsub_subscription_prefix", &c.PubsubSubscriptionPrefix)
	str("asset_dir", &c.AssetDir)
	flag("geoip_enabled", &c.GeoipEnabled)
	flag("download_geoip_db", &c.DownloadGeoipDB)
	str("geoip_db_url", &c.GeoipDBURL)
	str("geoip_db_file", &c.GeoipDBFile)
	str("tenant_lookup_endpoint", &c.TenantLookupEndpoint)
	str("remote_config_endpoint", &c.RemoteConfigEndpoint)
	str("authentication_public_key", &c.AuthenticationPublicKey)
	str("authentication_sub_field", &c.AuthenticationSubField)
	str("authentication_aud", &c.AuthenticationAud)
	flag("campaign_enrichment_enabled", &c.CampaignEnrichmentEnabled)
	flag("device_enrichment_enabled", &c.DeviceEnrichmentEnabled)
	num("default_cache_ttl", &c.DefaultCacheTTL)
	num("none_cache_ttl", &c.NoneCacheTTL)
	num("collector_port", &c.CollectorPort)
	list("add_vendor_paths", &c.AddVendorPaths)
	flag("enable_redirect_tracking", &c.EnableRedirectTracking)
	flag("cookie_enabled", &c.CookieEnabled)
	str("cookie_name", &c.CookieName)
	num("cookie_expiration_days", &c.CookieExpirationDays)
	flag("cookie_secure", &c.CookieSecure)
	flag("cookie_http_only", &c.CookieHTTPOnly)
	str("cookie_same_site", &c.CookieSameSite)
	list("cookie_domains", &c.CookieDomains)
	str("cookie_fallback_domain", &c.CookieFallbackDomain)
}

// CacheTTL is the expiry for successful cache lookups. Non-positive values
// fall back to the default.
func (c *Config) CacheTTL() time.Duration {
	if c.DefaultCacheTTL <= 0 {
		return 3600 * time.Second
	}
	return time.Duration(c.DefaultCacheTTL) * time.Second
}

// CacheNoneTTL is the shorter expiry for failed cache lookups.
func (c *Config) CacheNoneTTL() time.Duration {
	if c.NoneCacheTTL <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.NoneCacheTTL) * time.Second
}

// EventsTransport resolves the transport for the events lane, honouring the
// AtomicEventTransport override.
func (c *Config) EventsTransport() string {
	if c.AtomicEventTransport != "" {
		return c.AtomicEventTransport
	}
	return c.Transport
}

// Validate checks the invariants a service cannot start without.
func (c *Config) Validate() error {
	switch c.RecordFormat {
	case "thrift", "avro":
	default:
		return fmt.Errorf("config: unknown record_format %q", c.RecordFormat)
	}
	switch c.Transport {
	case "kafka", "sqs", "pubsub", "dev":
	case "":
		return fmt.Errorf("config: transport is required")
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	switch c.AtomicEventTransport {
	case "", "kafka", "sqs", "pubsub", "dev", "firehose":
	default:
		return fmt.Errorf("config: unknown atomic_event_transport %q", c.AtomicEventTransport)
	}
	if c.MaxBytes <= 0 {
		return fmt.Errorf("config: max_bytes must be positive")
	}
	if len(c.IgluSchemaRegistries) == 0 {
		return fmt.Errorf("config: at least one iglu schema registry is required")
	}
	return nil
}
