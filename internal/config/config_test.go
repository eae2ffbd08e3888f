package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "avro", cfg.RecordFormat)
	assert.Equal(t, 190000, cfg.MaxBytes)
	assert.Equal(t, []string{"http://iglucentral.com/schemas/"}, cfg.IgluSchemaRegistries)
	assert.Equal(t, "sub", cfg.AuthenticationSubField)
	assert.Equal(t, 8080, cfg.CollectorPort)
	assert.Equal(t, "sp", cfg.CookieName)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Transport = "dev"
	require.NoError(t, cfg.Validate())

	cfg.RecordFormat = "protobuf"
	assert.Error(t, cfg.Validate())
	cfg.RecordFormat = "thrift"
	require.NoError(t, cfg.Validate())

	cfg.Transport = ""
	assert.Error(t, cfg.Validate(), "transport is required")
	cfg.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
	cfg.Transport = "sqs"
	require.NoError(t, cfg.Validate())

	cfg.AtomicEventTransport = "firehose"
	require.NoError(t, cfg.Validate(), "firehose is valid on the events lane")
	cfg.AtomicEventTransport = "smoke-signals"
	assert.Error(t, cfg.Validate())

	cfg.AtomicEventTransport = ""
	cfg.MaxBytes = 0
	assert.Error(t, cfg.Validate())
	cfg.MaxBytes = 1024
	cfg.IgluSchemaRegistries = nil
	assert.Error(t, cfg.Validate())
}

func TestCacheTTLs(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3600*time.Second, cfg.CacheTTL())
	assert.Equal(t, 60*time.Second, cfg.CacheNoneTTL())

	cfg.DefaultCacheTTL = 120
	cfg.NoneCacheTTL = 5
	assert.Equal(t, 120*time.Second, cfg.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.CacheNoneTTL())

	cfg.DefaultCacheTTL = 0
	cfg.NoneCacheTTL = -1
	assert.Equal(t, 3600*time.Second, cfg.CacheTTL())
	assert.Equal(t, 60*time.Second, cfg.CacheNoneTTL())
}

func TestEventsTransportOverride(t *testing.T) {
	cfg := Default()
	cfg.Transport = "kafka"
	assert.Equal(t, "kafka", cfg.EventsTransport())
	cfg.AtomicEventTransport = "firehose"
	assert.Equal(t, "firehose", cfg.EventsTransport())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DATENSTROM_TRANSPORT":                "kafka",
		"DATENSTROM_RECORD_FORMAT":            "thrift",
		"DATENSTROM_MAX_BYTES":                "65536",
		"DATENSTROM_KAFKA_BROKERS":            "broker-1:9092,broker-2:9092",
		"DATENSTROM_IGLU_SCHEMA_REGISTRIES":   "http://a/schemas/, http://b/schemas/",
		"DATENSTROM_GEOIP_ENABLED":            "true",
		"DATENSTROM_COOKIE_EXPIRATION_DAYS":   "30",
		"DATENSTROM_ENABLE_REDIRECT_TRACKING": "1",
	}
	cfg := Default()
	cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, "kafka", cfg.Transport)
	assert.Equal(t, "thrift", cfg.RecordFormat)
	assert.Equal(t, 65536, cfg.MaxBytes)
	assert.Equal(t, "broker-1:9092,broker-2:9092", cfg.KafkaBrokers)
	assert.Equal(t, []string{"http://a/schemas/", "http://b/schemas/"}, cfg.IgluSchemaRegistries)
	assert.True(t, cfg.GeoipEnabled)
	assert.Equal(t, 30, cfg.CookieExpirationDays)
	assert.True(t, cfg.EnableRedirectTracking)
}

func TestApplyFileKeepsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"transport": "sqs",
		"sqs_queue_raw": "raw-queue",
		"experimental_toggle": true
	}`), 0o600))

	cfg := Default()
	require.NoError(t, cfg.applyFile(path))
	assert.Equal(t, "sqs", cfg.Transport)
	assert.Equal(t, "raw-queue", cfg.SQSQueueRaw)
	assert.Equal(t, true, cfg.Extra["experimental_toggle"])
}

func TestApplyFileRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
	assert.Error(t, Default().applyFile(path))
}
