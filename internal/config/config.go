// Package config loads depgraphd's configuration from a .env file
// (best-effort), then flags, then environment variables, mirroring the
// teacher's gateway/config.Load layering.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is depgraphd's full runtime configuration.
type Config struct {
	Port string

	StoreBackend string // "memory" or "postgres"
	PostgresDSN  string

	ViewCacheCapacity int

	Archive ArchiveConfig
	Metrics MetricsConfig
}

// ArchiveConfig controls optional POM archival to S3-compatible
// object storage.
type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MetricsConfig controls whether /metrics is exposed by the transport
// server.
type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration, following the teacher's .env-then-flags-
// then-env layering.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8090", "server port")
	backend := flag.String("store", "memory", "store backend: memory or postgres")
	flag.Parse()

	resolvedPort := *port
	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			resolvedPort = envPort
		} else {
			resolvedPort = ":" + envPort
		}
	}

	resolvedBackend := firstNonEmpty(strings.TrimSpace(os.Getenv("DEPGRAPH_STORE")), *backend)

	capacity := 4096
	if raw := strings.TrimSpace(os.Getenv("DEPGRAPH_VIEW_CACHE_CAPACITY")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			capacity = v
		}
	}

	return &Config{
		Port:              resolvedPort,
		StoreBackend:      resolvedBackend,
		PostgresDSN:       strings.TrimSpace(os.Getenv("DEPGRAPH_PG_DSN")),
		ViewCacheCapacity: capacity,
		Archive:           loadArchiveConfig(),
		Metrics:           MetricsConfig{Enabled: resolveBool("DEPGRAPH_METRICS_ENABLED", true)},
	}, nil
}

func loadArchiveConfig() ArchiveConfig {
	endpoint := strings.TrimSpace(os.Getenv("DEPGRAPH_ARCHIVE_S3_ENDPOINT"))
	return ArchiveConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("DEPGRAPH_ARCHIVE_S3_REGION")), "us-east-1"),
		AccessKey: strings.TrimSpace(os.Getenv("DEPGRAPH_ARCHIVE_S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("DEPGRAPH_ARCHIVE_S3_SECRET_KEY")),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("DEPGRAPH_ARCHIVE_S3_BUCKET")), "depgraph-poms"),
		UseSSL:    resolveBool("DEPGRAPH_ARCHIVE_S3_USE_SSL", true),
	}
}

func resolveBool(envVar string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(envVar))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
