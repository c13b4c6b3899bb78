// Package config loads daemon configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/moonbird-apps/iap-server/iap"
)

const (
	envPlatform    = "IAP_PLATFORM"
	envListenAddr  = "IAP_LISTEN_ADDR"
	envCatalogPath = "IAP_SANDBOX_CATALOG"
	envCountry     = "IAP_SANDBOX_COUNTRY"

	envProductCacheTTL = "IAP_PRODUCT_CACHE_TTL"
	envDedupeTTL       = "IAP_FULFILLMENT_DEDUPE_TTL"

	envAppleSharedSecret = "IAP_APPLE_SHARED_SECRET"
	envAppleBundleID     = "IAP_APPLE_BUNDLE_ID"
	envGooglePackageName = "IAP_GOOGLE_PACKAGE_NAME"
	envGoogleCredsFile   = "IAP_GOOGLE_CREDENTIALS_FILE"
)

type Config struct {
	// Platform selects the backend variant for the process lifetime:
	// "android", "ios", or anything else for the unsupported stub.
	Platform iap.Platform

	// ListenAddr is where the bridge websocket endpoint is served.
	ListenAddr string

	// CatalogPath points at a YAML sandbox catalog. When set, the
	// sandbox backend is used instead of the bridge.
	CatalogPath string
	Country     string

	ProductCacheTTL      time.Duration
	FulfillmentDedupeTTL time.Duration

	AppleSharedSecret string
	AppleBundleID     string

	GooglePackageName string
	GoogleCredsFile   string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		Platform:    iap.Platform(getEnv(envPlatform, string(iap.PlatformUnsupported))),
		ListenAddr:  getEnv(envListenAddr, "localhost:8400"),
		CatalogPath: os.Getenv(envCatalogPath),
		Country:     getEnv(envCountry, "US"),

		AppleSharedSecret: os.Getenv(envAppleSharedSecret),
		AppleBundleID:     os.Getenv(envAppleBundleID),
		GooglePackageName: os.Getenv(envGooglePackageName),
		GoogleCredsFile:   os.Getenv(envGoogleCredsFile),
	}

	var err error
	if cfg.ProductCacheTTL, err = getDuration(envProductCacheTTL, 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FulfillmentDedupeTTL, err = getDuration(envDedupeTTL, 10*time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", key)
	}
	return d, nil
}
