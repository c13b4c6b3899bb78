package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moonbird-apps/iap-server/iap"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, iap.PlatformUnsupported, cfg.Platform)
	require.Equal(t, "localhost:8400", cfg.ListenAddr)
	require.Equal(t, 5*time.Minute, cfg.ProductCacheTTL)
	require.Equal(t, 10*time.Minute, cfg.FulfillmentDedupeTTL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("IAP_PLATFORM", "android")
	t.Setenv("IAP_SANDBOX_CATALOG", "/tmp/catalog.yaml")
	t.Setenv("IAP_PRODUCT_CACHE_TTL", "30")
	t.Setenv("IAP_FULFILLMENT_DEDUPE_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, iap.PlatformAndroid, cfg.Platform)
	require.Equal(t, "/tmp/catalog.yaml", cfg.CatalogPath)
	require.Equal(t, 30*time.Second, cfg.ProductCacheTTL)
	require.Equal(t, time.Hour, cfg.FulfillmentDedupeTTL)
}

func TestLoad_RejectsBadDurations(t *testing.T) {
	t.Setenv("IAP_PRODUCT_CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}
