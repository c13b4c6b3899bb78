package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/config"
	"github.com/moonbird-apps/iap-server/fulfillment"
	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/iap/bridge"
	"github.com/moonbird-apps/iap-server/iap/bridge/ws"
	"github.com/moonbird-apps/iap-server/iap/cached"
	"github.com/moonbird-apps/iap-server/iap/memory"
	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/rpc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer func() { _ = logger.Sync() }()

	updates := iap.NewUpdates(logger, cfg.Platform)

	backend, host, err := selectBackend(logger, cfg, updates)
	if err != nil {
		logger.Fatal("Failed to select backend", zap.Error(err))
	}
	backend = cached.NewBackend(backend, cfg.ProductCacheTTL)

	plugin := iap.NewPlugin(logger, cfg.Platform, backend, updates)
	iap.Activate(plugin)

	worker := fulfillment.NewWorker(
		logger,
		plugin,
		func(ctx context.Context, purchase model.PurchaseDetails) error {
			logger.Info(
				"Delivering product",
				zap.String("product_id", purchase.ProductID),
				zap.String("purchase_id", purchase.PurchaseID),
			)
			return nil
		},
		fulfillment.WithDedupeTTL(cfg.FulfillmentDedupeTTL),
	)
	worker.Start()

	registry := rpc.NewRegistry(logger, plugin)
	logger.Info("Registered purchase commands", zap.Strings("commands", registry.Commands()))

	if host != nil {
		logger.Info("Waiting for native bridge", zap.String("addr", cfg.ListenAddr))
		http.Handle("/bridge", host)
		logger.Fatal("Bridge listener stopped", zap.Error(http.ListenAndServe(cfg.ListenAddr, nil)))
	}

	runSandboxDemo(logger, plugin)
}

// selectBackend picks the process-wide backend variant: sandbox when a
// catalog is configured, the websocket bridge on mobile platforms, and
// the unsupported stub otherwise.
func selectBackend(logger *zap.Logger, cfg *config.Config, updates *iap.Updates) (iap.Backend, *ws.Host, error) {
	if cfg.CatalogPath != "" {
		products, country, err := memory.LoadCatalogFile(cfg.CatalogPath)
		if err != nil {
			return nil, nil, err
		}
		if country == "" {
			country = cfg.Country
		}

		platform := cfg.Platform
		if !platform.Supported() {
			platform = iap.PlatformAndroid
		}

		logger.Info(
			"Using sandbox store",
			zap.String("catalog", cfg.CatalogPath),
			zap.Int("products", len(products)),
		)
		backend := memory.NewBackend(
			logger,
			platform,
			updates,
			memory.WithCatalog(products),
			memory.WithCountry(country),
		)
		return backend, nil, nil
	}

	if cfg.Platform.Supported() {
		host := ws.NewHost(logger)
		return bridge.New(logger, host, updates), host, nil
	}

	logger.Warn("No store backend for this platform; all operations will fail")
	return iap.NewUnsupported(), nil, nil
}

// runSandboxDemo exercises the full purchase cycle against the sandbox:
// query, buy, wait for the update, complete.
func runSandboxDemo(logger *zap.Logger, plugin *iap.Plugin) {
	ctx := context.Background()

	if err := plugin.Initialize(ctx); err != nil {
		logger.Error("Initialize failed", zap.Error(err))
		os.Exit(1)
	}

	country, err := plugin.CountryCode(ctx)
	if err != nil {
		logger.Error("Country code lookup failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Storefront resolved", zap.String("country", country))

	done := make(chan struct{})
	plugin.Updates().AddPurchaseHandler(newDemoCompleter(logger, plugin, done))

	resp, err := plugin.QueryProductDetails(ctx, []string{"com.moonbird.premium", "com.moonbird.unknown"})
	if err != nil {
		logger.Error("Product query failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info(
		"Catalog queried",
		zap.Int("found", len(resp.ProductDetails)),
		zap.Strings("not_found", resp.NotFoundIDs),
	)
	if len(resp.ProductDetails) == 0 {
		logger.Warn("Demo product missing from catalog; nothing to buy")
		return
	}

	launched, err := plugin.BuyNonConsumable(ctx, model.PurchaseParam{ProductDetails: resp.ProductDetails[0]})
	if err != nil {
		logger.Error("Purchase launch failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Purchase flow launched", zap.Bool("launched", launched))

	<-done
	logger.Info("Demo purchase cycle finished")
}

type demoCompleter struct {
	logger *zap.Logger
	plugin *iap.Plugin
	done   chan struct{}
}

func newDemoCompleter(logger *zap.Logger, plugin *iap.Plugin, done chan struct{}) *demoCompleter {
	return &demoCompleter{logger: logger, plugin: plugin, done: done}
}

func (c *demoCompleter) OnEvent(_ iap.Platform, purchases []model.PurchaseDetails) {
	for _, purchase := range purchases {
		c.logger.Info(
			"Purchase update received",
			zap.String("purchase_id", purchase.PurchaseID),
			zap.String("status", string(purchase.Status)),
		)
		if !purchase.PendingCompletePurchase {
			continue
		}
		if err := c.plugin.CompletePurchase(context.Background(), purchase); err != nil {
			c.logger.Error("Completion failed", zap.Error(err))
		}
	}
	select {
	case c.done <- struct{}{}:
	default:
	}
}
