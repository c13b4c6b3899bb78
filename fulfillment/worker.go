// Package fulfillment turns raw purchase updates into delivered goods.
// The worker listens on the plugin's update stream: purchases awaiting
// completion are verified (when a verifier is configured), handed to the
// application's deliver callback, and then completed with the store.
// Failures are logged and dropped; the store redelivers uncompleted
// purchases on its own schedule, so there is no retry machinery here.
package fulfillment

import (
	"context"
	"time"

	"github.com/ReneKroon/ttlcache"
	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/event"
	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/verify"
)

const defaultDedupeTTL = 10 * time.Minute

// DeliverFunc grants the purchased product to the user. It runs before
// the purchase is completed with the store; returning an error leaves
// the purchase uncompleted so the store redelivers it later.
type DeliverFunc func(ctx context.Context, purchase model.PurchaseDetails) error

// Worker drives purchases from the update stream to completion.
type Worker struct {
	log     *zap.Logger
	plugin  *iap.Plugin
	deliver DeliverFunc

	verifier verify.Verifier
	seen     *ttlcache.Cache
}

type Option func(*Worker)

// WithVerifier makes the worker verify each purchase with the issuing
// store before delivering. Purchases failing verification are dropped.
func WithVerifier(verifier verify.Verifier) Option {
	return func(w *Worker) {
		w.verifier = verifier
	}
}

// WithDedupeTTL sets how long a handled receipt suppresses redeliveries
// of the same purchase.
func WithDedupeTTL(ttl time.Duration) Option {
	return func(w *Worker) {
		w.seen.SetTTL(ttl)
	}
}

// NewWorker returns an unstarted worker. Call Start to subscribe it to
// the plugin's update stream.
func NewWorker(log *zap.Logger, plugin *iap.Plugin, deliver DeliverFunc, opts ...Option) *Worker {
	seen := ttlcache.NewCache()
	seen.SetTTL(defaultDedupeTTL)

	w := &Worker{
		log:     log,
		plugin:  plugin,
		deliver: deliver,
		seen:    seen,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start subscribes the worker to purchase updates and out-of-band
// errors. It must be called once.
func (w *Worker) Start() {
	w.plugin.Updates().AddPurchaseHandler(event.HandlerFunc[iap.Platform, []model.PurchaseDetails](
		func(_ iap.Platform, purchases []model.PurchaseDetails) {
			for _, purchase := range purchases {
				w.handle(purchase)
			}
		},
	))
	w.plugin.Updates().AddErrorHandler(event.HandlerFunc[iap.Platform, model.IAPError](
		func(_ iap.Platform, iapErr model.IAPError) {
			w.log.Warn(
				"Store reported out-of-band billing error",
				zap.String("code", iapErr.Code),
				zap.String("message", iapErr.Message),
			)
		},
	))
}

func (w *Worker) handle(purchase model.PurchaseDetails) {
	log := w.log.With(
		zap.String("purchase_id", purchase.PurchaseID),
		zap.String("product_id", purchase.ProductID),
		zap.String("status", string(purchase.Status)),
	)

	switch purchase.Status {
	case model.StatusPurchased, model.StatusRestored:
	case model.StatusError:
		log.Warn("Purchase failed", zap.Any("error", purchase.Error))
		return
	default:
		return
	}
	if !purchase.PendingCompletePurchase {
		// Nothing left to do: either auto-consumed or already
		// acknowledged.
		return
	}

	key := verify.ReceiptID(purchase.VerificationData)
	if _, handled := w.seen.Get(key); handled {
		log.Debug("Skipping already handled purchase")
		return
	}

	// Updates arrive on the store's own callback context, which carries
	// no caller deadline.
	ctx := context.Background()

	if w.verifier != nil {
		valid, err := w.verifier.VerifyPurchase(ctx, purchase)
		if err != nil {
			log.Warn("Failed to verify purchase", zap.Error(err))
			return
		}
		if !valid {
			log.Warn("Dropping purchase that failed verification")
			return
		}
	}

	if err := w.deliver(ctx, purchase); err != nil {
		log.Warn("Failed to deliver purchase", zap.Error(err))
		return
	}

	if err := w.plugin.CompletePurchase(ctx, purchase); err != nil {
		// Delivery already happened; the dedupe entry below prevents a
		// double delivery when the store resends the purchase.
		log.Warn("Failed to complete delivered purchase", zap.Error(err))
	}

	w.seen.Set(key, struct{}{})
	log.Info("Purchase fulfilled")
}
