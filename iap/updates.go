package iap

import (
	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/event"
	"github.com/moonbird-apps/iap-server/model"
)

// Updates is the ingestion point for asynchronous store events. Backends
// publish into it through the UpdateSink interface, applications consume
// from it by adding handlers. Both streams are keyed by the platform the
// process is bound to.
type Updates struct {
	log      *zap.Logger
	platform Platform

	purchases *event.Bus[Platform, []model.PurchaseDetails]
	errors    *event.Bus[Platform, model.IAPError]
}

// NewUpdates returns an update hub for the given platform.
func NewUpdates(log *zap.Logger, platform Platform) *Updates {
	return &Updates{
		log:       log,
		platform:  platform,
		purchases: event.NewBus[Platform, []model.PurchaseDetails](),
		errors:    event.NewBus[Platform, model.IAPError](),
	}
}

// OnPurchaseUpdate implements UpdateSink. Batches are fanned out to
// purchase handlers in arrival order.
func (u *Updates) OnPurchaseUpdate(purchases []model.PurchaseDetails) {
	if len(purchases) == 0 {
		return
	}

	u.log.Debug(
		"Received purchase update",
		zap.String("platform", string(u.platform)),
		zap.Int("purchases", len(purchases)),
	)

	cloned := make([]model.PurchaseDetails, len(purchases))
	for i, purchase := range purchases {
		cloned[i] = purchase.Clone()
	}
	u.purchases.OnEvent(u.platform, cloned)
}

// OnError implements UpdateSink.
func (u *Updates) OnError(iapErr model.IAPError) {
	u.log.Debug(
		"Received error event",
		zap.String("platform", string(u.platform)),
		zap.String("code", iapErr.Code),
	)

	u.errors.OnEvent(u.platform, iapErr.Clone())
}

// AddPurchaseHandler registers a handler for purchase update batches.
func (u *Updates) AddPurchaseHandler(handler event.Handler[Platform, []model.PurchaseDetails]) {
	u.purchases.AddHandler(handler)
}

// AddErrorHandler registers a handler for out-of-band billing errors.
func (u *Updates) AddErrorHandler(handler event.Handler[Platform, model.IAPError]) {
	u.errors.AddHandler(handler)
}
