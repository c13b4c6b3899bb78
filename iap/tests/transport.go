package tests

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/iap/bridge"
	"github.com/moonbird-apps/iap-server/model"
)

// LoopbackTransport is an in-process stand-in for a native collaborator.
// Invocations are decoded from their wire payloads, serviced by a local
// backend, and the results re-encoded, so the bridge sees exactly the
// frames a real shell would send. It also implements iap.UpdateSink:
// events published by the local backend are forwarded to the bridge as
// wire notifications.
type LoopbackTransport struct {
	backend iap.Backend

	mu     sync.RWMutex
	notify bridge.NotificationHandler
}

// NewLoopbackTransport returns a transport serviced by backend. Wire the
// backend's update sink to the returned transport.
func NewLoopbackTransport(backend iap.Backend) *LoopbackTransport {
	return &LoopbackTransport{backend: backend}
}

// SetBackend installs the serviced backend after construction, for the
// cases where the backend itself needs the transport as its sink first.
func (l *LoopbackTransport) SetBackend(backend iap.Backend) {
	l.backend = backend
}

func (l *LoopbackTransport) SetNotificationHandler(handler bridge.NotificationHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = handler
}

// OnPurchaseUpdate implements iap.UpdateSink by emitting the wire
// notification the native collaborator would send.
func (l *LoopbackTransport) OnPurchaseUpdate(purchases []model.PurchaseDetails) {
	payload, err := json.Marshal(purchases)
	if err != nil {
		return
	}
	l.emit(bridge.EventPurchaseUpdate, payload)
}

// OnError implements iap.UpdateSink.
func (l *LoopbackTransport) OnError(iapErr model.IAPError) {
	payload, err := json.Marshal(iapErr)
	if err != nil {
		return
	}
	l.emit(bridge.EventError, payload)
}

func (l *LoopbackTransport) emit(event string, payload json.RawMessage) {
	l.mu.RLock()
	notify := l.notify
	l.mu.RUnlock()

	if notify != nil {
		notify(event, payload)
	}
}

func (l *LoopbackTransport) Invoke(ctx context.Context, method string, args any, reply any) error {
	params, err := json.Marshal(args)
	if err != nil {
		return errors.Wrap(err, "marshalling params")
	}

	data, err := l.serve(ctx, method, params)
	if err != nil {
		return err
	}
	if reply == nil || len(data) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(data, reply), "decoding %s result", method)
}

// serve plays the native side: decode the wire payload, call the local
// backend, encode the result.
func (l *LoopbackTransport) serve(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case bridge.MethodInitialize:
		return nil, l.backend.Initialize(ctx)

	case bridge.MethodIsAvailable:
		available, err := l.backend.IsAvailable(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(available)

	case bridge.MethodQueryProductDetails:
		var args struct {
			ProductIDs []string `json:"productIds"`
		}
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, errors.Wrap(err, "decoding query args")
		}
		resp, err := l.backend.QueryProductDetails(ctx, args.ProductIDs)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)

	case bridge.MethodBuyNonConsumable:
		var param model.PurchaseParam
		if err := json.Unmarshal(params, &param); err != nil {
			return nil, errors.Wrap(err, "decoding purchase param")
		}
		launched, err := l.backend.BuyNonConsumable(ctx, param)
		if err != nil {
			return nil, err
		}
		return json.Marshal(launched)

	case bridge.MethodBuyConsumable:
		var args struct {
			PurchaseParam model.PurchaseParam `json:"purchaseParam"`
			AutoConsume   bool                `json:"autoConsume"`
		}
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, errors.Wrap(err, "decoding buy args")
		}
		launched, err := l.backend.BuyConsumable(ctx, args.PurchaseParam, args.AutoConsume)
		if err != nil {
			return nil, err
		}
		return json.Marshal(launched)

	case bridge.MethodCompletePurchase:
		var purchase model.PurchaseDetails
		if err := json.Unmarshal(params, &purchase); err != nil {
			return nil, errors.Wrap(err, "decoding purchase details")
		}
		return nil, l.backend.CompletePurchase(ctx, purchase)

	case bridge.MethodRestorePurchases:
		var args struct {
			ApplicationUserName *string `json:"applicationUserName"`
		}
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, errors.Wrap(err, "decoding restore args")
		}
		var userName string
		if args.ApplicationUserName != nil {
			userName = *args.ApplicationUserName
		}
		return nil, l.backend.RestorePurchases(ctx, userName)

	case bridge.MethodCountryCode:
		country, err := l.backend.CountryCode(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(country)

	default:
		return nil, errors.Errorf("unknown method %q", method)
	}
}
