package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/model"
)

// Argument payloads for the methods that wrap their inputs. Buy
// parameters and purchase details travel unwrapped.
type queryProductDetailsArgs struct {
	ProductIDs []string `json:"productIds"`
}

type buyConsumableArgs struct {
	PurchaseParam model.PurchaseParam `json:"purchaseParam"`
	AutoConsume   bool                `json:"autoConsume"`
}

type restorePurchasesArgs struct {
	// Explicit null when no account name was given, matching what the
	// native side historically received.
	ApplicationUserName *string `json:"applicationUserName"`
}

// Backend proxies the purchase operations to a native collaborator. It
// performs no store logic of its own: requests are encoded, responses
// are decoded and validated, and notifications are fed into the sink.
type Backend struct {
	log       *zap.Logger
	transport Transport
	sink      iap.UpdateSink
}

// New returns a backend speaking to the collaborator behind transport.
// The backend installs itself as the transport's notification handler.
func New(log *zap.Logger, transport Transport, sink iap.UpdateSink) *Backend {
	b := &Backend{
		log:       log,
		transport: transport,
		sink:      sink,
	}
	transport.SetNotificationHandler(b.handleNotification)
	return b
}

func (b *Backend) Initialize(ctx context.Context) error {
	return b.invoke(ctx, MethodInitialize, nil, nil)
}

func (b *Backend) IsAvailable(ctx context.Context) (bool, error) {
	var available bool
	if err := b.invoke(ctx, MethodIsAvailable, nil, &available); err != nil {
		return false, err
	}
	return available, nil
}

func (b *Backend) QueryProductDetails(ctx context.Context, productIDs []string) (*model.ProductDetailsResponse, error) {
	var resp model.ProductDetailsResponse
	err := b.invoke(ctx, MethodQueryProductDetails, queryProductDetailsArgs{ProductIDs: productIDs}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.ProductDetails == nil {
		resp.ProductDetails = []model.ProductDetails{}
	}
	if resp.NotFoundIDs == nil {
		resp.NotFoundIDs = []string{}
	}
	if err := resp.Validate(); err != nil {
		return nil, iap.WrapError(iap.CodeTransport, err, "malformed product details response")
	}
	return &resp, nil
}

func (b *Backend) BuyNonConsumable(ctx context.Context, param model.PurchaseParam) (bool, error) {
	var launched bool
	if err := b.invoke(ctx, MethodBuyNonConsumable, param, &launched); err != nil {
		return false, err
	}
	return launched, nil
}

func (b *Backend) BuyConsumable(ctx context.Context, param model.PurchaseParam, autoConsume bool) (bool, error) {
	args := buyConsumableArgs{
		PurchaseParam: param,
		AutoConsume:   autoConsume,
	}

	var launched bool
	if err := b.invoke(ctx, MethodBuyConsumable, args, &launched); err != nil {
		return false, err
	}
	return launched, nil
}

func (b *Backend) CompletePurchase(ctx context.Context, purchase model.PurchaseDetails) error {
	return b.invoke(ctx, MethodCompletePurchase, purchase, nil)
}

func (b *Backend) RestorePurchases(ctx context.Context, applicationUserName string) error {
	var args restorePurchasesArgs
	if applicationUserName != "" {
		args.ApplicationUserName = &applicationUserName
	}
	return b.invoke(ctx, MethodRestorePurchases, args, nil)
}

func (b *Backend) CountryCode(ctx context.Context) (string, error) {
	var country string
	if err := b.invoke(ctx, MethodCountryCode, nil, &country); err != nil {
		return "", err
	}
	return country, nil
}

// invoke dispatches through the transport and normalizes failures:
// classified errors from the collaborator pass through, anything else
// becomes a transport error.
func (b *Backend) invoke(ctx context.Context, method string, args any, reply any) error {
	err := b.transport.Invoke(ctx, method, args, reply)
	if err == nil {
		return nil
	}
	var classified *iap.Error
	if errors.As(err, &classified) {
		return err
	}
	return iap.WrapError(iap.CodeTransport, err, method)
}

// handleNotification ingests unsolicited events. Payloads that fail to
// decode are logged and dropped; they must never fail an in-flight call.
func (b *Backend) handleNotification(event string, payload json.RawMessage) {
	switch event {
	case EventPurchaseUpdate:
		purchases, err := model.DecodePurchaseDetailsList(payload)
		if err != nil {
			b.log.Warn("Dropping malformed purchase update", zap.Error(err))
			return
		}
		b.sink.OnPurchaseUpdate(purchases)
	case EventError:
		iapErr, err := model.DecodeIAPError(payload)
		if err != nil {
			b.log.Warn("Dropping malformed error event", zap.Error(err))
			return
		}
		b.sink.OnError(*iapErr)
	default:
		b.log.Warn("Dropping unknown event", zap.String("event", event))
	}
}
