// Package rpc exposes the plugin to a host application as string-keyed
// commands. Each command takes a JSON params object with camelCase
// fields and returns either a JSON result or a wire error, so any
// transport able to carry (command, params) pairs can front the plugin.
package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/model"
)

// Command names. These match the method names of the native contract, so
// a host can forward frames without renaming.
const (
	CommandInitialize          = "initialize"
	CommandIsAvailable         = "is_available"
	CommandQueryProductDetails = "query_product_details"
	CommandBuyNonConsumable    = "buy_non_consumable"
	CommandBuyConsumable       = "buy_consumable"
	CommandCompletePurchase    = "complete_purchase"
	CommandRestorePurchases    = "restore_purchases"
	CommandCountryCode         = "country_code"
)

type handler func(ctx context.Context, params json.RawMessage) (any, error)

// Registry dispatches host commands to a plugin.
type Registry struct {
	log      *zap.Logger
	plugin   *iap.Plugin
	handlers map[string]handler
}

// NewRegistry returns a registry serving the eight purchase commands
// against plugin.
func NewRegistry(log *zap.Logger, plugin *iap.Plugin) *Registry {
	r := &Registry{
		log:    log,
		plugin: plugin,
	}
	r.handlers = map[string]handler{
		CommandInitialize:          r.initialize,
		CommandIsAvailable:         r.isAvailable,
		CommandQueryProductDetails: r.queryProductDetails,
		CommandBuyNonConsumable:    r.buyNonConsumable,
		CommandBuyConsumable:       r.buyConsumable,
		CommandCompletePurchase:    r.completePurchase,
		CommandRestorePurchases:    r.restorePurchases,
		CommandCountryCode:         r.countryCode,
	}
	return r
}

// Commands returns the names of all registered commands.
func (r *Registry) Commands() []string {
	commands := make([]string, 0, len(r.handlers))
	for command := range r.handlers {
		commands = append(commands, command)
	}
	return commands
}

// Invoke runs a command. On failure the returned wire error always
// carries a taxonomy code; the raw result is nil.
func (r *Registry) Invoke(ctx context.Context, command string, params json.RawMessage) (json.RawMessage, *model.IAPError) {
	h, ok := r.handlers[command]
	if !ok {
		wireErr := iap.NewError(iap.CodeInternal, "unknown command "+command).Wire()
		return nil, &wireErr
	}

	result, err := h(ctx, params)
	if err != nil {
		wireErr := toWire(err)
		return nil, &wireErr
	}
	if result == nil {
		return nil, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		r.log.Error("Failed to encode command result", zap.String("command", command), zap.Error(err))
		wireErr := iap.WrapError(iap.CodeInternal, err, "encoding result").Wire()
		return nil, &wireErr
	}
	return data, nil
}

func (r *Registry) initialize(ctx context.Context, _ json.RawMessage) (any, error) {
	return nil, r.plugin.Initialize(ctx)
}

func (r *Registry) isAvailable(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.plugin.IsAvailable(ctx)
}

func (r *Registry) queryProductDetails(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		ProductIDs []string `json:"productIds"`
	}
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	return r.plugin.QueryProductDetails(ctx, args.ProductIDs)
}

func (r *Registry) buyNonConsumable(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		PurchaseParam model.PurchaseParam `json:"purchaseParam"`
	}
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	return r.plugin.BuyNonConsumable(ctx, args.PurchaseParam)
}

func (r *Registry) buyConsumable(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		PurchaseParam model.PurchaseParam `json:"purchaseParam"`

		// Omitted means false: consumables are only consumed on an
		// explicit completion unless the caller opts in.
		AutoConsume bool `json:"autoConsume"`
	}
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	return r.plugin.BuyConsumable(ctx, args.PurchaseParam, args.AutoConsume)
}

func (r *Registry) completePurchase(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		Purchase model.PurchaseDetails `json:"purchase"`
	}
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	return nil, r.plugin.CompletePurchase(ctx, args.Purchase)
}

func (r *Registry) restorePurchases(ctx context.Context, params json.RawMessage) (any, error) {
	var args struct {
		ApplicationUserName string `json:"applicationUserName"`
	}
	if err := decode(params, &args); err != nil {
		return nil, err
	}
	return nil, r.plugin.RestorePurchases(ctx, args.ApplicationUserName)
}

func (r *Registry) countryCode(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.plugin.CountryCode(ctx)
}

// decode tolerates empty params, so commands whose arguments are all
// optional can be invoked bare.
func decode(params json.RawMessage, into any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return iap.WrapError(iap.CodeInternal, err, "invalid command arguments")
	}
	return nil
}

// toWire converts any error into its wire form, classifying unclassified
// errors as internal.
func toWire(err error) model.IAPError {
	var classified *iap.Error
	if errors.As(err, &classified) {
		return classified.Wire()
	}
	return iap.WrapError(iap.CodeInternal, err, "").Wire()
}
