// Package bridge implements the store backend for mobile platforms by
// proxying every operation to a native collaborator over a Transport.
// The collaborator is the process that actually talks to the store; this
// side only speaks the shared JSON contract.
package bridge

import (
	"context"
	"encoding/json"
)

// Methods the native collaborator must service. The names are part of
// the contract shared with the Kotlin and Swift plugins.
const (
	MethodInitialize          = "initialize"
	MethodIsAvailable         = "is_available"
	MethodQueryProductDetails = "query_product_details"
	MethodBuyNonConsumable    = "buy_non_consumable"
	MethodBuyConsumable       = "buy_consumable"
	MethodCompletePurchase    = "complete_purchase"
	MethodRestorePurchases    = "restore_purchases"
	MethodCountryCode         = "country_code"
)

// Events the native collaborator emits outside the request cycle. The
// error event keeps its historical callback name.
const (
	EventPurchaseUpdate = "onPurchaseUpdate"
	EventError          = "handleError"
)

// NotificationHandler consumes unsolicited events from the collaborator.
// The payload is the raw JSON carried by the event.
type NotificationHandler func(event string, payload json.RawMessage)

// Transport carries string-keyed invocations to the native collaborator
// and unsolicited notifications back. Implementations must allow
// concurrent Invoke calls.
type Transport interface {
	// Invoke calls method with args marshalled as the params payload and,
	// when reply is non-nil, unmarshals the result into it. Errors
	// reported by the collaborator come back as classified iap errors;
	// anything else is a transport failure.
	Invoke(ctx context.Context, method string, args any, reply any) error

	// SetNotificationHandler registers the consumer for unsolicited
	// events. Only one handler is supported; setting a new one replaces
	// the previous.
	SetNotificationHandler(handler NotificationHandler)
}
