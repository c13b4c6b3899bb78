// Package tests contains the shared conformance suite every store
// backend must pass expressed against the iap.Backend contract only, so
// the same assertions run against the sandbox, decorators, and the
// bridge over a scripted transport.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/testutil"
)

// Subject is one backend under test together with the catalog facts the
// suite relies on.
type Subject struct {
	Backend iap.Backend

	// Sink must be the sink the backend publishes updates into.
	Sink *testutil.RecordingSink

	// NonConsumableID and ConsumableID must exist in the backend's
	// catalog; MissingID must not.
	NonConsumableID string
	ConsumableID    string
	MissingID       string
}

// RunBackendTests runs the conformance suite. newSubject must return a
// fresh backend for every test.
func RunBackendTests(t *testing.T, newSubject func(t *testing.T) Subject, teardown func()) {
	for _, tf := range []func(t *testing.T, newSubject func(t *testing.T) Subject){
		testInitialize,
		testIsAvailable,
		testQueryProductDetails,
		testBuyNonConsumable,
		testBuyConsumableAutoConsume,
		testBuyConsumableManualConsume,
		testRestorePurchases,
	} {
		tf(t, newSubject)
		teardown()
	}
}

func testInitialize(t *testing.T, newSubject func(t *testing.T) Subject) {
	t.Run("Initialize", func(t *testing.T) {
		subject := newSubject(t)
		ctx := context.Background()

		require.NoError(t, subject.Backend.Initialize(ctx))

		// Repeated initialization must not corrupt the backend.
		require.NoError(t, subject.Backend.Initialize(ctx))

		available, err := subject.Backend.IsAvailable(ctx)
		require.NoError(t, err)
		require.True(t, available)
	})
}

func testIsAvailable(t *testing.T, newSubject func(t *testing.T) Subject) {
	t.Run("IsAvailable", func(t *testing.T) {
		subject := newSubject(t)
		ctx := context.Background()
		require.NoError(t, subject.Backend.Initialize(ctx))

		available, err := subject.Backend.IsAvailable(ctx)
		require.NoError(t, err)
		require.True(t, available)

		country, err := subject.Backend.CountryCode(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, country)
	})
}

func testQueryProductDetails(t *testing.T, newSubject func(t *testing.T) Subject) {
	t.Run("QueryProductDetails", func(t *testing.T) {
		subject := newSubject(t)
		ctx := context.Background()
		require.NoError(t, subject.Backend.Initialize(ctx))

		requested := []string{subject.NonConsumableID, subject.MissingID}
		resp, err := subject.Backend.QueryProductDetails(ctx, requested)
		require.NoError(t, err)

		require.Len(t, resp.ProductDetails, 1)
		require.Equal(t, subject.NonConsumableID, resp.ProductDetails[0].ID)
		require.Equal(t, []string{subject.MissingID}, resp.NotFoundIDs)
		require.Nil(t, resp.Error)
		require.NoError(t, resp.Validate())

		// Found and not found must partition the request.
		for _, details := range resp.ProductDetails {
			require.Contains(t, requested, details.ID)
			require.NotContains(t, resp.NotFoundIDs, details.ID)
		}
		for _, id := range resp.NotFoundIDs {
			require.Contains(t, requested, id)
		}
	})
}

func testBuyNonConsumable(t *testing.T, newSubject func(t *testing.T) Subject) {
	t.Run("BuyNonConsumable", func(t *testing.T) {
		subject := newSubject(t)
		ctx := context.Background()
		require.NoError(t, subject.Backend.Initialize(ctx))

		param := purchaseParam(t, subject, subject.NonConsumableID)
		launched, err := subject.Backend.BuyNonConsumable(ctx, param)
		require.NoError(t, err)
		require.True(t, launched)

		// The outcome arrives asynchronously, never as the return value.
		batches := subject.Sink.WaitForPurchases(t, 1)
		require.Len(t, batches[0], 1)

		purchase := batches[0][0]
		require.Equal(t, subject.NonConsumableID, purchase.ProductID)
		require.Equal(t, model.StatusPurchased, purchase.Status)
		require.True(t, purchase.PendingCompletePurchase)
		require.NotEmpty(t, purchase.PurchaseID)
		require.NotEmpty(t, purchase.VerificationData.ServerVerificationData)
		require.NoError(t, purchase.Validate())

		require.NoError(t, subject.Backend.CompletePurchase(ctx, purchase))

		// Completion is idempotent.
		require.NoError(t, subject.Backend.CompletePurchase(ctx, purchase))

		// Non-consumables are owned permanently: buying again fails.
		_, err = subject.Backend.BuyNonConsumable(ctx, param)
		require.Error(t, err)
		require.True(t, iap.IsCode(err, iap.CodeItemAlreadyOwned))
	})
}

func testBuyConsumableAutoConsume(t *testing.T, newSubject func(t *testing.T) Subject) {
	t.Run("BuyConsumableAutoConsume", func(t *testing.T) {
		subject := newSubject(t)
		ctx := context.Background()
		require.NoError(t, subject.Backend.Initialize(ctx))

		param := purchaseParam(t, subject, subject.ConsumableID)
		launched, err := subject.Backend.BuyConsumable(ctx, param, true)
		require.NoError(t, err)
		require.True(t, launched)

		batches := subject.Sink.WaitForPurchases(t, 1)
		purchase := batches[0][0]
		require.Equal(t, model.StatusPurchased, purchase.Status)
		require.False(t, purchase.PendingCompletePurchase)

		// Auto consumption leaves no entitlement behind, so the same
		// product can be bought again immediately.
		launched, err = subject.Backend.BuyConsumable(ctx, param, true)
		require.NoError(t, err)
		require.True(t, launched)
		subject.Sink.WaitForPurchases(t, 2)
	})
}

func testBuyConsumableManualConsume(t *testing.T, newSubject func(t *testing.T) Subject) {
	t.Run("BuyConsumableManualConsume", func(t *testing.T) {
		subject := newSubject(t)
		ctx := context.Background()
		require.NoError(t, subject.Backend.Initialize(ctx))

		param := purchaseParam(t, subject, subject.ConsumableID)
		launched, err := subject.Backend.BuyConsumable(ctx, param, false)
		require.NoError(t, err)
		require.True(t, launched)

		batches := subject.Sink.WaitForPurchases(t, 1)
		purchase := batches[0][0]
		require.True(t, purchase.PendingCompletePurchase)

		// Until consumed, the entitlement blocks a repeat purchase.
		_, err = subject.Backend.BuyConsumable(ctx, param, false)
		require.Error(t, err)
		require.True(t, iap.IsCode(err, iap.CodeItemAlreadyOwned))

		// Completing consumes, so the purchase can be repeated.
		require.NoError(t, subject.Backend.CompletePurchase(ctx, purchase))
		launched, err = subject.Backend.BuyConsumable(ctx, param, false)
		require.NoError(t, err)
		require.True(t, launched)
	})
}

func testRestorePurchases(t *testing.T, newSubject func(t *testing.T) Subject) {
	t.Run("RestoreWithNoPurchases", func(t *testing.T) {
		subject := newSubject(t)
		ctx := context.Background()
		require.NoError(t, subject.Backend.Initialize(ctx))

		require.NoError(t, subject.Backend.RestorePurchases(ctx, ""))
		subject.Sink.ExpectNoActivity(t, 100*time.Millisecond)
	})

	t.Run("RestoreRedeliversOwned", func(t *testing.T) {
		subject := newSubject(t)
		ctx := context.Background()
		require.NoError(t, subject.Backend.Initialize(ctx))

		param := purchaseParam(t, subject, subject.NonConsumableID)
		_, err := subject.Backend.BuyNonConsumable(ctx, param)
		require.NoError(t, err)

		batches := subject.Sink.WaitForPurchases(t, 1)
		original := batches[0][0]
		require.NoError(t, subject.Backend.CompletePurchase(ctx, original))

		require.NoError(t, subject.Backend.RestorePurchases(ctx, ""))
		batches = subject.Sink.WaitForPurchases(t, 2)

		restored := batches[1][0]
		require.Equal(t, original.PurchaseID, restored.PurchaseID)
		require.Equal(t, model.StatusRestored, restored.Status)
		require.True(t, restored.PendingCompletePurchase)

		// Completing a restored, already acknowledged purchase stays a
		// no-op.
		require.NoError(t, subject.Backend.CompletePurchase(ctx, restored))
	})
}

func purchaseParam(t *testing.T, subject Subject, productID string) model.PurchaseParam {
	t.Helper()

	resp, err := subject.Backend.QueryProductDetails(context.Background(), []string{productID})
	require.NoError(t, err)
	require.Len(t, resp.ProductDetails, 1)

	return model.PurchaseParam{ProductDetails: resp.ProductDetails[0]}
}
