package iap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/event"
	"github.com/moonbird-apps/iap-server/model"
)

func testPurchase(productID string) model.PurchaseDetails {
	return model.PurchaseDetails{
		PurchaseID: model.MustGeneratePurchaseID(),
		ProductID:  productID,
		VerificationData: model.PurchaseVerificationData{
			LocalVerificationData:  model.MustGenerateVerificationBlob(),
			ServerVerificationData: model.MustGenerateVerificationBlob(),
			Source:                 model.SourceGoogle,
		},
		Status:                  model.StatusPurchased,
		PendingCompletePurchase: true,
	}
}

func TestUpdates_DeliversPurchaseBatches(t *testing.T) {
	updates := NewUpdates(zap.NewNop(), PlatformAndroid)

	received := make(chan []model.PurchaseDetails, 4)
	updates.AddPurchaseHandler(event.HandlerFunc[Platform, []model.PurchaseDetails](
		func(platform Platform, purchases []model.PurchaseDetails) {
			require.Equal(t, PlatformAndroid, platform)
			received <- purchases
		},
	))

	batch := []model.PurchaseDetails{testPurchase("coins.100"), testPurchase("coins.500")}
	updates.OnPurchaseUpdate(batch)

	select {
	case got := <-received:
		require.Len(t, got, 2)
		require.Equal(t, "coins.100", got[0].ProductID)
		require.Equal(t, "coins.500", got[1].ProductID)
	case <-time.After(time.Second):
		t.Fatal("purchase batch was not delivered")
	}
}

func TestUpdates_ClonesBatches(t *testing.T) {
	updates := NewUpdates(zap.NewNop(), PlatformIOS)

	received := make(chan []model.PurchaseDetails, 1)
	updates.AddPurchaseHandler(event.HandlerFunc[Platform, []model.PurchaseDetails](
		func(platform Platform, purchases []model.PurchaseDetails) {
			received <- purchases
		},
	))

	batch := []model.PurchaseDetails{testPurchase("premium.upgrade")}
	updates.OnPurchaseUpdate(batch)

	// The producer reusing its slice must not affect what handlers see.
	batch[0].ProductID = "mutated"

	select {
	case got := <-received:
		require.Equal(t, "premium.upgrade", got[0].ProductID)
	case <-time.After(time.Second):
		t.Fatal("purchase batch was not delivered")
	}
}

func TestUpdates_DropsEmptyBatches(t *testing.T) {
	updates := NewUpdates(zap.NewNop(), PlatformAndroid)

	received := make(chan []model.PurchaseDetails, 4)
	updates.AddPurchaseHandler(event.HandlerFunc[Platform, []model.PurchaseDetails](
		func(platform Platform, purchases []model.PurchaseDetails) {
			received <- purchases
		},
	))

	updates.OnPurchaseUpdate(nil)
	updates.OnPurchaseUpdate([]model.PurchaseDetails{})
	updates.OnPurchaseUpdate([]model.PurchaseDetails{testPurchase("coins.100")})

	select {
	case got := <-received:
		require.Len(t, got, 1)
	case <-time.After(time.Second):
		t.Fatal("purchase batch was not delivered")
	}
	require.Empty(t, received)
}

func TestUpdates_DeliversErrors(t *testing.T) {
	updates := NewUpdates(zap.NewNop(), PlatformAndroid)

	received := make(chan model.IAPError, 1)
	updates.AddErrorHandler(event.HandlerFunc[Platform, model.IAPError](
		func(platform Platform, iapErr model.IAPError) {
			received <- iapErr
		},
	))

	updates.OnError(FromResponseCode(2, "").Wire())

	select {
	case got := <-received:
		require.Equal(t, string(CodeServiceDisconnected), got.Code)
	case <-time.After(time.Second):
		t.Fatal("error event was not delivered")
	}
}
