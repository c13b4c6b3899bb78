package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/testutil"
)

func TestMemoryVerifier(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)
	verifier := NewVerifier(pub)
	ctx := context.Background()

	purchase := testutil.NewPurchase("com.moonbird.premium", model.SourceGoogle)
	purchase.VerificationData.ServerVerificationData = GenerateReceipt(
		priv, ReceiptMessage(purchase.ProductID, purchase.PurchaseID),
	)

	t.Run("Valid", func(t *testing.T) {
		valid, err := verifier.VerifyPurchase(ctx, purchase)
		require.NoError(t, err)
		require.True(t, valid)
	})

	t.Run("WrongProduct", func(t *testing.T) {
		tampered := purchase.Clone()
		tampered.ProductID = "com.moonbird.other"

		valid, err := verifier.VerifyPurchase(ctx, tampered)
		require.NoError(t, err)
		require.False(t, valid)
	})

	t.Run("UntrustedKey", func(t *testing.T) {
		_, otherKey, err := GenerateKeyPair()
		require.NoError(t, err)

		forged := purchase.Clone()
		forged.VerificationData.ServerVerificationData = GenerateReceipt(
			otherKey, ReceiptMessage(forged.ProductID, forged.PurchaseID),
		)

		valid, err := verifier.VerifyPurchase(ctx, forged)
		require.NoError(t, err)
		require.False(t, valid)
	})

	t.Run("MalformedReceipt", func(t *testing.T) {
		malformed := purchase.Clone()
		malformed.VerificationData.ServerVerificationData = "not a receipt"

		valid, err := verifier.VerifyPurchase(ctx, malformed)
		require.NoError(t, err)
		require.False(t, valid)
	})
}

func TestMemoryVerifier_ReceiptIdentifier(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)
	verifier := NewVerifier(pub)
	ctx := context.Background()

	purchase := testutil.NewPurchase("com.moonbird.premium", model.SourceGoogle)
	purchase.VerificationData.ServerVerificationData = GenerateReceipt(
		priv, ReceiptMessage(purchase.ProductID, purchase.PurchaseID),
	)

	id, err := verifier.ReceiptIdentifier(ctx, purchase)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := verifier.ReceiptIdentifier(ctx, purchase)
	require.NoError(t, err)
	require.Equal(t, id, again)

	_, err = verifier.ReceiptIdentifier(ctx, testutil.NewPurchase("com.moonbird.premium", model.SourceGoogle))
	require.Error(t, err)
}
