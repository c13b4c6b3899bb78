package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moonbird-apps/iap-server/event"
	"github.com/moonbird-apps/iap-server/iap"
	"github.com/moonbird-apps/iap-server/iap/memory"
	"github.com/moonbird-apps/iap-server/model"
	"github.com/moonbird-apps/iap-server/testutil"
)

const testCatalog = `
country: US
products:
  - id: com.moonbird.hints
    title: Hint Pack
    price: "1.99"
    currency: USD
    symbol: "$"
    consumable: true
  - id: com.moonbird.premium
    title: Premium Upgrade
    price: "9.99"
    currency: USD
    symbol: "$"
`

func newTestRegistry(t *testing.T) *Registry {
	products, country, err := memory.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	log := zap.NewNop()
	updates := iap.NewUpdates(log, iap.PlatformAndroid)
	backend := memory.NewBackend(
		log,
		iap.PlatformAndroid,
		updates,
		memory.WithCatalog(products),
		memory.WithCountry(country),
	)
	plugin := iap.NewPlugin(log, iap.PlatformAndroid, backend, updates)

	return NewRegistry(log, plugin)
}

func invoke(t *testing.T, r *Registry, command, params string) json.RawMessage {
	t.Helper()

	var raw json.RawMessage
	if params != "" {
		raw = json.RawMessage(params)
	}
	data, wireErr := r.Invoke(context.Background(), command, raw)
	require.Nil(t, wireErr)
	return data
}

func TestRegistry_Commands(t *testing.T) {
	registry := newTestRegistry(t)
	require.ElementsMatch(t, []string{
		"initialize",
		"is_available",
		"query_product_details",
		"buy_non_consumable",
		"buy_consumable",
		"complete_purchase",
		"restore_purchases",
		"country_code",
	}, registry.Commands())
}

func TestRegistry_HappyPath(t *testing.T) {
	registry := newTestRegistry(t)

	require.Nil(t, invoke(t, registry, CommandInitialize, ""))

	var available bool
	require.NoError(t, json.Unmarshal(invoke(t, registry, CommandIsAvailable, ""), &available))
	require.True(t, available)

	var country string
	require.NoError(t, json.Unmarshal(invoke(t, registry, CommandCountryCode, ""), &country))
	require.Equal(t, "US", country)

	data := invoke(t, registry, CommandQueryProductDetails,
		`{"productIds":["com.moonbird.premium","com.moonbird.missing"]}`)
	resp, err := model.DecodeProductDetailsResponse(data)
	require.NoError(t, err)
	require.Len(t, resp.ProductDetails, 1)
	require.Equal(t, []string{"com.moonbird.missing"}, resp.NotFoundIDs)

	param, err := json.Marshal(model.PurchaseParam{ProductDetails: resp.ProductDetails[0]})
	require.NoError(t, err)

	var launched bool
	data = invoke(t, registry, CommandBuyNonConsumable, `{"purchaseParam":`+string(param)+`}`)
	require.NoError(t, json.Unmarshal(data, &launched))
	require.True(t, launched)
}

func TestRegistry_BuyConsumableDefaultsAutoConsumeOff(t *testing.T) {
	registry := newTestRegistry(t)
	require.Nil(t, invoke(t, registry, CommandInitialize, ""))

	sink := testutil.NewRecordingSink()
	registry.plugin.Updates().AddPurchaseHandler(event.HandlerFunc[iap.Platform, []model.PurchaseDetails](
		func(_ iap.Platform, purchases []model.PurchaseDetails) {
			sink.OnPurchaseUpdate(purchases)
		},
	))

	data := invoke(t, registry, CommandQueryProductDetails, `{"productIds":["com.moonbird.hints"]}`)
	resp, err := model.DecodeProductDetailsResponse(data)
	require.NoError(t, err)

	param, err := json.Marshal(model.PurchaseParam{ProductDetails: resp.ProductDetails[0]})
	require.NoError(t, err)

	// No autoConsume in the params: the purchase must arrive still
	// pending completion.
	invoke(t, registry, CommandBuyConsumable, `{"purchaseParam":`+string(param)+`}`)

	batches := sink.WaitForPurchases(t, 1)
	require.True(t, batches[0][0].PendingCompletePurchase)

	// Completing through the command layer consumes it.
	purchase, err := json.Marshal(batches[0][0])
	require.NoError(t, err)
	require.Nil(t, invoke(t, registry, CommandCompletePurchase, `{"purchase":`+string(purchase)+`}`))
}

func TestRegistry_Failures(t *testing.T) {
	registry := newTestRegistry(t)

	_, wireErr := registry.Invoke(context.Background(), "unknown_command", nil)
	require.NotNil(t, wireErr)
	require.Equal(t, string(iap.CodeInternal), wireErr.Code)

	_, wireErr = registry.Invoke(context.Background(), CommandQueryProductDetails, json.RawMessage(`{bad`))
	require.NotNil(t, wireErr)
	require.Equal(t, string(iap.CodeInternal), wireErr.Code)
}

func TestRegistry_UnsupportedPlatform(t *testing.T) {
	log := zap.NewNop()
	plugin := iap.NewPlugin(
		log,
		iap.PlatformUnsupported,
		iap.NewUnsupported(),
		iap.NewUpdates(log, iap.PlatformUnsupported),
	)
	registry := NewRegistry(log, plugin)

	param, err := json.Marshal(model.PurchaseParam{ProductDetails: testutil.NewProduct("com.moonbird.premium", 9.99)})
	require.NoError(t, err)
	purchase, err := json.Marshal(testutil.NewPurchase("com.moonbird.premium", model.SourceGoogle))
	require.NoError(t, err)

	params := map[string]string{
		CommandInitialize:          "",
		CommandIsAvailable:         "",
		CommandQueryProductDetails: `{"productIds":["com.moonbird.premium"]}`,
		CommandBuyNonConsumable:    `{"purchaseParam":` + string(param) + `}`,
		CommandBuyConsumable:       `{"purchaseParam":` + string(param) + `,"autoConsume":true}`,
		CommandCompletePurchase:    `{"purchase":` + string(purchase) + `}`,
		CommandRestorePurchases:    "",
		CommandCountryCode:         "",
	}

	for command, p := range params {
		var raw json.RawMessage
		if p != "" {
			raw = json.RawMessage(p)
		}
		_, wireErr := registry.Invoke(context.Background(), command, raw)
		require.NotNil(t, wireErr, "command %s", command)
		require.Equal(t, string(iap.CodePlatformNotSupported), wireErr.Code, "command %s", command)
	}
}

