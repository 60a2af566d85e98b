package market_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nbahedge/tradeengine/internal/adapters/market"
	"github.com/nbahedge/tradeengine/internal/domain"
)

func TestPaperClientReturnsConfiguredBankroll(t *testing.T) {
	p := market.NewPaperClient("https://example.test", 2500)
	bal, err := p.GetBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2500.0, bal)
}

func TestPaperClientPlacementMethodsErrorRatherThanCall(t *testing.T) {
	p := market.NewPaperClient("https://example.test", 1000)
	ctx := context.Background()

	_, err := p.PlaceLimitBuy(ctx, domain.PlaceOrderRequest{TokenID: "t1", Price: 0.4, Size: 10})
	require.Error(t, err)

	_, err = p.CancelOrder(ctx, "order-1")
	require.Error(t, err)

	_, err = p.GetOrder(ctx, "order-1")
	require.Error(t, err)

	_, err = p.CancelAndReplace(ctx, "order-1", "token-1", 0.41, 10)
	require.Error(t, err)
}
