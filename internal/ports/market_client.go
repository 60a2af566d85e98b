package ports

import (
	"context"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// MarketClient is the abstract capability set spec §6 requires of the
// prediction-market HTTP/chain API. The scheduler and order manager depend
// only on this interface; the concrete CLOB implementation in
// internal/adapters/market backs it for live/paper runs, and a fixture-backed
// implementation backs it for tests.
type MarketClient interface {
	// GetPrice returns the current best bid/ask, spread and ask depth for a
	// token.
	GetPrice(ctx context.Context, tokenID string) (domain.LiquiditySnapshot, error)

	// GetOrderBook returns the aggregated book for a token, sufficient to
	// compute ask depth within 5c of best-ask.
	GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error)

	// PlaceLimitBuy places a maker BUY limit order; price must be below best
	// ask. Returns the market's order ID.
	PlaceLimitBuy(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// CancelOrder cancels a resting order.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// GetOrder returns the current fill state of an order.
	GetOrder(ctx context.Context, orderID string) (domain.OrderState, error)

	// CancelAndReplace cancels an order and then places a new one for the
	// same token at new_price/new_size, returning the new order ID. The two
	// steps are separate calls, not one atomic operation.
	CancelAndReplace(ctx context.Context, orderID, tokenID string, newPrice, newSize float64) (string, error)

	// GetBalance returns the current free USDC collateral balance.
	GetBalance(ctx context.Context) (float64, error)
}

// GameDiscovery is the abstract sportsbook/schedule collaborator (spec §6):
// get_games(date) -> [{away_abbr, home_abbr, tipoff_utc, status, scores}].
type GameDiscovery interface {
	GetGames(ctx context.Context, date string) ([]domain.GameInfo, error)
}
